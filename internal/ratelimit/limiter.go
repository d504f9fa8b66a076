// Package ratelimit implements process-local fixed-window rate limiting
// keyed by (identifier, action). An identifier is typically a tenant ID
// or a client IP; the action selects the rule (send-email, api, ...).
//
// Fixed-window counting can admit up to 2×Max requests across a window
// boundary. That is an accepted tradeoff: the limiter guards against
// provider bans and abuse, not strict SLAs.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Result is the outcome of a single Check call.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter int    // whole seconds until the window resets; 0 when allowed
	Reason     string // human-readable rejection reason; empty when allowed
}

type key struct {
	identifier string
	action     string
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a mutex-guarded fixed-window counter map. Construct one per
// process with New and share it by injection; it is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[key]*entry

	rules      map[string]Rule
	fallback   Rule
	sweepEvery time.Duration
	now        func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithSweepInterval overrides how often expired entries are collected.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) { l.sweepEvery = d }
}

// WithFallbackRule overrides the rule applied to unknown actions.
func WithFallbackRule(r Rule) Option {
	return func(l *Limiter) { l.fallback = r }
}

// New creates a Limiter with the given action rules. A nil rules map
// means every action uses the fallback rule.
func New(rules map[string]Rule, opts ...Option) *Limiter {
	l := &Limiter{
		entries:    make(map[key]*entry),
		rules:      rules,
		fallback:   DefaultRule,
		sweepEvery: 60 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one attempt for (identifier, action) against the action's
// rule. Rejected attempts do not consume a slot: the counter is only
// incremented when the call is allowed.
func (l *Limiter) Check(identifier, action string) Result {
	rule, ok := l.rules[action]
	if !ok {
		rule = l.fallback
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	k := key{identifier: identifier, action: action}
	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		// No entry yet, or the stored window elapsed: start a fresh one.
		e = &entry{count: 0, resetAt: now.Add(rule.Window)}
		l.entries[k] = e
	}

	if e.count >= rule.Max {
		retry := int(math.Ceil(e.resetAt.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    e.resetAt,
			RetryAfter: retry,
			Reason:     fmt.Sprintf("Rate limit exceeded for %s. Try again in %d seconds.", action, retry),
		}
	}

	e.count++
	return Result{
		Allowed:   true,
		Remaining: rule.Max - e.count,
		ResetAt:   e.resetAt,
	}
}

// Start runs the periodic sweep until ctx is canceled. The sweep bounds
// memory by dropping entries whose window has expired.
func (l *Limiter) Start(ctx context.Context) {
	ticker := time.NewTicker(l.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep()
			if removed > 0 {
				slog.Debug("rate limiter sweep", "removed", removed, "remaining", l.Len())
			}
		}
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
