package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(rules map[string]Rule) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	return New(rules, WithClock(clock.now)), clock
}

func TestCheck_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{"send-email": {Max: 3, Window: time.Minute}})

	for i := 0; i < 3; i++ {
		res := l.Check("tenant-1", "send-email")
		require.True(t, res.Allowed, "call %d should be allowed", i+1)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res := l.Check("tenant-1", "send-email")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, 0)
	assert.Equal(t, "Rate limit exceeded for send-email. Try again in 60 seconds.", res.Reason)
}

func TestCheck_RejectionDoesNotConsume(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{"send-sms": {Max: 1, Window: time.Minute}})

	require.True(t, l.Check("t", "send-sms").Allowed)

	// Hammering a rejected key must not push the reset further out.
	first := l.Check("t", "send-sms")
	require.False(t, first.Allowed)
	for i := 0; i < 10; i++ {
		assert.False(t, l.Check("t", "send-sms").Allowed)
	}

	clock.advance(61 * time.Second)
	assert.True(t, l.Check("t", "send-sms").Allowed, "window should have reset")
}

func TestCheck_WindowResetStartsFreshCount(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{"api": {Max: 2, Window: 30 * time.Second}})

	require.True(t, l.Check("ip", "api").Allowed)
	require.True(t, l.Check("ip", "api").Allowed)
	require.False(t, l.Check("ip", "api").Allowed)

	clock.advance(31 * time.Second)

	res := l.Check("ip", "api")
	require.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, clock.t.Add(30*time.Second), res.ResetAt)
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[string]Rule{"send-email": {Max: 1, Window: time.Minute}})

	require.True(t, l.Check("tenant-a", "send-email").Allowed)
	require.False(t, l.Check("tenant-a", "send-email").Allowed)

	// Different identifier, same action.
	assert.True(t, l.Check("tenant-b", "send-email").Allowed)

	// Same identifier, different action (falls back to default rule).
	assert.True(t, l.Check("tenant-a", "send-sms").Allowed)
}

func TestCheck_UnknownActionUsesFallback(t *testing.T) {
	l, _ := newTestLimiter(nil)

	for i := 0; i < DefaultRule.Max; i++ {
		require.True(t, l.Check("t", "made-up-action").Allowed)
	}
	res := l.Check("t", "made-up-action")
	assert.False(t, res.Allowed)
}

func TestCheck_RetryAfterRoundsUp(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{"send-email": {Max: 1, Window: time.Minute}})

	require.True(t, l.Check("t", "send-email").Allowed)
	clock.advance(17500 * time.Millisecond) // 42.5s left in the window

	res := l.Check("t", "send-email")
	require.False(t, res.Allowed)
	assert.Equal(t, 43, res.RetryAfter)
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	l, clock := newTestLimiter(map[string]Rule{
		"send-email": {Max: 5, Window: time.Minute},
		"send-sms":   {Max: 5, Window: 10 * time.Minute},
	})

	for i := 0; i < 4; i++ {
		l.Check(fmt.Sprintf("tenant-%d", i), "send-email")
	}
	l.Check("tenant-0", "send-sms")
	require.Equal(t, 5, l.Len())

	clock.advance(2 * time.Minute)
	removed := l.Sweep()

	assert.Equal(t, 4, removed, "only the expired minute windows should be swept")
	assert.Equal(t, 1, l.Len())
}

func TestSweep_ExpiredWindowReadableBeforeSweep(t *testing.T) {
	// Reading an expired window repeatedly before the sweep runs is an
	// idempotent reset, not an accumulation.
	l, clock := newTestLimiter(map[string]Rule{"api": {Max: 2, Window: time.Second}})

	l.Check("t", "api")
	l.Check("t", "api")
	clock.advance(2 * time.Second)

	for i := 0; i < 3; i++ {
		clock.advance(2 * time.Second)
		res := l.Check("t", "api")
		require.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining, "each expired read starts at count zero")
	}
}
