// Package quota enforces per-tenant send-volume ceilings and stops
// repeatedly failing tenants with a consecutive-failure circuit breaker.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reachpoint-platform/reachpoint/internal/metrics"
)

// Advisory rejection causes. Carried in a Decision; never returned as
// call errors, so a rejection cannot corrupt tracking state.
var (
	ErrQuotaExceeded = errors.New("quota exceeded")
	ErrCircuitOpen   = errors.New("circuit breaker open")
)

// Decision is the advisory result of a CanSend check. Callers decide
// whether to retry, queue, or surface the reason to the tenant.
type Decision struct {
	Allowed bool
	Reason  string
	Cause   error
}

// Manager coordinates quota tracking and the per-tenant circuit breaker.
//
// Breaker states per tenant: closed (normal, sends permitted up to the
// plan ceilings) and open (MaxFailuresBeforeStop consecutive failures,
// all sends rejected). There is no timed half-open probe: only a
// successful send or ResetBreaker closes an open breaker.
type Manager struct {
	store Store
	now   func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager on top of a tracking store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanSend reports whether the tenant may send right now under its plan.
// On store errors it fails open with a warning, matching the platform
// policy of never blocking tenants on infrastructure trouble.
func (m *Manager) CanSend(ctx context.Context, tenantID uuid.UUID, plan string) Decision {
	q := PlanFor(plan)

	t, err := m.refresh(ctx, tenantID)
	if err != nil {
		slog.Warn("quota: tracking unavailable, allowing send", "error", err, "tenant_id", tenantID)
		return Decision{Allowed: true}
	}

	if t.BreakerOpen() || t.ConsecutiveFailures >= q.MaxFailuresBeforeStop {
		return Decision{
			Reason: fmt.Sprintf("Sending stopped: circuit breaker open after %d consecutive failures. A successful send or an operator reset is required.",
				t.ConsecutiveFailures),
			Cause: ErrCircuitOpen,
		}
	}

	if t.SentToday >= q.MaxPerDay {
		return Decision{
			Reason: fmt.Sprintf("Daily send quota reached (%d/%d). Quota resets at midnight UTC.", t.SentToday, q.MaxPerDay),
			Cause:  ErrQuotaExceeded,
		}
	}

	if t.SentThisHour >= q.MaxPerHour {
		return Decision{
			Reason: fmt.Sprintf("Hourly send quota reached (%d/%d). Quota resets at the top of the hour.", t.SentThisHour, q.MaxPerHour),
			Cause:  ErrQuotaExceeded,
		}
	}

	return Decision{Allowed: true}
}

// RecordResult records a single send attempt. A success increments the
// day and hour counters and closes the breaker; a failure extends the
// consecutive-failure streak and trips the breaker at the plan threshold.
func (m *Manager) RecordResult(ctx context.Context, tenantID uuid.UUID, plan string, success bool) error {
	if success {
		return m.RecordBatch(ctx, tenantID, plan, 1, 0)
	}
	return m.RecordBatch(ctx, tenantID, plan, 0, 1)
}

// RecordBatch records the outcome of one provider batch. A batch with at
// least one delivered recipient counts as a successful attempt: the
// counters grow by the delivered count and the failure streak resets.
// A batch with zero successes counts as one failed attempt.
func (m *Manager) RecordBatch(ctx context.Context, tenantID uuid.UUID, plan string, successes, failures int) error {
	now := m.now()

	if _, err := m.refresh(ctx, tenantID); err != nil {
		return err
	}

	if successes > 0 {
		return m.store.RecordSuccess(ctx, tenantID, successes, now)
	}
	if failures == 0 {
		return nil
	}

	q := PlanFor(plan)
	streak, err := m.store.RecordFailure(ctx, tenantID, now)
	if err != nil {
		return err
	}
	if streak >= q.MaxFailuresBeforeStop {
		if err := m.store.TripBreaker(ctx, tenantID, now); err != nil {
			return err
		}
		if streak == q.MaxFailuresBeforeStop {
			metrics.CircuitBreakerTripsTotal.Inc()
			slog.Warn("quota: circuit breaker tripped",
				"tenant_id", tenantID, "consecutive_failures", streak)
		}
	}
	return nil
}

// GetTracking returns the tenant's tracking record after applying any
// pending day/hour rollover.
func (m *Manager) GetTracking(ctx context.Context, tenantID uuid.UUID) (*Tracking, error) {
	return m.refresh(ctx, tenantID)
}

// ResetBreaker is the operator action that clears the failure streak and
// closes an open breaker.
func (m *Manager) ResetBreaker(ctx context.Context, tenantID uuid.UUID) error {
	return m.store.ResetBreaker(ctx, tenantID)
}

// refresh loads the tracking record and lazily resets counters whose
// window has rolled over since the stored reset timestamp.
func (m *Manager) refresh(ctx context.Context, tenantID uuid.UUID) (*Tracking, error) {
	now := m.now()

	t, err := m.store.GetOrCreate(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	if RolledOver(now, t.LastDailyReset, Day) {
		if err := m.store.ResetDaily(ctx, tenantID, now); err != nil {
			return nil, err
		}
		t.SentToday = 0
		t.LastDailyReset = now
	}

	if RolledOver(now, t.LastHourlyReset, Hour) {
		if err := m.store.ResetHourly(ctx, tenantID, now); err != nil {
			return nil, err
		}
		t.SentThisHour = 0
		t.LastHourlyReset = now
	}

	return t, nil
}
