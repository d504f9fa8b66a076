package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reachpoint-platform/reachpoint/internal/events"
	"github.com/reachpoint-platform/reachpoint/internal/metrics"
)

// ErrBudgetExceeded is returned when a dispatch is refused because the
// tenant's spend block is active or the estimated cost would cross a limit.
var ErrBudgetExceeded = errors.New("budget exceeded")

// AlertPublisher emits budget threshold alerts. Satisfied by
// events.Publisher; nil disables alerting.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, alert events.BudgetAlert) error
}

// Decision reports whether spending was approved and why not.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard enforces per-tenant spend limits before dispatch and records
// actual costs after. Limit checks read the lazily month-rolled budget,
// so no scheduler is needed for month boundaries.
type Guard struct {
	store  Store
	alerts AlertPublisher
	now    func() time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardClock overrides the guard's time source. Tests use this to
// cross day and month boundaries.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a Guard. alerts may be nil.
func NewGuard(store Store, alerts AlertPublisher, opts ...GuardOption) *Guard {
	g := &Guard{store: store, alerts: alerts, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WouldExceedBudget decides whether spending estimatedCost now would cross
// the tenant's limits. It blocks when the tenant is flagged, when today's
// spend plus the estimate reaches the daily limit, or when the projected
// monthly spend reaches the block threshold. Crossing only the alert
// threshold publishes a budget alert but still allows the spend.
func (g *Guard) WouldExceedBudget(ctx context.Context, tenantID uuid.UUID, estimatedCost float64) (Decision, error) {
	now := g.now()
	b, err := g.store.Budget(ctx, tenantID, MonthKeyOf(now))
	if err != nil {
		return Decision{}, fmt.Errorf("loading budget: %w", err)
	}

	if b.IsBlocked {
		return Decision{Reason: "Spending is blocked for this account. Contact support to restore service."}, nil
	}

	rec, err := g.store.DailyRecord(ctx, tenantID, DayKey(now))
	if err != nil {
		return Decision{}, fmt.Errorf("loading daily spend: %w", err)
	}
	if rec.TotalCost+estimatedCost >= b.DailyLimit {
		return Decision{Reason: fmt.Sprintf(
			"Daily spend limit of %s reached (spent %s today).",
			FormatUSD(b.DailyLimit), FormatUSD(rec.TotalCost))}, nil
	}

	projected := b.CurrentMonthSpent + estimatedCost
	blockAt := b.MonthlyBudget * b.BlockThresholdPercent / 100
	if projected >= blockAt {
		return Decision{Reason: fmt.Sprintf(
			"Monthly budget of %s exhausted (spent %s this month).",
			FormatUSD(b.MonthlyBudget), FormatUSD(b.CurrentMonthSpent))}, nil
	}

	alertAt := b.MonthlyBudget * b.AlertThresholdPercent / 100
	if projected >= alertAt {
		metrics.BudgetAlertsTotal.Inc()
		g.publishAlert(tenantID, b, projected)
	}

	return Decision{Allowed: true}, nil
}

// Accrue records a cost that has actually been incurred. The budget is
// loaded first so a month rollover is applied before the increment lands.
func (g *Guard) Accrue(ctx context.Context, tenantID uuid.UUID, c Category, volume int64) error {
	now := g.now()
	if _, err := g.store.Budget(ctx, tenantID, MonthKeyOf(now)); err != nil {
		return fmt.Errorf("loading budget: %w", err)
	}
	cost := CostOf(c, volume)
	if err := g.store.Accrue(ctx, tenantID, DayKey(now), c, volume, cost); err != nil {
		return err
	}
	return nil
}

// MonthlySpend returns the tenant's spend in the current calendar month.
func (g *Guard) MonthlySpend(ctx context.Context, tenantID uuid.UUID) (float64, error) {
	b, err := g.store.Budget(ctx, tenantID, MonthKeyOf(g.now()))
	if err != nil {
		return 0, fmt.Errorf("loading budget: %w", err)
	}
	return b.CurrentMonthSpent, nil
}

// SetBlocked flags or unflags the tenant's spend block. The flag is
// sticky; only this operator call changes it.
func (g *Guard) SetBlocked(ctx context.Context, tenantID uuid.UUID, blocked bool) error {
	return g.store.SetBlocked(ctx, tenantID, blocked)
}

// Status returns the tenant's budget plus today's cost breakdown.
func (g *Guard) Status(ctx context.Context, tenantID uuid.UUID) (*Status, error) {
	now := g.now()
	b, err := g.store.Budget(ctx, tenantID, MonthKeyOf(now))
	if err != nil {
		return nil, fmt.Errorf("loading budget: %w", err)
	}
	rec, err := g.store.DailyRecord(ctx, tenantID, DayKey(now))
	if err != nil {
		return nil, fmt.Errorf("loading daily spend: %w", err)
	}
	return &Status{Budget: *b, Today: rec}, nil
}

func (g *Guard) publishAlert(tenantID uuid.UUID, b *CompanyBudget, projected float64) {
	if g.alerts == nil {
		return
	}
	alert := events.BudgetAlert{
		TenantID:         tenantID,
		MonthlyBudget:    b.MonthlyBudget,
		CurrentSpent:     b.CurrentMonthSpent,
		ProjectedSpent:   projected,
		ThresholdPercent: b.AlertThresholdPercent,
		Timestamp:        g.now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.alerts.PublishBudgetAlert(ctx, alert); err != nil {
			slog.Warn("billing: failed to publish budget alert",
				"tenant_id", tenantID, "error", err)
		}
	}()
}
