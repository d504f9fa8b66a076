package billing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachpoint-platform/reachpoint/internal/events"
)

type guardClock struct {
	t time.Time
}

func (c *guardClock) now() time.Time { return c.t }

func (c *guardClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type captureAlerts struct {
	ch chan events.BudgetAlert
}

func newCaptureAlerts() *captureAlerts {
	return &captureAlerts{ch: make(chan events.BudgetAlert, 8)}
}

func (c *captureAlerts) PublishBudgetAlert(_ context.Context, alert events.BudgetAlert) error {
	c.ch <- alert
	return nil
}

func newTestGuard(t *testing.T, alerts AlertPublisher) (*Guard, *guardClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	clock := &guardClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	g := NewGuard(NewRedisStore(rdb), alerts, WithGuardClock(clock.now))
	return g, clock, mr
}

func TestGuard_NewTenantAllowed(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	tenant := uuid.New()

	d, err := g.WouldExceedBudget(context.Background(), tenant, 0.50)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestGuard_AccrualsAreAdditive(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	for _, n := range []int64{5, 3, 2} {
		require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, n))
	}

	st, err := g.Status(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(10), st.Today.Categories[CategorySMS].Volume)
	assert.InDelta(t, 0.075, st.Today.Categories[CategorySMS].Cost, 1e-9)
	assert.InDelta(t, 0.075, st.Today.TotalCost, 1e-9)

	spent, err := g.MonthlySpend(ctx, tenant)
	require.NoError(t, err)
	assert.InDelta(t, 0.075, spent, 1e-9)
}

func TestGuard_DailyLimitBlocks(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	// Default daily limit is $5. Accrue $4.80 of SMS, then a $0.30
	// estimate must be refused while a $0.10 one still passes.
	require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, 640))

	d, err := g.WouldExceedBudget(ctx, tenant, 0.30)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "Daily spend limit")

	d, err = g.WouldExceedBudget(ctx, tenant, 0.10)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_DailyLimitResetsNextDay(t *testing.T) {
	g, clock, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, 660))
	d, err := g.WouldExceedBudget(ctx, tenant, 0.10)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.advance(24 * time.Hour)
	d, err = g.WouldExceedBudget(ctx, tenant, 0.10)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_MonthlyBlockThreshold(t *testing.T) {
	g, clock, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	// Default budget is $50 with block at 100%. Spread $49.50 of SMS
	// across days so the daily limit never interferes.
	for day := 0; day < 11; day++ {
		require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, 600))
		clock.advance(24 * time.Hour)
	}

	d, err := g.WouldExceedBudget(ctx, tenant, 1.00)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "Monthly budget")
}

func TestGuard_MonthlySpendResetsOnNewMonth(t *testing.T) {
	g, clock, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, 400))
	spent, err := g.MonthlySpend(ctx, tenant)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, spent, 1e-9)

	clock.advance(31 * 24 * time.Hour)
	spent, err = g.MonthlySpend(ctx, tenant)
	require.NoError(t, err)
	assert.Zero(t, spent)
}

func TestGuard_AlertThresholdPublishesOnce(t *testing.T) {
	alerts := newCaptureAlerts()
	g, clock, _ := newTestGuard(t, alerts)
	tenant := uuid.New()
	ctx := context.Background()

	// Land at $40.50 of a $50 budget, past the 80% alert line but well
	// under the block line.
	for day := 0; day < 9; day++ {
		require.NoError(t, g.Accrue(ctx, tenant, CategorySMS, 600))
		clock.advance(24 * time.Hour)
	}

	d, err := g.WouldExceedBudget(ctx, tenant, 0.50)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	select {
	case alert := <-alerts.ch:
		assert.Equal(t, tenant, alert.TenantID)
		assert.InDelta(t, 50.0, alert.MonthlyBudget, 1e-9)
		assert.InDelta(t, 41.0, alert.ProjectedSpent, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a budget alert")
	}
}

func TestGuard_StickyBlock(t *testing.T) {
	g, _, _ := newTestGuard(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	require.NoError(t, g.SetBlocked(ctx, tenant, true))

	d, err := g.WouldExceedBudget(ctx, tenant, 0.01)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "blocked")

	require.NoError(t, g.SetBlocked(ctx, tenant, false))
	d, err = g.WouldExceedBudget(ctx, tenant, 0.01)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGuard_StoreErrorSurfaces(t *testing.T) {
	g, _, mr := newTestGuard(t, nil)
	mr.Close()

	_, err := g.WouldExceedBudget(context.Background(), uuid.New(), 0.01)
	assert.Error(t, err)
}
