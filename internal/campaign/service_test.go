package campaign

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachpoint-platform/reachpoint/internal/batch"
	"github.com/reachpoint-platform/reachpoint/internal/billing"
	"github.com/reachpoint-platform/reachpoint/internal/providers"
	"github.com/reachpoint-platform/reachpoint/internal/quota"
	"github.com/reachpoint-platform/reachpoint/internal/ratelimit"
)

type fakeSender struct {
	mu      sync.Mutex
	batches [][]providers.Message
	fail    func(batchIdx int) error
	outcome func(batchIdx, itemIdx int) batch.Outcome
}

func (f *fakeSender) SendBatch(_ context.Context, _ providers.Channel, msgs []providers.Message) ([]batch.Outcome, error) {
	f.mu.Lock()
	idx := len(f.batches)
	f.batches = append(f.batches, msgs)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(idx); err != nil {
			return nil, err
		}
	}
	outcomes := make([]batch.Outcome, len(msgs))
	if f.outcome != nil {
		for i := range outcomes {
			outcomes[i] = f.outcome(idx, i)
		}
	}
	return outcomes, nil
}

type testEnv struct {
	svc    *Service
	quotas *quota.Manager
	budget *billing.Guard
	sender *fakeSender
	mr     *miniredis.Miniredis
}

func newTestEnv(t *testing.T, rules map[string]ratelimit.Rule) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	if rules == nil {
		rules = ratelimit.DefaultRules()
	}
	limiter := ratelimit.New(rules)
	quotas := quota.NewManager(quota.NewRedisStore(rdb))
	budget := billing.NewGuard(billing.NewRedisStore(rdb), nil)

	sender := &fakeSender{}
	registry := providers.NewRegistry()
	registry.Register(providers.ChannelEmail, sender)
	registry.Register(providers.ChannelSMS, sender)

	svc := NewService(limiter, quotas, budget, registry, nil,
		batch.Config{BatchSize: 10, Delay: time.Millisecond}, slog.Default())

	return &testEnv{svc: svc, quotas: quotas, budget: budget, sender: sender, mr: mr}
}

func dispatchRequest(tenantID uuid.UUID, n int) *DispatchRequest {
	recipients := make([]Recipient, n)
	for i := range recipients {
		recipients[i] = Recipient{To: uuid.NewString() + "@example.com"}
	}
	return &DispatchRequest{
		TenantID:   tenantID,
		Plan:       "starter",
		Channel:    providers.ChannelEmail,
		CampaignID: "spring-launch",
		Body:       "Hello {{name}}",
		Recipients: recipients,
	}
}

func TestDispatch_SendsAllRecipientsInBatches(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()

	result, err := env.svc.Dispatch(context.Background(), dispatchRequest(tenant, 25))
	require.NoError(t, err)

	assert.Equal(t, 25, result.TotalProcessed)
	assert.Equal(t, 3, result.BatchesProcessed)
	assert.Equal(t, 25, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	assert.False(t, result.Aborted)
	assert.Positive(t, result.EstimatedPerItemMS)
	assert.Len(t, env.sender.batches, 3)
}

func TestDispatch_UnknownChannelNotBilled(t *testing.T) {
	env := newTestEnv(t, nil)
	req := dispatchRequest(uuid.New(), 5)
	req.Channel = providers.Channel("carrier-pigeon")

	result, err := env.svc.Dispatch(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, env.sender.batches)
}

func TestDispatch_RecordsQuotaAndCost(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	_, err := env.svc.Dispatch(ctx, dispatchRequest(tenant, 25))
	require.NoError(t, err)

	tracking, err := env.quotas.GetTracking(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 25, tracking.SentToday)
	assert.Equal(t, 25, tracking.SentThisHour)

	spent, err := env.budget.MonthlySpend(ctx, tenant)
	require.NoError(t, err)
	assert.InDelta(t, 25*0.0004, spent, 1e-9)
}

func TestDispatch_BlockedBudgetRejectsUpFront(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	require.NoError(t, env.budget.SetBlocked(ctx, tenant, true))

	result, err := env.svc.Dispatch(ctx, dispatchRequest(tenant, 5))
	require.ErrorIs(t, err, billing.ErrBudgetExceeded)
	assert.Nil(t, result)
	assert.Empty(t, env.sender.batches)
}

func TestDispatch_BudgetStoreDownFailsOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mr.Close()
	tenant := uuid.New()

	// Quota and billing recording also fail, but the dispatch itself
	// must go through.
	result, err := env.svc.Dispatch(context.Background(), dispatchRequest(tenant, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalProcessed)
}

func TestDispatch_OpenBreakerStopsRun(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()
	ctx := context.Background()

	// Ten consecutive failures trips the starter plan's breaker.
	for i := 0; i < 10; i++ {
		require.NoError(t, env.quotas.RecordBatch(ctx, tenant, "starter", 0, 1))
	}

	result, err := env.svc.Dispatch(ctx, dispatchRequest(tenant, 5))
	require.ErrorIs(t, err, quota.ErrCircuitOpen)
	assert.True(t, result.Aborted)
	assert.Zero(t, result.TotalProcessed)
	assert.Empty(t, env.sender.batches)
}

func TestDispatch_RateLimitStopsMidRun(t *testing.T) {
	rules := map[string]ratelimit.Rule{
		ratelimit.ActionSendEmail: {Max: 2, Window: time.Minute},
	}
	env := newTestEnv(t, rules)
	tenant := uuid.New()

	result, err := env.svc.Dispatch(context.Background(), dispatchRequest(tenant, 25))
	require.ErrorIs(t, err, ErrRateLimited)

	assert.True(t, result.Aborted)
	assert.Equal(t, 20, result.TotalProcessed)
	assert.Equal(t, 2, result.BatchesProcessed)
}

func TestDispatch_ProviderErrorCountsAsFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sender.fail = func(batchIdx int) error {
		if batchIdx == 1 {
			return errors.New("gateway timeout")
		}
		return nil
	}
	tenant := uuid.New()
	ctx := context.Background()

	result, err := env.svc.Dispatch(ctx, dispatchRequest(tenant, 25))
	require.Error(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 10, result.TotalProcessed)

	tracking, err := env.quotas.GetTracking(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 1, tracking.ConsecutiveFailures)
}

func TestDispatch_FailedOutcomesNotBilled(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sender.outcome = func(_, itemIdx int) batch.Outcome {
		ok := itemIdx%2 == 0
		return batch.Outcome{Success: &ok}
	}
	tenant := uuid.New()
	ctx := context.Background()

	result, err := env.svc.Dispatch(ctx, dispatchRequest(tenant, 10))
	require.NoError(t, err)
	assert.Equal(t, 5, result.SuccessCount)
	assert.Equal(t, 5, result.FailureCount)

	spent, err := env.budget.MonthlySpend(ctx, tenant)
	require.NoError(t, err)
	assert.InDelta(t, 5*0.0004, spent, 1e-9)
}

func TestDispatch_ParallelRequiresConcurrentPlan(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()

	req := dispatchRequest(tenant, 30)
	req.Plan = "free" // MaxConcurrentSends == 1
	req.Parallel = true

	result, err := env.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 30, result.TotalProcessed)
	assert.Equal(t, 3, result.BatchesProcessed)
}

func TestDispatch_ParallelRunsAllBatches(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()

	req := dispatchRequest(tenant, 30)
	req.Plan = "growth"
	req.Parallel = true

	result, err := env.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 30, result.TotalProcessed)
	assert.Equal(t, 3, result.BatchesProcessed)
	assert.Equal(t, 30, result.SuccessCount)
}

func TestDispatch_RequestBatchSizeOverride(t *testing.T) {
	env := newTestEnv(t, nil)
	tenant := uuid.New()

	req := dispatchRequest(tenant, 25)
	req.BatchSize = 25

	result, err := env.svc.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.BatchesProcessed)
}
