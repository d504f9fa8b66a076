package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okOutcomes(n int) []Outcome {
	return make([]Outcome, n)
}

func items(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestRunSequential_ChunksAndCounts(t *testing.T) {
	var batchSizes []int
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		batchSizes = append(batchSizes, len(batch))
		return okOutcomes(len(batch)), nil
	}

	report, err := RunSequential(context.Background(), items(2500), Config{BatchSize: 1000, Delay: time.Millisecond}, send)
	require.NoError(t, err)

	assert.Equal(t, []int{1000, 1000, 500}, batchSizes)
	assert.Equal(t, 3, report.BatchesProcessed)
	assert.Equal(t, 2500, report.TotalProcessed)
	assert.Equal(t, 2500, report.SuccessCount)
	assert.Zero(t, report.FailureCount)
	assert.Len(t, report.Outcomes, 2500)
	assert.Positive(t, report.Elapsed)
	assert.Equal(t, report.Elapsed/2500, report.EstimatedPerItem)
}

func TestRunSequential_SendErrorReturnsPartialReport(t *testing.T) {
	sendErr := errors.New("provider unavailable")
	calls := 0
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		calls++
		if calls == 2 {
			return nil, sendErr
		}
		return okOutcomes(len(batch)), nil
	}

	report, err := RunSequential(context.Background(), items(300), Config{BatchSize: 100, Delay: time.Millisecond}, send)
	require.ErrorIs(t, err, sendErr)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, report.BatchesProcessed)
	assert.Equal(t, 100, report.TotalProcessed)
}

func TestRunSequential_CancelBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		calls++
		cancel()
		return okOutcomes(len(batch)), nil
	}

	report, err := RunSequential(ctx, items(200), Config{BatchSize: 100, Delay: time.Minute}, send)
	require.ErrorIs(t, err, ErrAborted)

	// The in-flight batch completed; the delay observed the cancel.
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, report.BatchesProcessed)
	assert.Equal(t, 100, report.TotalProcessed)
}

func TestRunSequential_MixedOutcomes(t *testing.T) {
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		outcomes := make([]Outcome, len(batch))
		for i := range outcomes {
			ok := i%2 == 0
			outcomes[i].Success = &ok
		}
		return outcomes, nil
	}

	report, err := RunSequential(context.Background(), items(10), Config{BatchSize: 10, Delay: time.Millisecond}, send)
	require.NoError(t, err)

	assert.Equal(t, 5, report.SuccessCount)
	assert.Equal(t, 5, report.FailureCount)
}

func TestOutcome_NilSuccessCountsAsDelivered(t *testing.T) {
	assert.True(t, Outcome{}.OK())

	ok := true
	assert.True(t, Outcome{Success: &ok}.OK())

	notOK := false
	assert.False(t, Outcome{Success: &notOK}.OK())
}

func TestRunParallel_BatchesRunConcurrently(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return okOutcomes(len(batch)), nil
	}

	report, err := RunParallel(context.Background(), items(400), Config{BatchSize: 100}, send)
	require.NoError(t, err)

	assert.Equal(t, 4, report.BatchesProcessed)
	assert.Equal(t, 400, report.SuccessCount)
	assert.Greater(t, peak, 1)
	assert.Equal(t, report.Elapsed/400, report.EstimatedPerItem)
}

func TestRunParallel_FirstErrorReported(t *testing.T) {
	sendErr := errors.New("provider unavailable")
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		if batch[0] == 100 {
			return nil, sendErr
		}
		return okOutcomes(len(batch)), nil
	}

	report, err := RunParallel(context.Background(), items(300), Config{BatchSize: 100}, send)
	require.ErrorIs(t, err, sendErr)

	assert.Equal(t, 2, report.BatchesProcessed)
	assert.Equal(t, 200, report.TotalProcessed)
}

func TestRunParallel_CancelledBeforeLaunch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		called = true
		return okOutcomes(len(batch)), nil
	}

	report, err := RunParallel(ctx, items(100), Config{BatchSize: 10}, send)
	require.ErrorIs(t, err, ErrAborted)
	assert.False(t, called)
	assert.Zero(t, report.TotalProcessed)
}

func TestRunSequential_EmptyInput(t *testing.T) {
	send := func(_ context.Context, batch []int) ([]Outcome, error) {
		t.Fatal("send should not be called")
		return nil, nil
	}

	report, err := RunSequential(context.Background(), nil, Config{}, send)
	require.NoError(t, err)
	assert.Zero(t, report.TotalProcessed)
	assert.Zero(t, report.BatchesProcessed)
	assert.Zero(t, report.EstimatedPerItem)
}
