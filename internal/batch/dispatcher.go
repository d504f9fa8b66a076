// Package batch chunks large item sets and dispatches them through a
// caller-supplied send function, sequentially with pacing delays or in
// parallel.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAborted is returned when the context is cancelled between batches.
// The report accompanying it covers the batches that completed.
var ErrAborted = errors.New("dispatch aborted")

const (
	// DefaultBatchSize bounds how many items a single send call receives.
	DefaultBatchSize = 1000
	// DefaultDelay paces sequential dispatch between batches.
	DefaultDelay = 500 * time.Millisecond
)

// Outcome is the per-item result reported by a send function. A nil
// Success counts as delivered; providers that cannot attribute results
// per item leave it unset.
type Outcome struct {
	Success *bool
	Detail  string
}

// OK reports whether the outcome counts as a successful delivery.
func (o Outcome) OK() bool {
	return o.Success == nil || *o.Success
}

// SendFunc delivers one batch of items. It returns one Outcome per item;
// a non-nil error stops the run and is returned to the caller unchanged.
type SendFunc[T any] func(ctx context.Context, items []T) ([]Outcome, error)

// Config controls chunking and pacing. Zero values fall back to the
// package defaults.
type Config struct {
	BatchSize int
	Delay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	return c
}

// Report summarizes a dispatch run. EstimatedPerItem is the observed
// average time per processed item, used by callers for progress
// estimation on subsequent runs.
type Report struct {
	TotalProcessed   int
	BatchesProcessed int
	SuccessCount     int
	FailureCount     int
	Elapsed          time.Duration
	EstimatedPerItem time.Duration
	Outcomes         []Outcome
}

func (r *Report) absorb(outcomes []Outcome) {
	r.TotalProcessed += len(outcomes)
	r.Outcomes = append(r.Outcomes, outcomes...)
	for _, o := range outcomes {
		if o.OK() {
			r.SuccessCount++
		} else {
			r.FailureCount++
		}
	}
}

func (r *Report) finish(start time.Time) {
	r.Elapsed = time.Since(start)
	if r.TotalProcessed > 0 {
		r.EstimatedPerItem = r.Elapsed / time.Duration(r.TotalProcessed)
	}
}

// RunSequential dispatches items one batch at a time, sleeping cfg.Delay
// between batches. Cancellation is observed at batch boundaries only; a
// batch already handed to send runs to completion. On error the partial
// report is returned alongside it.
func RunSequential[T any](ctx context.Context, items []T, cfg Config, send SendFunc[T]) (*Report, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	report := &Report{}

	chunks := split(items, cfg.BatchSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			report.finish(start)
			return report, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		outcomes, err := send(ctx, chunk)
		if err != nil {
			report.finish(start)
			return report, err
		}
		report.absorb(outcomes)
		report.BatchesProcessed++

		if i < len(chunks)-1 {
			if err := sleep(ctx, cfg.Delay); err != nil {
				report.finish(start)
				return report, fmt.Errorf("%w: %v", ErrAborted, err)
			}
		}
	}

	report.finish(start)
	return report, nil
}

// RunParallel dispatches all batches concurrently and waits for every
// one to finish. Cancellation is checked once before launching; batches
// in flight are not interrupted. The first send error is returned with
// the report covering the batches that succeeded.
func RunParallel[T any](ctx context.Context, items []T, cfg Config, send SendFunc[T]) (*Report, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	report := &Report{}

	if err := ctx.Err(); err != nil {
		report.finish(start)
		return report, fmt.Errorf("%w: %v", ErrAborted, err)
	}

	chunks := split(items, cfg.BatchSize)
	results := make([][]Outcome, len(chunks))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = send(ctx, chunk)
		}()
	}
	wg.Wait()

	var firstErr error
	for i := range chunks {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		report.absorb(results[i])
		report.BatchesProcessed++
	}

	report.finish(start)
	return report, firstErr
}

func split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
