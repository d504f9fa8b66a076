package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists quota tracking in the tenant_quota_tracking table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) GetOrCreate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Tracking, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenant_quota_tracking (tenant_id, last_daily_reset, last_hourly_reset)
		 VALUES ($1, $2, $2) ON CONFLICT (tenant_id) DO NOTHING`, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("ensuring quota tracking: %w", err)
	}

	var t Tracking
	err = s.pool.QueryRow(ctx,
		`SELECT tenant_id, sent_today, sent_this_hour, last_daily_reset, last_hourly_reset,
		        consecutive_failures, circuit_tripped_at, last_send_at
		 FROM tenant_quota_tracking WHERE tenant_id = $1`, tenantID,
	).Scan(&t.TenantID, &t.SentToday, &t.SentThisHour, &t.LastDailyReset, &t.LastHourlyReset,
		&t.ConsecutiveFailures, &t.CircuitTrippedAt, &t.LastSendAt)
	if err != nil {
		return nil, fmt.Errorf("fetching quota tracking: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ResetDaily(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quota_tracking
		 SET sent_today = 0, last_daily_reset = $2, updated_at = NOW()
		 WHERE tenant_id = $1`, tenantID, now)
	if err != nil {
		return fmt.Errorf("resetting daily counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetHourly(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quota_tracking
		 SET sent_this_hour = 0, last_hourly_reset = $2, updated_at = NOW()
		 WHERE tenant_id = $1`, tenantID, now)
	if err != nil {
		return fmt.Errorf("resetting hourly counter: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordSuccess(ctx context.Context, tenantID uuid.UUID, n int, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quota_tracking
		 SET sent_today = sent_today + $2,
		     sent_this_hour = sent_this_hour + $2,
		     consecutive_failures = 0,
		     circuit_tripped_at = NULL,
		     last_send_at = $3,
		     updated_at = NOW()
		 WHERE tenant_id = $1`, tenantID, n, now)
	if err != nil {
		return fmt.Errorf("recording successful sends: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	var failures int
	err := s.pool.QueryRow(ctx,
		`UPDATE tenant_quota_tracking
		 SET consecutive_failures = consecutive_failures + 1,
		     last_send_at = $2,
		     updated_at = NOW()
		 WHERE tenant_id = $1
		 RETURNING consecutive_failures`, tenantID, now).Scan(&failures)
	if err != nil {
		return 0, fmt.Errorf("recording failed send: %w", err)
	}
	return failures, nil
}

func (s *PostgresStore) TripBreaker(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quota_tracking
		 SET circuit_tripped_at = $2, updated_at = NOW()
		 WHERE tenant_id = $1 AND circuit_tripped_at IS NULL`, tenantID, now)
	if err != nil {
		return fmt.Errorf("tripping circuit breaker: %w", err)
	}
	return nil
}

func (s *PostgresStore) ResetBreaker(ctx context.Context, tenantID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tenant_quota_tracking
		 SET consecutive_failures = 0, circuit_tripped_at = NULL, updated_at = NOW()
		 WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("resetting circuit breaker: %w", err)
	}
	return nil
}
