package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const trackingKeyPrefix = "quota:tracking:"

// Hash field names.
const (
	fieldSentToday       = "sent_today"
	fieldSentThisHour    = "sent_this_hour"
	fieldLastDailyReset  = "last_daily_reset"
	fieldLastHourlyReset = "last_hourly_reset"
	fieldFailures        = "consecutive_failures"
	fieldTrippedAt       = "circuit_tripped_at"
	fieldLastSendAt      = "last_send_at"
)

// RedisStore keeps per-tenant quota tracking in a Redis hash, one hash per
// tenant. Counter updates use HIncrBy so they stay atomic under concurrent
// access from multiple requests.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func trackingKey(tenantID uuid.UUID) string {
	return trackingKeyPrefix + tenantID.String()
}

func (s *RedisStore) GetOrCreate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Tracking, error) {
	key := trackingKey(tenantID)
	stamp := now.UTC().Format(time.RFC3339Nano)

	pipe := s.rdb.Pipeline()
	pipe.HSetNX(ctx, key, fieldLastDailyReset, stamp)
	pipe.HSetNX(ctx, key, fieldLastHourlyReset, stamp)
	getCmd := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ensuring quota tracking: %w", err)
	}

	return parseTracking(tenantID, getCmd.Val())
}

func (s *RedisStore) ResetDaily(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	err := s.rdb.HSet(ctx, trackingKey(tenantID),
		fieldSentToday, 0,
		fieldLastDailyReset, now.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("resetting daily counter: %w", err)
	}
	return nil
}

func (s *RedisStore) ResetHourly(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	err := s.rdb.HSet(ctx, trackingKey(tenantID),
		fieldSentThisHour, 0,
		fieldLastHourlyReset, now.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("resetting hourly counter: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordSuccess(ctx context.Context, tenantID uuid.UUID, n int, now time.Time) error {
	key := trackingKey(tenantID)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, fieldSentToday, int64(n))
	pipe.HIncrBy(ctx, key, fieldSentThisHour, int64(n))
	pipe.HSet(ctx, key, fieldFailures, 0, fieldLastSendAt, now.UTC().Format(time.RFC3339Nano))
	pipe.HDel(ctx, key, fieldTrippedAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording successful sends: %w", err)
	}
	return nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	key := trackingKey(tenantID)

	pipe := s.rdb.Pipeline()
	incrCmd := pipe.HIncrBy(ctx, key, fieldFailures, 1)
	pipe.HSet(ctx, key, fieldLastSendAt, now.UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("recording failed send: %w", err)
	}
	return int(incrCmd.Val()), nil
}

func (s *RedisStore) TripBreaker(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	// HSETNX keeps the first trip timestamp when failures keep arriving.
	err := s.rdb.HSetNX(ctx, trackingKey(tenantID), fieldTrippedAt, now.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("tripping circuit breaker: %w", err)
	}
	return nil
}

func (s *RedisStore) ResetBreaker(ctx context.Context, tenantID uuid.UUID) error {
	key := trackingKey(tenantID)

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, fieldFailures, 0)
	pipe.HDel(ctx, key, fieldTrippedAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("resetting circuit breaker: %w", err)
	}
	return nil
}

func parseTracking(tenantID uuid.UUID, fields map[string]string) (*Tracking, error) {
	t := &Tracking{TenantID: tenantID}

	var err error
	if t.SentToday, err = parseIntField(fields, fieldSentToday); err != nil {
		return nil, err
	}
	if t.SentThisHour, err = parseIntField(fields, fieldSentThisHour); err != nil {
		return nil, err
	}
	if t.ConsecutiveFailures, err = parseIntField(fields, fieldFailures); err != nil {
		return nil, err
	}
	if t.LastDailyReset, err = parseTimeField(fields, fieldLastDailyReset); err != nil {
		return nil, err
	}
	if t.LastHourlyReset, err = parseTimeField(fields, fieldLastHourlyReset); err != nil {
		return nil, err
	}

	if v, ok := fields[fieldTrippedAt]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", fieldTrippedAt, err)
		}
		t.CircuitTrippedAt = &ts
	}
	if v, ok := fields[fieldLastSendAt]; ok && v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", fieldLastSendAt, err)
		}
		t.LastSendAt = &ts
	}

	return t, nil
}

func parseIntField(fields map[string]string, name string) (int, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return n, nil
}

func parseTimeField(fields map[string]string, name string) (time.Time, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", name, err)
	}
	return ts, nil
}
