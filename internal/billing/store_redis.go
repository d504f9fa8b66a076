package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	budgetKeyPrefix = "billing:budget:"
	costKeyPrefix   = "billing:cost:"

	// Daily cost hashes are kept for a week for status endpoints; the
	// durable monthly total lives on the budget hash.
	costRecordTTL = 7 * 24 * time.Hour
)

// Budget hash fields.
const (
	fieldMonthlyBudget  = "monthly_budget"
	fieldDailyLimit     = "daily_limit"
	fieldMonthSpent     = "current_month_spent"
	fieldMonthKey       = "month_key"
	fieldAlertThreshold = "alert_threshold_percent"
	fieldBlockThreshold = "block_threshold_percent"
	fieldIsBlocked      = "is_blocked"
)

// RedisStore keeps budgets and daily cost records in Redis hashes.
// Accruals use HINCRBY/HINCRBYFLOAT so they stay atomic under concurrent
// access.
type RedisStore struct {
	rdb redis.Cmdable
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ Store = (*RedisStore)(nil)

func budgetKey(tenantID uuid.UUID) string {
	return budgetKeyPrefix + tenantID.String()
}

func costKey(tenantID uuid.UUID, day string) string {
	return costKeyPrefix + tenantID.String() + ":" + day
}

func (s *RedisStore) Budget(ctx context.Context, tenantID uuid.UUID, monthKey string) (*CompanyBudget, error) {
	key := budgetKey(tenantID)

	pipe := s.rdb.Pipeline()
	pipe.HSetNX(ctx, key, fieldMonthlyBudget, DefaultMonthlyBudget)
	pipe.HSetNX(ctx, key, fieldDailyLimit, DefaultDailyLimit)
	pipe.HSetNX(ctx, key, fieldMonthSpent, 0)
	pipe.HSetNX(ctx, key, fieldMonthKey, monthKey)
	pipe.HSetNX(ctx, key, fieldAlertThreshold, DefaultAlertThresholdPercent)
	pipe.HSetNX(ctx, key, fieldBlockThreshold, DefaultBlockThresholdPercent)
	pipe.HSetNX(ctx, key, fieldIsBlocked, 0)
	getCmd := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("ensuring company budget: %w", err)
	}

	b, err := parseBudget(tenantID, getCmd.Val())
	if err != nil {
		return nil, err
	}

	if b.MonthKey != monthKey {
		// New calendar month observed: reset the monthly counter lazily,
		// same pattern as the quota day/hour rollover.
		err := s.rdb.HSet(ctx, key, fieldMonthSpent, 0, fieldMonthKey, monthKey).Err()
		if err != nil {
			return nil, fmt.Errorf("resetting monthly spend: %w", err)
		}
		b.CurrentMonthSpent = 0
		b.MonthKey = monthKey
	}

	return b, nil
}

func (s *RedisStore) Accrue(ctx context.Context, tenantID uuid.UUID, day string, c Category, volume int64, cost float64) error {
	key := costKey(tenantID, day)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, string(c)+".volume", volume)
	pipe.HIncrByFloat(ctx, key, string(c)+".cost", cost)
	pipe.HIncrByFloat(ctx, key, "total.cost", cost)
	pipe.Expire(ctx, key, costRecordTTL)
	pipe.HIncrByFloat(ctx, budgetKey(tenantID), fieldMonthSpent, cost)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("accruing cost: %w", err)
	}
	return nil
}

func (s *RedisStore) DailyRecord(ctx context.Context, tenantID uuid.UUID, day string) (*DailyCostRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, costKey(tenantID, day)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetching daily cost record: %w", err)
	}

	rec := &DailyCostRecord{
		TenantID:   tenantID,
		Day:        day,
		Categories: make(map[Category]Usage),
	}

	for field, raw := range fields {
		name, kind, ok := strings.Cut(field, ".")
		if !ok {
			continue
		}
		if name == "total" && kind == "cost" {
			if rec.TotalCost, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("parsing total cost: %w", err)
			}
			continue
		}

		u := rec.Categories[Category(name)]
		switch kind {
		case "volume":
			if u.Volume, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return nil, fmt.Errorf("parsing %s volume: %w", name, err)
			}
		case "cost":
			if u.Cost, err = strconv.ParseFloat(raw, 64); err != nil {
				return nil, fmt.Errorf("parsing %s cost: %w", name, err)
			}
		}
		rec.Categories[Category(name)] = u
	}

	return rec, nil
}

func (s *RedisStore) SetBlocked(ctx context.Context, tenantID uuid.UUID, blocked bool) error {
	v := 0
	if blocked {
		v = 1
	}
	if err := s.rdb.HSet(ctx, budgetKey(tenantID), fieldIsBlocked, v).Err(); err != nil {
		return fmt.Errorf("setting spend block: %w", err)
	}
	return nil
}

func parseBudget(tenantID uuid.UUID, fields map[string]string) (*CompanyBudget, error) {
	b := &CompanyBudget{TenantID: tenantID, MonthKey: fields[fieldMonthKey]}

	var err error
	if b.MonthlyBudget, err = parseFloatField(fields, fieldMonthlyBudget); err != nil {
		return nil, err
	}
	if b.DailyLimit, err = parseFloatField(fields, fieldDailyLimit); err != nil {
		return nil, err
	}
	if b.CurrentMonthSpent, err = parseFloatField(fields, fieldMonthSpent); err != nil {
		return nil, err
	}
	if b.AlertThresholdPercent, err = parseFloatField(fields, fieldAlertThreshold); err != nil {
		return nil, err
	}
	if b.BlockThresholdPercent, err = parseFloatField(fields, fieldBlockThreshold); err != nil {
		return nil, err
	}
	b.IsBlocked = fields[fieldIsBlocked] == "1"

	return b, nil
}

func parseFloatField(fields map[string]string, name string) (float64, error) {
	v, ok := fields[name]
	if !ok || v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", name, err)
	}
	return f, nil
}
