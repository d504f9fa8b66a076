package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists budgets in company_budgets and per-day usage in
// daily_cost_records. Increments happen in SQL so concurrent accruals
// never lose updates.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Budget(ctx context.Context, tenantID uuid.UUID, monthKey string) (*CompanyBudget, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_budgets (tenant_id, month_key)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id) DO NOTHING`,
		tenantID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("ensuring company budget: %w", err)
	}

	// New calendar month: zero the counter before reading it back.
	_, err = s.pool.Exec(ctx, `
		UPDATE company_budgets
		SET current_month_spent = 0, month_key = $2, updated_at = NOW()
		WHERE tenant_id = $1 AND month_key <> $2`,
		tenantID, monthKey)
	if err != nil {
		return nil, fmt.Errorf("resetting monthly spend: %w", err)
	}

	b := &CompanyBudget{TenantID: tenantID}
	err = s.pool.QueryRow(ctx, `
		SELECT monthly_budget, daily_limit, current_month_spent, month_key,
		       alert_threshold_percent, block_threshold_percent, is_blocked
		FROM company_budgets
		WHERE tenant_id = $1`,
		tenantID).Scan(
		&b.MonthlyBudget, &b.DailyLimit, &b.CurrentMonthSpent, &b.MonthKey,
		&b.AlertThresholdPercent, &b.BlockThresholdPercent, &b.IsBlocked)
	if err != nil {
		return nil, fmt.Errorf("fetching company budget: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Accrue(ctx context.Context, tenantID uuid.UUID, day string, c Category, volume int64, cost float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning accrual: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO daily_cost_records (tenant_id, day, category, volume, cost)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, day, category)
		DO UPDATE SET volume = daily_cost_records.volume + EXCLUDED.volume,
		              cost = daily_cost_records.cost + EXCLUDED.cost,
		              updated_at = NOW()`,
		tenantID, day, c, volume, cost)
	if err != nil {
		return fmt.Errorf("accruing daily cost: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE company_budgets
		SET current_month_spent = current_month_spent + $2, updated_at = NOW()
		WHERE tenant_id = $1`,
		tenantID, cost)
	if err != nil {
		return fmt.Errorf("accruing monthly spend: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing accrual: %w", err)
	}
	return nil
}

func (s *PostgresStore) DailyRecord(ctx context.Context, tenantID uuid.UUID, day string) (*DailyCostRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, volume, cost
		FROM daily_cost_records
		WHERE tenant_id = $1 AND day = $2`,
		tenantID, day)
	if err != nil {
		return nil, fmt.Errorf("fetching daily cost record: %w", err)
	}
	defer rows.Close()

	rec := &DailyCostRecord{
		TenantID:   tenantID,
		Day:        day,
		Categories: make(map[Category]Usage),
	}
	for rows.Next() {
		var (
			c Category
			u Usage
		)
		if err := rows.Scan(&c, &u.Volume, &u.Cost); err != nil {
			return nil, fmt.Errorf("scanning daily cost record: %w", err)
		}
		rec.Categories[c] = u
		rec.TotalCost += u.Cost
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading daily cost records: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) SetBlocked(ctx context.Context, tenantID uuid.UUID, blocked bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO company_budgets (tenant_id, month_key, is_blocked)
		VALUES ($1, to_char(NOW() AT TIME ZONE 'UTC', 'YYYY-MM'), $2)
		ON CONFLICT (tenant_id)
		DO UPDATE SET is_blocked = EXCLUDED.is_blocked, updated_at = NOW()`,
		tenantID, blocked)
	if err != nil {
		return fmt.Errorf("setting spend block: %w", err)
	}
	return nil
}
