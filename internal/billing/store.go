package billing

import (
	"context"

	"github.com/google/uuid"
)

// Store persists daily cost records and company budgets. Cost updates
// must be additive atomic increments at the storage layer so concurrent
// accruals from multiple requests cannot lose money.
type Store interface {
	// Budget returns the tenant's budget record, creating one with
	// defaults if absent. If the stored month key differs from monthKey,
	// current_month_spent is lazily reset to zero first.
	Budget(ctx context.Context, tenantID uuid.UUID, monthKey string) (*CompanyBudget, error)

	// Accrue atomically adds volume and cost to the tenant's record for
	// the given day (creating it on the first write of the day) and adds
	// cost to current_month_spent.
	Accrue(ctx context.Context, tenantID uuid.UUID, day string, c Category, volume int64, cost float64) error

	// DailyRecord returns the cost record for a day; a day with no
	// accruals yields an empty record, not an error.
	DailyRecord(ctx context.Context, tenantID uuid.UUID, day string) (*DailyCostRecord, error)

	// SetBlocked sets or clears the manual spend block.
	SetBlocked(ctx context.Context, tenantID uuid.UUID, blocked bool) error
}
