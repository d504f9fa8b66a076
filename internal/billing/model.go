package billing

import (
	"time"

	"github.com/google/uuid"
)

// Category is a billable usage category.
type Category string

const (
	CategoryEmail    Category = "email"
	CategorySMS      Category = "sms"
	CategoryWhatsApp Category = "whatsapp"
	CategoryAITokens Category = "ai_tokens"
	CategoryAIImages Category = "ai_images"
	CategoryDBReads  Category = "db_reads"
	CategoryDBWrites Category = "db_writes"
)

// Usage is the accumulated volume and accrued cost for one category.
type Usage struct {
	Volume int64   `json:"volume"`
	Cost   float64 `json:"cost"`
}

// DailyCostRecord matches the daily_cost_records rows for one tenant and
// calendar day. Cost fields only ever grow within a day; a new record
// appears on the first write of a new day.
type DailyCostRecord struct {
	TenantID   uuid.UUID          `json:"tenant_id"`
	Day        string             `json:"day"` // YYYY-MM-DD, UTC
	Categories map[Category]Usage `json:"categories"`
	TotalCost  float64            `json:"total_cost"`
}

// CompanyBudget matches the company_budgets table schema: one record per
// tenant. IsBlocked is a manual operator override and stays set until an
// operator clears it; the system never clears it automatically.
type CompanyBudget struct {
	TenantID              uuid.UUID `json:"tenant_id"`
	MonthlyBudget         float64   `json:"monthly_budget"`
	DailyLimit            float64   `json:"daily_limit"`
	CurrentMonthSpent     float64   `json:"current_month_spent"`
	MonthKey              string    `json:"month_key"` // YYYY-MM, UTC
	AlertThresholdPercent float64   `json:"alert_threshold_percent"`
	BlockThresholdPercent float64   `json:"block_threshold_percent"`
	IsBlocked             bool      `json:"is_blocked"`
}

// Defaults applied when a tenant's budget record is first created.
const (
	DefaultMonthlyBudget         = 50.0
	DefaultDailyLimit            = 5.0
	DefaultAlertThresholdPercent = 80.0
	DefaultBlockThresholdPercent = 100.0
)

// Status is the API response combining the budget and today's costs.
type Status struct {
	Budget CompanyBudget    `json:"budget"`
	Today  *DailyCostRecord `json:"today"`
}

// DayKey formats a time as the UTC calendar-day key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKeyOf formats a time as the UTC calendar-month key.
func MonthKeyOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}
