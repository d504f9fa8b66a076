package quota

import (
	"time"

	"github.com/google/uuid"
)

// Tracking matches the tenant_quota_tracking table schema: one record per
// tenant, mutated on every send attempt and on window-rollover checks.
type Tracking struct {
	TenantID            uuid.UUID  `json:"tenant_id"`
	SentToday           int        `json:"sent_today"`
	SentThisHour        int        `json:"sent_this_hour"`
	LastDailyReset      time.Time  `json:"last_daily_reset"`
	LastHourlyReset     time.Time  `json:"last_hourly_reset"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CircuitTrippedAt    *time.Time `json:"circuit_tripped_at,omitempty"`
	LastSendAt          *time.Time `json:"last_send_at,omitempty"`
}

// BreakerOpen reports whether the circuit breaker is open for this record.
func (t *Tracking) BreakerOpen() bool {
	return t.CircuitTrippedAt != nil
}

// Status is the API response showing current usage against plan limits.
type Status struct {
	Tracking Tracking   `json:"tracking"`
	Limits   PlanQuotas `json:"limits"`
}
