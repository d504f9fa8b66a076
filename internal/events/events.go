package events

import (
	"time"

	"github.com/google/uuid"
)

// StreamEvents holds every platform event subject.
const StreamEvents = "REACHPOINT_EVENTS"

// Subject constants.
const (
	SubjectBudgetAlert = "reachpoint.events.budget"
	SubjectAudit       = "reachpoint.events.audit"
)

// BudgetAlert is published when a tenant's projected spend crosses the
// alert threshold but stays below the block threshold. Delivery to the
// alerting pipeline is fire-and-forget.
type BudgetAlert struct {
	TenantID         uuid.UUID `json:"tenant_id"`
	MonthlyBudget    float64   `json:"monthly_budget"`
	CurrentSpent     float64   `json:"current_spent"`
	ProjectedSpent   float64   `json:"projected_spent"`
	ThresholdPercent float64   `json:"threshold_percent"`
	Timestamp        time.Time `json:"timestamp"`
}

// AuditEvent is published for compliance/audit logging of dispatch
// activity and operator actions.
type AuditEvent struct {
	TenantID     uuid.UUID      `json:"tenant_id"`
	EventType    string         `json:"event_type"`
	Severity     string         `json:"severity"` // info, warning, error
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
