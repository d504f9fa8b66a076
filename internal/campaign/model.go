package campaign

import (
	"github.com/google/uuid"

	"github.com/reachpoint-platform/reachpoint/internal/providers"
)

// Recipient is one target of a dispatch, with optional template variables.
type Recipient struct {
	To   string            `json:"to" validate:"required"`
	Vars map[string]string `json:"vars"`
}

// DispatchRequest asks for a campaign to be sent to a list of recipients.
type DispatchRequest struct {
	TenantID   uuid.UUID         `json:"tenant_id" validate:"required"`
	Plan       string            `json:"plan" validate:"required,oneof=free starter growth enterprise"`
	Channel    providers.Channel `json:"channel" validate:"required,oneof=email sms whatsapp"`
	CampaignID string            `json:"campaign_id" validate:"required,min=1,max=255"`
	Body       string            `json:"body" validate:"required,min=1"`
	Recipients []Recipient       `json:"recipients" validate:"required,min=1,max=100000,dive"`
	Parallel   bool              `json:"parallel"`
	BatchSize  int               `json:"batch_size" validate:"omitempty,min=1,max=10000"`
}

// DispatchResult is returned to the caller after a dispatch run.
type DispatchResult struct {
	CampaignID         string  `json:"campaign_id"`
	TotalProcessed     int     `json:"total_processed"`
	BatchesProcessed   int     `json:"batches_processed"`
	SuccessCount       int     `json:"success_count"`
	FailureCount       int     `json:"failure_count"`
	ElapsedMS          int64   `json:"elapsed_ms"`
	EstimatedPerItemMS float64 `json:"estimated_per_item_ms"`
	EstimatedCost      string  `json:"estimated_cost"`
	Aborted            bool    `json:"aborted,omitempty"`
	AbortReason        string  `json:"abort_reason,omitempty"`
}
