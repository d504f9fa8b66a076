package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reachpoint-platform/reachpoint/internal/batch"
	"github.com/reachpoint-platform/reachpoint/internal/billing"
	"github.com/reachpoint-platform/reachpoint/internal/events"
	"github.com/reachpoint-platform/reachpoint/internal/metrics"
	"github.com/reachpoint-platform/reachpoint/internal/providers"
	"github.com/reachpoint-platform/reachpoint/internal/quota"
	"github.com/reachpoint-platform/reachpoint/internal/ratelimit"
)

// ErrRateLimited is returned when the tenant's per-action send rate is
// exhausted mid-dispatch.
var ErrRateLimited = errors.New("rate limit exceeded")

// AuditPublisher emits audit events for dispatch runs. Satisfied by
// events.Publisher; nil disables auditing.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, event events.AuditEvent) error
}

// Service runs campaign dispatches through the full admission pipeline:
// budget, quota, and rate limit checks gate every batch before it
// reaches a provider, and delivered volume is billed afterwards.
type Service struct {
	limiter  *ratelimit.Limiter
	quotas   *quota.Manager
	budget   *billing.Guard
	senders  *providers.Registry
	audit    AuditPublisher
	dispatch batch.Config
	logger   *slog.Logger
}

// NewService creates a Service. audit may be nil.
func NewService(
	limiter *ratelimit.Limiter,
	quotas *quota.Manager,
	budget *billing.Guard,
	senders *providers.Registry,
	audit AuditPublisher,
	dispatch batch.Config,
	logger *slog.Logger,
) *Service {
	return &Service{
		limiter:  limiter,
		quotas:   quotas,
		budget:   budget,
		senders:  senders,
		audit:    audit,
		dispatch: dispatch,
		logger:   logger,
	}
}

func channelAction(ch providers.Channel) string {
	switch ch {
	case providers.ChannelEmail:
		return ratelimit.ActionSendEmail
	case providers.ChannelSMS:
		return ratelimit.ActionSendSMS
	case providers.ChannelWhatsApp:
		return ratelimit.ActionSendWhatsApp
	}
	return ratelimit.ActionAPI
}

func channelCategory(ch providers.Channel) (billing.Category, error) {
	switch ch {
	case providers.ChannelEmail:
		return billing.CategoryEmail, nil
	case providers.ChannelSMS:
		return billing.CategorySMS, nil
	case providers.ChannelWhatsApp:
		return billing.CategoryWhatsApp, nil
	}
	// No fallback: billing an unknown channel at some other channel's
	// rate would corrupt cost records.
	return "", fmt.Errorf("no billing category for channel %q", ch)
}

// Dispatch sends a campaign to all recipients. The budget check runs once
// up front against the whole campaign's estimated cost; quota and rate
// limit checks run per batch so a long run reacts to limits filling up.
// A partial DispatchResult is returned alongside any mid-run error.
func (s *Service) Dispatch(ctx context.Context, req *DispatchRequest) (*DispatchResult, error) {
	category, err := channelCategory(req.Channel)
	if err != nil {
		return nil, err
	}
	estimated := billing.CostOf(category, int64(len(req.Recipients)))

	decision, err := s.budget.WouldExceedBudget(ctx, req.TenantID, estimated)
	if err != nil {
		// Budget storage being down must not halt the platform; the
		// accruals still land once it recovers.
		s.logger.Warn("budget check unavailable, allowing dispatch",
			"tenant_id", req.TenantID, "error", err)
	} else if !decision.Allowed {
		metrics.SendsRejectedTotal.WithLabelValues("budget").Inc()
		return nil, fmt.Errorf("%w: %s", billing.ErrBudgetExceeded, decision.Reason)
	}

	sender, err := s.senders.For(req.Channel)
	if err != nil {
		return nil, err
	}

	msgs := make([]providers.Message, len(req.Recipients))
	for i, rcpt := range req.Recipients {
		msgs[i] = providers.Message{To: rcpt.To, Body: req.Body, Vars: rcpt.Vars}
	}

	cfg := s.dispatch
	if req.BatchSize > 0 {
		cfg.BatchSize = req.BatchSize
	}

	action := channelAction(req.Channel)
	send := func(ctx context.Context, items []providers.Message) ([]batch.Outcome, error) {
		if d := s.quotas.CanSend(ctx, req.TenantID, req.Plan); !d.Allowed {
			metrics.SendsRejectedTotal.WithLabelValues("quota").Inc()
			return nil, fmt.Errorf("%w: %s", d.Cause, d.Reason)
		}

		if res := s.limiter.Check(req.TenantID.String(), action); !res.Allowed {
			metrics.SendsRejectedTotal.WithLabelValues("rate_limit").Inc()
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, res.Reason)
		}

		outcomes, err := sender.SendBatch(ctx, req.Channel, items)
		if err != nil {
			if recErr := s.quotas.RecordBatch(ctx, req.TenantID, req.Plan, 0, len(items)); recErr != nil {
				s.logger.Warn("failed to record batch failure",
					"tenant_id", req.TenantID, "error", recErr)
			}
			metrics.SendsTotal.WithLabelValues(string(req.Channel), "failure").Add(float64(len(items)))
			return nil, err
		}

		successes, failures := 0, 0
		for _, o := range outcomes {
			if o.OK() {
				successes++
			} else {
				failures++
			}
		}

		if err := s.quotas.RecordBatch(ctx, req.TenantID, req.Plan, successes, failures); err != nil {
			s.logger.Warn("failed to record batch result",
				"tenant_id", req.TenantID, "error", err)
		}
		if successes > 0 {
			if err := s.budget.Accrue(ctx, req.TenantID, category, int64(successes)); err != nil {
				s.logger.Warn("failed to accrue send cost",
					"tenant_id", req.TenantID, "error", err)
			}
		}

		metrics.SendsTotal.WithLabelValues(string(req.Channel), "success").Add(float64(successes))
		metrics.SendsTotal.WithLabelValues(string(req.Channel), "failure").Add(float64(failures))
		return outcomes, nil
	}

	// Parallel scheduling is only honored for plans provisioned for
	// concurrent sends; everyone else runs paced sequential batches.
	parallel := req.Parallel && quota.PlanFor(req.Plan).MaxConcurrentSends > 1

	var report *batch.Report
	var runErr error
	if parallel {
		metrics.BatchesTotal.WithLabelValues("parallel").Inc()
		report, runErr = batch.RunParallel(ctx, msgs, cfg, send)
	} else {
		metrics.BatchesTotal.WithLabelValues("sequential").Inc()
		report, runErr = batch.RunSequential(ctx, msgs, cfg, send)
	}

	result := &DispatchResult{
		CampaignID:         req.CampaignID,
		TotalProcessed:     report.TotalProcessed,
		BatchesProcessed:   report.BatchesProcessed,
		SuccessCount:       report.SuccessCount,
		FailureCount:       report.FailureCount,
		ElapsedMS:          report.Elapsed.Milliseconds(),
		EstimatedPerItemMS: float64(report.EstimatedPerItem.Microseconds()) / 1000,
		EstimatedCost:      billing.FormatUSD(estimated),
	}
	if runErr != nil {
		result.Aborted = true
		result.AbortReason = runErr.Error()
	}

	s.publishAudit(req, result)

	s.logger.Info("campaign dispatch finished",
		"tenant_id", req.TenantID,
		"campaign_id", req.CampaignID,
		"channel", req.Channel,
		"processed", result.TotalProcessed,
		"succeeded", result.SuccessCount,
		"failed", result.FailureCount,
		"aborted", result.Aborted)

	return result, runErr
}

func (s *Service) publishAudit(req *DispatchRequest, result *DispatchResult) {
	if s.audit == nil {
		return
	}
	severity := "info"
	if result.Aborted {
		severity = "warning"
	}
	event := events.AuditEvent{
		TenantID:     req.TenantID,
		EventType:    "campaign.dispatch",
		Severity:     severity,
		ResourceType: "campaign",
		ResourceID:   req.CampaignID,
		Details: map[string]any{
			"channel":   string(req.Channel),
			"processed": result.TotalProcessed,
			"succeeded": result.SuccessCount,
			"failed":    result.FailureCount,
			"aborted":   result.Aborted,
		},
		Timestamp: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.audit.PublishAuditEvent(ctx, event); err != nil {
			s.logger.Warn("failed to publish audit event",
				"tenant_id", req.TenantID, "error", err)
		}
	}()
}

// QuotaStatus returns the tenant's current counters and plan limits.
func (s *Service) QuotaStatus(ctx context.Context, tenantID uuid.UUID, plan string) (*quota.Status, error) {
	tracking, err := s.quotas.GetTracking(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &quota.Status{Tracking: *tracking, Limits: quota.PlanFor(plan)}, nil
}

// ResetBreaker closes the tenant's circuit breaker and clears the
// failure streak. Operator action after a provider outage.
func (s *Service) ResetBreaker(ctx context.Context, tenantID uuid.UUID) error {
	return s.quotas.ResetBreaker(ctx, tenantID)
}

// BudgetStatus returns the tenant's budget and today's cost breakdown.
func (s *Service) BudgetStatus(ctx context.Context, tenantID uuid.UUID) (*billing.Status, error) {
	return s.budget.Status(ctx, tenantID)
}

// SetSpendBlocked toggles the tenant's spend block.
func (s *Service) SetSpendBlocked(ctx context.Context, tenantID uuid.UUID, blocked bool) error {
	return s.budget.SetBlocked(ctx, tenantID, blocked)
}
