package providers

import (
	"context"
	"log/slog"

	"github.com/reachpoint-platform/reachpoint/internal/batch"
)

// DryRunSender accepts every message without contacting any gateway.
// It is the default sender until real provider credentials are
// configured, and doubles as the sender for campaign previews.
type DryRunSender struct {
	logger *slog.Logger
}

// NewDryRunSender creates a DryRunSender.
func NewDryRunSender(logger *slog.Logger) *DryRunSender {
	return &DryRunSender{logger: logger}
}

var _ Sender = (*DryRunSender)(nil)

func (s *DryRunSender) SendBatch(ctx context.Context, ch Channel, msgs []Message) ([]batch.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Info("dry-run batch accepted",
		"channel", ch,
		"count", len(msgs))
	return make([]batch.Outcome, len(msgs)), nil
}
