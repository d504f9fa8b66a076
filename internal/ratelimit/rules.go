package ratelimit

import "time"

// Rule defines the ceiling for one action: at most Max checks per Window.
type Rule struct {
	Max    int
	Window time.Duration
}

// Action names used across the platform. Callers may pass any action;
// unknown actions fall back to DefaultRule.
const (
	ActionSendEmail    = "send-email"
	ActionSendSMS      = "send-sms"
	ActionSendWhatsApp = "send-whatsapp"
	ActionAIGenerate   = "ai-generate"
	ActionAPI          = "api"
)

// DefaultRule is applied to any action without an explicit rule.
// Deliberately conservative: this limiter exists for abuse prevention,
// not SLA enforcement.
var DefaultRule = Rule{Max: 60, Window: time.Minute}

// DefaultRules maps provider-facing actions to their ceilings.
// The per-minute numbers track what the messaging providers tolerate
// before flagging the account.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		ActionSendEmail:    {Max: 100, Window: time.Minute},
		ActionSendSMS:      {Max: 30, Window: time.Minute},
		ActionSendWhatsApp: {Max: 30, Window: time.Minute},
		ActionAIGenerate:   {Max: 20, Window: time.Minute},
		ActionAPI:          {Max: 300, Window: time.Minute},
	}
}
