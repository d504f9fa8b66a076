// Package providers defines the delivery boundary. The dispatch pipeline
// talks to a Sender; concrete integrations (SMTP relays, SMS gateways,
// WhatsApp BSPs) register behind it.
package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/reachpoint-platform/reachpoint/internal/batch"
)

// Channel identifies a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether the channel is one the platform can dispatch on.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// Message is one recipient's personalized payload.
type Message struct {
	To   string            `json:"to"`
	Body string            `json:"body"`
	Vars map[string]string `json:"vars,omitempty"`
}

// Sender delivers a batch of messages on one channel. Implementations
// return one outcome per message in order; a non-nil error means the
// whole batch failed to hand off.
type Sender interface {
	SendBatch(ctx context.Context, ch Channel, msgs []Message) ([]batch.Outcome, error)
}

// Registry maps channels to senders.
type Registry struct {
	mu      sync.RWMutex
	senders map[Channel]Sender
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{senders: make(map[Channel]Sender)}
}

// Register installs the sender for a channel, replacing any previous one.
func (r *Registry) Register(ch Channel, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[ch] = s
}

// For returns the sender registered for the channel.
func (r *Registry) For(ch Channel) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("no sender registered for channel %q", ch)
	}
	return s, nil
}
