package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists per-tenant quota tracking. Implementations must perform
// counter updates as atomic increments at the storage layer, never as
// read-modify-write in the application, so concurrent requests cannot
// lose updates.
type Store interface {
	// GetOrCreate returns the tenant's tracking record, creating a zeroed
	// one with reset timestamps of now if absent.
	GetOrCreate(ctx context.Context, tenantID uuid.UUID, now time.Time) (*Tracking, error)

	// ResetDaily zeroes sent_today and stamps last_daily_reset.
	ResetDaily(ctx context.Context, tenantID uuid.UUID, now time.Time) error

	// ResetHourly zeroes sent_this_hour and stamps last_hourly_reset.
	ResetHourly(ctx context.Context, tenantID uuid.UUID, now time.Time) error

	// RecordSuccess adds n successful sends to both window counters,
	// clears the consecutive-failure streak, closes the breaker, and
	// stamps last_send_at.
	RecordSuccess(ctx context.Context, tenantID uuid.UUID, n int, now time.Time) error

	// RecordFailure increments the consecutive-failure counter and
	// returns its new value.
	RecordFailure(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error)

	// TripBreaker stamps circuit_tripped_at if not already stamped.
	TripBreaker(ctx context.Context, tenantID uuid.UUID, now time.Time) error

	// ResetBreaker clears the failure streak and the trip timestamp.
	// Exposed to operators; recovery is never time-based.
	ResetBreaker(ctx context.Context, tenantID uuid.UUID) error
}
