package dispatch

import (
	"context"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Outbox persists committed snapshots asynchronously. Enqueue must never
// block the caller: the in-memory commit is already the accepted truth.
type Outbox interface {
	Enqueue(ride models.Ride, event types.RideEvent)
}

// Notifier delivers lifecycle events to live connections. A participant
// with no live connections simply misses the push; the client recovers via
// Resync.
type Notifier interface {
	Deliver(participantID uuid.UUID, event types.RideEvent, ride models.Ride)
	BroadcastDrivers(event types.RideEvent, ride models.Ride)
}

// Archive reads rides that already left the in-memory store, so resync
// keeps working after a terminal ride is evicted.
type Archive interface {
	Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error)
}

// EventPublisher mirrors committed transitions onto the broker for
// downstream consumers. Failures are an observability concern, never the
// caller's.
type EventPublisher interface {
	PublishRideRequested(ctx context.Context, msg models.RideRequestedMessage) error
	PublishRideStatus(ctx context.Context, msg models.RideStatusUpdateMessage) error
}
