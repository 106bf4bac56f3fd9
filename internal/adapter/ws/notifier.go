package ws

import (
	"context"
	"errors"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	wshub "github.com/olzhask/ride-dispatch/pkg/wsHub"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Wire event names, as clients see them.
const (
	MsgNewRideRequest = "newRideRequest"
	MsgRideAccepted   = "rideAccepted"
	MsgRideStarted    = "rideStarted"
	MsgRideEnded      = "rideEnded"
	MsgRideCancelled  = "rideCancelled"
)

// Notifier resolves live connections through the hub and pushes lifecycle
// events. It only ever sees already-committed snapshots. A participant with
// no live connection misses the push and recovers via resync.
type Notifier struct {
	hub *wshub.ConnectionHub
	l   logger.Logger
}

func NewNotifier(hub *wshub.ConnectionHub, log logger.Logger) *Notifier {
	return &Notifier{
		hub: hub,
		l:   log,
	}
}

func (n *Notifier) Deliver(participantID uuid.UUID, event types.RideEvent, ride models.Ride) {
	ctx := wrap.WithLogCtx(context.Background(), wrap.LogCtx{
		Action: "notify_deliver",
		RideID: ride.ID.String(),
	})

	msg := envelope(event, ride)
	if err := n.hub.SendTo(participantID, msg); err != nil {
		if errors.Is(err, wshub.ErrNoLiveSessions) {
			// Not an error: the store holds the state, the client resyncs.
			n.l.Debug(ctx, "participant not connected, push skipped",
				"participant_id", participantID,
				"event", event,
			)
			return
		}
		n.l.Warn(ctx, "failed to deliver event",
			"participant_id", participantID,
			"event", event,
			"err", err.Error(),
		)
	}
}

func (n *Notifier) BroadcastDrivers(event types.RideEvent, ride models.Ride) {
	n.hub.BroadcastRole(types.Driver, envelope(event, ride))
}

// envelope maps the internal event kind onto the wire message shape.
func envelope(event types.RideEvent, ride models.Ride) map[string]any {
	return map[string]any{
		"type": wireType(event),
		"ride": ride,
	}
}

func wireType(event types.RideEvent) string {
	switch event {
	case types.EventRideRequested:
		return MsgNewRideRequest
	case types.EventRideAccepted:
		return MsgRideAccepted
	case types.EventRideStarted:
		return MsgRideStarted
	case types.EventRideEnded:
		return MsgRideEnded
	case types.EventRideCancelled:
		return MsgRideCancelled
	default:
		return string(event)
	}
}
