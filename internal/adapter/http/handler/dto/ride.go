package dto

import (
	"errors"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Inbound event names, as the clients send them.
const (
	EventRequestRide = "requestRide"
	EventAcceptRide  = "acceptRide"
	EventStartRide   = "startRide"
	EventEndRide     = "endRide"
	EventCancelRide  = "cancelRide"
	EventResync      = "resync"
)

// InboundEvent is the single message shape read off a websocket. Type
// selects the operation; the other fields are filled per operation.
type InboundEvent struct {
	Type        string           `json:"type"`
	RideID      uuid.UUID        `json:"ride_id,omitempty"`
	Origin      *models.Location `json:"origin,omitempty"`
	Destination *models.Location `json:"destination,omitempty"`
	Reason      string           `json:"reason,omitempty"`
}

// Validate enforces the minimal shape validation, the rest of the
// request body checking belongs to the edge layer.
func (e *InboundEvent) Validate() error {
	switch e.Type {
	case EventRequestRide:
		if e.Origin == nil || e.Destination == nil {
			return errors.New("requestRide requires origin and destination")
		}
	case EventAcceptRide, EventStartRide, EventEndRide, EventCancelRide, EventResync:
		if e.RideID.IsNil() {
			return errors.New("ride_id is required")
		}
	default:
		return errors.New("unknown event type")
	}
	return nil
}

// CreateRideRequest is the REST body for POST /rides.
type CreateRideRequest struct {
	Origin      models.Location `json:"origin"`
	Destination models.Location `json:"destination"`
}

// CancelRideRequest is the REST body for POST /rides/{ride_id}/cancel.
type CancelRideRequest struct {
	Reason string `json:"reason"`
}
