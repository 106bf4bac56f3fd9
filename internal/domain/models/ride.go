package models

import (
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Ride is the central entity. The coordinator assigns the ID at request
// time and it is never reused. Version increases by exactly one per
// committed transition and orders notifications for a ride.
type Ride struct {
	ID          uuid.UUID        `json:"ride_id"`
	Status      types.RideStatus `json:"status"`
	PassengerID uuid.UUID        `json:"passenger_id"`
	DriverID    *uuid.UUID       `json:"driver_id,omitempty"`
	Origin      Location         `json:"origin"`
	Destination Location         `json:"destination"`
	Version     int64            `json:"version"`

	// Cancellation reason, set only on cancelled rides
	CancellationReason *string `json:"cancellation_reason,omitempty"`

	// Timestamps, each set exactly once
	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// BoundTo reports whether the participant is the passenger or the matched
// driver of this ride.
func (r *Ride) BoundTo(participantID uuid.UUID) bool {
	if r.PassengerID == participantID {
		return true
	}
	return r.DriverID != nil && *r.DriverID == participantID
}
