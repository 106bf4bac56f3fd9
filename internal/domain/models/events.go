package models

import (
	"time"

	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

type RideRequestedMessage struct {
	RideID              uuid.UUID `json:"ride_id"`
	PassengerID         uuid.UUID `json:"passenger_id"`
	PickupLocation      Location  `json:"pickup_location"`
	DestinationLocation Location  `json:"destination_location"`
	RequestedAt         time.Time `json:"requested_at"`
	CorrelationID       string    `json:"correlation_id"`
}

type RideStatusUpdateMessage struct {
	RideID        uuid.UUID  `json:"ride_id"`
	Status        string     `json:"status"`
	Version       int64      `json:"version"`
	Timestamp     time.Time  `json:"timestamp"`
	DriverID      *uuid.UUID `json:"driver_id,omitempty"`
	CorrelationID string     `json:"correlation_id"`
}
