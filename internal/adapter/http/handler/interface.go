package handler

import (
	"context"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Dispatcher is the coordinator surface the transport layer drives. The
// transport hands it only authenticated, well-typed payloads.
type Dispatcher interface {
	RequestRide(ctx context.Context, passengerID uuid.UUID, origin, destination models.Location) (models.Ride, error)
	AcceptRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error)
	StartRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error)
	EndRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error)
	CancelRide(ctx context.Context, rideID, requesterID uuid.UUID, reason string) (models.Ride, error)
	Resync(ctx context.Context, rideID uuid.UUID) (models.Ride, error)
}
