package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/trm"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// RideRepo mirrors committed ride snapshots into the relational store.
// Writes are idempotent keyed by (ride_id, version): replaying the same
// snapshot leaves the durable record unchanged.
type RideRepo struct {
	db  *pgxpool.Pool
	trm trm.TxManager
}

func NewRideRepo(db *pgxpool.Pool, trm trm.TxManager) *RideRepo {
	return &RideRepo{db: db, trm: trm}
}

// SaveSnapshot upserts the ride row and appends the lifecycle event in one
// transaction. A snapshot at or below the stored version is a no-op.
func (r *RideRepo) SaveSnapshot(ctx context.Context, ride models.Ride, event types.RideEvent) error {
	const op = "rideRepo.SaveSnapshot"

	return r.trm.Do(ctx, func(ctx context.Context) error {
		q := TxorDB(ctx, r.db)

		upsertQuery := `
			INSERT INTO rides (
				id, passenger_id, driver_id, status, version,
				origin_latitude, origin_longitude, origin_address,
				destination_latitude, destination_longitude, destination_address,
				cancellation_reason,
				created_at, accepted_at, started_at, ended_at, cancelled_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now())
			ON CONFLICT (id) DO UPDATE SET
				driver_id = EXCLUDED.driver_id,
				status = EXCLUDED.status,
				version = EXCLUDED.version,
				cancellation_reason = EXCLUDED.cancellation_reason,
				accepted_at = EXCLUDED.accepted_at,
				started_at = EXCLUDED.started_at,
				ended_at = EXCLUDED.ended_at,
				cancelled_at = EXCLUDED.cancelled_at,
				updated_at = now()
			WHERE rides.version < EXCLUDED.version;`

		if _, err := q.Exec(ctx, upsertQuery,
			ride.ID,
			ride.PassengerID,
			ride.DriverID,
			ride.Status.String(),
			ride.Version,
			ride.Origin.Latitude,
			ride.Origin.Longitude,
			ride.Origin.Address,
			ride.Destination.Latitude,
			ride.Destination.Longitude,
			ride.Destination.Address,
			ride.CancellationReason,
			ride.CreatedAt,
			ride.AcceptedAt,
			ride.StartedAt,
			ride.EndedAt,
			ride.CancelledAt,
		); err != nil {
			return fmt.Errorf("%s: upsert ride: %w", op, err)
		}

		snapshot, err := json.Marshal(ride)
		if err != nil {
			return fmt.Errorf("%s: marshal snapshot: %w", op, err)
		}

		// (ride_id, version) is the primary key, so replayed events are
		// absorbed without touching the first write.
		eventQuery := `
			INSERT INTO ride_events (ride_id, version, event_type, event_data)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (ride_id, version) DO NOTHING;`

		if _, err := q.Exec(ctx, eventQuery, ride.ID, ride.Version, event.String(), snapshot); err != nil {
			return fmt.Errorf("%s: insert ride event: %w", op, err)
		}

		return nil
	})
}

// Get loads the durable record, for audit queries.
func (r *RideRepo) Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	q := TxorDB(ctx, r.db)

	query := `
		SELECT
			id, passenger_id, driver_id, status, version,
			origin_latitude, origin_longitude, origin_address,
			destination_latitude, destination_longitude, destination_address,
			cancellation_reason,
			created_at, accepted_at, started_at, ended_at, cancelled_at
		FROM rides
		WHERE id = $1;`

	var (
		ride   models.Ride
		status string
	)
	err := q.QueryRow(ctx, query, rideID).Scan(
		&ride.ID, &ride.PassengerID, &ride.DriverID, &status, &ride.Version,
		&ride.Origin.Latitude, &ride.Origin.Longitude, &ride.Origin.Address,
		&ride.Destination.Latitude, &ride.Destination.Longitude, &ride.Destination.Address,
		&ride.CancellationReason,
		&ride.CreatedAt, &ride.AcceptedAt, &ride.StartedAt, &ride.EndedAt, &ride.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrRideNotFound
		}
		return nil, fmt.Errorf("rideRepo.Get: %w", err)
	}
	ride.Status = types.RideStatus(status)

	return &ride, nil
}
