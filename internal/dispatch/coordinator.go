package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/metrics"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

const autoCancelReason = "no driver accepted the request in time"

type Config struct {
	// AcceptWindow bounds how long a REQUESTED ride waits for a driver
	// before the sweep auto-cancels it.
	AcceptWindow time.Duration

	// RetentionWindow keeps terminal rides in memory for late duplicate
	// detection before eviction.
	RetentionWindow time.Duration

	SweepInterval time.Duration
}

// Coordinator is the dispatch state machine. It validates inbound events
// against the store, commits winning transitions and fans the committed
// snapshot out to the outbox, the broker and the notification router, in
// that order. Nothing here touches the network while a ride is locked.
type Coordinator struct {
	store    *Store
	outbox   Outbox
	notifier Notifier
	broker   EventPublisher // optional
	archive  Archive        // optional
	cfg      Config
	log      logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewCoordinator(store *Store, outbox Outbox, notifier Notifier, broker EventPublisher, archive Archive, cfg Config, log logger.Logger) *Coordinator {
	if cfg.AcceptWindow <= 0 {
		cfg.AcceptWindow = 2 * time.Minute
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 15 * time.Second
	}

	return &Coordinator{
		store:    store,
		outbox:   outbox,
		notifier: notifier,
		broker:   broker,
		archive:  archive,
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// RequestRide creates the ride and announces it to every connected driver.
func (c *Coordinator) RequestRide(ctx context.Context, passengerID uuid.UUID, origin, destination models.Location) (models.Ride, error) {
	ctx = wrap.WithAction(ctx, "request_ride")

	ride, err := c.store.Create(passengerID, origin, destination)
	if err != nil {
		return models.Ride{}, wrap.Error(ctx, err)
	}
	ctx = wrap.WithRideID(ctx, ride.ID.String())

	metrics.RecordTransition(ride.Status.String())
	c.outbox.Enqueue(ride, types.EventRideRequested)
	c.publishRequested(ctx, ride)

	c.notifier.BroadcastDrivers(types.EventRideRequested, ride)

	c.log.Info(ctx, "ride requested", "passenger_id", passengerID)

	return ride, nil
}

// AcceptRide commits the accept race. Exactly one driver wins; every other
// concurrent caller observes ErrAlreadyMatched together with the current
// record.
func (c *Coordinator) AcceptRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: "accept_ride", RideID: rideID.String()})

	ride, err := c.store.TryTransition(rideID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
		now := time.Now()
		r.DriverID = &driverID
		r.AcceptedAt = &now
	})
	if err != nil {
		metrics.RecordRejection("accept", reasonOf(err))
		return ride, wrap.Error(ctx, err)
	}

	c.afterCommit(ctx, ride, types.EventRideAccepted)

	// Accepted goes to the passenger and, as confirmation, to the winner.
	// Never broadcast: losing drivers get their rejection as a direct reply.
	c.notifier.Deliver(ride.PassengerID, types.EventRideAccepted, ride)
	c.notifier.Deliver(driverID, types.EventRideAccepted, ride)

	c.log.Info(ctx, "ride accepted", "driver_id", driverID)

	return ride, nil
}

// StartRide transitions ACCEPTED → STARTED. Only the bound driver may start.
func (c *Coordinator) StartRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: "start_ride", RideID: rideID.String()})

	if err := c.requireBoundDriver(rideID, driverID); err != nil {
		metrics.RecordRejection("start", reasonOf(err))
		return models.Ride{}, wrap.Error(ctx, err)
	}

	ride, err := c.store.TryTransition(rideID, types.StatusAccepted, types.StatusStarted, func(r *models.Ride) {
		now := time.Now()
		r.StartedAt = &now
	})
	if err != nil {
		metrics.RecordRejection("start", reasonOf(err))
		return ride, wrap.Error(ctx, err)
	}

	c.afterCommit(ctx, ride, types.EventRideStarted)
	c.notifier.Deliver(ride.PassengerID, types.EventRideStarted, ride)

	c.log.Info(ctx, "ride started", "driver_id", driverID)

	return ride, nil
}

// EndRide transitions STARTED → ENDED and schedules eviction after the
// retention window.
func (c *Coordinator) EndRide(ctx context.Context, rideID, driverID uuid.UUID) (models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: "end_ride", RideID: rideID.String()})

	if err := c.requireBoundDriver(rideID, driverID); err != nil {
		metrics.RecordRejection("end", reasonOf(err))
		return models.Ride{}, wrap.Error(ctx, err)
	}

	ride, err := c.store.TryTransition(rideID, types.StatusStarted, types.StatusEnded, func(r *models.Ride) {
		now := time.Now()
		r.EndedAt = &now
	})
	if err != nil {
		metrics.RecordRejection("end", reasonOf(err))
		return ride, wrap.Error(ctx, err)
	}

	c.afterCommit(ctx, ride, types.EventRideEnded)
	c.notifier.Deliver(ride.PassengerID, types.EventRideEnded, ride)
	c.scheduleEviction(ride.ID)

	c.log.Info(ctx, "ride ended", "driver_id", driverID)

	return ride, nil
}

// CancelRide is permitted from REQUESTED or ACCEPTED by either bound party.
// A cancel racing an accept is resolved by the same compare-and-commit:
// whichever reaches the store first wins, the loser gets a rejection.
func (c *Coordinator) CancelRide(ctx context.Context, rideID, requesterID uuid.UUID, reason string) (models.Ride, error) {
	ctx = wrap.WithLogCtx(ctx, wrap.LogCtx{Action: "cancel_ride", RideID: rideID.String()})

	observed, err := c.store.Get(rideID)
	if err != nil {
		metrics.RecordRejection("cancel", reasonOf(err))
		return models.Ride{}, wrap.Error(ctx, err)
	}

	if !observed.BoundTo(requesterID) {
		metrics.RecordRejection("cancel", reasonOf(types.ErrNotAuthorizedForRide))
		return observed, wrap.Error(ctx, types.ErrNotAuthorizedForRide)
	}
	if observed.Status != types.StatusRequested && observed.Status != types.StatusAccepted {
		metrics.RecordRejection("cancel", reasonOf(types.ErrRideCannotBeCancelled))
		return observed, wrap.Error(ctx, types.ErrRideCannotBeCancelled)
	}

	ride, err := c.store.TryTransition(rideID, observed.Status, types.StatusCancelled, func(r *models.Ride) {
		now := time.Now()
		r.CancelledAt = &now
		r.CancellationReason = &reason
	})
	if err != nil {
		metrics.RecordRejection("cancel", reasonOf(err))
		return ride, wrap.Error(ctx, err)
	}

	c.afterCommit(ctx, ride, types.EventRideCancelled)
	c.notifyOtherParty(ride, requesterID, types.EventRideCancelled)
	c.scheduleEviction(ride.ID)

	c.log.Info(ctx, "ride cancelled", "requester_id", requesterID, "reason", reason)

	return ride, nil
}

// Resync returns the current snapshot, the recovery path for clients that
// missed push notifications while disconnected. Rides evicted after the
// retention window are served from the durable archive.
func (c *Coordinator) Resync(ctx context.Context, rideID uuid.UUID) (models.Ride, error) {
	ride, err := c.store.Get(rideID)
	if err == nil {
		return ride, nil
	}

	if c.archive != nil && errors.Is(err, types.ErrRideNotFound) {
		archived, archiveErr := c.archive.Get(ctx, rideID)
		if archiveErr == nil {
			return *archived, nil
		}
	}

	return models.Ride{}, wrap.Error(wrap.WithRideID(ctx, rideID.String()), err)
}

// Start launches the request timeout sweep.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.sweepLoop(ctx)
}

// Stop stops background work. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *Coordinator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired(ctx)
		}
	}
}

// sweepExpired auto-cancels REQUESTED rides older than the accept window.
func (c *Coordinator) sweepExpired(ctx context.Context) {
	ctx = wrap.WithAction(ctx, types.ActionRequestSweepExpired)

	cutoff := time.Now().Add(-c.cfg.AcceptWindow)
	for _, rideID := range c.store.RequestedBefore(cutoff) {
		reason := autoCancelReason
		ride, err := c.store.TryTransition(rideID, types.StatusRequested, types.StatusCancelled, func(r *models.Ride) {
			now := time.Now()
			r.CancelledAt = &now
			r.CancellationReason = &reason
		})
		if err != nil {
			// Lost to a concurrent accept or cancel, nothing to do.
			continue
		}

		c.afterCommit(ctx, ride, types.EventRideCancelled)
		c.notifier.Deliver(ride.PassengerID, types.EventRideCancelled, ride)
		c.scheduleEviction(ride.ID)

		c.log.Info(wrap.WithRideID(ctx, ride.ID.String()), "unaccepted ride expired")
	}
}

// afterCommit runs on an already-committed snapshot, outside any store
// lock: durability first, broker second, both decoupled from the caller.
func (c *Coordinator) afterCommit(ctx context.Context, ride models.Ride, event types.RideEvent) {
	metrics.RecordTransition(ride.Status.String())
	c.outbox.Enqueue(ride, event)
	c.publishStatus(ctx, ride)
}

func (c *Coordinator) publishRequested(ctx context.Context, ride models.Ride) {
	if c.broker == nil {
		return
	}

	msg := models.RideRequestedMessage{
		RideID:              ride.ID,
		PassengerID:         ride.PassengerID,
		PickupLocation:      ride.Origin,
		DestinationLocation: ride.Destination,
		RequestedAt:         ride.CreatedAt,
		CorrelationID:       ride.ID.String(),
	}

	go func() {
		if err := c.broker.PublishRideRequested(context.WithoutCancel(ctx), msg); err != nil {
			c.log.Error(ctx, "failed to publish ride requested event", err)
		}
	}()
}

func (c *Coordinator) publishStatus(ctx context.Context, ride models.Ride) {
	if c.broker == nil {
		return
	}

	msg := models.RideStatusUpdateMessage{
		RideID:        ride.ID,
		Status:        ride.Status.String(),
		Version:       ride.Version,
		Timestamp:     time.Now(),
		DriverID:      ride.DriverID,
		CorrelationID: ride.ID.String(),
	}

	go func() {
		if err := c.broker.PublishRideStatus(context.WithoutCancel(ctx), msg); err != nil {
			c.log.Error(ctx, "failed to publish ride status event", err)
		}
	}()
}

func (c *Coordinator) notifyOtherParty(ride models.Ride, requesterID uuid.UUID, event types.RideEvent) {
	if ride.PassengerID != requesterID {
		c.notifier.Deliver(ride.PassengerID, event, ride)
	}
	if ride.DriverID != nil && *ride.DriverID != requesterID {
		c.notifier.Deliver(*ride.DriverID, event, ride)
	}
}

func (c *Coordinator) requireBoundDriver(rideID, driverID uuid.UUID) error {
	ride, err := c.store.Get(rideID)
	if err != nil {
		return err
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		return types.ErrNotAuthorizedForRide
	}
	return nil
}

func (c *Coordinator) scheduleEviction(rideID uuid.UUID) {
	time.AfterFunc(c.cfg.RetentionWindow, func() {
		c.store.Evict(rideID)
	})
}

// reasonOf maps a rejection to its wire/metric label.
func reasonOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrAlreadyMatched):
		return "AlreadyMatched"
	case errors.Is(err, types.ErrStaleState):
		return "StaleState"
	case errors.Is(err, types.ErrNotAuthorizedForRide):
		return "NotAuthorizedForRide"
	case errors.Is(err, types.ErrRideCannotBeCancelled):
		return "CannotCancel"
	case errors.Is(err, types.ErrRideNotFound):
		return "NotFound"
	default:
		return "Internal"
	}
}

// ReasonOf exposes the rejection label for transport adapters.
func ReasonOf(err error) string {
	return reasonOf(err)
}
