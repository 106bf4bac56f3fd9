package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

type fakeOutbox struct {
	mu      sync.Mutex
	entries []outboxEntry
}

type outboxEntry struct {
	ride  models.Ride
	event types.RideEvent
}

func (f *fakeOutbox) Enqueue(ride models.Ride, event types.RideEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, outboxEntry{ride: ride, event: event})
}

func (f *fakeOutbox) all() []outboxEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]outboxEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

type delivery struct {
	participantID uuid.UUID
	event         types.RideEvent
	ride          models.Ride
}

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	broadcasts []types.RideEvent
}

func (f *fakeNotifier) Deliver(participantID uuid.UUID, event types.RideEvent, ride models.Ride) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{participantID: participantID, event: event, ride: ride})
}

func (f *fakeNotifier) BroadcastDrivers(event types.RideEvent, ride models.Ride) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, event)
}

func (f *fakeNotifier) eventsFor(participantID uuid.UUID) []types.RideEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.RideEvent
	for _, d := range f.deliveries {
		if d.participantID == participantID {
			out = append(out, d.event)
		}
	}
	return out
}

func newTestCoordinator(t *testing.T, cfg Config) (*Coordinator, *fakeOutbox, *fakeNotifier) {
	t.Helper()
	box := &fakeOutbox{}
	notifier := &fakeNotifier{}
	log := logger.InitLogger("test", logger.LevelError)
	c := NewCoordinator(NewStore(), box, notifier, nil, nil, cfg, log)
	return c, box, notifier
}

type fakeArchive struct {
	rides map[uuid.UUID]models.Ride
}

func (f *fakeArchive) Get(ctx context.Context, rideID uuid.UUID) (*models.Ride, error) {
	ride, ok := f.rides[rideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	return &ride, nil
}

func testLocations() (models.Location, models.Location) {
	return models.Location{Latitude: 51.09, Longitude: 71.41, Address: "Mangilik El 55"},
		models.Location{Latitude: 51.13, Longitude: 71.43, Address: "Turan 37"}
}

func TestCoordinator_FullLifecycle(t *testing.T) {
	c, box, notifier := newTestCoordinator(t, Config{})
	ctx := context.Background()

	passengerID := mustUUID(t)
	driverID := mustUUID(t)
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, passengerID, origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if ride.Status != types.StatusRequested || ride.Version != 1 {
		t.Fatalf("after request: status=%s version=%d", ride.Status, ride.Version)
	}

	ride, err = c.AcceptRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if ride.Status != types.StatusAccepted || ride.Version != 2 {
		t.Fatalf("after accept: status=%s version=%d", ride.Status, ride.Version)
	}
	if ride.DriverID == nil || *ride.DriverID != driverID {
		t.Fatal("accept did not bind the driver")
	}
	if ride.AcceptedAt == nil {
		t.Fatal("accept did not stamp AcceptedAt")
	}

	ride, err = c.StartRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if ride.Status != types.StatusStarted || ride.Version != 3 {
		t.Fatalf("after start: status=%s version=%d", ride.Status, ride.Version)
	}

	ride, err = c.EndRide(ctx, ride.ID, driverID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ride.Status != types.StatusEnded || ride.Version != 4 {
		t.Fatalf("after end: status=%s version=%d", ride.Status, ride.Version)
	}
	if ride.EndedAt == nil {
		t.Fatal("end did not stamp EndedAt")
	}

	// A terminal ride rejects every further lifecycle command.
	if _, err := c.AcceptRide(ctx, ride.ID, mustUUID(t)); !errors.Is(err, types.ErrAlreadyMatched) {
		t.Fatalf("accept after end: got %v, want ErrAlreadyMatched", err)
	}
	if _, err := c.StartRide(ctx, ride.ID, driverID); !errors.Is(err, types.ErrStaleState) {
		t.Fatalf("start after end: got %v, want ErrStaleState", err)
	}
	if _, err := c.EndRide(ctx, ride.ID, driverID); !errors.Is(err, types.ErrStaleState) {
		t.Fatalf("end after end: got %v, want ErrStaleState", err)
	}

	// The passenger observes the lifecycle strictly in commit order.
	got := notifier.eventsFor(passengerID)
	want := []types.RideEvent{types.EventRideAccepted, types.EventRideStarted, types.EventRideEnded}
	if len(got) != len(want) {
		t.Fatalf("passenger deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("passenger delivery[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	// New requests are broadcast to drivers, never delivered point to point.
	notifier.mu.Lock()
	broadcasts := len(notifier.broadcasts)
	notifier.mu.Unlock()
	if broadcasts != 1 {
		t.Fatalf("driver broadcasts = %d, want 1", broadcasts)
	}

	// Every committed transition reached the outbox with its version.
	entries := box.all()
	if len(entries) != 4 {
		t.Fatalf("outbox entries = %d, want 4", len(entries))
	}
	for i, e := range entries {
		if e.ride.Version != int64(i+1) {
			t.Fatalf("outbox entry %d has version %d, want %d", i, e.ride.Version, i+1)
		}
	}
}

func TestCoordinator_AcceptRaceSingleWinner(t *testing.T) {
	const drivers = 32

	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, mustUUID(t), origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losers []models.Ride
	)

	start := make(chan struct{})
	for i := 0; i < drivers; i++ {
		driverID := mustUUID(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			got, err := c.AcceptRide(ctx, ride.ID, driverID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, types.ErrAlreadyMatched):
				losers = append(losers, got)
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if len(losers) != drivers-1 {
		t.Fatalf("losers = %d, want %d", len(losers), drivers-1)
	}
	// A losing driver still learns who holds the ride now.
	for _, snapshot := range losers {
		if snapshot.Status != types.StatusAccepted {
			t.Fatalf("loser snapshot status = %s, want %s", snapshot.Status, types.StatusAccepted)
		}
		if snapshot.DriverID == nil {
			t.Fatal("loser snapshot is missing the winning driver")
		}
	}
}

func TestCoordinator_StartRequiresBoundDriver(t *testing.T) {
	c, box, notifier := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, mustUUID(t), origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	driverID := mustUUID(t)
	if _, err := c.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	before := len(box.all())

	if _, err := c.StartRide(ctx, ride.ID, mustUUID(t)); !errors.Is(err, types.ErrNotAuthorizedForRide) {
		t.Fatalf("got %v, want ErrNotAuthorizedForRide", err)
	}

	// A rejected start commits nothing and notifies nobody new.
	if got := len(box.all()); got != before {
		t.Fatalf("outbox grew on rejection: %d -> %d", before, got)
	}
	if got := notifier.eventsFor(ride.PassengerID); len(got) != 1 {
		t.Fatalf("passenger deliveries = %v, want only the accept", got)
	}
}

func TestCoordinator_EndRequiresStarted(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, mustUUID(t), origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	driverID := mustUUID(t)
	if _, err := c.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := c.EndRide(ctx, ride.ID, driverID); !errors.Is(err, types.ErrStaleState) {
		t.Fatalf("got %v, want ErrStaleState", err)
	}
}

func TestCoordinator_CancelByPassenger(t *testing.T) {
	c, _, notifier := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	passengerID := mustUUID(t)
	ride, err := c.RequestRide(ctx, passengerID, origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	driverID := mustUUID(t)
	if _, err := c.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	got, err := c.CancelRide(ctx, ride.ID, passengerID, "waited too long")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != types.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, types.StatusCancelled)
	}
	if got.CancellationReason == nil || *got.CancellationReason != "waited too long" {
		t.Fatal("cancellation reason was not recorded")
	}

	// The bound driver hears about the cancel, the requester does not get
	// an echo.
	driverEvents := notifier.eventsFor(driverID)
	if len(driverEvents) == 0 || driverEvents[len(driverEvents)-1] != types.EventRideCancelled {
		t.Fatalf("driver deliveries = %v, want trailing cancel", driverEvents)
	}
	passengerEvents := notifier.eventsFor(passengerID)
	for _, e := range passengerEvents {
		if e == types.EventRideCancelled {
			t.Fatal("requester must not be notified of their own cancel")
		}
	}
}

func TestCoordinator_CancelRejectedAfterStart(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	passengerID := mustUUID(t)
	ride, err := c.RequestRide(ctx, passengerID, origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	driverID := mustUUID(t)
	if _, err := c.AcceptRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := c.StartRide(ctx, ride.ID, driverID); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := c.CancelRide(ctx, ride.ID, passengerID, "too late"); !errors.Is(err, types.ErrRideCannotBeCancelled) {
		t.Fatalf("got %v, want ErrRideCannotBeCancelled", err)
	}
}

func TestCoordinator_CancelByStranger(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})
	ctx := context.Background()
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, mustUUID(t), origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := c.CancelRide(ctx, ride.ID, mustUUID(t), "not mine"); !errors.Is(err, types.ErrNotAuthorizedForRide) {
		t.Fatalf("got %v, want ErrNotAuthorizedForRide", err)
	}
}

func TestCoordinator_SweepCancelsExpiredRequests(t *testing.T) {
	c, box, notifier := newTestCoordinator(t, Config{AcceptWindow: time.Millisecond})
	ctx := context.Background()
	origin, destination := testLocations()

	passengerID := mustUUID(t)
	ride, err := c.RequestRide(ctx, passengerID, origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	c.sweepExpired(ctx)

	got, err := c.Resync(ctx, ride.ID)
	if err != nil {
		t.Fatalf("resync after sweep: %v", err)
	}
	if got.Status != types.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, types.StatusCancelled)
	}
	if got.CancellationReason == nil || *got.CancellationReason != autoCancelReason {
		t.Fatal("auto cancel reason was not recorded")
	}

	events := notifier.eventsFor(passengerID)
	if len(events) != 1 || events[0] != types.EventRideCancelled {
		t.Fatalf("passenger deliveries = %v, want single cancel", events)
	}

	entries := box.all()
	if len(entries) != 2 || entries[1].event != types.EventRideCancelled {
		t.Fatalf("outbox entries = %d, want request then cancel", len(entries))
	}
}

func TestCoordinator_SweepSkipsAcceptedRides(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{AcceptWindow: time.Millisecond})
	ctx := context.Background()
	origin, destination := testLocations()

	ride, err := c.RequestRide(ctx, mustUUID(t), origin, destination)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := c.AcceptRide(ctx, ride.ID, mustUUID(t)); err != nil {
		t.Fatalf("accept: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	c.sweepExpired(ctx)

	got, err := c.Resync(ctx, ride.ID)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got.Status != types.StatusAccepted {
		t.Fatalf("accepted ride was swept: status = %s", got.Status)
	}
}

func TestCoordinator_ResyncUnknownRide(t *testing.T) {
	c, _, _ := newTestCoordinator(t, Config{})

	if _, err := c.Resync(context.Background(), mustUUID(t)); !errors.Is(err, types.ErrRideNotFound) {
		t.Fatalf("got %v, want ErrRideNotFound", err)
	}
}

func TestCoordinator_ResyncFallsBackToArchive(t *testing.T) {
	archive := &fakeArchive{rides: map[uuid.UUID]models.Ride{}}
	log := logger.InitLogger("test", logger.LevelError)
	c := NewCoordinator(NewStore(), &fakeOutbox{}, &fakeNotifier{}, nil, archive, Config{}, log)

	evicted := models.Ride{ID: mustUUID(t), Status: types.StatusEnded, Version: 4}
	archive.rides[evicted.ID] = evicted

	got, err := c.Resync(context.Background(), evicted.ID)
	if err != nil {
		t.Fatalf("resync from archive: %v", err)
	}
	if got.Status != types.StatusEnded || got.Version != 4 {
		t.Fatalf("archived snapshot = status %s version %d", got.Status, got.Version)
	}

	if _, err := c.Resync(context.Background(), mustUUID(t)); !errors.Is(err, types.ErrRideNotFound) {
		t.Fatalf("got %v, want ErrRideNotFound for ride missing everywhere", err)
	}
}

func TestReasonOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{types.ErrAlreadyMatched, "AlreadyMatched"},
		{types.ErrStaleState, "StaleState"},
		{types.ErrNotAuthorizedForRide, "NotAuthorizedForRide"},
		{types.ErrRideCannotBeCancelled, "CannotCancel"},
		{types.ErrRideNotFound, "NotFound"},
		{errors.New("boom"), "Internal"},
		{nil, ""},
	}

	for _, tc := range cases {
		if got := ReasonOf(tc.err); got != tc.want {
			t.Fatalf("ReasonOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
