package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("generate uuid: %v", err)
	}
	return id
}

func mustCreate(t *testing.T, s *Store) models.Ride {
	t.Helper()
	ride, err := s.Create(mustUUID(t), models.Location{Latitude: 51.1, Longitude: 71.4}, models.Location{Latitude: 51.2, Longitude: 71.5})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func TestStore_CreateStartsAtVersionOne(t *testing.T) {
	s := NewStore()

	ride := mustCreate(t, s)

	if ride.Status != types.StatusRequested {
		t.Fatalf("new ride status = %s, want %s", ride.Status, types.StatusRequested)
	}
	if ride.Version != 1 {
		t.Fatalf("new ride version = %d, want 1", ride.Version)
	}
	if ride.ID.IsNil() {
		t.Fatal("new ride has nil id")
	}
}

func TestStore_GetUnknownRide(t *testing.T) {
	s := NewStore()

	if _, err := s.Get(mustUUID(t)); !errors.Is(err, types.ErrRideNotFound) {
		t.Fatalf("got %v, want ErrRideNotFound", err)
	}
}

func TestStore_TransitionIncrementsVersionByOne(t *testing.T) {
	s := NewStore()
	ride := mustCreate(t, s)
	driverID := mustUUID(t)

	got, err := s.TryTransition(ride.ID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
		r.DriverID = &driverID
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	if got.Version != ride.Version+1 {
		t.Fatalf("version = %d, want %d", got.Version, ride.Version+1)
	}
	if got.Status != types.StatusAccepted {
		t.Fatalf("status = %s, want %s", got.Status, types.StatusAccepted)
	}
	if got.DriverID == nil || *got.DriverID != driverID {
		t.Fatal("mutate was not applied before commit")
	}
}

func TestStore_TransitionRejectsWrongState(t *testing.T) {
	s := NewStore()
	ride := mustCreate(t, s)

	// STARTED requires ACCEPTED first.
	current, err := s.TryTransition(ride.ID, types.StatusAccepted, types.StatusStarted, nil)
	if !errors.Is(err, types.ErrStaleState) {
		t.Fatalf("got %v, want ErrStaleState", err)
	}
	if current.Status != types.StatusRequested {
		t.Fatalf("rejection snapshot status = %s, want %s", current.Status, types.StatusRequested)
	}
	if current.Version != 1 {
		t.Fatalf("rejected attempt must not advance version, got %d", current.Version)
	}
}

func TestStore_AcceptLoserGetsAlreadyMatched(t *testing.T) {
	s := NewStore()
	ride := mustCreate(t, s)
	winner := mustUUID(t)
	loser := mustUUID(t)

	if _, err := s.TryTransition(ride.ID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
		r.DriverID = &winner
	}); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}

	current, err := s.TryTransition(ride.ID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
		r.DriverID = &loser
	})
	if !errors.Is(err, types.ErrAlreadyMatched) {
		t.Fatalf("got %v, want ErrAlreadyMatched", err)
	}
	if current.DriverID == nil || *current.DriverID != winner {
		t.Fatal("loser snapshot must show the winning driver")
	}
}

func TestStore_ConcurrentAcceptExactlyOneWinner(t *testing.T) {
	const drivers = 64

	s := NewStore()
	ride := mustCreate(t, s)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		losses  int
		winning uuid.UUID
	)

	start := make(chan struct{})
	for i := 0; i < drivers; i++ {
		driverID := mustUUID(t)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := s.TryTransition(ride.ID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
				r.DriverID = &driverID
			})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				winning = driverID
			} else if errors.Is(err, types.ErrAlreadyMatched) {
				losses++
			}
		}()
	}

	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if losses != drivers-1 {
		t.Fatalf("losers = %d, want %d", losses, drivers-1)
	}

	got, err := s.Get(ride.ID)
	if err != nil {
		t.Fatalf("get after race: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("version after race = %d, want 2", got.Version)
	}
	if got.DriverID == nil || *got.DriverID != winning {
		t.Fatal("committed driver does not match the reported winner")
	}
}

func TestStore_EvictOnlyTerminal(t *testing.T) {
	s := NewStore()
	ride := mustCreate(t, s)

	s.Evict(ride.ID)
	if _, err := s.Get(ride.ID); err != nil {
		t.Fatalf("in-flight ride must survive eviction, got %v", err)
	}

	reason := "changed plans"
	if _, err := s.TryTransition(ride.ID, types.StatusRequested, types.StatusCancelled, func(r *models.Ride) {
		r.CancellationReason = &reason
	}); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	s.Evict(ride.ID)
	if _, err := s.Get(ride.ID); !errors.Is(err, types.ErrRideNotFound) {
		t.Fatalf("terminal ride must be evicted, got %v", err)
	}
}

func TestStore_RequestedBefore(t *testing.T) {
	s := NewStore()
	old := mustCreate(t, s)
	fresh := mustCreate(t, s)
	accepted := mustCreate(t, s)

	driverID := mustUUID(t)
	if _, err := s.TryTransition(accepted.ID, types.StatusRequested, types.StatusAccepted, func(r *models.Ride) {
		r.DriverID = &driverID
	}); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// Everything was created "now", so a future cutoff catches only rides
	// still REQUESTED.
	cutoff := time.Now().Add(time.Second)
	ids := s.RequestedBefore(cutoff)

	if len(ids) != 2 {
		t.Fatalf("expired count = %d, want 2", len(ids))
	}
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[old.ID] || !seen[fresh.ID] {
		t.Fatal("expected both requested rides in the sweep set")
	}
	if seen[accepted.ID] {
		t.Fatal("accepted ride must not be swept")
	}
}
