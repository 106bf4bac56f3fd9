package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/metrics"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Store is the in-memory authoritative table of ride records. Every
// lifecycle mutation goes through TryTransition, which serializes per ride:
// operations on different rides never block each other.
type Store struct {
	mu    sync.RWMutex // guards the map, not the rides
	rides map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	ride models.Ride
}

func NewStore() *Store {
	return &Store{
		rides: make(map[uuid.UUID]*entry),
	}
}

// Create allocates a fresh ride in REQUESTED state at version 1.
func (s *Store) Create(passengerID uuid.UUID, origin, destination models.Location) (models.Ride, error) {
	id, err := uuid.New()
	if err != nil {
		return models.Ride{}, fmt.Errorf("store: generate ride id: %w", err)
	}

	ride := models.Ride{
		ID:          id,
		Status:      types.StatusRequested,
		PassengerID: passengerID,
		Origin:      origin,
		Destination: destination,
		Version:     1,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.rides[id] = &entry{ride: ride}
	s.mu.Unlock()

	metrics.ActiveRidesGauge.Inc()

	return ride, nil
}

// Get returns a snapshot of the ride.
func (s *Store) Get(rideID uuid.UUID) (models.Ride, error) {
	e, err := s.lookup(rideID)
	if err != nil {
		return models.Ride{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ride, nil
}

// TryTransition atomically checks that the ride is in the expected state,
// applies mutate, advances the version and returns the committed snapshot.
// On a state mismatch it returns the current snapshot together with
// ErrAlreadyMatched (accept lost the race) or ErrStaleState, so the caller
// can tell a losing driver what actually happened. This compare-and-commit
// is the single serialization point for all lifecycle changes.
func (s *Store) TryTransition(rideID uuid.UUID, expected, next types.RideStatus, mutate func(*models.Ride)) (models.Ride, error) {
	e, err := s.lookup(rideID)
	if err != nil {
		return models.Ride{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ride.Status != expected {
		current := e.ride
		if next == types.StatusAccepted {
			return current, types.ErrAlreadyMatched
		}
		return current, types.ErrStaleState
	}

	if mutate != nil {
		mutate(&e.ride)
	}
	e.ride.Status = next
	e.ride.Version++

	return e.ride, nil
}

// Evict removes a terminal ride from the store. Rides still in flight are
// kept, whatever the caller asked.
func (s *Store) Evict(rideID uuid.UUID) {
	e, err := s.lookup(rideID)
	if err != nil {
		return
	}

	e.mu.Lock()
	terminal := e.ride.Status.IsTerminal()
	e.mu.Unlock()
	if !terminal {
		return
	}

	s.mu.Lock()
	if _, ok := s.rides[rideID]; ok {
		delete(s.rides, rideID)
		metrics.ActiveRidesGauge.Dec()
	}
	s.mu.Unlock()
}

// RequestedBefore returns the IDs of rides still REQUESTED and created
// before the cutoff. Used by the timeout sweep.
func (s *Store) RequestedBefore(cutoff time.Time) []uuid.UUID {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.rides))
	for _, e := range s.rides {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []uuid.UUID
	for _, e := range entries {
		e.mu.Lock()
		if e.ride.Status == types.StatusRequested && e.ride.CreatedAt.Before(cutoff) {
			out = append(out, e.ride.ID)
		}
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of rides currently held, for diagnostics.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rides)
}

func (s *Store) lookup(rideID uuid.UUID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rides[rideID]
	if !ok {
		return nil, types.ErrRideNotFound
	}
	return e, nil
}
