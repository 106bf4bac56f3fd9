package outbox

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

type snapshotKey struct {
	rideID  uuid.UUID
	version int64
}

// fakeRepo mimics the idempotent upsert: a (ride_id, version) pair is
// stored once no matter how often it is replayed. failures counts down
// transient errors before writes start succeeding.
type fakeRepo struct {
	mu       sync.Mutex
	failures int
	saved    map[snapshotKey]types.RideEvent
	calls    int
}

func newFakeRepo(failures int) *fakeRepo {
	return &fakeRepo{
		failures: failures,
		saved:    make(map[snapshotKey]types.RideEvent),
	}
}

func (f *fakeRepo) SaveSnapshot(ctx context.Context, ride models.Ride, event types.RideEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}

	key := snapshotKey{rideID: ride.ID, version: ride.Version}
	if _, ok := f.saved[key]; !ok {
		f.saved[key] = event
	}
	return nil
}

func (f *fakeRepo) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeRepo) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRide(t *testing.T, version int64) models.Ride {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("generate uuid: %v", err)
	}
	return models.Ride{
		ID:        id,
		Status:    types.StatusRequested,
		Version:   version,
		CreatedAt: time.Now(),
	}
}

func testConfig() Config {
	return Config{
		BufferSize:   16,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func testLogger() logger.Logger {
	return logger.InitLogger("test", logger.LevelError)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestOutbox_PersistsEnqueuedSnapshots(t *testing.T) {
	repo := newFakeRepo(0)
	box := New(repo, testConfig(), testLogger())

	box.Start(context.Background())
	defer box.Stop()

	ride := testRide(t, 1)
	box.Enqueue(ride, types.EventRideRequested)

	waitFor(t, time.Second, func() bool { return repo.savedCount() == 1 })
}

func TestOutbox_RetriesTransientFailures(t *testing.T) {
	repo := newFakeRepo(2) // fail twice, succeed on the third attempt
	box := New(repo, testConfig(), testLogger())

	box.Start(context.Background())
	defer box.Stop()

	box.Enqueue(testRide(t, 1), types.EventRideRequested)

	waitFor(t, time.Second, func() bool { return repo.savedCount() == 1 })
	if repo.callCount() != 3 {
		t.Fatalf("repo calls = %d, want 3", repo.callCount())
	}
}

func TestOutbox_ExhaustedRetriesAreSwallowed(t *testing.T) {
	repo := newFakeRepo(100) // never recovers within MaxAttempts
	box := New(repo, testConfig(), testLogger())

	box.Start(context.Background())

	box.Enqueue(testRide(t, 1), types.EventRideRequested)

	// Exhaustion must not wedge the worker: the next snapshot still lands
	// once the repo recovers.
	waitFor(t, time.Second, func() bool { return repo.callCount() >= 3 })

	repo.mu.Lock()
	repo.failures = 0
	repo.mu.Unlock()

	box.Enqueue(testRide(t, 2), types.EventRideAccepted)
	waitFor(t, time.Second, func() bool { return repo.savedCount() == 1 })

	box.Stop()
}

func TestOutbox_ReplayIsIdempotent(t *testing.T) {
	repo := newFakeRepo(0)
	box := New(repo, testConfig(), testLogger())

	box.Start(context.Background())
	defer box.Stop()

	ride := testRide(t, 3)
	box.Enqueue(ride, types.EventRideStarted)
	box.Enqueue(ride, types.EventRideStarted) // duplicate replay

	waitFor(t, time.Second, func() bool { return repo.callCount() >= 2 })
	if repo.savedCount() != 1 {
		t.Fatalf("saved snapshots = %d, want 1 for a replayed (ride, version)", repo.savedCount())
	}
}

func TestOutbox_EnqueueNeverBlocksOnOverflow(t *testing.T) {
	repo := newFakeRepo(0)
	cfg := testConfig()
	cfg.BufferSize = 2
	box := New(repo, cfg, testLogger())
	// Worker not started: the queue fills and stays full.

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			box.Enqueue(testRide(t, int64(i+1)), types.EventRideRequested)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestOutbox_StopDrainsQueue(t *testing.T) {
	repo := newFakeRepo(0)
	box := New(repo, testConfig(), testLogger())

	for i := 0; i < 5; i++ {
		box.Enqueue(testRide(t, int64(i+1)), types.EventRideRequested)
	}

	box.Start(context.Background())
	box.Stop()

	if repo.savedCount() != 5 {
		t.Fatalf("saved after drain = %d, want 5", repo.savedCount())
	}
}
