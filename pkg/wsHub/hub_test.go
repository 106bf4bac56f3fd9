package ws

import (
	"sync"
	"testing"

	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

type fakeSession struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

func (f *fakeSession) Send(msg any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestHub() *ConnectionHub {
	return NewConnHub(logger.InitLogger("test", logger.LevelError))
}

func TestRegister_Idempotent(t *testing.T) {
	hub := newTestHub()
	id, _ := uuid.New()
	s := &fakeSession{}

	if err := hub.Register(id, types.Driver, s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := hub.Register(id, types.Driver, s); err != nil {
		t.Fatalf("second Register: %v", err)
	}

	if got := hub.Size(); got != 1 {
		t.Fatalf("Size = %d, want 1", got)
	}
}

func TestRegister_MultipleSessionsPerParticipant(t *testing.T) {
	hub := newTestHub()
	id, _ := uuid.New()
	s1, s2 := &fakeSession{}, &fakeSession{}

	hub.Register(id, types.Passenger, s1)
	hub.Register(id, types.Passenger, s2)

	if got := len(hub.SessionsFor(id)); got != 2 {
		t.Fatalf("SessionsFor = %d sessions, want 2", got)
	}

	if err := hub.SendTo(id, "hello"); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	if s1.sentCount() != 1 || s2.sentCount() != 1 {
		t.Fatalf("both sessions should receive the message")
	}
}

func TestUnregister_LeavesOtherSessions(t *testing.T) {
	hub := newTestHub()
	id, _ := uuid.New()
	s1, s2 := &fakeSession{}, &fakeSession{}

	hub.Register(id, types.Passenger, s1)
	hub.Register(id, types.Passenger, s2)
	hub.Unregister(s1)

	sessions := hub.SessionsFor(id)
	if len(sessions) != 1 {
		t.Fatalf("SessionsFor = %d sessions, want 1", len(sessions))
	}
	if sessions[0] != s2 {
		t.Fatalf("remaining session should be s2")
	}
}

func TestUnregister_UnknownSession(t *testing.T) {
	hub := newTestHub()
	hub.Unregister(&fakeSession{}) // must not panic
	if hub.Size() != 0 {
		t.Fatalf("Size should stay 0")
	}
}

func TestSendTo_NoSessions(t *testing.T) {
	hub := newTestHub()
	id, _ := uuid.New()

	if err := hub.SendTo(id, "msg"); err != ErrNoLiveSessions {
		t.Fatalf("SendTo = %v, want ErrNoLiveSessions", err)
	}
}

func TestBroadcastRole_FiltersByRole(t *testing.T) {
	hub := newTestHub()

	d1, _ := uuid.New()
	d2, _ := uuid.New()
	p1, _ := uuid.New()

	driver1, driver2, passenger := &fakeSession{}, &fakeSession{}, &fakeSession{}
	hub.Register(d1, types.Driver, driver1)
	hub.Register(d2, types.Driver, driver2)
	hub.Register(p1, types.Passenger, passenger)

	hub.BroadcastRole(types.Driver, "new ride")

	if driver1.sentCount() != 1 || driver2.sentCount() != 1 {
		t.Fatalf("all driver sessions should receive the broadcast")
	}
	if passenger.sentCount() != 0 {
		t.Fatalf("passenger session should not receive a driver broadcast")
	}
}

func TestReconnect_NewSessionReceives(t *testing.T) {
	hub := newTestHub()
	id, _ := uuid.New()

	old := &fakeSession{}
	hub.Register(id, types.Passenger, old)
	hub.Unregister(old) // disconnect

	fresh := &fakeSession{}
	hub.Register(id, types.Passenger, fresh) // reconnect

	if err := hub.SendTo(id, "ride_accepted"); err != nil {
		t.Fatalf("SendTo after reconnect: %v", err)
	}
	if fresh.sentCount() != 1 {
		t.Fatalf("fresh session should receive the message")
	}
	if old.sentCount() != 0 {
		t.Fatalf("stale session should not receive anything")
	}
}

func TestConcurrentRegistration(t *testing.T) {
	hub := newTestHub()

	var wg sync.WaitGroup
	const n = 50
	sessions := make([]*fakeSession, n)
	for i := 0; i < n; i++ {
		sessions[i] = &fakeSession{}
		wg.Add(1)
		go func(s *fakeSession) {
			defer wg.Done()
			id, _ := uuid.New()
			hub.Register(id, types.Driver, s)
		}(sessions[i])
	}
	wg.Wait()

	if hub.Size() != n {
		t.Fatalf("Size = %d, want %d", hub.Size(), n)
	}

	hub.Close()
	if hub.Size() != 0 {
		t.Fatalf("Size after Close = %d, want 0", hub.Size())
	}
	for _, s := range sessions {
		if !s.closed {
			t.Fatalf("all sessions must be closed")
		}
	}
}
