package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/metrics"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

var (
	ErrEmptySession   = errors.New("session is empty")
	ErrNoLiveSessions = errors.New("participant has no live sessions")
)

// Session is one live connection handle owned by a participant. A
// participant may hold several at once (multiple tabs or devices).
type Session interface {
	Send(msg any) error
	Close() error
}

type binding struct {
	participantID uuid.UUID
	role          types.EntityType
}

// ConnectionHub tracks which live sessions belong to which participant
// identity. Pure bookkeeping: registration is idempotent, unregistering one
// handle leaves the participant's other handles intact.
type ConnectionHub struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]map[Session]struct{}
	owners   map[Session]binding
	l        logger.Logger
}

func NewConnHub(l logger.Logger) *ConnectionHub {
	return &ConnectionHub{
		sessions: make(map[uuid.UUID]map[Session]struct{}),
		owners:   make(map[Session]binding),
		l:        l,
	}
}

// Register binds a session to a participant identity.
func (h *ConnectionHub) Register(participantID uuid.UUID, role types.EntityType, s Session) error {
	if s == nil {
		return ErrEmptySession
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.owners[s]; ok {
		return nil // already registered
	}

	set, ok := h.sessions[participantID]
	if !ok {
		set = make(map[Session]struct{})
		h.sessions[participantID] = set
	}
	set[s] = struct{}{}
	h.owners[s] = binding{participantID: participantID, role: role}

	metrics.WebSocketConnectionsGauge.WithLabelValues(role.String()).Inc()

	return nil
}

// Unregister removes only this handle's binding.
func (h *ConnectionHub) Unregister(s Session) {
	if s == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.owners[s]
	if !ok {
		return
	}
	delete(h.owners, s)

	if set, ok := h.sessions[b.participantID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, b.participantID)
		}
	}

	metrics.WebSocketConnectionsGauge.WithLabelValues(b.role.String()).Dec()
}

// SessionsFor returns the live sessions of a participant, empty if none.
func (h *ConnectionHub) SessionsFor(participantID uuid.UUID) []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.sessions[participantID]
	out := make([]Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

// SendTo delivers a message to every live session of the participant.
// Returns ErrNoLiveSessions when the participant is not connected.
func (h *ConnectionHub) SendTo(participantID uuid.UUID, msg any) error {
	sessions := h.SessionsFor(participantID)
	if len(sessions) == 0 {
		return ErrNoLiveSessions
	}

	ctx := wrap.WithAction(context.Background(), "hub_send")
	for _, s := range sessions {
		if err := s.Send(msg); err != nil {
			h.l.Warn(ctx, "failed to send to session",
				"participant_id", participantID,
				"err", err.Error(),
			)
		}
	}
	return nil
}

// BroadcastRole delivers to every session of the given role live at call
// time. Best effort, no delivery guarantee.
func (h *ConnectionHub) BroadcastRole(role types.EntityType, msg any) {
	h.mu.RLock()
	targets := make([]Session, 0, len(h.owners))
	for s, b := range h.owners {
		if b.role == role {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	ctx := wrap.WithAction(context.Background(), "hub_broadcast")
	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			h.l.Warn(ctx, "failed to broadcast to session",
				"role", role,
				"err", err.Error(),
			)
		}
	}
}

// Size returns the number of registered sessions, for diagnostics only.
func (h *ConnectionHub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners)
}

// Close closes every registered session.
func (h *ConnectionHub) Close() {
	h.mu.Lock()
	sessions := make([]Session, 0, len(h.owners))
	for s := range h.owners {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	ctx := wrap.WithAction(context.Background(), "hub_close")
	for _, s := range sessions {
		if err := s.Close(); err != nil {
			h.l.Warn(ctx, "failed to close session", "err", err.Error())
		}
		h.Unregister(s)
	}

	h.l.Info(ctx, "all websocket sessions closed")
}
