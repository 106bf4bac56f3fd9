package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/olzhask/ride-dispatch/internal/adapter/http/handler/dto"
	"github.com/olzhask/ride-dispatch/internal/adapter/http/middleware"
	"github.com/olzhask/ride-dispatch/internal/dispatch"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/internal/service/auth"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	wshub "github.com/olzhask/ride-dispatch/pkg/wsHub"
)

// Direct reply names sent only to the socket that issued the command.
// Lifecycle pushes go through the notifier instead.
const (
	MsgRideUnavailable = "rideUnavailable"
	MsgRideError       = "rideError"
	MsgRideState       = "rideState"
)

// WS upgrades client connections, registers them with the connection
// hub and pumps inbound events into the dispatcher. One goroutine per
// socket, the read loop owning the connection lifetime.
type WS struct {
	dispatcher Dispatcher
	hub        *wshub.ConnectionHub
	upgrader   websocket.Upgrader
	l          logger.Logger
}

func NewWS(dispatcher Dispatcher, hub *wshub.ConnectionHub, l logger.Logger) *WS {
	return &WS{
		dispatcher: dispatcher,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		l: l,
	}
}

// DriverSocket handles GET /ws/drivers.
func (h *WS) DriverSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, types.Driver)
}

// PassengerSocket handles GET /ws/passengers.
func (h *WS) PassengerSocket(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, types.Passenger)
}

func (h *WS) serve(w http.ResponseWriter, r *http.Request, role types.EntityType) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "missing identity")
		return
	}
	if identity.Role != role {
		errorResponse(w, http.StatusForbidden, "wrong role for this endpoint")
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(r.Context(), err), "websocket upgrade failed", err)
		return
	}

	conn := wshub.NewConn(raw)
	if err := h.hub.Register(identity.ParticipantID, identity.Role, conn); err != nil {
		h.l.Error(wrap.ErrorCtx(r.Context(), err), "failed to register session", err)
		conn.Close()
		return
	}

	h.l.Info(r.Context(), "session connected")

	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
		h.l.Info(r.Context(), "session disconnected")
	}()

	h.readLoop(r.Context(), conn, identity)
}

func (h *WS) readLoop(ctx context.Context, conn *wshub.Conn, identity *auth.Identity) {
	for {
		var event dto.InboundEvent
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Warn(wrap.ErrorCtx(ctx, err), "websocket read failed", "error", err)
			}
			return
		}

		if err := event.Validate(); err != nil {
			h.reply(conn, map[string]any{"type": MsgRideError, "reason": err.Error()})
			continue
		}

		h.handleEvent(ctx, conn, identity, event)
	}
}

// handleEvent routes one inbound event. Lifecycle notifications for a
// successful transition are pushed by the coordinator through the hub,
// so success here needs no direct reply except for resync.
func (h *WS) handleEvent(ctx context.Context, conn *wshub.Conn, identity *auth.Identity, event dto.InboundEvent) {
	ctx = wrap.WithAction(ctx, event.Type)
	if !event.RideID.IsNil() {
		ctx = wrap.WithRideID(ctx, event.RideID.String())
	}

	switch event.Type {
	case dto.EventRequestRide:
		if identity.Role != types.Passenger {
			h.reply(conn, map[string]any{"type": MsgRideError, "reason": "only passengers may request rides"})
			return
		}
		if _, err := h.dispatcher.RequestRide(ctx, identity.ParticipantID, *event.Origin, *event.Destination); err != nil {
			h.l.Error(wrap.ErrorCtx(ctx, err), "failed to request ride", err)
			h.reply(conn, map[string]any{"type": MsgRideError, "reason": dispatch.ReasonOf(err)})
		}

	case dto.EventAcceptRide:
		if identity.Role != types.Driver {
			h.reply(conn, map[string]any{"type": MsgRideError, "reason": "only drivers may accept rides"})
			return
		}
		if _, err := h.dispatcher.AcceptRide(ctx, event.RideID, identity.ParticipantID); err != nil {
			h.replyUnavailable(ctx, conn, event, err)
		}

	case dto.EventStartRide:
		if _, err := h.dispatcher.StartRide(ctx, event.RideID, identity.ParticipantID); err != nil {
			h.replyError(ctx, conn, err)
		}

	case dto.EventEndRide:
		if _, err := h.dispatcher.EndRide(ctx, event.RideID, identity.ParticipantID); err != nil {
			h.replyError(ctx, conn, err)
		}

	case dto.EventCancelRide:
		if _, err := h.dispatcher.CancelRide(ctx, event.RideID, identity.ParticipantID, event.Reason); err != nil {
			h.replyError(ctx, conn, err)
		}

	case dto.EventResync:
		ride, err := h.dispatcher.Resync(ctx, event.RideID)
		if err != nil {
			h.replyError(ctx, conn, err)
			return
		}
		h.reply(conn, map[string]any{"type": MsgRideState, "ride": ride})
	}
}

// replyUnavailable answers a lost accept race. The losing driver gets
// the reason plus the ride id so the client can drop it from its offer
// list.
func (h *WS) replyUnavailable(ctx context.Context, conn *wshub.Conn, event dto.InboundEvent, err error) {
	if !errors.Is(err, types.ErrAlreadyMatched) && !errors.Is(err, types.ErrStaleState) && !errors.Is(err, types.ErrRideNotFound) {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to accept ride", err)
	}
	h.reply(conn, map[string]any{
		"type":    MsgRideUnavailable,
		"ride_id": event.RideID,
		"reason":  dispatch.ReasonOf(err),
	})
}

func (h *WS) replyError(ctx context.Context, conn *wshub.Conn, err error) {
	if GetCode(err) == http.StatusInternalServerError {
		h.l.Error(wrap.ErrorCtx(ctx, err), "dispatch operation failed", err)
	}
	h.reply(conn, map[string]any{"type": MsgRideError, "reason": dispatch.ReasonOf(err)})
}

func (h *WS) reply(conn *wshub.Conn, msg any) {
	if err := conn.Send(msg); err != nil {
		h.l.Debug(context.Background(), "direct reply skipped", "error", err)
	}
}
