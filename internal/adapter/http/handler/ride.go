package handler

import (
	"net/http"

	"github.com/olzhask/ride-dispatch/internal/adapter/http/handler/dto"
	"github.com/olzhask/ride-dispatch/internal/adapter/http/middleware"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/uuid"
)

// Ride serves the REST surface: requesting, cancelling and resyncing a
// ride. The websocket surface in ws.go drives the same dispatcher.
type Ride struct {
	dispatcher Dispatcher
	l          logger.Logger
}

func NewRide(dispatcher Dispatcher, l logger.Logger) *Ride {
	return &Ride{
		dispatcher: dispatcher,
		l:          l,
	}
}

// CreateRide handles POST /rides.
func (h *Ride) CreateRide(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok || identity.Role != types.Passenger {
		errorResponse(w, http.StatusForbidden, "only passengers may request rides")
		return
	}

	var req dto.CreateRideRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	ride, err := h.dispatcher.RequestRide(r.Context(), identity.ParticipantID, req.Origin, req.Destination)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(r.Context(), err), "failed to create ride", err)
		internalErrorResponse(w, "could not create ride")
		return
	}

	writeJSON(w, http.StatusCreated, envelope{"ride": ride}, nil)
}

// CancelRide handles POST /rides/{ride_id}/cancel.
func (h *Ride) CancelRide(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "missing identity")
		return
	}

	rideID, err := uuid.Parse(r.PathValue("ride_id"))
	if err != nil {
		badRequestResponse(w, "invalid ride_id")
		return
	}

	var req dto.CancelRideRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	ride, err := h.dispatcher.CancelRide(r.Context(), rideID, identity.ParticipantID, req.Reason)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{"ride": ride}, nil)
}

// GetRide handles GET /rides/{ride_id}, the resync query: a reconnecting
// client reads current state instead of relying on missed pushes.
func (h *Ride) GetRide(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		errorResponse(w, http.StatusUnauthorized, "missing identity")
		return
	}

	rideID, err := uuid.Parse(r.PathValue("ride_id"))
	if err != nil {
		badRequestResponse(w, "invalid ride_id")
		return
	}

	ride, err := h.dispatcher.Resync(r.Context(), rideID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if !ride.BoundTo(identity.ParticipantID) && identity.Role != types.Driver {
		errorResponse(w, http.StatusForbidden, "not a party to this ride")
		return
	}

	writeJSON(w, http.StatusOK, envelope{"ride": ride}, nil)
}
