package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes wires every endpoint the dispatcher exposes.
func (a *API) setupRoutes() {
	// System health
	a.mux.HandleFunc("/health", a.routes.health.HealthCheck)

	// Prometheus metrics
	a.mux.Handle("/metrics", promhttp.Handler())

	// Swagger UI
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName("dispatch")))

	// REST surface
	a.mux.Handle("POST /rides", a.authed(a.routes.ride.CreateRide))                  // Request a new ride
	a.mux.Handle("POST /rides/{ride_id}/cancel", a.authed(a.routes.ride.CancelRide)) // Cancel a ride
	a.mux.Handle("GET /rides/{ride_id}", a.authed(a.routes.ride.GetRide))            // Resync current ride state

	// WebSocket surface, token is carried in the query string
	a.mux.Handle("GET /ws/passengers", a.authed(a.routes.ws.PassengerSocket))
	a.mux.Handle("GET /ws/drivers", a.authed(a.routes.ws.DriverSocket))
}

func (a *API) authed(h http.HandlerFunc) http.Handler {
	return a.m.Auth(h)
}
