package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/olzhask/ride-dispatch/config"
	"github.com/olzhask/ride-dispatch/internal/adapter/http/handler"
	"github.com/olzhask/ride-dispatch/internal/adapter/http/middleware"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	wshub "github.com/olzhask/ride-dispatch/pkg/wsHub"
)

const serverIPAddress = "%s:%s"

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	cfg  config.Config
	log  logger.Logger
}

type handlers struct {
	health *handler.Health
	ride   *handler.Ride
	ws     *handler.WS
}

func New(
	cfg config.Config,
	dispatcher handler.Dispatcher,
	verifier middleware.TokenVerifier,
	hub *wshub.ConnectionHub,
	log logger.Logger,
) (*API, error) {
	if verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	routes := &handlers{
		health: handler.NewHealth(),
		ride:   handler.NewRide(dispatcher, log),
		ws:     handler.NewWS(dispatcher, hub, log),
	}

	api := &API{
		mux:    http.NewServeMux(),
		routes: routes,
		m:      middleware.NewMiddleware(verifier, log),
		addr:   fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Server.Port),
		cfg:    cfg,
		log:    log,
	}

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	api.setupRoutes()

	return api, nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

// withMiddleware applies the outer middleware chain to the mux. Auth is
// applied per route so health, metrics and swagger stay anonymous.
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Metrics(a.mux))))
}
