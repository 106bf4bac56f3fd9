package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/olzhask/ride-dispatch/config"
	"github.com/olzhask/ride-dispatch/internal/adapter/http/server"
	repo "github.com/olzhask/ride-dispatch/internal/adapter/postgres"
	broker "github.com/olzhask/ride-dispatch/internal/adapter/rabbit"
	ws "github.com/olzhask/ride-dispatch/internal/adapter/ws"
	"github.com/olzhask/ride-dispatch/internal/dispatch"
	"github.com/olzhask/ride-dispatch/internal/outbox"
	"github.com/olzhask/ride-dispatch/internal/service/auth"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	"github.com/olzhask/ride-dispatch/pkg/postgres"
	"github.com/olzhask/ride-dispatch/pkg/rabbit"
	"github.com/olzhask/ride-dispatch/pkg/trm"
	wshub "github.com/olzhask/ride-dispatch/pkg/wsHub"
)

// App owns every long-lived component and their startup/shutdown order.
type App struct {
	postgresDB  *postgres.PostgreDB
	rabbitMQ    *rabbit.RabbitMQ
	hub         *wshub.ConnectionHub
	outbox      *outbox.Outbox
	coordinator *dispatch.Coordinator
	httpServer  *server.API

	cfg config.Config
	log logger.Logger
}

func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	postgresDB, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "failed to setup database", err)
		return nil, err
	}

	rabbitMQ, err := rabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "failed to setup rabbitmq", err)
		return nil, err
	}

	rideBroker, err := broker.NewRideBroker(ctx, rabbitMQ, log)
	if err != nil {
		log.Error(ctx, "failed to setup ride broker", err)
		return nil, err
	}

	txManager := trm.New(postgresDB.Pool)
	rideRepo := repo.NewRideRepo(postgresDB.Pool, txManager)

	box := outbox.New(rideRepo, outbox.Config{
		BufferSize:   cfg.Outbox.BufferSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		InitialDelay: cfg.Outbox.InitialDelay,
		MaxDelay:     cfg.Outbox.MaxDelay,
	}, log)

	hub := wshub.NewConnHub(log)
	notifier := ws.NewNotifier(hub, log)

	coordinator := dispatch.NewCoordinator(
		dispatch.NewStore(),
		box,
		notifier,
		rideBroker,
		rideRepo,
		dispatch.Config{
			AcceptWindow:    cfg.Dispatch.AcceptWindow,
			RetentionWindow: cfg.Dispatch.RetentionWindow,
			SweepInterval:   cfg.Dispatch.SweepInterval,
		},
		log,
	)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	httpServer, err := server.New(cfg, coordinator, verifier, hub, log)
	if err != nil {
		log.Error(ctx, "failed to setup http server", err)
		return nil, err
	}

	return &App{
		postgresDB:  postgresDB,
		rabbitMQ:    rabbitMQ,
		hub:         hub,
		outbox:      box,
		coordinator: coordinator,
		httpServer:  httpServer,
		cfg:         cfg,
		log:         log,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.outbox.Start(ctx)
	a.coordinator.Start(ctx)
	a.httpServer.Run(ctx, errCh)

	defer func() {
		a.close(ctx)
		a.log.Info(ctx, "dispatch service closed")
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info(ctx, "dispatch service started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

// close stops components in reverse dependency order: no new requests,
// then the state machine, then the durable sinks.
func (a *App) close(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Warn(ctx, "failed to gracefully close http server", "error", err.Error())
		}
	}

	if a.hub != nil {
		a.hub.Close()
	}

	if a.coordinator != nil {
		a.coordinator.Stop()
	}

	if a.outbox != nil {
		a.outbox.Stop()
	}

	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(ctx); err != nil {
			a.log.Warn(ctx, "failed to gracefully close rabbitmq", "error", err.Error())
		}
	}

	if a.postgresDB != nil && a.postgresDB.Pool != nil {
		a.postgresDB.Pool.Close()
	}
}
