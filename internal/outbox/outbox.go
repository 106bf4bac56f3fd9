package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/internal/domain/types"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/metrics"
)

// Repo persists one committed snapshot. Implementations must be idempotent
// keyed by (ride_id, version) so retries and replays are safe.
type Repo interface {
	SaveSnapshot(ctx context.Context, ride models.Ride, event types.RideEvent) error
}

type Config struct {
	BufferSize   int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

type item struct {
	ride  models.Ride
	event types.RideEvent
}

// Outbox mirrors committed in-memory transitions to the durable store
// without ever blocking the real-time path. A single worker drains a
// buffered queue; transient write failures are retried with exponential
// backoff, permanent failures go to the log and a counter, never back to
// the caller.
type Outbox struct {
	repo Repo
	cfg  Config
	log  logger.Logger

	queue chan item

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(repo Repo, cfg Config, log logger.Logger) *Outbox {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 2.0
	}

	return &Outbox{
		repo:   repo,
		cfg:    cfg,
		log:    log,
		queue:  make(chan item, cfg.BufferSize),
		stopCh: make(chan struct{}),
	}
}

// Enqueue hands a committed snapshot to the worker. Never blocks: on
// overflow the snapshot is counted and logged, the in-memory state stays
// the accepted truth.
func (o *Outbox) Enqueue(ride models.Ride, event types.RideEvent) {
	select {
	case o.queue <- item{ride: ride, event: event}:
		metrics.OutboxDepthGauge.Inc()
	default:
		metrics.OutboxDroppedTotal.WithLabelValues("overflow").Inc()
		o.log.Warn(wrap.WithAction(context.Background(), types.ActionOutboxOverflow),
			"outbox queue full, snapshot dropped",
			"ride_id", ride.ID,
			"version", ride.Version,
		)
	}
}

// Start launches the worker goroutine.
func (o *Outbox) Start(ctx context.Context) {
	o.wg.Add(1)
	go o.worker(ctx)
}

// Stop drains what is already queued and stops the worker.
func (o *Outbox) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
	})
	o.wg.Wait()
}

func (o *Outbox) worker(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			o.drain(ctx)
			return
		case it := <-o.queue:
			metrics.OutboxDepthGauge.Dec()
			o.persist(ctx, it)
		}
	}
}

// drain flushes whatever was enqueued before Stop, one attempt each.
func (o *Outbox) drain(ctx context.Context) {
	for {
		select {
		case it := <-o.queue:
			metrics.OutboxDepthGauge.Dec()
			if err := o.repo.SaveSnapshot(ctx, it.ride, it.event); err != nil {
				metrics.OutboxDroppedTotal.WithLabelValues("shutdown").Inc()
				o.log.Warn(wrap.WithAction(ctx, types.ActionOutboxWriteDropped),
					"snapshot dropped during shutdown",
					"ride_id", it.ride.ID,
					"version", it.ride.Version,
				)
			}
		default:
			return
		}
	}
}

// persist writes one snapshot with bounded exponential backoff.
func (o *Outbox) persist(ctx context.Context, it item) {
	wctx := wrap.WithLogCtx(ctx, wrap.LogCtx{
		Action: "outbox_persist",
		RideID: it.ride.ID.String(),
	})

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if lastErr = o.repo.SaveSnapshot(ctx, it.ride, it.event); lastErr == nil {
			return
		}

		metrics.OutboxRetriesTotal.Inc()
		o.log.Warn(wctx, "durable write failed, retrying",
			"attempt", attempt,
			"version", it.ride.Version,
			"err", lastErr.Error(),
		)

		if attempt == o.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(o.nextDelay(attempt)):
		}
	}

	// Exhausted: surface to observability only. The in-memory commit
	// already happened and must not be rolled back.
	metrics.OutboxDroppedTotal.WithLabelValues("exhausted").Inc()
	o.log.Error(wrap.WithAction(wctx, types.ActionOutboxWriteFailed),
		"durable write exhausted retries", lastErr,
		"version", it.ride.Version,
		"event", it.event,
	)
}

// nextDelay returns the backoff delay after the given attempt (1-based).
func (o *Outbox) nextDelay(attempt int) time.Duration {
	delay := o.cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * o.cfg.Multiplier)
		if delay >= o.cfg.MaxDelay {
			return o.cfg.MaxDelay
		}
	}
	return delay
}
