package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/olzhask/ride-dispatch/internal/domain/models"
	"github.com/olzhask/ride-dispatch/pkg/logger"
	wrap "github.com/olzhask/ride-dispatch/pkg/logger/wrapper"
	"github.com/olzhask/ride-dispatch/pkg/metrics"
	"github.com/olzhask/ride-dispatch/pkg/rabbit"
)

const RideExchange = "ride_topic"

// RideBroker publishes committed ride lifecycle events onto a topic
// exchange for downstream consumers (analytics, audit). The real-time path
// never waits on it.
type RideBroker struct {
	client   *rabbit.RabbitMQ
	exchange string

	l logger.Logger
}

func NewRideBroker(ctx context.Context, client *rabbit.RabbitMQ, log logger.Logger) (*RideBroker, error) {
	b := &RideBroker{
		client:   client,
		exchange: RideExchange,
		l:        log,
	}

	if err := client.Channel.ExchangeDeclare(
		b.exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %q: %w", b.exchange, err)
	}

	return b, nil
}

// PublishRideRequested announces a new ride request with routing key
// 'ride.request'.
func (r *RideBroker) PublishRideRequested(ctx context.Context, msg models.RideRequestedMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_ride_request")

	if err := r.client.EnsureConnection(ctx); err != nil {
		r.l.Error(ctx, "ensure connection failed", err)
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal message: %w", err))
	}

	err = retry(5, time.Second, func() error {
		return r.client.Channel.PublishWithContext(
			ctx,
			r.exchange,
			"ride.request",
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:   "application/json",
				CorrelationId: msg.CorrelationID,
				Body:          body,
				Timestamp:     time.Now(),
			},
		)
	})
	metrics.RecordRabbitMQPublish(r.exchange, err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish ride request: %w", err))
	}

	return nil
}

// PublishRideStatus announces a committed transition with routing key
// 'ride.status.{STATUS}'.
func (r *RideBroker) PublishRideStatus(ctx context.Context, msg models.RideStatusUpdateMessage) error {
	ctx = wrap.WithAction(ctx, "rabbitmq_publish_ride_status")

	if err := r.client.EnsureConnection(ctx); err != nil {
		r.l.Error(ctx, "ensure connection failed", err)
		return wrap.Error(ctx, err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to marshal message: %w", err))
	}

	key := fmt.Sprintf("ride.status.%s", msg.Status)

	err = retry(5, time.Second, func() error {
		return r.client.Channel.PublishWithContext(
			ctx,
			r.exchange,
			key,
			false, // mandatory
			false, // immediate
			amqp091.Publishing{
				ContentType:   "application/json",
				CorrelationId: msg.CorrelationID,
				Body:          body,
				Timestamp:     time.Now(),
			},
		)
	})
	metrics.RecordRabbitMQPublish(r.exchange, err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("failed to publish ride status: %w", err))
	}

	return nil
}
