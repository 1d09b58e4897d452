package platforms

import (
	"context"
	"fmt"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitMQConsumer feeds deliveries from one durable queue into a handler.
// Messages are acked manually: retryable failures are requeued once, then
// dropped on the second failed delivery.
type RabbitMQConsumer struct {
	handler *handler.Handler
	config  *config.RabbitMQConfig
	queue   string
}

// NewRabbitMQConsumer creates a consumer for queue.
func NewRabbitMQConsumer(h *handler.Handler, cfg *config.RabbitMQConfig, queue string) *RabbitMQConsumer {
	return &RabbitMQConsumer{
		handler: h,
		config:  cfg,
		queue:   queue,
	}
}

// Run consumes until ctx is cancelled or the broker closes the channel.
func (c *RabbitMQConsumer) Run(ctx context.Context) error {
	logger := c.handler.Logger()

	conn, err := amqp091.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}

	if c.config.PrefetchCount > 0 {
		if err := ch.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	deliveries, err := ch.Consume(
		c.queue,
		c.handler.Worker().Name(), // consumer tag
		false,                     // auto-ack
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.queue, err)
	}

	logger.Info(ctx, "RabbitMQ consumer started", types.Fields{
		"queue":    c.queue,
		"prefetch": c.config.PrefetchCount,
	})

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "RabbitMQ consumer stopping", types.Fields{"queue": c.queue})
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", c.queue)
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp091.Delivery) {
	logger := c.handler.Logger()
	req := c.buildRequest(d)

	resp, err := c.handler.Handle(ctx, req)
	if shouldRedeliver(resp, err) {
		requeue := !d.Redelivered
		fields := types.Fields{"request_id": req.ID, "type": req.Type, "requeue": requeue}
		if err != nil {
			fields["error"] = err.Error()
		} else if resp.Error != nil {
			fields["error"] = resp.Error.Message
		}
		logger.Warn(ctx, "Message processing failed", fields)

		if nackErr := d.Nack(false, requeue); nackErr != nil {
			logger.Error(ctx, "Failed to nack message", nackErr, types.Fields{"request_id": req.ID})
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		logger.Error(ctx, "Failed to ack message", ackErr, types.Fields{"request_id": req.ID})
	}
}

func (c *RabbitMQConsumer) buildRequest(d amqp091.Delivery) handler.Request {
	metadata := map[string]string{
		"rabbitmq_queue":        c.queue,
		"rabbitmq_delivery_tag": fmt.Sprintf("%d", d.DeliveryTag),
	}
	if t, ok := d.Headers["type"].(string); ok {
		metadata["type"] = t
	}
	if d.MessageId != "" {
		metadata["request_id"] = d.MessageId
	}

	return buildQueueRequest("rabbitmq", d.MessageId, d.Body, metadata)
}
