package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/rabbitmq/amqp091-go"
)

// RabbitMQQueue publishes JSON messages to durable queues on the default exchange.
type RabbitMQQueue struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  types.Logger
	metrics types.Metrics
	config  *config.RabbitMQConfig

	// amqp channels are not safe for concurrent publishing.
	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQQueue dials RabbitMQ and opens a publishing channel.
func NewRabbitMQQueue(cfg *config.RabbitMQConfig, logger types.Logger, metrics types.Metrics) (*RabbitMQQueue, error) {
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		logger.Error(context.Background(), "Failed to connect to RabbitMQ", err, nil)
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error(context.Background(), "Failed to create channel", err, nil)
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	logger.Info(context.Background(), "RabbitMQ queue initialized", nil)

	return &RabbitMQQueue{
		conn:     conn,
		channel:  channel,
		logger:   logger,
		metrics:  metrics,
		config:   cfg,
		declared: make(map[string]bool),
	}, nil
}

// Publish implements ports.Queue.
func (q *RabbitMQQueue) Publish(ctx context.Context, message *ports.QueueMessage) error {
	startTime := time.Now()
	defer func() {
		q.metrics.RecordDuration("queue_publish", time.Since(startTime).Seconds())
	}()

	body, err := json.Marshal(message.Body)
	if err != nil {
		q.metrics.RecordError("queue_publish", "marshal_failed")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[message.Target] {
		_, err = q.channel.QueueDeclare(
			message.Target, // queue name
			true,           // durable
			false,          // auto-delete
			false,          // exclusive
			false,          // no-wait
			nil,            // arguments
		)
		if err != nil {
			q.metrics.RecordError("queue_publish", "declare_failed")
			return fmt.Errorf("failed to declare queue %s: %w", message.Target, err)
		}
		q.declared[message.Target] = true
	}

	msg := amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
	}
	if id, ok := requestID(message.Body); ok {
		msg.MessageId = id
	}
	if t, ok := requestType(message.Body); ok {
		msg.Headers = amqp091.Table{"type": t}
	}

	err = q.channel.PublishWithContext(
		ctx,
		"",             // default exchange
		message.Target, // routing key (queue name)
		false,          // mandatory
		false,          // immediate
		msg,
	)
	if err != nil {
		q.logger.Error(ctx, "Failed to publish message", err, types.Fields{"target": message.Target})
		q.metrics.RecordError("queue_publish", "publish_failed")
		return fmt.Errorf("failed to publish message: %w", err)
	}

	q.logger.Debug(ctx, "Message published", types.Fields{"target": message.Target, "size": len(body)})
	q.metrics.RecordSuccess("queue_publish")

	return nil
}

// PublishBatch implements ports.Queue.
func (q *RabbitMQQueue) PublishBatch(ctx context.Context, messages []*ports.QueueMessage) error {
	for _, msg := range messages {
		if err := q.Publish(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish message in batch: %w", err)
		}
	}
	return nil
}

// Close implements ports.Queue.
func (q *RabbitMQQueue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
