// Package queue provides the publisher side of the scan queue: RabbitMQ and
// SQS adapters behind ports.Queue.
package queue

import (
	"context"
	"fmt"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability"
)

// CreateQueue builds the queue adapter selected by cfg.Adapters.Queue.
func CreateQueue(ctx context.Context, cfg *config.Config, obs observability.Provider) (ports.Queue, error) {
	logger := obs.Logger("queue")

	switch cfg.Adapters.Queue {
	case config.QueueRabbitMQ:
		logger.Info(ctx, "Creating RabbitMQ queue adapter", observability.Fields{"queue": cfg.Queue.ScanQueue})
		q, err := NewRabbitMQQueue(&cfg.Queue.RabbitMQ, obs.Logger("queue.rabbitmq"), obs.Metrics("queue"))
		if err != nil {
			return nil, err
		}
		return q, nil

	case config.QueueSQS:
		logger.Info(ctx, "Creating SQS queue adapter", observability.Fields{"region": cfg.Queue.SQS.Region})
		q, err := NewSQSQueue(ctx, &cfg.Queue.SQS, obs.Logger("queue.sqs"), obs.Metrics("queue"))
		if err != nil {
			return nil, err
		}
		return q, nil

	default:
		return nil, fmt.Errorf("unsupported queue adapter: %q", cfg.Adapters.Queue)
	}
}
