package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS limits a batch to 10 entries.
const maxBatchSize = 10

// SQSAPI is the subset of the SQS client used by SQSQueue.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSQueue publishes JSON messages to SQS queues looked up by name.
type SQSQueue struct {
	client  SQSAPI
	logger  types.Logger
	metrics types.Metrics

	mu        sync.Mutex
	queueURLs map[string]string
}

// NewSQSQueue creates an SQS publisher from the default AWS credential chain.
func NewSQSQueue(ctx context.Context, cfg *config.SQSConfig, logger types.Logger, metrics types.Metrics) (*SQSQueue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		logger.Error(ctx, "Failed to load AWS config", err, nil)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info(ctx, "SQS queue initialized", types.Fields{"region": cfg.Region})

	return NewSQSQueueWithClient(client, logger, metrics), nil
}

// NewSQSQueueWithClient creates an SQS publisher around an existing client.
func NewSQSQueueWithClient(client SQSAPI, logger types.Logger, metrics types.Metrics) *SQSQueue {
	return &SQSQueue{
		client:    client,
		logger:    logger,
		metrics:   metrics,
		queueURLs: make(map[string]string),
	}
}

func (q *SQSQueue) getQueueURL(ctx context.Context, queueName string) (string, error) {
	q.mu.Lock()
	url, ok := q.queueURLs[queueName]
	q.mu.Unlock()
	if ok {
		return url, nil
	}

	result, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", queueName, err)
	}

	q.mu.Lock()
	q.queueURLs[queueName] = aws.ToString(result.QueueUrl)
	q.mu.Unlock()

	return aws.ToString(result.QueueUrl), nil
}

// Publish implements ports.Queue.
func (q *SQSQueue) Publish(ctx context.Context, message *ports.QueueMessage) error {
	startTime := time.Now()
	defer func() {
		q.metrics.RecordDuration("queue_publish", time.Since(startTime).Seconds())
	}()

	queueURL, err := q.getQueueURL(ctx, message.Target)
	if err != nil {
		q.logger.Error(ctx, "Failed to get queue URL", err, types.Fields{"queue": message.Target})
		q.metrics.RecordError("queue_publish", "queue_url_failed")
		return err
	}

	body, err := json.Marshal(message.Body)
	if err != nil {
		q.metrics.RecordError("queue_publish", "marshal_failed")
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attributes(message.Body),
	})
	if err != nil {
		q.logger.Error(ctx, "Failed to send message", err, types.Fields{"target": message.Target})
		q.metrics.RecordError("queue_publish", "send_failed")
		return fmt.Errorf("failed to send message: %w", err)
	}

	q.logger.Debug(ctx, "Message sent", types.Fields{"target": message.Target, "size": len(body)})
	q.metrics.RecordSuccess("queue_publish")

	return nil
}

// PublishBatch implements ports.Queue. Messages are grouped by target and
// sent in batches of at most 10.
func (q *SQSQueue) PublishBatch(ctx context.Context, messages []*ports.QueueMessage) error {
	batches := make(map[string][]*ports.QueueMessage)
	var order []string
	for _, msg := range messages {
		if _, ok := batches[msg.Target]; !ok {
			order = append(order, msg.Target)
		}
		batches[msg.Target] = append(batches[msg.Target], msg)
	}

	for _, target := range order {
		if err := q.publishBatchToQueue(ctx, target, batches[target]); err != nil {
			return err
		}
	}

	return nil
}

func (q *SQSQueue) publishBatchToQueue(ctx context.Context, target string, messages []*ports.QueueMessage) error {
	queueURL, err := q.getQueueURL(ctx, target)
	if err != nil {
		return err
	}

	for i := 0; i < len(messages); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(messages) {
			end = len(messages)
		}

		batch := messages[i:end]
		entries := make([]sqstypes.SendMessageBatchRequestEntry, len(batch))
		for j, msg := range batch {
			body, err := json.Marshal(msg.Body)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			entries[j] = sqstypes.SendMessageBatchRequestEntry{
				Id:                aws.String(strconv.Itoa(j)),
				MessageBody:       aws.String(string(body)),
				MessageAttributes: attributes(msg.Body),
			}
		}

		out, err := q.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(queueURL),
			Entries:  entries,
		})
		if err != nil {
			q.metrics.RecordError("queue_publish_batch", "send_failed")
			return fmt.Errorf("failed to send batch: %w", err)
		}
		if len(out.Failed) > 0 {
			q.metrics.RecordError("queue_publish_batch", "partial_failure")
			return fmt.Errorf("failed to send %d of %d messages to %s: %s",
				len(out.Failed), len(entries), target, aws.ToString(out.Failed[0].Message))
		}
	}

	q.metrics.RecordSuccess("queue_publish_batch")
	return nil
}

// Close implements ports.Queue. The SQS client holds no connection.
func (q *SQSQueue) Close() error {
	return nil
}

func attributes(body interface{}) map[string]sqstypes.MessageAttributeValue {
	attrs := make(map[string]sqstypes.MessageAttributeValue)
	if id, ok := requestID(body); ok {
		attrs["request_id"] = stringAttribute(id)
	}
	if t, ok := requestType(body); ok {
		attrs["type"] = stringAttribute(t)
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func stringAttribute(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
