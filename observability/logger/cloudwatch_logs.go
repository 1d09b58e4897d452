package logger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	cwltypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/MaanVader/Chack/observability/types"
)

const (
	cloudWatchLogsBatchSize = 100
	cloudWatchLogsRetention = 30
)

// CloudWatchLogsAPI is the subset of the CloudWatch Logs client used by
// CloudWatchLogsSink.
type CloudWatchLogsAPI interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, params *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchLogsSink is an io.Writer that ships each written line to a
// CloudWatch Logs stream in batches. LokiLogger writes one JSON entry per
// Write, so every entry becomes one log event.
type CloudWatchLogsSink struct {
	client   CloudWatchLogsAPI
	group    string
	stream   string
	interval time.Duration

	bufferCh chan cwltypes.InputLogEvent
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewCloudWatchLogsSink loads the default AWS configuration for region,
// creates the log group and stream if needed and starts the background flusher.
func NewCloudWatchLogsSink(ctx context.Context, region, group, stream string, interval time.Duration) (*CloudWatchLogsSink, error) {
	if region == "" {
		return nil, fmt.Errorf("no AWS region specified for logs")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for logs: %w", err)
	}

	return NewCloudWatchLogsSinkWithClient(ctx, cloudwatchlogs.NewFromConfig(awsCfg), group, stream, interval)
}

// NewCloudWatchLogsSinkWithClient starts a sink on top of an existing client.
func NewCloudWatchLogsSinkWithClient(ctx context.Context, client CloudWatchLogsAPI, group, stream string, interval time.Duration) (*CloudWatchLogsSink, error) {
	if group == "" || stream == "" {
		return nil, fmt.Errorf("log group and stream are required")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s := &CloudWatchLogsSink{
		client:   client,
		group:    group,
		stream:   stream,
		interval: interval,
		bufferCh: make(chan cwltypes.InputLogEvent, 1024),
		done:     make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.ensureLogGroup(ctx); err != nil {
		return nil, err
	}
	if err := s.ensureLogStream(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.backgroundFlusher()

	return s, nil
}

// Logger returns a LokiLogger that writes its entries to the sink.
func (s *CloudWatchLogsSink) Logger(serviceName, environment, logLevel string, fields types.Fields) *LokiLogger {
	return New(serviceName, environment, logLevel, s, fields)
}

// Write enqueues p as one log event. It never blocks; entries are dropped
// when the buffer is full.
func (s *CloudWatchLogsSink) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\n"))
	if msg == "" {
		return len(p), nil
	}

	select {
	case <-s.done:
		return 0, errors.New("cloudwatch logs sink is closed")
	default:
	}

	select {
	case s.bufferCh <- cwltypes.InputLogEvent{
		Message:   aws.String(msg),
		Timestamp: aws.Int64(time.Now().UnixMilli()),
	}:
	default:
		// Buffer full, drop entry
	}
	return len(p), nil
}

// Close stops the flusher after sending whatever is still buffered.
func (s *CloudWatchLogsSink) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *CloudWatchLogsSink) ensureLogGroup(ctx context.Context) error {
	_, err := s.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(s.group),
	})
	if err != nil {
		var alreadyExists *cwltypes.ResourceAlreadyExistsException
		if errors.As(err, &alreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create log group %s: %w", s.group, err)
	}

	// Retention is best effort.
	_, _ = s.client.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(s.group),
		RetentionInDays: aws.Int32(cloudWatchLogsRetention),
	})
	return nil
}

func (s *CloudWatchLogsSink) ensureLogStream(ctx context.Context) error {
	_, err := s.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
	})
	if err != nil {
		var alreadyExists *cwltypes.ResourceAlreadyExistsException
		if errors.As(err, &alreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create log stream %s: %w", s.stream, err)
	}
	return nil
}

func (s *CloudWatchLogsSink) backgroundFlusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	buffer := make([]cwltypes.InputLogEvent, 0, cloudWatchLogsBatchSize)
	for {
		select {
		case event := <-s.bufferCh:
			buffer = append(buffer, event)
			if len(buffer) >= cloudWatchLogsBatchSize {
				s.flush(buffer)
				buffer = make([]cwltypes.InputLogEvent, 0, cloudWatchLogsBatchSize)
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = make([]cwltypes.InputLogEvent, 0, cloudWatchLogsBatchSize)
			}

		case <-s.done:
			for {
				select {
				case event := <-s.bufferCh:
					buffer = append(buffer, event)
					if len(buffer) >= cloudWatchLogsBatchSize {
						s.flush(buffer)
						buffer = make([]cwltypes.InputLogEvent, 0, cloudWatchLogsBatchSize)
					}
				default:
					s.flush(buffer)
					return
				}
			}
		}
	}
}

// flush sends one batch. PutLogEvents rejects batches that are not in
// chronological order.
func (s *CloudWatchLogsSink) flush(events []cwltypes.InputLogEvent) {
	if len(events) == 0 {
		return
	}

	sort.SliceStable(events, func(i, j int) bool {
		return aws.ToInt64(events[i].Timestamp) < aws.ToInt64(events[j].Timestamp)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = s.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents:     events,
	})
}
