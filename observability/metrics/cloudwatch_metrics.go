package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const cloudWatchBatchSize = 20

// PutMetricDataAPI is the subset of the CloudWatch client used by CloudWatchSink.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink buffers metric data and flushes it to CloudWatch in batches.
// One sink is shared by all components; each component gets a CloudWatchMetrics
// view that tags data with a "component" dimension.
type CloudWatchSink struct {
	client    PutMetricDataAPI
	namespace string
	interval  time.Duration

	bufferCh chan cwtypes.MetricDatum
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewCloudWatchSink loads the default AWS configuration for region and starts
// the background flusher.
func NewCloudWatchSink(ctx context.Context, region, namespace string, interval time.Duration) (*CloudWatchSink, error) {
	if region == "" {
		return nil, fmt.Errorf("no AWS region specified for metrics")
	}
	if namespace == "" {
		return nil, fmt.Errorf("no CloudWatch namespace specified for metrics")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for metrics: %w", err)
	}

	return NewCloudWatchSinkWithClient(cloudwatch.NewFromConfig(awsCfg), namespace, interval), nil
}

// NewCloudWatchSinkWithClient starts a sink on top of an existing client.
func NewCloudWatchSinkWithClient(client PutMetricDataAPI, namespace string, interval time.Duration) *CloudWatchSink {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := &CloudWatchSink{
		client:    client,
		namespace: namespace,
		interval:  interval,
		bufferCh:  make(chan cwtypes.MetricDatum, 256),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.backgroundFlusher()

	return s
}

// Metrics returns a types.Metrics view for component.
func (s *CloudWatchSink) Metrics(component string) *CloudWatchMetrics {
	return &CloudWatchMetrics{sink: s, component: component, inProgress: make(map[string]int)}
}

// Close stops the flusher after sending whatever is still buffered.
func (s *CloudWatchSink) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *CloudWatchSink) enqueue(datum cwtypes.MetricDatum) {
	select {
	case s.bufferCh <- datum:
	default:
		// Buffer full, drop metric
	}
}

func (s *CloudWatchSink) backgroundFlusher() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	buffer := make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
	for {
		select {
		case datum := <-s.bufferCh:
			buffer = append(buffer, datum)
			if len(buffer) >= cloudWatchBatchSize {
				s.flush(buffer)
				buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				s.flush(buffer)
				buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
			}

		case <-s.done:
			for {
				select {
				case datum := <-s.bufferCh:
					buffer = append(buffer, datum)
					if len(buffer) >= cloudWatchBatchSize {
						s.flush(buffer)
						buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
					}
				default:
					s.flush(buffer)
					return
				}
			}
		}
	}
}

func (s *CloudWatchSink) flush(data []cwtypes.MetricDatum) {
	if len(data) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _ = s.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: data,
	})
}

// CloudWatchMetrics implements types.Metrics on top of a CloudWatchSink.
type CloudWatchMetrics struct {
	sink      *CloudWatchSink
	component string

	mu         sync.Mutex
	inProgress map[string]int
}

// RecordSuccess emits a processed count with status=success.
func (m *CloudWatchMetrics) RecordSuccess(operationType string) {
	m.put("processed", 1, cwtypes.StandardUnitCount, "status", "success", "type", operationType)
}

// RecordError emits a processed count with status=error and an error count.
func (m *CloudWatchMetrics) RecordError(operationType string, errorType string) {
	m.put("processed", 1, cwtypes.StandardUnitCount, "status", "error", "type", operationType)
	m.put("errors", 1, cwtypes.StandardUnitCount, "error_type", errorType, "operation", operationType)
}

// RecordDuration emits an operation duration in seconds.
func (m *CloudWatchMetrics) RecordDuration(operation string, duration float64) {
	m.put("duration", duration, cwtypes.StandardUnitSeconds, "operation", operation)
}

// RecordArtifactSize emits a stored artifact size in bytes.
func (m *CloudWatchMetrics) RecordArtifactSize(kind string, bytes int64) {
	m.put("artifact_size", float64(bytes), cwtypes.StandardUnitBytes, "kind", kind)
}

// RecordFindings emits a finding count for severity.
func (m *CloudWatchMetrics) RecordFindings(severity string, count int) {
	if count <= 0 {
		return
	}
	m.put("findings", float64(count), cwtypes.StandardUnitCount, "severity", severity)
}

// StartOperation emits the updated in-progress gauge for operation.
func (m *CloudWatchMetrics) StartOperation(operation string) {
	m.adjust(operation, 1)
}

// EndOperation emits the updated in-progress gauge for operation.
func (m *CloudWatchMetrics) EndOperation(operation string) {
	m.adjust(operation, -1)
}

func (m *CloudWatchMetrics) adjust(operation string, delta int) {
	m.mu.Lock()
	m.inProgress[operation] += delta
	value := m.inProgress[operation]
	m.mu.Unlock()

	m.put("in_progress", float64(value), cwtypes.StandardUnitCount, "operation", operation)
}

// put enqueues a datum; kv is a flat list of dimension name/value pairs.
func (m *CloudWatchMetrics) put(name string, value float64, unit cwtypes.StandardUnit, kv ...string) {
	dimensions := make([]cwtypes.Dimension, 0, len(kv)/2+1)
	dimensions = append(dimensions, cwtypes.Dimension{
		Name:  aws.String("component"),
		Value: aws.String(m.component),
	})
	for i := 0; i+1 < len(kv); i += 2 {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(kv[i]),
			Value: aws.String(kv[i+1]),
		})
	}

	m.sink.enqueue(cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dimensions,
	})
}
