package config

import (
	"fmt"
	"strings"
	"time"
)

// Adapter names accepted by AdapterConfig.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	QueueRabbitMQ = "rabbitmq"
	QueueSQS      = "sqs"

	StorageFilesystem = "filesystem"
	StorageS3         = "s3"

	MetricsPrometheus = "prometheus"
	MetricsCloudWatch = "cloudwatch"

	LoggerLoki       = "loki"
	LoggerCloudWatch = "cloudwatch"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Adapter selection
	Adapters AdapterConfig

	// Component configurations
	Scan          ScanConfig
	Database      DatabaseConfig
	Queue         QueueConfig
	Storage       StorageConfig
	HTTP          HTTPConfig
	Lambda        LambdaConfig
	Handler       HandlerConfig
	Retry         RetryConfig
	Observability ObservabilityConfig
}

// AdapterConfig selects the infrastructure implementation for each port
type AdapterConfig struct {
	Store   string // memory | postgres
	Queue   string // rabbitmq | sqs | "" (in-process dispatch)
	Storage string // filesystem | s3 | "" (no report archiving)
	Metrics string // prometheus | cloudwatch
	Logger  string // loki | cloudwatch
}

// ScanConfig holds scan lifecycle settings
type ScanConfig struct {
	// Delay is the minimum time between an assessment baseline and its scan dispatch.
	Delay time.Duration
	// Timeout bounds a single executor run, scanner included.
	Timeout time.Duration
	// DispatchTimeout bounds the scheduler's call into the dispatcher.
	DispatchTimeout time.Duration
	// PollInterval is used by polling subscribers.
	PollInterval time.Duration
	Scanner      string
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// NotifyChannel is the LISTEN/NOTIFY channel used for assessment change events.
	NotifyChannel string
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// QueueConfig holds queue configuration
type QueueConfig struct {
	ScanQueue string
	RabbitMQ  RabbitMQConfig
	SQS       SQSConfig
}

// RabbitMQConfig holds RabbitMQ connection settings
type RabbitMQConfig struct {
	URL           string
	PrefetchCount int
	Timeout       time.Duration
}

// SQSConfig holds SQS settings
type SQSConfig struct {
	Region   string
	Endpoint string
}

// StorageConfig holds artifact storage configuration
type StorageConfig struct {
	BucketOrPath string
	Timeout      time.Duration
	S3           S3Config
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // LocalStack / MinIO
}

// HTTPConfig holds HTTP server and client configuration
type HTTPConfig struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
	Addr       string // Server address for HTTP mode
}

// LambdaConfig holds Lambda-specific configuration
type LambdaConfig struct {
	Timeout                   time.Duration
	EnablePartialBatchFailure bool
}

// HandlerConfig holds handler configuration
type HandlerConfig struct {
	Timeout        time.Duration
	MaxRequestSize int64
	EnableHealth   bool
	EnableMetrics  bool
	EnableTracing  bool
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// ObservabilityConfig holds log and metrics backend settings
type ObservabilityConfig struct {
	CloudWatchRegion    string
	CloudWatchNamespace string
	FlushInterval       time.Duration

	// CloudWatch Logs destination; the stream defaults to {service}-{env}-{unix}.
	CloudWatchLogGroup  string
	CloudWatchLogStream string
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	switch c.Adapters.Store {
	case StoreMemory, StorePostgres:
	default:
		errors = append(errors, fmt.Sprintf("ADAPTER_STORE %q is not supported", c.Adapters.Store))
	}
	switch c.Adapters.Queue {
	case "", QueueRabbitMQ, QueueSQS:
	default:
		errors = append(errors, fmt.Sprintf("ADAPTER_QUEUE %q is not supported", c.Adapters.Queue))
	}
	switch c.Adapters.Storage {
	case "", StorageFilesystem, StorageS3:
	default:
		errors = append(errors, fmt.Sprintf("ADAPTER_STORAGE %q is not supported", c.Adapters.Storage))
	}
	switch c.Adapters.Metrics {
	case MetricsPrometheus, MetricsCloudWatch:
	default:
		errors = append(errors, fmt.Sprintf("ADAPTER_METRICS %q is not supported", c.Adapters.Metrics))
	}
	switch c.Adapters.Logger {
	case LoggerLoki, LoggerCloudWatch:
	default:
		errors = append(errors, fmt.Sprintf("ADAPTER_LOGGER %q is not supported", c.Adapters.Logger))
	}

	if c.Scan.Delay < 0 {
		errors = append(errors, "SCAN_DELAY cannot be negative")
	}
	if c.Scan.Timeout <= 0 {
		errors = append(errors, "SCAN_TIMEOUT must be positive")
	}
	if c.Scan.DispatchTimeout <= 0 {
		errors = append(errors, "SCAN_DISPATCH_TIMEOUT must be positive")
	}
	if c.Scan.PollInterval <= 0 {
		errors = append(errors, "SCAN_POLL_INTERVAL must be positive")
	}

	if c.Adapters.Store == StorePostgres {
		if c.Database.Host == "" {
			errors = append(errors, "DB_HOST is required for the postgres store")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errors = append(errors, "DB_PORT must be between 1 and 65535")
		}
	}
	if c.Adapters.Queue != "" && c.Queue.ScanQueue == "" {
		errors = append(errors, "QUEUE_SCAN is required when a queue adapter is selected")
	}
	if c.Adapters.Storage != "" && c.Storage.BucketOrPath == "" {
		errors = append(errors, "STORAGE_BUCKET_OR_PATH is required when a storage adapter is selected")
	}
	if c.Adapters.Metrics == MetricsCloudWatch && c.Observability.CloudWatchNamespace == "" {
		errors = append(errors, "CLOUDWATCH_NAMESPACE is required for cloudwatch metrics")
	}
	if c.Adapters.Logger == LoggerCloudWatch && c.Observability.CloudWatchRegion == "" {
		errors = append(errors, "CLOUDWATCH_REGION is required for cloudwatch logs")
	}

	if c.HTTP.Timeout <= 0 {
		errors = append(errors, "HTTP_TIMEOUT must be positive")
	}
	if c.HTTP.MaxRetries < 0 {
		errors = append(errors, "HTTP_MAX_RETRIES cannot be negative")
	}
	if c.Handler.Timeout <= 0 {
		errors = append(errors, "HANDLER_TIMEOUT must be positive")
	}
	if c.Handler.MaxRequestSize <= 0 {
		errors = append(errors, "HANDLER_MAX_REQUEST_SIZE must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		errors = append(errors, "RETRY_MAX_ATTEMPTS cannot be negative")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		errors = append(errors, "RETRY_BACKOFF_MULTIPLIER must be >= 1.0")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// applyDefaults applies environment-specific defaults
func (c *Config) applyDefaults() {
	env := strings.ToLower(c.Environment)

	if c.Queue.ScanQueue == "" && c.Adapters.Queue != "" {
		c.Queue.ScanQueue = fmt.Sprintf("chack-%s-scans", env)
	}
	if c.Database.NotifyChannel == "" {
		c.Database.NotifyChannel = "assessment_events"
	}
	if c.Observability.CloudWatchLogGroup == "" {
		c.Observability.CloudWatchLogGroup = fmt.Sprintf("/chack/%s/%s", env, c.ServiceName)
	}

	if c.IsProduction() {
		if c.Handler.Timeout < 60*time.Second {
			c.Handler.Timeout = 60 * time.Second
		}
		if c.Retry.MaxAttempts < 5 {
			c.Retry.MaxAttempts = 5
		}
		c.Handler.EnableMetrics = true
		c.Handler.EnableTracing = true
	}

	if c.IsLocal() {
		c.Handler.EnableTracing = false
	}
}
