package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider manages configuration lifecycle and ensures singleton behavior
type Provider struct {
	config *Config
	mu     sync.RWMutex
	loaded bool
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the singleton configuration provider instance
func GetProvider() *Provider {
	once.Do(func() {
		instance = &Provider{}
	})
	return instance
}

// Load loads configuration from environment variables and .env files.
// This should be called once at application startup.
func (p *Provider) Load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil
	}

	if err := loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg, err := Parse()
	if err != nil {
		return err
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// MustLoad loads configuration and panics on error
func (p *Provider) MustLoad() {
	if err := p.Load(); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
}

// Get returns the current configuration
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded || p.config == nil {
		return nil, fmt.Errorf("configuration not loaded; call Load() first")
	}

	return p.config, nil
}

// MustGet returns the configuration or panics if not loaded
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(fmt.Sprintf("failed to get configuration: %v", err))
	}
	return cfg
}

// Reload re-reads configuration from the current environment
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := Parse()
	if err != nil {
		return err
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// IsLoaded returns whether configuration has been loaded
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// Parse builds a validated configuration from the process environment
func Parse() (*Config, error) {
	cfg := parseEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env != "" {
		envFile := fmt.Sprintf(".env.%s", env)
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	return nil
}

func parseEnv() *Config {
	d := DefaultConfig()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		ServiceName: getEnv("SERVICE_NAME", d.ServiceName),
		LogLevel:    getEnv("LOG_LEVEL", d.LogLevel),
		Version:     getEnv("SERVICE_VERSION", d.Version),

		Adapters: AdapterConfig{
			Store:   getEnv("ADAPTER_STORE", d.Adapters.Store),
			Queue:   getEnv("ADAPTER_QUEUE", ""),
			Storage: getEnv("ADAPTER_STORAGE", ""),
			Metrics: getEnv("ADAPTER_METRICS", d.Adapters.Metrics),
			Logger:  getEnv("ADAPTER_LOGGER", d.Adapters.Logger),
		},

		Scan: ScanConfig{
			Delay:           getDuration("SCAN_DELAY", d.Scan.Delay.String()),
			Timeout:         getDuration("SCAN_TIMEOUT", d.Scan.Timeout.String()),
			DispatchTimeout: getDuration("SCAN_DISPATCH_TIMEOUT", d.Scan.DispatchTimeout.String()),
			PollInterval:    getDuration("SCAN_POLL_INTERVAL", d.Scan.PollInterval.String()),
			Scanner:         getEnv("SCAN_SCANNER", d.Scan.Scanner),
		},

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", d.Database.Host),
			Port:            getInt("DB_PORT", d.Database.Port),
			Database:        getEnv("DB_NAME", d.Database.Database),
			Username:        getEnv("DB_USER", d.Database.Username),
			Password:        getEnv("DB_PASSWORD", d.Database.Password),
			SSLMode:         getEnv("DB_SSL_MODE", d.Database.SSLMode),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", d.Database.MaxOpenConns),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", d.Database.MaxIdleConns),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", d.Database.ConnMaxLifetime.String()),
			NotifyChannel:   getEnv("DB_NOTIFY_CHANNEL", d.Database.NotifyChannel),
		},

		Queue: QueueConfig{
			ScanQueue: getEnv("QUEUE_SCAN", ""),
			RabbitMQ: RabbitMQConfig{
				URL:           getEnv("RABBITMQ_URL", d.Queue.RabbitMQ.URL),
				PrefetchCount: getInt("RABBITMQ_PREFETCH_COUNT", d.Queue.RabbitMQ.PrefetchCount),
				Timeout:       getDuration("RABBITMQ_TIMEOUT", d.Queue.RabbitMQ.Timeout.String()),
			},
			SQS: SQSConfig{
				Region:   getEnv("SQS_REGION", getEnv("AWS_REGION", d.Queue.SQS.Region)),
				Endpoint: getEnv("SQS_ENDPOINT", ""),
			},
		},

		Storage: StorageConfig{
			BucketOrPath: getEnv("STORAGE_BUCKET_OR_PATH", ""),
			Timeout:      getDuration("STORAGE_TIMEOUT", d.Storage.Timeout.String()),
			S3: S3Config{
				Region:          getEnv("AWS_REGION", d.Storage.S3.Region),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
			},
		},

		HTTP: HTTPConfig{
			Timeout:    getDuration("HTTP_TIMEOUT", d.HTTP.Timeout.String()),
			MaxRetries: getInt("HTTP_MAX_RETRIES", d.HTTP.MaxRetries),
			UserAgent:  getEnv("HTTP_USER_AGENT", d.HTTP.UserAgent),
			Addr:       getEnv("HTTP_ADDR", d.HTTP.Addr),
		},

		Lambda: LambdaConfig{
			Timeout:                   getDuration("LAMBDA_TIMEOUT", d.Lambda.Timeout.String()),
			EnablePartialBatchFailure: getBool("LAMBDA_PARTIAL_BATCH_FAILURE", true),
		},

		Handler: HandlerConfig{
			Timeout:        getDuration("HANDLER_TIMEOUT", d.Handler.Timeout.String()),
			MaxRequestSize: int64(getInt("HANDLER_MAX_REQUEST_SIZE", int(d.Handler.MaxRequestSize))),
			EnableHealth:   getBool("HANDLER_ENABLE_HEALTH", true),
			EnableMetrics:  getBool("HANDLER_ENABLE_METRICS", true),
			EnableTracing:  getBool("HANDLER_ENABLE_TRACING", true),
		},

		Retry: RetryConfig{
			MaxAttempts:       getInt("RETRY_MAX_ATTEMPTS", d.Retry.MaxAttempts),
			InitialBackoff:    getDuration("RETRY_INITIAL_BACKOFF", d.Retry.InitialBackoff.String()),
			MaxBackoff:        getDuration("RETRY_MAX_BACKOFF", d.Retry.MaxBackoff.String()),
			BackoffMultiplier: getFloat64("RETRY_BACKOFF_MULTIPLIER", d.Retry.BackoffMultiplier),
		},

		Observability: ObservabilityConfig{
			CloudWatchRegion:    getEnv("CLOUDWATCH_REGION", getEnv("AWS_REGION", "us-east-2")),
			CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", ""),
			FlushInterval:       getDuration("CLOUDWATCH_FLUSH_INTERVAL", d.Observability.FlushInterval.String()),
			CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", ""),
			CloudWatchLogStream: getEnv("CLOUDWATCH_LOG_STREAM", ""),
		},
	}
}
