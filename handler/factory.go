package handler

import (
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability"
)

// Factory creates handlers with the standard middleware stack.
type Factory struct {
	worker     Worker
	provider   observability.Provider
	handlerCfg config.HandlerConfig
	retryCfg   config.RetryConfig
}

// NewFactory creates a new handler factory with default configuration.
func NewFactory(worker Worker, provider observability.Provider) *Factory {
	return &Factory{
		worker:     worker,
		provider:   provider,
		handlerCfg: config.DefaultHandlerConfig(),
		retryCfg:   config.DefaultRetryConfig(),
	}
}

// WithHandlerConfig sets custom handler configuration.
func (f *Factory) WithHandlerConfig(cfg config.HandlerConfig) *Factory {
	f.handlerCfg = cfg
	return f
}

// WithRetryConfig sets custom retry configuration.
func (f *Factory) WithRetryConfig(cfg config.RetryConfig) *Factory {
	f.retryCfg = cfg
	return f
}

// Create creates a handler for platform. An empty platform is detected from
// the environment.
func (f *Factory) Create(platform string) *Handler {
	if platform == "" {
		platform = DetectPlatform()
	}

	cfg := f.handlerCfg
	h := NewHandler(f.worker, f.provider, &cfg, platform)
	f.applyDefaultMiddleware(h)

	return h
}

// CreateHTTP creates a handler for the HTTP API.
func (f *Factory) CreateHTTP() *Handler {
	return f.Create(PlatformHTTP)
}

// CreateLambda creates a handler for the Lambda SQS runtime.
func (f *Factory) CreateLambda() *Handler {
	return f.Create(PlatformLambda)
}

// CreateRabbitMQ creates a handler for the RabbitMQ consumer.
func (f *Factory) CreateRabbitMQ() *Handler {
	return f.Create(PlatformRabbitMQ)
}

func (f *Factory) applyDefaultMiddleware(h *Handler) {
	// Recovery is outermost so it catches panics from every other layer.
	h.Use(RecoveryMiddleware(f.provider))

	if f.handlerCfg.Timeout > 0 {
		h.Use(TimeoutMiddleware(f.handlerCfg.Timeout))
	}

	if f.handlerCfg.EnableTracing {
		h.Use(TracingMiddleware())
	}

	if f.handlerCfg.EnableMetrics {
		h.Use(MetricsMiddleware(f.provider))
	}

	h.Use(LoggingMiddleware(f.provider))
	h.Use(ValidationMiddleware())

	if f.retryCfg.MaxAttempts > 0 {
		h.Use(RetryMiddleware(&f.retryCfg))
	}
}

// DetectPlatform detects the runtime platform from the environment.
func DetectPlatform() string {
	if config.IsLambda() {
		return PlatformLambda
	}
	return PlatformHTTP
}
