// Package handler wraps a Worker with a middleware chain so the same
// business logic can be served over HTTP, Lambda/SQS or a RabbitMQ consumer.
package handler

import (
	"context"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/observability"
	"github.com/MaanVader/Chack/observability/types"
)

type contextKey string

// Context keys set by Handle.
const (
	WorkerKey   contextKey = "worker"
	PlatformKey contextKey = "platform"
	AttemptKey  contextKey = "retry_attempt"
)

// Platform identifiers.
const (
	PlatformHTTP     = "http"
	PlatformLambda   = "lambda"
	PlatformRabbitMQ = "rabbitmq"
	PlatformInline   = "inline"
)

// Handler is the main handler that wraps a Worker with platform-specific adapters.
type Handler struct {
	worker      Worker
	obs         observability.Provider
	middlewares []Middleware
	config      *config.HandlerConfig
	platform    string
}

// Middleware wraps a HandlerFunc to add cross-cutting concerns.
type Middleware func(next HandlerFunc) HandlerFunc

// HandlerFunc is the function signature for handling requests.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// NewHandler creates a new handler with the given worker and configuration.
// Most callers should use the Factory instead.
func NewHandler(worker Worker, provider observability.Provider, cfg *config.HandlerConfig, platform string) *Handler {
	return &Handler{
		worker:      worker,
		obs:         provider,
		config:      cfg,
		platform:    platform,
		middlewares: []Middleware{},
	}
}

// Use adds middleware to the handler chain.
// Middleware is executed in the order it's added.
func (h *Handler) Use(middleware Middleware) {
	h.middlewares = append(h.middlewares, middleware)
}

// Handle processes a request through the middleware chain and worker.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	handler := h.buildHandlerChain()

	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}

	ctx = context.WithValue(ctx, types.RequestIDKey, req.ID)
	ctx = context.WithValue(ctx, WorkerKey, h.worker.Name())
	ctx = context.WithValue(ctx, PlatformKey, h.platform)

	return handler(ctx, req)
}

// buildHandlerChain applies middleware in reverse order so that the first
// middleware added is the outermost layer.
func (h *Handler) buildHandlerChain() HandlerFunc {
	handler := h.workerHandler

	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handler = h.middlewares[i](handler)
	}

	return handler
}

func (h *Handler) workerHandler(ctx context.Context, req Request) (Response, error) {
	return h.worker.Process(ctx, req)
}

// Health checks the health of the worker.
func (h *Handler) Health(ctx context.Context) error {
	return h.worker.Health(ctx)
}

// Config returns the handler configuration.
func (h *Handler) Config() *config.HandlerConfig {
	return h.config
}

// Platform returns the platform the handler was built for.
func (h *Handler) Platform() string {
	return h.platform
}

// Worker returns the underlying worker.
func (h *Handler) Worker() Worker {
	return h.worker
}

// Logger returns the handler-scoped logger.
func (h *Handler) Logger() observability.Logger {
	return h.obs.Logger("handler")
}

// Metrics returns the handler-scoped metrics.
func (h *Handler) Metrics() observability.Metrics {
	return h.obs.Metrics("handler")
}
