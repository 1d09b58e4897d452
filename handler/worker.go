package handler

import (
	"context"
)

// Worker defines the interface that each worker must implement.
// Workers process requests and return responses without knowing about
// the underlying platform or transport mechanism.
type Worker interface {
	// Name returns the worker name for identification.
	// This is used for logging, metrics, and routing.
	Name() string

	// Process handles a platform-agnostic request. Business failures are
	// reported through Response.Error; a non-nil error means the request
	// could not be processed at all.
	Process(ctx context.Context, request Request) (Response, error)

	// Health checks if the worker and its dependencies are ready.
	Health(ctx context.Context) error
}
