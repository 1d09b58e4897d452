package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/handler"
)

// RequestTypeRunScan is the handler request type carrying a RunScanRequest.
const RequestTypeRunScan = "scan.run"

// Dispatcher hands a scan trigger to whatever executes it. Implementations
// must be safe to call repeatedly for the same assessment; the executor at
// the far end is idempotent.
type Dispatcher interface {
	RunScan(ctx context.Context, assessmentID, userID string) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, assessmentID, userID string) error

// RunScan implements Dispatcher.
func (f DispatcherFunc) RunScan(ctx context.Context, assessmentID, userID string) error {
	return f(ctx, assessmentID, userID)
}

var _ Dispatcher = (*Executor)(nil)

// RunScanRequest is the payload of a scan.run request.
type RunScanRequest struct {
	AssessmentID string `json:"assessmentId"`
	UserID       string `json:"userId"`
}

// Validate checks the required fields.
func (r RunScanRequest) Validate() error {
	if strings.TrimSpace(r.AssessmentID) == "" {
		return errors.New("assessmentId is required")
	}
	if strings.TrimSpace(r.UserID) == "" {
		return errors.New("userId is required")
	}
	return nil
}

// QueueDispatcher publishes scan.run requests to a queue consumed by workers.
type QueueDispatcher struct {
	queue  ports.Queue
	target string
	source string
}

// NewQueueDispatcher creates a dispatcher publishing to target.
func NewQueueDispatcher(queue ports.Queue, target, source string) *QueueDispatcher {
	return &QueueDispatcher{queue: queue, target: target, source: source}
}

// RunScan implements Dispatcher.
func (d *QueueDispatcher) RunScan(ctx context.Context, assessmentID, userID string) error {
	req, err := handler.NewRequest(RequestTypeRunScan, RunScanRequest{
		AssessmentID: assessmentID,
		UserID:       userID,
	})
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	req.Source = d.source
	req.SetMetadata("assessment_id", assessmentID)

	if err := d.queue.Publish(ctx, &ports.QueueMessage{Target: d.target, Body: req}); err != nil {
		return fmt.Errorf("publish scan request: %w", err)
	}
	return nil
}
