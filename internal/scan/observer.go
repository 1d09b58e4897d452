package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/observability/types"
)

// ErrSubscriptionClosed is returned by Watch when the subscriber closes the
// snapshot stream before the assessment reaches a terminal status.
var ErrSubscriptionClosed = errors.New("subscription closed before terminal status")

// Observer watches one assessment and drives a Scheduler from its snapshots,
// the way a client viewing the assessment would.
type Observer struct {
	subscriber repository.Subscriber
	dispatcher Dispatcher
	opts       SchedulerOptions
	logger     types.Logger
}

// NewObserver creates an Observer. opts must carry a Logger and Metrics.
func NewObserver(subscriber repository.Subscriber, dispatcher Dispatcher, opts SchedulerOptions) *Observer {
	return &Observer{
		subscriber: subscriber,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Watch subscribes to assessmentID and re-evaluates a fresh Scheduler on
// every snapshot until the assessment is terminal, which is then returned.
// onSnapshot, when non-nil, sees every snapshot first.
//
// Cancelling ctx stops the scheduler and returns ctx.Err(). An in-flight
// dispatch is not cancelled. Unknown ids return repository.ErrNotFound.
func (o *Observer) Watch(ctx context.Context, assessmentID, userID string, onSnapshot func(assessment.Assessment)) (*assessment.Assessment, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := o.subscriber.Subscribe(subCtx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to assessment %s: %w", assessmentID, err)
	}

	scheduler := NewScheduler(assessmentID, userID, o.dispatcher, o.opts)
	defer scheduler.Stop()

	ctx = context.WithValue(ctx, types.AssessmentIDKey, assessmentID)
	o.logger.Debug(ctx, "Observing assessment", nil)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case snap, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrSubscriptionClosed
			}

			if onSnapshot != nil {
				onSnapshot(snap)
			}
			scheduler.Start(snap)

			if snap.IsTerminal() {
				o.logger.Info(ctx, "Assessment reached terminal status", types.Fields{"status": snap.Status})
				return &snap, nil
			}
		}
	}
}
