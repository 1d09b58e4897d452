package scan

import (
	"context"
	"sync"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/observability/types"
)

// Default scheduler timings.
const (
	DefaultDelay           = 5 * time.Second
	DefaultDispatchTimeout = 30 * time.Second
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Delay is the minimum time between the assessment baseline and the
	// dispatch. Negative values are treated as zero.
	Delay time.Duration

	// DispatchTimeout bounds one dispatcher call. Zero means DefaultDispatchTimeout.
	DispatchTimeout time.Duration

	Now func() time.Time

	// Logger and Metrics are required.
	Logger  types.Logger
	Metrics types.Metrics
}

// Scheduler arms at most one delayed scan trigger for one assessment on
// behalf of one observer.
//
// Start is the re-evaluation entry point and may be called with every
// snapshot the observer sees. The first running snapshot arms a timer for
// the time left until baseline+Delay; later snapshots are no-ops while the
// trigger is armed or has fired. A failed dispatch releases the guard so the
// next re-evaluation arms exactly one new trigger. There is no automatic
// retry.
type Scheduler struct {
	assessmentID    string
	userID          string
	dispatcher      Dispatcher
	delay           time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
	logger          types.Logger
	metrics         types.Metrics

	mu         sync.Mutex
	guard      bool
	stopped    bool
	timer      *time.Timer
	generation uint64
	inflight   sync.WaitGroup
}

// NewScheduler creates a Scheduler for assessmentID. userID is forwarded to
// the dispatcher as the actor of the scan.
func NewScheduler(assessmentID, userID string, dispatcher Dispatcher, opts SchedulerOptions) *Scheduler {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		assessmentID:    assessmentID,
		userID:          userID,
		dispatcher:      dispatcher,
		delay:           opts.Delay,
		dispatchTimeout: opts.DispatchTimeout,
		now:             opts.Now,
		logger:          opts.Logger.WithFields(types.Fields{"assessment_id": assessmentID}),
		metrics:         opts.Metrics,
	}
}

// Remaining returns the time left until baseline+delay, never negative.
func Remaining(delay time.Duration, baseline, now time.Time) time.Duration {
	remaining := delay - now.Sub(baseline)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start re-evaluates the trigger against snap.
func (s *Scheduler) Start(snap assessment.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()

	if s.stopped {
		return
	}
	if snap.ID != s.assessmentID {
		s.logger.Warn(ctx, "Ignoring snapshot for another assessment", types.Fields{"snapshot_id": snap.ID})
		return
	}
	if !snap.IsRunning() {
		s.cancelLocked(ctx, "status changed to "+string(snap.Status))
		return
	}
	if s.guard {
		return
	}

	remaining := Remaining(s.delay, snap.Baseline(), s.now())

	s.guard = true
	s.generation++
	gen := s.generation
	s.timer = time.AfterFunc(remaining, func() { s.fire(gen) })

	s.metrics.RecordSuccess("trigger_armed")
	s.logger.Info(ctx, "Scan trigger armed", types.Fields{
		"remaining_ms": remaining.Milliseconds(),
	})
}

// Stop cancels a pending trigger. A dispatch that has already started is
// not cancelled. Start is a no-op after Stop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.cancelLocked(context.Background(), "observer stopped")
}

// Wait blocks until in-flight dispatches have returned. Call it after Stop.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// Armed reports whether the guard is held, i.e. a trigger is pending or has
// been dispatched successfully.
func (s *Scheduler) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard
}

func (s *Scheduler) cancelLocked(ctx context.Context, reason string) {
	if s.timer == nil {
		return
	}
	// Bumping the generation turns a timer that already fired but has not
	// taken the lock yet into a no-op.
	s.timer.Stop()
	s.timer = nil
	s.generation++

	s.metrics.RecordSuccess("trigger_cancelled")
	s.logger.Info(ctx, "Scan trigger cancelled", types.Fields{"reason": reason})
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()

	ctx := context.WithValue(context.Background(), types.AssessmentIDKey, s.assessmentID)
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	s.metrics.StartOperation("dispatch")
	defer s.metrics.EndOperation("dispatch")
	start := time.Now()

	err := s.dispatcher.RunScan(ctx, s.assessmentID, s.userID)
	s.metrics.RecordDuration("dispatch", time.Since(start).Seconds())

	if err != nil {
		s.mu.Lock()
		s.guard = false
		s.mu.Unlock()

		s.metrics.RecordError("dispatch", "transport")
		s.logger.Error(ctx, "Scan dispatch failed, trigger released for retry", err, nil)
		return
	}

	s.metrics.RecordSuccess("dispatch")
	s.logger.Info(ctx, "Scan dispatched", nil)
}
