package scan

import (
	"testing"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemaining(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
	}{
		{"just created", 0, 5 * time.Second},
		{"observer arriving at 4s", 4 * time.Second, time.Second},
		{"exactly at deadline", 5 * time.Second, 0},
		{"late observer", time.Minute, 0},
		{"clock behind baseline", -2 * time.Second, 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Remaining(5*time.Second, base, base.Add(tt.elapsed)))
		})
	}
}

func runningSnapshot(id string, baseline time.Time) assessment.Assessment {
	started := baseline
	return assessment.Assessment{
		ID:        id,
		Status:    assessment.StatusRunning,
		CreatedAt: baseline,
		StartedAt: &started,
		UpdatedAt: baseline,
	}
}

func TestScheduler_FiresNoEarlierThanBaselinePlusDelay(t *testing.T) {
	const delay = 200 * time.Millisecond
	d := newRecordingDispatcher()
	baseline := time.Now()

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(delay))
	defer s.Stop()
	s.Start(runningSnapshot("a-1", baseline))

	waitFired(t, d, 2*time.Second)
	assert.GreaterOrEqual(t, d.first().Sub(baseline), delay)
}

func TestScheduler_LateObserverFiresImmediately(t *testing.T) {
	d := newRecordingDispatcher()
	baseline := time.Now().Add(-time.Minute)

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(5*time.Second))
	defer s.Stop()

	start := time.Now()
	s.Start(runningSnapshot("a-1", baseline))

	waitFired(t, d, time.Second)
	assert.Less(t, d.first().Sub(start), 500*time.Millisecond)
}

func TestScheduler_ObserverArrivingMidDelayWaitsForRemainder(t *testing.T) {
	const delay = 300 * time.Millisecond
	d := newRecordingDispatcher()
	baseline := time.Now().Add(-240 * time.Millisecond)

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(delay))
	defer s.Stop()

	start := time.Now()
	s.Start(runningSnapshot("a-1", baseline))

	waitFired(t, d, 2*time.Second)
	assert.GreaterOrEqual(t, d.first().Sub(baseline), delay)
	assert.Less(t, d.first().Sub(start), delay)
}

func TestScheduler_StopCancelsPendingTrigger(t *testing.T) {
	d := newRecordingDispatcher()

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(100*time.Millisecond))
	s.Start(runningSnapshot("a-1", time.Now()))
	require.True(t, s.Armed())

	s.Stop()
	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, 0, d.count())

	// Start after Stop is ignored.
	s.Start(runningSnapshot("a-1", time.Now().Add(-time.Hour)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestScheduler_StatusChangeCancelsPendingTrigger(t *testing.T) {
	d := newRecordingDispatcher()
	baseline := time.Now()

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(100*time.Millisecond))
	defer s.Stop()
	s.Start(runningSnapshot("a-1", baseline))

	completed := runningSnapshot("a-1", baseline)
	completed.Status = assessment.StatusCompleted
	s.Start(completed)

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestScheduler_GuardPreventsSecondTrigger(t *testing.T) {
	d := newRecordingDispatcher()
	baseline := time.Now().Add(-time.Hour)

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(5*time.Second))
	defer s.Stop()

	for i := 0; i < 5; i++ {
		s.Start(runningSnapshot("a-1", baseline))
	}
	waitFired(t, d, time.Second)

	// Re-evaluation after a successful dispatch does not re-arm.
	s.Start(runningSnapshot("a-1", baseline))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, d.count())
	assert.True(t, s.Armed())
}

func TestScheduler_DispatchFailureAllowsExactlyOneRetry(t *testing.T) {
	d := newRecordingDispatcher()
	d.failN = 1
	baseline := time.Now().Add(-time.Hour)

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(5*time.Second))
	defer s.Stop()

	s.Start(runningSnapshot("a-1", baseline))
	waitFired(t, d, time.Second)
	require.Eventually(t, func() bool { return !s.Armed() }, time.Second, 5*time.Millisecond)

	// No automatic retry without a re-evaluation.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, d.count())

	s.Start(runningSnapshot("a-1", baseline))
	s.Start(runningSnapshot("a-1", baseline))
	waitFired(t, d, time.Second)
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, d.count())
	assert.True(t, s.Armed())
}

func TestScheduler_StopDoesNotCancelInFlightDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	d.block = make(chan struct{})

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(0))
	s.Start(runningSnapshot("a-1", time.Now()))
	waitFired(t, d, time.Second)

	s.Stop()
	close(d.block)
	s.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.ctxErrs, 1)
	assert.NoError(t, d.ctxErrs[0])
}

func TestScheduler_IgnoresOtherAssessments(t *testing.T) {
	d := newRecordingDispatcher()

	s := NewScheduler("a-1", "user-1", d, schedulerOptions(0))
	defer s.Stop()

	s.Start(runningSnapshot("a-2", time.Now()))
	time.Sleep(50 * time.Millisecond)

	assert.False(t, s.Armed())
	assert.Equal(t, 0, d.count())
}
