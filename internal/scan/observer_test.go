package scan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserver_DrivesAssessmentToCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := newMemoryStore()
	baseline := time.Now()
	a := seedRunning(t, store, baseline)
	exec := newExecutor(store, &SyntheticScanner{}, ExecutorOptions{})

	const delay = 100 * time.Millisecond
	observer := NewObserver(store, exec, schedulerOptions(delay))

	var seen []assessment.Status
	final, err := observer.Watch(ctx, a.ID, "user-1", func(snap assessment.Assessment) {
		seen = append(seen, snap.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, final.Status)
	assert.Equal(t, []assessment.Status{assessment.StatusRunning, assessment.StatusCompleted}, seen)
	assert.GreaterOrEqual(t, final.CompletedAt.Sub(baseline), delay)

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 5)
}

func TestObserver_ConcurrentObserversCommitOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	exec := newExecutor(store, &SyntheticScanner{Latency: 5 * time.Millisecond}, ExecutorOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			observer := NewObserver(store, exec, schedulerOptions(50*time.Millisecond))
			final, err := observer.Watch(ctx, a.ID, "user-1", nil)
			assert.NoError(t, err)
			if final != nil {
				assert.Equal(t, assessment.StatusCompleted, final.Status)
			}
		}()
	}
	wg.Wait()

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 5)

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestObserver_TerminalAssessmentNeverDispatches(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now().Add(-time.Hour))
	require.NoError(t, store.Transition(ctx, a.ID, assessment.StatusRunning, assessment.StatusFailed,
		repository.TransitionPatch{At: time.Now(), ErrorMessage: "aborted"}))

	d := newRecordingDispatcher()
	final, err := NewObserver(store, d, schedulerOptions(0)).Watch(ctx, a.ID, "user-1", nil)

	require.NoError(t, err)
	assert.Equal(t, assessment.StatusFailed, final.Status)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestObserver_CancelStopsPendingTrigger(t *testing.T) {
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	d := newRecordingDispatcher()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewObserver(store, d, schedulerOptions(200*time.Millisecond)).Watch(ctx, a.ID, "user-1", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, d.count())
}

func TestObserver_NotFound(t *testing.T) {
	d := newRecordingDispatcher()

	_, err := NewObserver(newMemoryStore(), d, schedulerOptions(0)).Watch(context.Background(), "missing", "user-1", nil)

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestObserver_SubscriptionClosed(t *testing.T) {
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	d := newRecordingDispatcher()

	go func() {
		time.Sleep(20 * time.Millisecond)
		store.Close()
	}()

	_, err := NewObserver(store, d, schedulerOptions(time.Hour)).Watch(context.Background(), a.ID, "user-1", nil)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}
