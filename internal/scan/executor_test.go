package scan

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/infrastructure/repository/memory"
	"github.com/MaanVader/Chack/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(store repository.AssessmentStore, scanner Scanner, opts ExecutorOptions) *Executor {
	return NewExecutor(store, scanner, mocks.NewNopLogger(), mocks.NewNopMetrics(), opts)
}

func failingScanner(err error) Scanner {
	return ScannerFunc(func(ctx context.Context, a *assessment.Assessment) (*Report, error) {
		return nil, err
	})
}

func TestExecutor_CompletesWithFindings(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now().Add(-10*time.Second))

	exec := newExecutor(store, &SyntheticScanner{}, ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-2"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	require.Len(t, findings, 5)
	for _, f := range findings {
		assert.Equal(t, a.ID, f.AssessmentID)
		assert.Equal(t, "user-2", f.CreatedByUserID)
		assert.Equal(t, finding.StatusOpen, f.Status)
		assert.NotEmpty(t, f.ID)
	}

	critical, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{Severity: finding.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, "CWE-89", *critical[0].CWEID)
	assert.Equal(t, 9.8, *critical[0].CVSSScore)

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, result.TypeSummary, results[0].Type)

	var summary Summary
	require.NoError(t, json.Unmarshal([]byte(results[0].Data), &summary))
	assert.Equal(t, 5, summary.FindingCount)
	assert.Equal(t, "https://shop.example.com", summary.Target)
}

func TestExecutor_NotFoundIsNoop(t *testing.T) {
	exec := newExecutor(newMemoryStore(), &SyntheticScanner{}, ExecutorOptions{})

	assert.NoError(t, exec.RunScan(context.Background(), "missing", "user-1"))
}

func TestExecutor_AlreadyTerminalIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, &SyntheticScanner{}, ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))
	before, err := store.Get(ctx, a.ID)
	require.NoError(t, err)

	called := false
	second := newExecutor(store, ScannerFunc(func(ctx context.Context, a *assessment.Assessment) (*Report, error) {
		called = true
		return &Report{}, nil
	}), ExecutorOptions{})
	require.NoError(t, second.RunScan(ctx, a.ID, "user-1"))

	after, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 5)
}

func TestExecutor_ConcurrentRunsProduceOneFindingSet(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, &SyntheticScanner{Latency: 10 * time.Millisecond}, ExecutorOptions{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- exec.RunScan(ctx, a.ID, "user-1")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 5)

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestExecutor_ScannerErrorFailsAssessment(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, failingScanner(errors.New("target unreachable")), ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "target unreachable", *got.ErrorMessage)

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, findings)

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, result.TypeError, results[0].Type)
	assert.Contains(t, results[0].Data, "target unreachable")
}

func TestExecutor_ScannerPanicFailsAssessment(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, ScannerFunc(func(ctx context.Context, a *assessment.Assessment) (*Report, error) {
		panic("nil map write")
	}), ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, "scanner panic")
}

func TestExecutor_InvalidFindingFailsAssessment(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, ScannerFunc(func(ctx context.Context, a *assessment.Assessment) (*Report, error) {
		score := 11.0
		return &Report{Findings: []*finding.Finding{{
			Title:     "Out of range",
			Severity:  finding.SeverityHigh,
			CVSSScore: &score,
		}}}, nil
	}), ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusFailed, got.Status)

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestExecutor_ScannerTimeoutFailsAssessment(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(store, &SyntheticScanner{Latency: time.Second}, ExecutorOptions{Timeout: 20 * time.Millisecond})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusFailed, got.Status)
	assert.Contains(t, *got.ErrorMessage, context.DeadlineExceeded.Error())
}

func TestExecutor_IgnoresCallerCancellation(t *testing.T) {
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := newExecutor(store, &SyntheticScanner{Latency: 5 * time.Millisecond}, ExecutorOptions{})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, got.Status)
}

func TestExecutor_ArchivesRawReport(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	artifacts := newMemoryArtifacts()

	exec := newExecutor(store, &SyntheticScanner{}, ExecutorOptions{Artifacts: artifacts, Bucket: "reports"})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var ref struct {
		Bucket string `json:"bucket"`
		Key    string `json:"key"`
	}
	for _, r := range results {
		if r.Type == result.TypeRawReport {
			require.NoError(t, json.Unmarshal([]byte(r.Data), &ref))
		}
	}
	assert.Equal(t, "reports", ref.Bucket)
	assert.Contains(t, ref.Key, "assessments/"+a.ID+"/reports/")

	ok, err := artifacts.Exists(ctx, "reports", ref.Key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExecutor_ArchiveFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	artifacts := newMemoryArtifacts()
	artifacts.putErr = errors.New("bucket unavailable")

	exec := newExecutor(store, &SyntheticScanner{}, ExecutorOptions{Artifacts: artifacts, Bucket: "reports"})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, got.Status)

	results, err := store.ListResults(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

// racingStore completes the assessment behind the executor's back right
// before the executor's own transition.
type racingStore struct {
	*memory.Store
}

func (s racingStore) Transition(ctx context.Context, id string, from, to assessment.Status, patch repository.TransitionPatch) error {
	if err := s.Store.Transition(ctx, id, from, assessment.StatusCompleted, repository.TransitionPatch{At: time.Now()}); err != nil {
		return err
	}
	return s.Store.Transition(ctx, id, from, to, patch)
}

func TestExecutor_LostRaceIsSilentAndDiscardsArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	artifacts := newMemoryArtifacts()

	exec := newExecutor(racingStore{store}, &SyntheticScanner{}, ExecutorOptions{Artifacts: artifacts, Bucket: "reports"})
	require.NoError(t, exec.RunScan(ctx, a.ID, "user-1"))

	findings, err := store.ListFindings(ctx, a.ID, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Empty(t, findings)

	assert.Equal(t, 0, artifacts.len())
	assert.Len(t, artifacts.deleted, 1)
}

// brokenStore fails every transition with an infrastructure error.
type brokenStore struct {
	*memory.Store
}

func (s brokenStore) Transition(ctx context.Context, id string, from, to assessment.Status, patch repository.TransitionPatch) error {
	return errors.New("connection reset by peer")
}

func TestExecutor_StoreFailureIsReturned(t *testing.T) {
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())

	exec := newExecutor(brokenStore{store}, &SyntheticScanner{}, ExecutorOptions{})
	err := exec.RunScan(context.Background(), a.ID, "user-1")

	assert.ErrorContains(t, err, "connection reset by peer")
}

func TestExecutor_RecordsFindingMetrics(t *testing.T) {
	store := newMemoryStore()
	a := seedRunning(t, store, time.Now())
	metrics := mocks.NewNopMetrics()

	exec := NewExecutor(store, &SyntheticScanner{}, mocks.NewNopLogger(), metrics, ExecutorOptions{})
	require.NoError(t, exec.RunScan(context.Background(), a.ID, "user-1"))

	metrics.AssertCalled(t, "RecordFindings", "critical", 1)
	metrics.AssertCalled(t, "RecordFindings", "info", 1)
	metrics.AssertCalled(t, "RecordSuccess", "scan_completed")
	metrics.AssertCalled(t, "EndOperation", "scan")
}
