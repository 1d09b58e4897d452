package scan

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/infrastructure/repository/memory"
	"github.com/MaanVader/Chack/observability/mocks"

	"github.com/stretchr/testify/require"
)

func newMemoryStore() *memory.Store {
	return memory.New(mocks.NewNopLogger(), mocks.NewNopMetrics())
}

func seedRunning(t *testing.T, store *memory.Store, baseline time.Time) *assessment.Assessment {
	t.Helper()

	target := "https://shop.example.com"
	a, err := assessment.New(assessment.CreateParams{
		ProjectID:       "project-1",
		Name:            "Storefront",
		Type:            assessment.TypeBlackbox,
		TargetType:      assessment.TargetWebApp,
		TargetURL:       &target,
		CreatedByUserID: "user-1",
	}, baseline)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), a))
	return a
}

func schedulerOptions(delay time.Duration) SchedulerOptions {
	return SchedulerOptions{
		Delay:           delay,
		DispatchTimeout: time.Second,
		Logger:          mocks.NewNopLogger(),
		Metrics:         mocks.NewNopMetrics(),
	}
}

// recordingDispatcher records every dispatch and optionally fails or blocks.
type recordingDispatcher struct {
	mu      sync.Mutex
	calls   []time.Time
	ctxErrs []error
	failN   int
	block   chan struct{}
	fired   chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{fired: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) RunScan(ctx context.Context, assessmentID, userID string) error {
	d.mu.Lock()
	d.calls = append(d.calls, time.Now())
	fail := d.failN > 0
	if fail {
		d.failN--
	}
	block := d.block
	d.mu.Unlock()

	d.fired <- struct{}{}

	if block != nil {
		<-block
	}

	d.mu.Lock()
	d.ctxErrs = append(d.ctxErrs, ctx.Err())
	d.mu.Unlock()

	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *recordingDispatcher) first() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[0]
}

func waitFired(t *testing.T, d *recordingDispatcher, within time.Duration) {
	t.Helper()
	select {
	case <-d.fired:
	case <-time.After(within):
		t.Fatalf("dispatch did not fire within %v", within)
	}
}

// memoryArtifacts is an in-memory ports.Storage.
type memoryArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

func newMemoryArtifacts() *memoryArtifacts {
	return &memoryArtifacts{objects: make(map[string][]byte)}
}

func (m *memoryArtifacts) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ports.ObjectMetadata) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = data
	return nil
}

func (m *memoryArtifacts) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ports.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryArtifacts) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[bucket+"/"+key]
	return ok, nil
}

func (m *memoryArtifacts) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryArtifacts) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
