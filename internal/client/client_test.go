package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/handler/platforms"
	"github.com/MaanVader/Chack/infrastructure/repository/memory"
	"github.com/MaanVader/Chack/internal/scan"
	"github.com/MaanVader/Chack/internal/worker"
	"github.com/MaanVader/Chack/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	store := memory.New(mocks.NewNopLogger(), mocks.NewNopMetrics())
	executor := scan.NewExecutor(store, &scan.SyntheticScanner{}, mocks.NewNopLogger(), mocks.NewNopMetrics(), scan.ExecutorOptions{})
	w := worker.NewAssessmentsWorker(store, executor, mocks.NewNopLogger(), mocks.NewNopMetrics())

	cfg := config.DefaultHandlerConfig()
	h := handler.NewHandler(w, mocks.NewNopProvider(), &cfg, handler.PlatformHTTP)

	srv := httptest.NewServer(platforms.NewHTTPAdapter(h))
	t.Cleanup(func() {
		srv.Close()
		store.Close()
	})
	return srv, store
}

func newTestClient(url string) *Client {
	return New(url, config.HTTPConfig{Timeout: 5 * time.Second, MaxRetries: 1}, 10*time.Millisecond, mocks.NewNopLogger())
}

func createParams() assessment.CreateParams {
	target := "https://shop.example.com"
	return assessment.CreateParams{
		ProjectID:       "project-1",
		Name:            "Storefront",
		Type:            assessment.TypeBlackbox,
		TargetType:      assessment.TargetWebApp,
		TargetURL:       &target,
		CreatedByUserID: "user-1",
	}
}

func TestClient_CreateGetRunScan(t *testing.T) {
	srv, store := newAPI(t)
	c := newTestClient(srv.URL)
	ctx := context.Background()

	id, err := c.Create(ctx, createParams())
	require.NoError(t, err)

	a, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusRunning, a.Status)

	require.NoError(t, c.RunScan(ctx, id, "user-1"))

	a, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, a.Status)

	findings, err := store.ListFindings(ctx, id, repository.FindingFilter{})
	require.NoError(t, err)
	assert.Len(t, findings, 5)
}

func TestClient_GetNotFound(t *testing.T) {
	srv, _ := newAPI(t)

	_, err := newTestClient(srv.URL).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClient_ValidationError(t *testing.T) {
	srv, _ := newAPI(t)

	params := createParams()
	params.TargetType = "mainframe"

	_, err := newTestClient(srv.URL).Create(context.Background(), params)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, handler.CodeValidation, apiErr.Code)
	assert.False(t, apiErr.Retryable)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/scan.run", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"r","success":true,"data":{}}`))
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).RunScan(context.Background(), "a-1", "u-1"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_SubscribeDeliversChanges(t *testing.T) {
	srv, store := newAPI(t)
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := c.Create(ctx, createParams())
	require.NoError(t, err)

	ch, err := c.Subscribe(ctx, id)
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, assessment.StatusRunning, first.Status)

	require.NoError(t, store.Transition(ctx, id, assessment.StatusRunning, assessment.StatusFailed, repository.TransitionPatch{
		At:           time.Now().UTC(),
		ErrorMessage: "scanner crashed",
	}))

	select {
	case snap := <-ch:
		assert.Equal(t, assessment.StatusFailed, snap.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal snapshot not delivered")
	}

	cancel()
	for range ch {
	}
}

func TestClient_SubscribeUnknown(t *testing.T) {
	srv, _ := newAPI(t)

	_, err := newTestClient(srv.URL).Subscribe(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClient_RemoteObserverCompletesAssessment(t *testing.T) {
	srv, _ := newAPI(t)
	c := newTestClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.Create(ctx, createParams())
	require.NoError(t, err)

	observer := scan.NewObserver(c, c, scan.SchedulerOptions{
		Delay:           50 * time.Millisecond,
		DispatchTimeout: time.Second,
		Logger:          mocks.NewNopLogger(),
		Metrics:         mocks.NewNopMetrics(),
	})

	final, err := observer.Watch(ctx, id, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusCompleted, final.Status)
}
