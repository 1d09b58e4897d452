package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/handler"
	handlermocks "github.com/MaanVader/Chack/handler/mocks"
	"github.com/MaanVader/Chack/observability/mocks"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHandler_MiddlewareOrder(t *testing.T) {
	worker := new(handlermocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.ExpectProcessAny(handler.Response{Success: true}, nil)

	cfg := config.DefaultHandlerConfig()
	h := handler.NewHandler(worker, mocks.NewNopProvider(), &cfg, handler.PlatformHTTP)

	var order []string
	tag := func(name string) handler.Middleware {
		return func(next handler.HandlerFunc) handler.HandlerFunc {
			return func(ctx context.Context, req handler.Request) (handler.Response, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	h.Use(tag("first"))
	h.Use(tag("second"))

	_, err := h.Handle(context.Background(), handler.Request{ID: "req-1", Type: "assessment.get"})

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestHandler_ContextValues(t *testing.T) {
	worker := new(handlermocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.On("Process", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Value(types.RequestIDKey) == "req-7" &&
			ctx.Value(handler.WorkerKey) == "assessments" &&
			ctx.Value(handler.PlatformKey) == handler.PlatformRabbitMQ
	}), mock.Anything).Return(handler.Response{Success: true}, nil)

	cfg := config.DefaultHandlerConfig()
	h := handler.NewHandler(worker, mocks.NewNopProvider(), &cfg, handler.PlatformRabbitMQ)

	resp, err := h.Handle(context.Background(), handler.Request{ID: "req-7"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	worker.AssertExpectations(t)
}

func TestFactory_Create(t *testing.T) {
	worker := new(handlermocks.MockWorker)
	worker.On("Name").Return("assessments")
	worker.ExpectProcess("scan.run", handler.Response{ID: "req-1", Success: true}, nil)

	h := handler.NewFactory(worker, mocks.NewNopProvider()).
		WithRetryConfig(config.RetryConfig{}).
		CreateHTTP()

	assert.Equal(t, handler.PlatformHTTP, h.Platform())

	t.Run("valid request reaches the worker", func(t *testing.T) {
		resp, err := h.Handle(context.Background(), handler.Request{
			ID:      "req-1",
			Type:    "scan.run",
			Payload: json.RawMessage(`{"assessmentId":"a-1","userId":"u-1"}`),
		})

		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Metadata["trace_id"])
	})

	t.Run("invalid request is rejected before the worker", func(t *testing.T) {
		resp, err := h.Handle(context.Background(), handler.Request{ID: "req-2", Type: "scan.run"})

		require.NoError(t, err)
		assert.Equal(t, handler.CodeValidation, resp.Error.Code)
	})

	worker.AssertNumberOfCalls(t, "Process", 1)
}

func TestHandler_Health(t *testing.T) {
	worker := new(handlermocks.MockWorker)
	worker.On("Health", mock.Anything).Return(errors.New("store unreachable"))

	cfg := config.DefaultHandlerConfig()
	h := handler.NewHandler(worker, mocks.NewNopProvider(), &cfg, handler.PlatformHTTP)

	assert.EqualError(t, h.Health(context.Background()), "store unreachable")
}
