// Package worker implements the assessments Worker: the request router that
// sits behind every handler platform and talks to the store and the scan
// executor.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/internal/scan"
	"github.com/MaanVader/Chack/observability/types"
)

// Name is the worker name reported by health checks and used as consumer tag.
const Name = "assessments"

type validator interface {
	Validate() error
}

// AssessmentsWorker implements handler.Worker.
type AssessmentsWorker struct {
	store    repository.Store
	executor scan.Dispatcher
	logger   types.Logger
	metrics  types.Metrics
	now      func() time.Time
}

// NewAssessmentsWorker creates the worker. executor runs scan.run requests
// in-process; it is normally a *scan.Executor.
func NewAssessmentsWorker(store repository.Store, executor scan.Dispatcher, logger types.Logger, metrics types.Metrics) *AssessmentsWorker {
	return &AssessmentsWorker{
		store:    store,
		executor: executor,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var _ handler.Worker = (*AssessmentsWorker)(nil)

// Name returns the worker name.
func (w *AssessmentsWorker) Name() string {
	return Name
}

// Process routes a request by type.
func (w *AssessmentsWorker) Process(ctx context.Context, req handler.Request) (handler.Response, error) {
	w.metrics.StartOperation("worker_process")
	defer w.metrics.EndOperation("worker_process")

	startTime := time.Now()
	defer func() {
		w.metrics.RecordDuration("worker_process", time.Since(startTime).Seconds())
	}()

	var (
		data interface{}
		err  error
	)

	switch req.Type {
	case TypeAssessmentCreate:
		data, err = w.createAssessment(ctx, req)
	case TypeAssessmentGet:
		data, err = w.getAssessment(ctx, req)
	case TypeAssessmentList:
		data, err = w.listAssessments(ctx, req)
	case TypeScanRun:
		data, err = w.runScan(ctx, req)
	case TypeFindingsList:
		data, err = w.listFindings(ctx, req)
	case TypeFindingsGet:
		data, err = w.getFinding(ctx, req)
	case TypeFindingsUpdate:
		data, err = w.updateFinding(ctx, req)
	case TypeResultsList:
		data, err = w.listResults(ctx, req)
	default:
		w.metrics.RecordError("worker_process", "unsupported_type")
		return handler.NewErrorResponse(req.ID, handler.CodeUnsupportedType,
			"Unsupported request type", req.Type), nil
	}

	if err != nil {
		return w.errorResponse(ctx, req, err), nil
	}

	resp, err := handler.NewSuccessResponse(req.ID, data)
	if err != nil {
		w.metrics.RecordError("worker_process", "response_creation")
		return handler.NewErrorResponse(req.ID, handler.CodeInternal,
			"Failed to create response", err.Error()), nil
	}

	w.metrics.RecordSuccess("worker_process")
	return resp, nil
}

// Health pings the store.
func (w *AssessmentsWorker) Health(ctx context.Context) error {
	if err := w.store.Ping(ctx); err != nil {
		w.metrics.RecordError("health_check", "store")
		return err
	}
	w.metrics.RecordSuccess("health_check")
	return nil
}

// requestError marks a caller mistake: bad JSON or a failed validation.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func decode(req handler.Request, v validator) error {
	if err := req.Unmarshal(v); err != nil {
		return &requestError{err: err}
	}
	if err := v.Validate(); err != nil {
		return &requestError{err: err}
	}
	return nil
}

func (w *AssessmentsWorker) errorResponse(ctx context.Context, req handler.Request, err error) handler.Response {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		w.metrics.RecordError("worker_process", "validation")
		return handler.NewErrorResponse(req.ID, handler.CodeValidation, "Invalid request", err.Error())

	case errors.Is(err, repository.ErrNotFound):
		w.metrics.RecordError("worker_process", "not_found")
		return handler.NewErrorResponse(req.ID, handler.CodeNotFound, "Not found", err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		w.metrics.RecordError("worker_process", "timeout")
		return handler.NewErrorResponse(req.ID, handler.CodeTimeout, "Request timed out", err.Error())

	case errors.Is(err, context.Canceled):
		w.metrics.RecordError("worker_process", "cancelled")
		return handler.NewErrorResponse(req.ID, handler.CodeCancelled, "Request cancelled", err.Error())

	default:
		w.metrics.RecordError("worker_process", "store")
		w.logger.Error(ctx, "Request failed", err, types.Fields{
			"request_id":   req.ID,
			"request_type": req.Type,
		})
		return handler.NewErrorResponse(req.ID, handler.CodeTemporary, "Store unavailable", err.Error())
	}
}

func (w *AssessmentsWorker) createAssessment(ctx context.Context, req handler.Request) (interface{}, error) {
	var params assessment.CreateParams
	if err := decode(req, &params); err != nil {
		return nil, err
	}

	a, err := assessment.New(params, w.now())
	if err != nil {
		return nil, &requestError{err: err}
	}
	if err := w.store.Create(ctx, a); err != nil {
		return nil, err
	}

	w.logger.Info(ctx, "Assessment created", types.Fields{
		"assessment_id": a.ID,
		"project_id":    a.ProjectID,
		"target_type":   a.TargetType,
	})
	return CreatedAssessment{AssessmentID: a.ID}, nil
}

// getAssessment returns nil data for unknown ids.
func (w *AssessmentsWorker) getAssessment(ctx context.Context, req handler.Request) (interface{}, error) {
	var ref AssessmentRef
	if err := decode(req, &ref); err != nil {
		return nil, err
	}

	a, err := w.store.Get(ctx, ref.AssessmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (w *AssessmentsWorker) listAssessments(ctx context.Context, req handler.Request) (interface{}, error) {
	var ref ProjectRef
	if err := decode(req, &ref); err != nil {
		return nil, err
	}
	return w.store.ListByProject(ctx, ref.ProjectID)
}

// runScan returns an empty object whether the scan ran, was skipped or lost
// the race; only store failures surface as errors.
func (w *AssessmentsWorker) runScan(ctx context.Context, req handler.Request) (interface{}, error) {
	var run scan.RunScanRequest
	if err := decode(req, &run); err != nil {
		return nil, err
	}

	if err := w.executor.RunScan(ctx, run.AssessmentID, run.UserID); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (w *AssessmentsWorker) listFindings(ctx context.Context, req handler.Request) (interface{}, error) {
	var list ListFindingsRequest
	if err := decode(req, &list); err != nil {
		return nil, err
	}
	return w.store.ListFindings(ctx, list.AssessmentID, repository.FindingFilter{
		Severity: list.Severity,
		Status:   list.Status,
	})
}

// getFinding returns nil data for unknown ids.
func (w *AssessmentsWorker) getFinding(ctx context.Context, req handler.Request) (interface{}, error) {
	var ref FindingRef
	if err := decode(req, &ref); err != nil {
		return nil, err
	}

	f, err := w.store.GetFinding(ctx, ref.FindingID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (w *AssessmentsWorker) updateFinding(ctx context.Context, req handler.Request) (interface{}, error) {
	var update UpdateFindingRequest
	if err := decode(req, &update); err != nil {
		return nil, err
	}

	f, err := w.store.UpdateFinding(ctx, update.FindingID, update.FindingPatch, w.now())
	if errors.Is(err, repository.ErrInvalidFindingPatch) {
		return nil, &requestError{err: err}
	}
	if err != nil {
		return nil, err
	}

	w.logger.Info(ctx, "Finding updated", types.Fields{
		"finding_id":    f.ID,
		"assessment_id": f.AssessmentID,
		"status":        f.Status,
		"severity":      f.Severity,
	})
	return f, nil
}

func (w *AssessmentsWorker) listResults(ctx context.Context, req handler.Request) (interface{}, error) {
	var ref AssessmentRef
	if err := decode(req, &ref); err != nil {
		return nil, err
	}
	return w.store.ListResults(ctx, ref.AssessmentID)
}
