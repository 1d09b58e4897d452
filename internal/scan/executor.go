package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/observability/types"

	"github.com/google/uuid"
)

// DefaultTimeout bounds one executor run when ExecutorOptions.Timeout is zero.
const DefaultTimeout = 2 * time.Minute

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Timeout bounds the scanner call. Zero means DefaultTimeout.
	Timeout time.Duration

	// Artifacts archives the raw scanner output under Bucket. Nil disables archiving.
	Artifacts ports.Storage
	Bucket    string

	Now   func() time.Time
	NewID func() string
}

// Executor runs a scan for a running assessment and commits its outcome.
// RunScan is idempotent: any number of concurrent or repeated calls for the
// same assessment produce exactly one terminal transition and one set of
// findings and results.
type Executor struct {
	store     repository.AssessmentStore
	scanner   Scanner
	artifacts ports.Storage
	bucket    string
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
	logger    types.Logger
	metrics   types.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(store repository.AssessmentStore, scanner Scanner, logger types.Logger, metrics types.Metrics, opts ExecutorOptions) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Executor{
		store:     store,
		scanner:   scanner,
		artifacts: opts.Artifacts,
		bucket:    opts.Bucket,
		timeout:   opts.Timeout,
		now:       opts.Now,
		newID:     opts.NewID,
		logger:    logger.WithFields(types.Fields{"scanner": scanner.Name()}),
		metrics:   metrics,
	}
}

// RunScan executes the scan for assessmentID on behalf of userID.
//
// A missing assessment, an assessment that is no longer running and a lost
// transition race are all silent no-ops returning nil. A failing scanner moves
// the assessment to failed. Only store failures are returned. Archiving the
// raw report is best effort.
//
// The run is detached from ctx cancellation so that a caller going away does
// not abandon a half-finished scan.
func (e *Executor) RunScan(ctx context.Context, assessmentID, userID string) error {
	ctx = context.WithValue(context.WithoutCancel(ctx), types.AssessmentIDKey, assessmentID)

	e.metrics.StartOperation("scan")
	defer e.metrics.EndOperation("scan")
	start := time.Now()

	a, err := e.store.Get(ctx, assessmentID)
	if errors.Is(err, repository.ErrNotFound) {
		e.logger.Warn(ctx, "Assessment not found, skipping scan", nil)
		e.metrics.RecordError("scan", "not_found")
		return nil
	}
	if err != nil {
		e.metrics.RecordError("scan", "store")
		return fmt.Errorf("load assessment %s: %w", assessmentID, err)
	}
	if !a.IsRunning() {
		e.logger.Info(ctx, "Assessment already transitioned, skipping scan", types.Fields{
			"status": a.Status,
		})
		e.metrics.RecordSuccess("scan_skipped")
		return nil
	}

	report, scanErr := e.scan(ctx, a)

	var (
		to        assessment.Status
		patch     repository.TransitionPatch
		artifacts []string
	)
	if scanErr == nil {
		patch, artifacts, scanErr = e.completed(ctx, a, userID, report)
	}
	if scanErr == nil {
		to = assessment.StatusCompleted
	} else {
		to = assessment.StatusFailed
		patch = e.failed(a, scanErr)
		e.logger.Warn(ctx, "Scan failed", types.Fields{"error": scanErr.Error()})
	}

	err = e.store.Transition(ctx, assessmentID, assessment.StatusRunning, to, patch)
	if errors.Is(err, assessment.ErrStateConflict) || errors.Is(err, repository.ErrNotFound) {
		e.logger.Info(ctx, "Lost transition race, discarding scan output", types.Fields{
			"target_status": to,
		})
		e.metrics.RecordSuccess("scan_superseded")
		e.discard(ctx, artifacts)
		return nil
	}
	if err != nil {
		e.metrics.RecordError("scan", "store")
		e.discard(ctx, artifacts)
		return fmt.Errorf("transition assessment %s to %s: %w", assessmentID, to, err)
	}

	e.metrics.RecordDuration("scan", time.Since(start).Seconds())
	if to == assessment.StatusFailed {
		e.metrics.RecordSuccess("scan_failed")
		return nil
	}

	counts := make(map[finding.Severity]int)
	for _, f := range patch.Findings {
		counts[f.Severity]++
	}
	for sev, n := range counts {
		e.metrics.RecordFindings(string(sev), n)
	}
	e.metrics.RecordSuccess("scan_completed")
	e.logger.Info(ctx, "Scan completed", types.Fields{
		"findings":    len(patch.Findings),
		"results":     len(patch.Results),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

// scan invokes the scanner under the executor timeout. Panics are reported
// as scan failures.
func (e *Executor) scan(ctx context.Context, a *assessment.Assessment) (report *Report, err error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scanner panic: %v", r)
		}
	}()

	report, err = e.scanner.Scan(ctx, a)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.New("scanner returned no report")
	}
	return report, nil
}

// completed stamps the report and builds the completion patch. Invalid
// scanner output is returned as an error and fails the scan.
func (e *Executor) completed(ctx context.Context, a *assessment.Assessment, userID string, report *Report) (repository.TransitionPatch, []string, error) {
	now := e.now()
	patch := repository.TransitionPatch{At: now}

	for _, f := range report.Findings {
		cp := *f
		cp.ID = e.newID()
		cp.AssessmentID = a.ID
		cp.CreatedByUserID = userID
		cp.CreatedAt = now
		cp.UpdatedAt = now
		if cp.Status == "" {
			cp.Status = finding.StatusOpen
		}
		if err := cp.Validate(); err != nil {
			return patch, nil, fmt.Errorf("invalid finding %q: %w", cp.Title, err)
		}
		patch.Findings = append(patch.Findings, &cp)
	}

	for _, r := range report.Results {
		cp := *r
		cp.ID = e.newID()
		cp.AssessmentID = a.ID
		cp.CreatedAt = now
		patch.Results = append(patch.Results, &cp)
	}

	var archived []string
	if e.artifacts != nil && len(report.Raw) > 0 {
		key, err := e.archive(ctx, a.ID, report.Raw)
		if err != nil {
			e.logger.Error(ctx, "Failed to archive raw report", err, nil)
			return patch, nil, nil
		}
		archived = append(archived, key)

		data, _ := json.Marshal(map[string]interface{}{
			"bucket": e.bucket,
			"key":    key,
			"size":   len(report.Raw),
		})
		patch.Results = append(patch.Results, &result.Result{
			ID:           e.newID(),
			AssessmentID: a.ID,
			Type:         result.TypeRawReport,
			Data:         string(data),
			CreatedAt:    now,
		})
	}

	return patch, archived, nil
}

func (e *Executor) failed(a *assessment.Assessment, scanErr error) repository.TransitionPatch {
	now := e.now()
	data, _ := json.Marshal(map[string]string{
		"error":    scanErr.Error(),
		"failedAt": now.Format(time.RFC3339),
	})

	return repository.TransitionPatch{
		At:           now,
		ErrorMessage: scanErr.Error(),
		Results: []*result.Result{{
			ID:           e.newID(),
			AssessmentID: a.ID,
			Type:         result.TypeError,
			Data:         string(data),
			CreatedAt:    now,
		}},
	}
}

// archive stores raw under a per-run key so that concurrent runs never
// overwrite each other's artifact.
func (e *Executor) archive(ctx context.Context, assessmentID string, raw []byte) (string, error) {
	key := path.Join("assessments", assessmentID, "reports", e.newID()+".json")

	err := e.artifacts.Put(ctx, e.bucket, key, bytes.NewReader(raw), ports.ObjectMetadata{
		ContentType:   "application/json",
		ContentLength: int64(len(raw)),
		UserMetadata:  map[string]string{"assessment-id": assessmentID, "scanner": e.scanner.Name()},
	})
	if err != nil {
		e.metrics.RecordError("archive", "storage")
		return "", fmt.Errorf("archive raw report: %w", err)
	}

	e.metrics.RecordArtifactSize(result.TypeRawReport, int64(len(raw)))
	return key, nil
}

// discard removes artifacts written by a run whose transition did not commit.
func (e *Executor) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := e.artifacts.Delete(ctx, e.bucket, key); err != nil {
			e.logger.Error(ctx, "Failed to remove orphaned artifact", err, types.Fields{"key": key})
		}
	}
}
