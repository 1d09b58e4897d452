// Package postgres implements repository.Store on PostgreSQL with sqlx,
// squirrel and lib/pq. Terminal transitions run as a single transaction that
// guards on the current status, writes findings and results, and notifies
// subscribers through LISTEN/NOTIFY.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MaanVader/Chack/application/ports"
	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
	"github.com/MaanVader/Chack/domain/repository"
	"github.com/MaanVader/Chack/observability/types"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	db      ports.Database
	q       queries
	logger  types.Logger
	metrics types.Metrics

	dsn          string
	channel      string
	pollInterval time.Duration
}

// New builds a store on db. cfg supplies the LISTEN/NOTIFY channel and the
// DSN used by subscription listeners.
func New(db ports.Database, cfg config.DatabaseConfig, pollInterval time.Duration, logger types.Logger, metrics types.Metrics) *Store {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Store{
		db:           db,
		q:            newQueries(),
		logger:       logger,
		metrics:      metrics,
		dsn:          cfg.DSN(),
		channel:      cfg.NotifyChannel,
		pollInterval: pollInterval,
	}
}

func (s *Store) Create(ctx context.Context, a *assessment.Assessment) error {
	query, args, err := s.q.insertAssessment(a)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := s.db.Execute(ctx, query, args...); err != nil {
		s.metrics.RecordError("repository.assessments.create", "query")
		return fmt.Errorf("create assessment: %w", err)
	}

	s.metrics.RecordSuccess("repository.assessments.create")
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*assessment.Assessment, error) {
	query, args, err := s.q.selectAssessment(id)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var a assessment.Assessment
	err = s.db.Get(ctx, &a, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		s.metrics.RecordError("repository.assessments.get", "query")
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return &a, nil
}

func (s *Store) ListByProject(ctx context.Context, projectID string) ([]*assessment.Assessment, error) {
	query, args, err := s.q.selectAssessmentsByProject(projectID)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []assessment.Assessment
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		s.metrics.RecordError("repository.assessments.list", "query")
		return nil, fmt.Errorf("list assessments: %w", err)
	}

	out := make([]*assessment.Assessment, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// Transition runs the compare-and-set and the bulk inserts in one transaction.
// Under READ COMMITTED a concurrent UPDATE on the same row waits for the first
// writer and then re-checks the status predicate, so only one caller commits.
func (s *Store) Transition(ctx context.Context, id string, from, to assessment.Status, patch repository.TransitionPatch) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", assessment.ErrInvalidStateTransition, from, to)
	}

	next := &assessment.Assessment{ID: id, Status: from}
	if err := patch.Apply(next, to); err != nil {
		return err
	}

	err := s.db.Transaction(ctx, func(tx ports.Transaction) error {
		query, args, err := s.q.compareAndSet(id, from, next)
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		res, err := tx.Execute(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return s.explainMiss(ctx, tx, id, from)
		}

		if len(patch.Findings) > 0 {
			query, args, err := s.q.insertFindings(id, patch.Findings)
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			if _, err := tx.Execute(ctx, query, args...); err != nil {
				return fmt.Errorf("insert findings: %w", err)
			}
		}

		if len(patch.Results) > 0 {
			query, args, err := s.q.insertResults(id, patch.Results)
			if err != nil {
				return fmt.Errorf("build query: %w", err)
			}
			if _, err := tx.Execute(ctx, query, args...); err != nil {
				return fmt.Errorf("insert results: %w", err)
			}
		}

		query, args, err = s.q.notify(s.channel, id)
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.Execute(ctx, query, args...); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
		return nil
	})

	switch {
	case err == nil:
		s.metrics.RecordSuccess("repository.assessments.transition")
	case errors.Is(err, assessment.ErrStateConflict):
		s.metrics.RecordError("repository.assessments.transition", "conflict")
	case errors.Is(err, repository.ErrNotFound):
		s.metrics.RecordError("repository.assessments.transition", "not_found")
	default:
		s.metrics.RecordError("repository.assessments.transition", "query")
	}
	return err
}

// explainMiss turns a zero-row compare-and-set into not-found or conflict.
func (s *Store) explainMiss(ctx context.Context, tx ports.Transaction, id string, from assessment.Status) error {
	query, args, err := s.q.selectStatus(id)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var current assessment.Status
	err = tx.Get(ctx, &current, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	return fmt.Errorf("%w: expected %s, found %s", assessment.ErrStateConflict, from, current)
}

func (s *Store) ListFindings(ctx context.Context, assessmentID string, filter repository.FindingFilter) ([]*finding.Finding, error) {
	query, args, err := s.q.selectFindings(assessmentID, filter)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []finding.Finding
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		s.metrics.RecordError("repository.findings.list", "query")
		return nil, fmt.Errorf("list findings: %w", err)
	}

	out := make([]*finding.Finding, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) GetFinding(ctx context.Context, id string) (*finding.Finding, error) {
	query, args, err := s.q.selectFinding(id)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var f finding.Finding
	err = s.db.Get(ctx, &f, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get finding: %w", err)
	}
	return &f, nil
}

// UpdateFinding validates the edit against the current row and writes the
// full set of editable columns back.
func (s *Store) UpdateFinding(ctx context.Context, id string, patch repository.FindingPatch, at time.Time) (*finding.Finding, error) {
	f, err := s.GetFinding(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(f, at); err != nil {
		return nil, err
	}

	query, args, err := s.q.updateFinding(f)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if _, err := s.db.Execute(ctx, query, args...); err != nil {
		s.metrics.RecordError("repository.findings.update", "query")
		return nil, fmt.Errorf("update finding: %w", err)
	}

	s.metrics.RecordSuccess("repository.findings.update")
	return f, nil
}

func (s *Store) ListResults(ctx context.Context, assessmentID string) ([]*result.Result, error) {
	query, args, err := s.q.selectResults(assessmentID)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []result.Result
	if err := s.db.Select(ctx, &rows, query, args...); err != nil {
		s.metrics.RecordError("repository.results.list", "query")
		return nil, fmt.Errorf("list results: %w", err)
	}

	out := make([]*result.Result, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
