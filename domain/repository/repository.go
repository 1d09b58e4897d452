// Package repository defines the persistence contracts of the assessment
// lifecycle: the compare-and-set assessment store and the append-only
// findings and results sinks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TransitionPatch carries everything a terminal transition writes.
// Findings and Results are committed in the same atomic unit as the status
// change, so a conflicting caller never persists them.
type TransitionPatch struct {
	At           time.Time
	ErrorMessage string
	Findings     []*finding.Finding
	Results      []*result.Result
}

// Apply performs the in-memory state change for to on a.
func (p TransitionPatch) Apply(a *assessment.Assessment, to assessment.Status) error {
	switch to {
	case assessment.StatusCompleted:
		return a.Complete(p.At)
	case assessment.StatusFailed:
		return a.Fail(p.ErrorMessage, p.At)
	default:
		return assessment.ErrInvalidStateTransition
	}
}

// Subscriber delivers assessment snapshots keyed by id.
// The current snapshot is delivered first, then one per change. A slow reader
// only ever misses intermediate snapshots, never receives an older one after
// a newer one. The channel is closed when ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, id string) (<-chan assessment.Assessment, error)
}

// AssessmentStore is the source of truth for assessment status.
type AssessmentStore interface {
	Subscriber

	Create(ctx context.Context, a *assessment.Assessment) error
	Get(ctx context.Context, id string) (*assessment.Assessment, error)
	ListByProject(ctx context.Context, projectID string) ([]*assessment.Assessment, error)

	// Transition applies from -> to only if the stored status still equals from.
	// It returns assessment.ErrStateConflict when it does not, ErrNotFound for
	// unknown ids and assessment.ErrInvalidStateTransition for illegal pairs.
	Transition(ctx context.Context, id string, from, to assessment.Status, patch TransitionPatch) error
}

// FindingFilter narrows ListFindings. Zero values match everything.
type FindingFilter struct {
	Severity finding.Severity
	Status   finding.Status
}

// Matches reports whether f passes the filter.
func (ff FindingFilter) Matches(f *finding.Finding) bool {
	if ff.Severity != "" && f.Severity != ff.Severity {
		return false
	}
	if ff.Status != "" && f.Status != ff.Status {
		return false
	}
	return true
}

// FindingSink reads findings written by scan transitions and applies
// reviewer edits.
type FindingSink interface {
	ListFindings(ctx context.Context, assessmentID string, filter FindingFilter) ([]*finding.Finding, error)
	GetFinding(ctx context.Context, id string) (*finding.Finding, error)

	// UpdateFinding applies patch to one finding and returns the stored result.
	// It returns ErrNotFound for unknown ids and ErrInvalidFindingPatch when
	// the edited finding would not validate.
	UpdateFinding(ctx context.Context, id string, patch FindingPatch, at time.Time) (*finding.Finding, error)
}

// ResultSink reads results written by scan transitions.
type ResultSink interface {
	ListResults(ctx context.Context, assessmentID string) ([]*result.Result, error)
}

// Store groups every persistence contract behind one backend.
type Store interface {
	AssessmentStore
	FindingSink
	ResultSink

	Ping(ctx context.Context) error
	Close() error
}
