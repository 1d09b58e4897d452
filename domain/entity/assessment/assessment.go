package assessment

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Assessment struct {
	ID              string     `db:"id" json:"id"`
	ProjectID       string     `db:"project_id" json:"projectId"`
	Name            string     `db:"name" json:"name"`
	Description     *string    `db:"description" json:"description,omitempty"`
	Type            Type       `db:"type" json:"type"`
	TargetType      TargetType `db:"target_type" json:"targetType"`
	TargetURL       *string    `db:"target_url" json:"targetUrl,omitempty"`
	Status          Status     `db:"status" json:"status"`
	ErrorMessage    *string    `db:"error_message" json:"errorMessage,omitempty"`
	CreatedByUserID string     `db:"created_by_user_id" json:"createdByUserId"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	StartedAt       *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

// CreateParams are the caller-supplied fields of a new assessment.
type CreateParams struct {
	ProjectID       string     `json:"projectId"`
	Name            string     `json:"name"`
	Description     *string    `json:"description,omitempty"`
	Type            Type       `json:"type"`
	TargetType      TargetType `json:"targetType"`
	TargetURL       *string    `json:"targetUrl,omitempty"`
	CreatedByUserID string     `json:"createdByUserId"`
}

// Validate checks the closed enumerations and required fields.
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.ProjectID) == "" {
		return ErrEmptyProjectID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
	if !p.TargetType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, p.TargetType)
	}
	if p.TargetURL != nil && *p.TargetURL != "" {
		u, err := url.Parse(*p.TargetURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTargetURL, *p.TargetURL)
		}
	}
	if strings.TrimSpace(p.CreatedByUserID) == "" {
		return ErrEmptyCreator
	}
	return nil
}

// New validates params and returns a running assessment whose baseline is now.
func New(params CreateParams, now time.Time) (*Assessment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	started := now
	a := &Assessment{
		ID:              uuid.NewString(),
		ProjectID:       params.ProjectID,
		Name:            strings.TrimSpace(params.Name),
		Description:     params.Description,
		Type:            params.Type,
		TargetType:      params.TargetType,
		TargetURL:       params.TargetURL,
		Status:          StatusRunning,
		CreatedByUserID: params.CreatedByUserID,
		CreatedAt:       now,
		StartedAt:       &started,
		UpdatedAt:       now,
	}
	if a.TargetURL != nil && *a.TargetURL == "" {
		a.TargetURL = nil
	}
	return a, nil
}

// ============================================================================
// BUSINESS METHODS
// ============================================================================

// Complete moves a running assessment to completed.
func (a *Assessment) Complete(now time.Time) error {
	if !a.Status.CanTransitionTo(StatusCompleted) {
		return fmt.Errorf("%w: cannot complete assessment in status %s",
			ErrInvalidStateTransition, a.Status)
	}

	a.Status = StatusCompleted
	a.CompletedAt = &now
	a.UpdatedAt = now
	a.ErrorMessage = nil
	return nil
}

// Fail moves a running assessment to failed, recording errorMessage.
func (a *Assessment) Fail(errorMessage string, now time.Time) error {
	if a.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if !a.Status.CanTransitionTo(StatusFailed) {
		return fmt.Errorf("%w: cannot fail assessment in status %s",
			ErrInvalidStateTransition, a.Status)
	}

	a.Status = StatusFailed
	a.ErrorMessage = &errorMessage
	a.CompletedAt = &now
	a.UpdatedAt = now
	return nil
}

// ============================================================================
// QUERY METHODS
// ============================================================================

// Baseline is the instant the scan delay is measured from.
func (a *Assessment) Baseline() time.Time {
	if a.StartedAt != nil && !a.StartedAt.IsZero() {
		return *a.StartedAt
	}
	return a.CreatedAt
}

// IsRunning reports whether the scan has not finished yet.
func (a *Assessment) IsRunning() bool {
	return a.Status == StatusRunning
}

// IsTerminal reports whether the assessment reached completed or failed.
func (a *Assessment) IsTerminal() bool {
	return a.Status.IsTerminal()
}

// Duration returns the scan duration once finished.
func (a *Assessment) Duration() *time.Duration {
	if a.CompletedAt == nil {
		return nil
	}
	d := a.CompletedAt.Sub(a.Baseline())
	return &d
}
