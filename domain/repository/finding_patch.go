package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/MaanVader/Chack/domain/entity/finding"
)

// ErrInvalidFindingPatch wraps every rejection of a FindingPatch.
var ErrInvalidFindingPatch = errors.New("invalid finding update")

// FindingPatch is a reviewer edit of a finding. Nil fields are left unchanged.
type FindingPatch struct {
	Title       *string           `json:"title,omitempty"`
	Description *string           `json:"description,omitempty"`
	Severity    *finding.Severity `json:"severity,omitempty"`
	Status      *finding.Status   `json:"status,omitempty"`
	Remediation *string           `json:"remediation,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p FindingPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Severity == nil &&
		p.Status == nil && p.Remediation == nil
}

// Apply edits f in place and stamps UpdatedAt. The edited finding must still
// pass finding.Validate; on error f is left untouched.
func (p FindingPatch) Apply(f *finding.Finding, at time.Time) error {
	if p.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", ErrInvalidFindingPatch)
	}

	next := *f
	if p.Title != nil {
		next.Title = *p.Title
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Severity != nil {
		next.Severity = *p.Severity
	}
	if p.Status != nil {
		next.Status = *p.Status
	}
	if p.Remediation != nil {
		remediation := *p.Remediation
		next.Remediation = &remediation
	}

	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFindingPatch, err)
	}

	next.UpdatedAt = at
	*f = next
	return nil
}
