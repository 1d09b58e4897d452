package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/repository"
)

// Request types served by AssessmentsWorker.
const (
	TypeAssessmentCreate = "assessment.create"
	TypeAssessmentGet    = "assessment.get"
	TypeAssessmentList   = "assessment.list"
	TypeScanRun          = "scan.run"
	TypeFindingsList     = "findings.list"
	TypeFindingsGet      = "findings.get"
	TypeFindingsUpdate   = "findings.update"
	TypeResultsList      = "results.list"
)

var errMissingField = errors.New("missing required field")

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", errMissingField, name)
	}
	return nil
}

// AssessmentRef identifies one assessment.
type AssessmentRef struct {
	AssessmentID string `json:"assessmentId"`
}

func (r AssessmentRef) Validate() error {
	return required("assessmentId", r.AssessmentID)
}

// ProjectRef identifies one project.
type ProjectRef struct {
	ProjectID string `json:"projectId"`
}

func (r ProjectRef) Validate() error {
	return required("projectId", r.ProjectID)
}

// CreatedAssessment is returned by assessment.create.
type CreatedAssessment struct {
	AssessmentID string `json:"assessmentId"`
}

// ListFindingsRequest is the payload of findings.list.
type ListFindingsRequest struct {
	AssessmentID string           `json:"assessmentId"`
	Severity     finding.Severity `json:"severity,omitempty"`
	Status       finding.Status   `json:"status,omitempty"`
}

func (r ListFindingsRequest) Validate() error {
	if err := required("assessmentId", r.AssessmentID); err != nil {
		return err
	}
	if r.Severity != "" && !r.Severity.IsValid() {
		return fmt.Errorf("%w: %q", finding.ErrInvalidSeverity, r.Severity)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", finding.ErrInvalidStatus, r.Status)
	}
	return nil
}

// FindingRef identifies one finding.
type FindingRef struct {
	FindingID string `json:"findingId"`
}

func (r FindingRef) Validate() error {
	return required("findingId", r.FindingID)
}

// UpdateFindingRequest is the payload of findings.update. Omitted fields are
// left unchanged.
type UpdateFindingRequest struct {
	FindingID string `json:"findingId"`
	repository.FindingPatch
}

func (r UpdateFindingRequest) Validate() error {
	if err := required("findingId", r.FindingID); err != nil {
		return err
	}
	if r.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", repository.ErrInvalidFindingPatch)
	}
	if r.Severity != nil && !r.Severity.IsValid() {
		return fmt.Errorf("%w: %q", finding.ErrInvalidSeverity, *r.Severity)
	}
	if r.Status != nil && !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", finding.ErrInvalidStatus, *r.Status)
	}
	return nil
}
