package finding

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks the impact of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	return s.Rank() >= 0
}

// Rank orders severities, 0 being critical. Unknown severities rank -1.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i
		}
	}
	return -1
}

// Status is the reviewer-facing state of a finding.
type Status string

const (
	StatusOpen          Status = "open"
	StatusConfirmed     Status = "confirmed"
	StatusFalsePositive Status = "false_positive"
	StatusResolved      Status = "resolved"
)

// IsValid reports whether s is a known finding status.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusConfirmed, StatusFalsePositive, StatusResolved:
		return true
	}
	return false
}

// CVSS score bounds.
const (
	MinCVSS = 0.0
	MaxCVSS = 10.0
)

type Finding struct {
	ID              string    `db:"id" json:"id"`
	AssessmentID    string    `db:"assessment_id" json:"assessmentId"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Severity        Severity  `db:"severity" json:"severity"`
	Status          Status    `db:"status" json:"status"`
	CWEID           *string   `db:"cwe_id" json:"cweId,omitempty"`
	CVSSScore       *float64  `db:"cvss_score" json:"cvssScore,omitempty"`
	Location        *string   `db:"location" json:"location,omitempty"`
	Evidence        *string   `db:"evidence" json:"evidence,omitempty"`
	Remediation     *string   `db:"remediation" json:"remediation,omitempty"`
	CreatedByUserID string    `db:"created_by_user_id" json:"createdByUserId"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// Validate checks required fields, the closed enumerations and the CVSS range.
func (f *Finding) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return ErrEmptyTitle
	}
	if !f.Severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, f.Severity)
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, f.Status)
	}
	if f.CVSSScore != nil && (*f.CVSSScore < MinCVSS || *f.CVSSScore > MaxCVSS) {
		return fmt.Errorf("%w: %.1f", ErrCVSSOutOfRange, *f.CVSSScore)
	}
	return nil
}

// IsOpen reports whether the finding still needs attention.
func (f *Finding) IsOpen() bool {
	return f.Status == StatusOpen || f.Status == StatusConfirmed
}
