package result

import "time"

// Well-known result types written by the scan executor.
const (
	TypeSummary   = "summary"
	TypeRawReport = "raw_report"
	TypeError     = "error"
)

// Result is an immutable scan output record.
type Result struct {
	ID           string    `db:"id" json:"id"`
	AssessmentID string    `db:"assessment_id" json:"assessmentId"`
	Type         string    `db:"type" json:"type"`
	Data         string    `db:"data" json:"data"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
