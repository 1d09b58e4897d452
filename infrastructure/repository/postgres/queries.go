package postgres

import (
	"github.com/Masterminds/squirrel"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
	"github.com/MaanVader/Chack/domain/repository"
)

const (
	tableAssessments = "assessments"
	tableFindings    = "findings"
	tableResults     = "results"
)

var (
	assessmentColumns = []string{
		"id", "project_id", "name", "description", "type", "target_type", "target_url",
		"status", "error_message", "created_by_user_id", "created_at", "started_at",
		"completed_at", "updated_at",
	}
	findingColumns = []string{
		"id", "assessment_id", "title", "description", "severity", "status", "cwe_id",
		"cvss_score", "location", "evidence", "remediation", "created_by_user_id",
		"created_at", "updated_at",
	}
	resultColumns = []string{"id", "assessment_id", "type", "data", "created_at"}
)

// severityOrder sorts findings of one batch from critical to info.
const severityOrder = "array_position(ARRAY['critical','high','medium','low','info']::text[], severity)"

// queries builds every statement the store runs.
type queries struct {
	qb squirrel.StatementBuilderType
}

func newQueries() queries {
	return queries{qb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (q queries) insertAssessment(a *assessment.Assessment) (string, []interface{}, error) {
	return q.qb.Insert(tableAssessments).
		Columns(assessmentColumns...).
		Values(
			a.ID, a.ProjectID, a.Name, a.Description, a.Type, a.TargetType, a.TargetURL,
			a.Status, a.ErrorMessage, a.CreatedByUserID, a.CreatedAt, a.StartedAt,
			a.CompletedAt, a.UpdatedAt,
		).
		ToSql()
}

func (q queries) selectAssessment(id string) (string, []interface{}, error) {
	return q.qb.Select(assessmentColumns...).
		From(tableAssessments).
		Where(squirrel.Eq{"id": id}).
		ToSql()
}

func (q queries) selectAssessmentsByProject(projectID string) (string, []interface{}, error) {
	return q.qb.Select(assessmentColumns...).
		From(tableAssessments).
		Where(squirrel.Eq{"project_id": projectID}).
		OrderBy("created_at DESC").
		ToSql()
}

func (q queries) selectStatus(id string) (string, []interface{}, error) {
	return q.qb.Select("status").
		From(tableAssessments).
		Where(squirrel.Eq{"id": id}).
		ToSql()
}

// compareAndSet updates the row only while its status still equals from.
func (q queries) compareAndSet(id string, from assessment.Status, next *assessment.Assessment) (string, []interface{}, error) {
	return q.qb.Update(tableAssessments).
		Set("status", next.Status).
		Set("error_message", next.ErrorMessage).
		Set("completed_at", next.CompletedAt).
		Set("updated_at", next.UpdatedAt).
		Where(squirrel.Eq{"id": id, "status": from}).
		ToSql()
}

func (q queries) insertFindings(assessmentID string, findings []*finding.Finding) (string, []interface{}, error) {
	ins := q.qb.Insert(tableFindings).Columns(findingColumns...)
	for _, f := range findings {
		ins = ins.Values(
			f.ID, assessmentID, f.Title, f.Description, f.Severity, f.Status, f.CWEID,
			f.CVSSScore, f.Location, f.Evidence, f.Remediation, f.CreatedByUserID,
			f.CreatedAt, f.UpdatedAt,
		)
	}
	return ins.ToSql()
}

func (q queries) insertResults(assessmentID string, results []*result.Result) (string, []interface{}, error) {
	ins := q.qb.Insert(tableResults).Columns(resultColumns...)
	for _, r := range results {
		ins = ins.Values(r.ID, assessmentID, r.Type, r.Data, r.CreatedAt)
	}
	return ins.ToSql()
}

func (q queries) notify(channel, id string) (string, []interface{}, error) {
	return q.qb.Select().Column(squirrel.Expr("pg_notify(?, ?)", channel, id)).ToSql()
}

func (q queries) selectFindings(assessmentID string, filter repository.FindingFilter) (string, []interface{}, error) {
	where := squirrel.Eq{"assessment_id": assessmentID}
	if filter.Severity != "" {
		where["severity"] = filter.Severity
	}
	if filter.Status != "" {
		where["status"] = filter.Status
	}

	return q.qb.Select(findingColumns...).
		From(tableFindings).
		Where(where).
		OrderBy("created_at DESC", severityOrder).
		ToSql()
}

func (q queries) selectFinding(id string) (string, []interface{}, error) {
	return q.qb.Select(findingColumns...).
		From(tableFindings).
		Where(squirrel.Eq{"id": id}).
		ToSql()
}

func (q queries) updateFinding(f *finding.Finding) (string, []interface{}, error) {
	return q.qb.Update(tableFindings).
		Set("title", f.Title).
		Set("description", f.Description).
		Set("severity", f.Severity).
		Set("status", f.Status).
		Set("remediation", f.Remediation).
		Set("updated_at", f.UpdatedAt).
		Where(squirrel.Eq{"id": f.ID}).
		ToSql()
}

func (q queries) selectResults(assessmentID string) (string, []interface{}, error) {
	return q.qb.Select(resultColumns...).
		From(tableResults).
		Where(squirrel.Eq{"assessment_id": assessmentID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
}
