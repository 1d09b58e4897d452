package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
)

// SyntheticScannerName is the SCAN_SCANNER value selecting SyntheticScanner.
const SyntheticScannerName = "synthetic"

// SyntheticScanner returns a fixed set of representative findings. It stands
// in for a real scanning engine in local and demo deployments.
type SyntheticScanner struct {
	// Latency simulates scan work. Zero returns immediately.
	Latency time.Duration
}

// Name implements Scanner.
func (s *SyntheticScanner) Name() string { return SyntheticScannerName }

// Scan implements Scanner.
func (s *SyntheticScanner) Scan(ctx context.Context, a *assessment.Assessment) (*Report, error) {
	if s.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.Latency):
		}
	}

	findings := syntheticFindings()

	summary, err := json.Marshal(summarize(a, findings))
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	raw, err := json.Marshal(findings)
	if err != nil {
		return nil, fmt.Errorf("marshal raw report: %w", err)
	}

	return &Report{
		Findings: findings,
		Results:  []*result.Result{{Type: result.TypeSummary, Data: string(summary)}},
		Raw:      raw,
	}, nil
}

// Summary is the payload of a summary result.
type Summary struct {
	Scanner      string         `json:"scanner"`
	Target       string         `json:"target,omitempty"`
	TargetType   string         `json:"targetType"`
	FindingCount int            `json:"findingCount"`
	BySeverity   map[string]int `json:"bySeverity"`
}

func summarize(a *assessment.Assessment, findings []*finding.Finding) Summary {
	s := Summary{
		Scanner:      SyntheticScannerName,
		TargetType:   string(a.TargetType),
		FindingCount: len(findings),
		BySeverity:   make(map[string]int, len(finding.Severities)),
	}
	if a.TargetURL != nil {
		s.Target = *a.TargetURL
	}
	for _, f := range findings {
		s.BySeverity[string(f.Severity)]++
	}
	return s
}

func syntheticFindings() []*finding.Finding {
	return []*finding.Finding{
		{
			Title:       "SQL Injection in Login Form",
			Description: "The login form is vulnerable to SQL injection attacks through the username parameter.",
			Severity:    finding.SeverityCritical,
			CWEID:       strPtr("CWE-89"),
			CVSSScore:   floatPtr(9.8),
			Location:    strPtr("/api/auth/login"),
			Evidence:    strPtr("Payload: admin' OR '1'='1 returned a valid session."),
			Remediation: strPtr("Use parameterized queries for every database access."),
		},
		{
			Title:       "Cross-Site Scripting (XSS) in Comments",
			Description: "User comments are rendered without proper sanitization, allowing stored XSS attacks.",
			Severity:    finding.SeverityHigh,
			CWEID:       strPtr("CWE-79"),
			CVSSScore:   floatPtr(7.2),
			Location:    strPtr("/comments"),
			Evidence:    strPtr("Payload: <script>alert(document.cookie)</script> executed on page load."),
			Remediation: strPtr("Encode output and apply a restrictive Content-Security-Policy."),
		},
		{
			Title:       "Weak Password Policy",
			Description: "The application accepts weak passwords without complexity requirements.",
			Severity:    finding.SeverityMedium,
			CWEID:       strPtr("CWE-521"),
			CVSSScore:   floatPtr(5.3),
			Location:    strPtr("/api/users/register"),
			Evidence:    strPtr("Registration succeeded with password \"123456\"."),
			Remediation: strPtr("Enforce minimum length and complexity and check against breached password lists."),
		},
		{
			Title:       "Missing Security Headers",
			Description: "Several security headers are missing from HTTP responses.",
			Severity:    finding.SeverityLow,
			CVSSScore:   floatPtr(3.1),
			Location:    strPtr("All endpoints"),
			Evidence:    strPtr("X-Frame-Options, X-Content-Type-Options and Strict-Transport-Security are absent."),
			Remediation: strPtr("Add the missing headers at the reverse proxy or application middleware."),
		},
		{
			Title:       "Information Disclosure in Error Messages",
			Description: "Detailed error messages expose internal system information.",
			Severity:    finding.SeverityInfo,
			Location:    strPtr("/api/users/123"),
			Evidence:    strPtr("Stack trace including framework versions returned on 500 responses."),
			Remediation: strPtr("Return generic error messages and log details server side."),
		},
	}
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
