// Package scan drives an assessment from running to a terminal status: the
// Scheduler arms a one-shot delayed trigger per observer, a Dispatcher carries
// the trigger to an Executor, and the Executor runs a pluggable Scanner and
// commits the outcome with a compare-and-set transition.
package scan

import (
	"context"
	"fmt"

	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/domain/entity/finding"
	"github.com/MaanVader/Chack/domain/entity/result"
)

// Report is the output of one scanner run. The executor assigns ids,
// timestamps and ownership before persisting it.
type Report struct {
	Findings []*finding.Finding
	Results  []*result.Result

	// Raw is the unprocessed scanner output. It is archived to artifact
	// storage when one is configured and ignored otherwise.
	Raw []byte
}

// Scanner performs the scan work for one assessment.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, a *assessment.Assessment) (*Report, error)
}

// NewScanner returns the scanner registered under name.
func NewScanner(name string) (Scanner, error) {
	switch name {
	case SyntheticScannerName, "":
		return &SyntheticScanner{}, nil
	default:
		return nil, fmt.Errorf("unsupported scanner: %s", name)
	}
}

// ScannerFunc adapts a function to the Scanner interface.
type ScannerFunc func(ctx context.Context, a *assessment.Assessment) (*Report, error)

// Name implements Scanner.
func (f ScannerFunc) Name() string { return "func" }

// Scan implements Scanner.
func (f ScannerFunc) Scan(ctx context.Context, a *assessment.Assessment) (*Report, error) {
	return f(ctx, a)
}
