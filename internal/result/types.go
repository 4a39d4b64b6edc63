package result

import (
	"time"

	"github.com/signalnine/covbatch/internal/job"
)

// ErrorKind classifies why a job's pipeline stopped. The empty kind means the
// pipeline ran to the end.
type ErrorKind string

const (
	TestNotFound        ErrorKind = "test_not_found"
	CheckoutFailed      ErrorKind = "checkout_failed"
	PlacementFailed     ErrorKind = "placement_failed"
	CompileFailed       ErrorKind = "compile_failed"
	CoverageUnavailable ErrorKind = "coverage_unavailable"
	InternalError       ErrorKind = "internal_error"
)

// CoverageMetrics is the normalized coverage summary of one job. Percentages
// are in [0,100] rounded to two decimals.
type CoverageMetrics struct {
	LineCoveragePct   float64 `json:"line_coverage"`
	BranchCoveragePct float64 `json:"branch_coverage"`
	LinesCovered      int     `json:"lines_covered"`
	LinesValid        int     `json:"lines_valid"`
	BranchesCovered   int     `json:"branches_covered"`
	BranchesValid     int     `json:"branches_valid"`
}

// Outcome is the immutable result of attempting one job. A re-attempt
// produces a new Outcome that replaces the prior one for the same key.
type Outcome struct {
	job.Descriptor
	CheckoutOK        bool             `json:"checkout_success"`
	CompileOK         bool             `json:"compile_success"`
	TestPassed        bool             `json:"test_passed"`
	CoverageSucceeded bool             `json:"coverage_success"`
	Coverage          *CoverageMetrics `json:"coverage_data"`
	TestClass         string           `json:"test_class,omitempty"`
	TestFile          string           `json:"test_file,omitempty"`
	Workspace         string           `json:"workspace,omitempty"`
	ErrorKind         ErrorKind        `json:"error_kind,omitempty"`
	Error             string           `json:"error,omitempty"`
	DurationS         float64          `json:"duration_s,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Succeeded reports whether the job counts as completed for progress tracking.
func (o *Outcome) Succeeded() bool {
	return o.CoverageSucceeded
}

// Failed builds an Outcome for a job that stopped before producing coverage.
func Failed(d job.Descriptor, kind ErrorKind, msg string, at time.Time) *Outcome {
	return &Outcome{
		Descriptor: d,
		ErrorKind:  kind,
		Error:      msg,
		Timestamp:  at,
	}
}
