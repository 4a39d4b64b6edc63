package result_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/result"
)

func sampleOutcome() *result.Outcome {
	return &result.Outcome{
		Descriptor:        job.Descriptor{Project: "Jsoup", BugID: "3", Model: "qwen"},
		CheckoutOK:        true,
		CompileOK:         true,
		TestPassed:        false,
		CoverageSucceeded: true,
		Coverage: &result.CoverageMetrics{
			LineCoveragePct: 81.25, BranchCoveragePct: 60, LinesCovered: 13, LinesValid: 16,
			BranchesCovered: 3, BranchesValid: 5,
		},
		TestClass: "TextNodeTest",
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestWriteAndReadOutcome(t *testing.T) {
	base := t.TempDir()
	o := sampleOutcome()
	dir := result.KeyDir(base, o.Descriptor)
	if err := result.WriteOutcome(dir, o); err != nil {
		t.Fatalf("WriteOutcome: %v", err)
	}
	got, err := result.ReadOutcome(filepath.Join(dir, "metadata.json"))
	if err != nil {
		t.Fatalf("ReadOutcome: %v", err)
	}
	if got.Key() != o.Key() {
		t.Errorf("key: got %q, want %q", got.Key(), o.Key())
	}
	if got.Coverage == nil || got.Coverage.LineCoveragePct != 81.25 {
		t.Errorf("coverage: got %+v", got.Coverage)
	}
}

func TestKeyDir(t *testing.T) {
	base := t.TempDir()
	dir := result.KeyDir(base, job.Descriptor{Project: "Math", BugID: "33", Model: "deepseek"})
	expected := filepath.Join(base, "Math", "33", "deepseek")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestFileStoreLastWriteWins(t *testing.T) {
	s := &result.FileStore{Dir: t.TempDir()}
	first := sampleOutcome()
	second := sampleOutcome()
	second.TestPassed = true
	second.Coverage = nil
	second.CoverageSucceeded = false

	if err := s.Put(first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("outcomes: got %d, want 1", len(all))
	}
	if !all[0].TestPassed || all[0].Coverage != nil {
		t.Errorf("expected second outcome to replace first, got %+v", all[0])
	}

	missing, err := s.Get(job.Descriptor{Project: "Lang", BugID: "1", Model: "qwen"})
	if err != nil || missing != nil {
		t.Errorf("Get missing: got %v, %v", missing, err)
	}
}

func TestCollectOutcomesMissingDir(t *testing.T) {
	outcomes, err := result.CollectOutcomes(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("CollectOutcomes: %v", err)
	}
	if len(outcomes) != 0 {
		t.Errorf("expected no outcomes, got %d", len(outcomes))
	}
}

func TestSummaryCSVRoundTrip(t *testing.T) {
	noCov := result.Failed(job.Descriptor{Project: "Math", BugID: "5", Model: "deepseek"}, result.CompileFailed, "javac", time.Now())
	var buf bytes.Buffer
	if err := result.WriteSummaryCSV(&buf, []*result.Outcome{sampleOutcome(), noCov}); err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}
	got, err := result.ReadSummaryCSV(&buf)
	if err != nil {
		t.Fatalf("ReadSummaryCSV: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows: got %d, want 2", len(got))
	}
	if got[0].Coverage == nil || got[0].Coverage.BranchesValid != 5 {
		t.Errorf("row 0 coverage: got %+v", got[0].Coverage)
	}
	if got[1].Coverage != nil {
		t.Errorf("row 1: expected absent coverage, got %+v", got[1].Coverage)
	}
	if got[1].ErrorKind != result.CompileFailed {
		t.Errorf("row 1 error kind: got %q", got[1].ErrorKind)
	}
}

func TestLoadHistoryDetail(t *testing.T) {
	dir := t.TempDir()
	detail := &result.Detail{
		Summary: result.BatchSummary{RunID: "abc", TotalTests: 1, Analyzed: 1, Successful: 1},
		Results: []*result.Outcome{sampleOutcome()},
	}
	if err := result.WriteSummaryFiles(dir, detail); err != nil {
		t.Fatalf("WriteSummaryFiles: %v", err)
	}
	fromJSON, err := result.LoadHistory(filepath.Join(dir, result.DetailJSONName))
	if err != nil {
		t.Fatalf("LoadHistory json: %v", err)
	}
	fromCSV, err := result.LoadHistory(filepath.Join(dir, result.SummaryCSVName))
	if err != nil {
		t.Fatalf("LoadHistory csv: %v", err)
	}
	if len(fromJSON) != 1 || len(fromCSV) != 1 {
		t.Fatalf("history: json=%d csv=%d", len(fromJSON), len(fromCSV))
	}
	if fromJSON[0].Key() != fromCSV[0].Key() {
		t.Errorf("keys differ: %q vs %q", fromJSON[0].Key(), fromCSV[0].Key())
	}
}
