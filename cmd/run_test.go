package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/covbatch/internal/batch"
	"github.com/signalnine/covbatch/internal/checkpoint"
	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/result"
)

func TestPromptResume(t *testing.T) {
	st := checkpoint.New()
	st.MarkCompleted("Lang-1-gpt")
	st.MarkFailed("Lang-2-gpt")
	st.Advance(2)

	tests := []struct {
		name  string
		input string
		want  batch.ResumePolicy
	}{
		{"enter resumes", "\n", batch.Resume},
		{"yes resumes", "y\n", batch.Resume},
		{"no restarts", "n\n", batch.Restart},
		{"NO restarts", "NO\n", batch.Restart},
		{"eof resumes", "", batch.Resume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := promptResume(strings.NewReader(tt.input), &out, st, 10)
			if got != tt.want {
				t.Errorf("promptResume(%q) = %s, want %s", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "2/10 jobs done (1 completed, 1 failed)") {
				t.Errorf("unexpected prompt %q", out.String())
			}
		})
	}
}

func TestProgressLine(t *testing.T) {
	d := job.Descriptor{Project: "Jsoup", BugID: "3", Model: "qwen"}
	ok := progressLine(batch.Progress{Index: 0, Total: 4, Outcome: &result.Outcome{
		Descriptor:        d,
		CoverageSucceeded: true,
		Coverage:          &result.CoverageMetrics{LineCoveragePct: 85.32, BranchCoveragePct: 50},
	}})
	if !strings.Contains(ok, "Jsoup-3-qwen") || !strings.Contains(ok, "85.32%") {
		t.Errorf("unexpected success line %q", ok)
	}

	fail := progressLine(batch.Progress{Index: 3, Total: 4, Retry: true, Outcome: result.Failed(d, result.CompileFailed, "", time.Time{})})
	if !strings.Contains(fail, "compile_failed") || !strings.Contains(fail, "retry") {
		t.Errorf("unexpected failure line %q", fail)
	}
}

func TestProgressLineWithoutMetrics(t *testing.T) {
	d := job.Descriptor{Project: "Jsoup", BugID: "3", Model: "qwen"}
	line := progressLine(batch.Progress{Index: 1, Total: 4, Outcome: &result.Outcome{Descriptor: d, CoverageSucceeded: true}})
	if !strings.Contains(line, "Jsoup-3-qwen") || strings.Contains(line, "%") {
		t.Errorf("unexpected success line %q", line)
	}
}

func TestRootHasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"run", "report", "list", "status"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
