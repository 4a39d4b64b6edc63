package job_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalnine/covbatch/internal/job"
)

func TestParseManifest(t *testing.T) {
	input := `# project,bug,model
Jsoup,3,qwen

Jsoup,3,deepseek
Math,5,qwen,extra
Lang
Math,5,qwen
`
	m, err := job.ParseManifest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	want := []job.Descriptor{
		{Project: "Jsoup", BugID: "3", Model: "qwen"},
		{Project: "Jsoup", BugID: "3", Model: "deepseek"},
		{Project: "Math", BugID: "5", Model: "qwen"},
	}
	if len(m.Jobs) != len(want) {
		t.Fatalf("jobs: got %d, want %d (%v)", len(m.Jobs), len(want), m.Jobs)
	}
	for i := range want {
		if m.Jobs[i] != want[i] {
			t.Errorf("job %d: got %+v, want %+v", i, m.Jobs[i], want[i])
		}
	}
	if m.Duplicates != 0 {
		t.Errorf("duplicates: got %d, want 0", m.Duplicates)
	}
}

func TestParseManifestDuplicates(t *testing.T) {
	input := "Jsoup,3,qwen\nMath,5,qwen\nJsoup,3,qwen\nJsoup,3,qwen\n"
	m, err := job.ParseManifest(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.Len() != 2 {
		t.Errorf("jobs: got %d, want 2", m.Len())
	}
	if m.Duplicates != 2 {
		t.Errorf("duplicates: got %d, want 2", m.Duplicates)
	}
	if m.Jobs[0].Key() != "Jsoup-3-qwen" {
		t.Errorf("first key: got %q", m.Jobs[0].Key())
	}
}

func TestLoadManifestMissing(t *testing.T) {
	_, err := job.LoadManifest(filepath.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, job.ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
}

func TestLoadManifestCountByProject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "successful_tests.txt")
	os.WriteFile(path, []byte("Jsoup,1,qwen\nJsoup,1,deepseek\nMath,2,qwen\n"), 0o644)
	m, err := job.LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	counts := m.CountByProject()
	if counts["Jsoup"] != 2 || counts["Math"] != 1 {
		t.Errorf("counts: got %v", counts)
	}
}
