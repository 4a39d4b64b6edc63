package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/signalnine/covbatch/internal/result"
)

// CompileRecord is one compilation attempt. The JSON form matches the
// compilation results written by the test generation step.
type CompileRecord struct {
	Project string `json:"project"`
	BugID   string `json:"bug_id"`
	Model   string `json:"model"`
	Success bool   `json:"compilation_success"`
	Error   string `json:"error,omitempty"`
}

// CompileRecords extracts the outcomes that reached the compile stage.
func CompileRecords(outcomes []*result.Outcome) []CompileRecord {
	var recs []CompileRecord
	for _, o := range outcomes {
		if !o.CompileOK && o.ErrorKind != result.CompileFailed {
			continue
		}
		rec := CompileRecord{Project: o.Project, BugID: o.BugID, Model: o.Model, Success: o.CompileOK}
		if !o.CompileOK {
			rec.Error = o.Error
		}
		recs = append(recs, rec)
	}
	return recs
}

func LoadCompileRecords(path string) ([]CompileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading compilation results: %w", err)
	}
	var recs []CompileRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parsing compilation results %s: %w", path, err)
	}
	return recs, nil
}

const (
	ErrMissingSymbol  = "cannot find symbol"
	ErrMissingPackage = "package does not exist"
	ErrOther          = "other"
	ErrUnrecorded     = "unrecorded"
)

// ClassifyCompileError buckets a compiler message. Unrecognized messages
// with an "error:" marker are keyed by their first error text.
func ClassifyCompileError(msg string) string {
	switch {
	case msg == "":
		return ErrUnrecorded
	case strings.Contains(msg, "cannot find symbol"):
		return ErrMissingSymbol
	case strings.Contains(msg, "package") && strings.Contains(msg, "does not exist"):
		return ErrMissingPackage
	}
	i := strings.Index(strings.ToLower(msg), "error:")
	if i < 0 {
		return ErrOther
	}
	first := msg[i+len("error:"):]
	if nl := strings.IndexByte(first, '\n'); nl >= 0 {
		first = first[:nl]
	}
	first = strings.TrimSpace(first)
	if len(first) > 50 {
		first = first[:50]
	}
	if first == "" {
		return ErrOther
	}
	return first
}

type ProjectCompile struct {
	Project       string         `json:"project"`
	Failures      int            `json:"failures"`
	FailedByModel map[string]int `json:"failed_by_model"`
	ErrorKinds    map[string]int `json:"error_kinds"`
	FailedBugs    []string       `json:"failed_bugs"`
	// AllFailed lists bugs where every attempted model failed to compile;
	// OnlyFailed maps a model to bugs where it alone failed.
	AllFailed  []string            `json:"all_failed"`
	OnlyFailed map[string][]string `json:"only_failed"`
}

type CompileAnalysis struct {
	Attempts int              `json:"attempts"`
	Failures int              `json:"failures"`
	Projects []ProjectCompile `json:"projects"`
}

func AnalyzeCompilation(recs []CompileRecord) CompileAnalysis {
	an := CompileAnalysis{Attempts: len(recs)}

	type bugState struct{ models, failed []string }
	projects := make(map[string]*ProjectCompile)
	bugs := make(map[string]map[string]*bugState)
	for _, r := range recs {
		if bugs[r.Project] == nil {
			bugs[r.Project] = make(map[string]*bugState)
		}
		b := bugs[r.Project][r.BugID]
		if b == nil {
			b = &bugState{}
			bugs[r.Project][r.BugID] = b
		}
		b.models = append(b.models, r.Model)
		if r.Success {
			continue
		}
		an.Failures++
		b.failed = append(b.failed, r.Model)
		p := projects[r.Project]
		if p == nil {
			p = &ProjectCompile{
				Project:       r.Project,
				FailedByModel: make(map[string]int),
				ErrorKinds:    make(map[string]int),
				OnlyFailed:    make(map[string][]string),
			}
			projects[r.Project] = p
		}
		p.Failures++
		p.FailedByModel[r.Model]++
		p.ErrorKinds[ClassifyCompileError(r.Error)]++
	}

	for name, p := range projects {
		for bug, b := range bugs[name] {
			if len(b.failed) == 0 {
				continue
			}
			p.FailedBugs = append(p.FailedBugs, bug)
			switch {
			case len(b.models) > 1 && len(b.failed) == len(b.models):
				p.AllFailed = append(p.AllFailed, bug)
			case len(b.failed) == 1:
				p.OnlyFailed[b.failed[0]] = append(p.OnlyFailed[b.failed[0]], bug)
			}
		}
		sortBugIDs(p.FailedBugs)
		sortBugIDs(p.AllFailed)
		for _, ids := range p.OnlyFailed {
			sortBugIDs(ids)
		}
		an.Projects = append(an.Projects, *p)
	}
	sort.Slice(an.Projects, func(a, b int) bool { return an.Projects[a].Project < an.Projects[b].Project })
	return an
}

// sortBugIDs orders numeric ids numerically, then anything else lexically.
func sortBugIDs(ids []string) {
	sort.Slice(ids, func(a, b int) bool {
		x, y := ids[a], ids[b]
		if len(x) != len(y) && isDigits(x) && isDigits(y) {
			return len(x) < len(y)
		}
		return x < y
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
