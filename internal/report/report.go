package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/covbatch/internal/aggregate"
	"github.com/signalnine/covbatch/internal/outcomestore"
	"github.com/signalnine/covbatch/internal/result"
)

// DefaultTopK is the size of the coverage ranking.
const DefaultTopK = 10

// Gather loads historical outcome files in order, then the outcome index.
// Later sources replace earlier ones per job key.
func Gather(index outcomestore.Store, historyPaths []string) ([]*result.Outcome, error) {
	var merged []*result.Outcome
	for _, p := range historyPaths {
		hist, err := result.LoadHistory(p)
		if err != nil {
			return nil, err
		}
		merged = aggregate.Merge(merged, hist)
	}
	if index != nil {
		current, err := index.All()
		if err != nil {
			return nil, err
		}
		merged = aggregate.Merge(merged, current)
	}
	return merged, nil
}

// Document is everything a report renders.
type Document struct {
	*aggregate.Report
	Compile *aggregate.CompileAnalysis `json:"compile,omitempty"`
}

// Generate aggregates outcomes and writes them in the given format: table
// (default), markdown or json.
func Generate(outcomes []*result.Outcome, compile *aggregate.CompileAnalysis, topK int, format string, w io.Writer) error {
	doc := &Document{Report: aggregate.Build(outcomes, topK), Compile: compile}
	switch format {
	case "markdown":
		return writeMarkdown(doc, w)
	case "json":
		return writeJSON(doc, w)
	case "", "table":
		return writeTable(doc, w)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func pct(r float64) string { return fmt.Sprintf("%.1f%%", r*100) }

func writeTable(doc *Document, w io.Writer) error {
	t := doc.Totals
	fmt.Fprintf(w, "Jobs: %d  compiled: %d (%s)  coverage ok: %d (%s)  tests passed: %d  bugs detected: %d (%s)\n\n",
		t.Total, t.CompileOK, pct(t.CompileRate()), t.CoverageOK, pct(t.CoverageRate()),
		t.TestsPassed, t.BugsDetected, pct(t.DetectRate()))

	for _, sec := range []struct {
		title  string
		groups []aggregate.Group
	}{{"PROJECT", doc.Projects}, {"MODEL", doc.Models}} {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\tJOBS\tCOMPILED\tCOVERAGE OK\tPASSED\tDETECTED\tMEAN LINE\tMEAN BRANCH\n", sec.title)
		fmt.Fprintln(tw, strings.Repeat("-", 96))
		for _, g := range sec.groups {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d (%s)\t%d\t%d\t%s\t%s\n",
				g.Name, g.Total, g.CompileOK, g.CoverageOK, pct(g.CoverageRate()),
				g.TestsPassed, g.BugsDetected, meanCell(g, g.MeanLinePct), meanCell(g, g.MeanBranchPct))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Line coverage distribution:")
	for _, b := range doc.Histogram {
		fmt.Fprintf(w, "  %-7s %d\n", b.Label, b.Count)
	}
	fmt.Fprintln(w)

	if len(doc.Top) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tJOB\tLINE\tBRANCH")
		for i, o := range doc.Top {
			fmt.Fprintf(tw, "%d\t%s\t%.2f%%\t%.2f%%\n", i+1, o.Key(), o.Coverage.LineCoveragePct, o.Coverage.BranchCoveragePct)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	a := doc.Agreement
	fmt.Fprintf(w, "Bug detection agreement (%d bugs with two models, %d excluded):\n", a.Pairs, a.Excluded)
	fmt.Fprintf(w, "  both detected: %d  only one: %d  neither: %d\n", a.Both, a.OnlyOne, a.Neither)
	for _, m := range sortedKeys(a.OnlyBy) {
		fmt.Fprintf(w, "  only %s: %d\n", m, a.OnlyBy[m])
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tCOMPILE RATE\tCOVERAGE RATE\tMEAN LINE\tSCORE")
	for _, s := range doc.Scores {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f%%\t%.3f\n", s.Model, pct(s.CompileRate), pct(s.CoverageRate), s.MeanLinePct, s.Score)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if doc.Compile != nil {
		fmt.Fprintln(w)
		writeCompileText(doc.Compile, w)
	}
	return nil
}

func meanCell(g aggregate.Group, v float64) string {
	if g.WithCoverage == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", v)
}

func writeCompileText(c *aggregate.CompileAnalysis, w io.Writer) {
	fmt.Fprintf(w, "Compilation failures: %d of %d\n", c.Failures, c.Attempts)
	for _, p := range c.Projects {
		fmt.Fprintf(w, "  %s: %d failed", p.Project, p.Failures)
		for _, m := range sortedKeys(p.FailedByModel) {
			fmt.Fprintf(w, ", %s %d", m, p.FailedByModel[m])
		}
		fmt.Fprintln(w)
		for _, kind := range byCount(p.ErrorKinds) {
			fmt.Fprintf(w, "    %s: %d\n", kind, p.ErrorKinds[kind])
		}
		if len(p.AllFailed) > 0 {
			fmt.Fprintf(w, "    all models failed: %s\n", strings.Join(p.AllFailed, ", "))
		}
		for _, m := range sortedKeys(p.OnlyFailed) {
			fmt.Fprintf(w, "    only %s failed: %s\n", m, strings.Join(p.OnlyFailed[m], ", "))
		}
	}
}

func writeMarkdown(doc *Document, w io.Writer) error {
	t := doc.Totals
	fmt.Fprintln(w, "| Jobs | Compiled | Coverage OK | Tests Passed | Bugs Detected |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	fmt.Fprintf(w, "| %d | %d (%s) | %d (%s) | %d | %d |\n\n",
		t.Total, t.CompileOK, pct(t.CompileRate()), t.CoverageOK, pct(t.CoverageRate()), t.TestsPassed, t.BugsDetected)

	for _, sec := range []struct {
		title  string
		groups []aggregate.Group
	}{{"Project", doc.Projects}, {"Model", doc.Models}} {
		fmt.Fprintf(w, "| %s | Jobs | Coverage OK | Passed | Detected | Mean Line | Mean Branch |\n", sec.title)
		fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
		for _, g := range sec.groups {
			fmt.Fprintf(w, "| %s | %d | %d (%s) | %d | %d | %s | %s |\n",
				g.Name, g.Total, g.CoverageOK, pct(g.CoverageRate()), g.TestsPassed, g.BugsDetected,
				meanCell(g, g.MeanLinePct), meanCell(g, g.MeanBranchPct))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "| Line Coverage | Jobs |")
	fmt.Fprintln(w, "|---|---|")
	for _, b := range doc.Histogram {
		fmt.Fprintf(w, "| %s | %d |\n", b.Label, b.Count)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "| Model | Compile Rate | Coverage Rate | Mean Line | Score |")
	fmt.Fprintln(w, "|---|---|---|---|---|")
	for _, s := range doc.Scores {
		fmt.Fprintf(w, "| %s | %s | %s | %.2f%% | %.3f |\n", s.Model, pct(s.CompileRate), pct(s.CoverageRate), s.MeanLinePct, s.Score)
	}
	return nil
}

func writeJSON(doc *Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// byCount orders keys by descending count, then name.
func byCount(m map[string]int) []string {
	keys := sortedKeys(m)
	sort.SliceStable(keys, func(i, j int) bool { return m[keys[i]] > m[keys[j]] })
	return keys
}
