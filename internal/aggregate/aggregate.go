// Package aggregate reduces a set of Outcomes to summary statistics. Every
// function is pure; inputs are never modified.
package aggregate

import (
	"sort"

	"github.com/signalnine/covbatch/internal/job"
	"github.com/signalnine/covbatch/internal/result"
)

// Merge combines historical and current outcomes. A later outcome for a key
// replaces an earlier one in place; new keys are appended in order.
func Merge(history, current []*result.Outcome) []*result.Outcome {
	pos := make(map[job.Key]int)
	var out []*result.Outcome
	for _, set := range [][]*result.Outcome{history, current} {
		for _, o := range set {
			k := o.Key()
			if i, ok := pos[k]; ok {
				out[i] = o
				continue
			}
			pos[k] = len(out)
			out = append(out, o)
		}
	}
	return out
}

// Counts are the raw tallies over a set of outcomes.
type Counts struct {
	Total        int `json:"total"`
	CheckoutOK   int `json:"checkout_ok"`
	CompileOK    int `json:"compile_ok"`
	TestsPassed  int `json:"tests_passed"`
	BugsDetected int `json:"bugs_detected"`
	CoverageOK   int `json:"coverage_ok"`
	Failed       int `json:"failed"`
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func (c Counts) CompileRate() float64  { return rate(c.CompileOK, c.Total) }
func (c Counts) CoverageRate() float64 { return rate(c.CoverageOK, c.Total) }
func (c Counts) PassRate() float64     { return rate(c.TestsPassed, c.Total) }
func (c Counts) DetectRate() float64   { return rate(c.BugsDetected, c.Total) }

func (c *Counts) add(o *result.Outcome) {
	c.Total++
	if o.CheckoutOK {
		c.CheckoutOK++
	}
	if o.CompileOK {
		c.CompileOK++
	}
	if o.TestPassed {
		c.TestsPassed++
	} else {
		c.BugsDetected++
	}
	if o.Succeeded() {
		c.CoverageOK++
	} else {
		c.Failed++
	}
}

func Totals(outcomes []*result.Outcome) Counts {
	var c Counts
	for _, o := range outcomes {
		c.add(o)
	}
	return c
}

// Group is the breakdown for one project or model. Means cover only outcomes
// with coverage metrics; WithCoverage is their number.
type Group struct {
	Name string `json:"name"`
	Counts
	WithCoverage     int     `json:"with_coverage"`
	MeanLinePct      float64 `json:"mean_line_coverage"`
	MeanBranchPct    float64 `json:"mean_branch_coverage"`
	sumLine, sumBrch float64
}

func groupBy(outcomes []*result.Outcome, key func(*result.Outcome) string) []Group {
	idx := make(map[string]int)
	var groups []Group
	for _, o := range outcomes {
		name := key(o)
		i, ok := idx[name]
		if !ok {
			i = len(groups)
			idx[name] = i
			groups = append(groups, Group{Name: name})
		}
		g := &groups[i]
		g.add(o)
		if o.Coverage != nil {
			g.WithCoverage++
			g.sumLine += o.Coverage.LineCoveragePct
			g.sumBrch += o.Coverage.BranchCoveragePct
		}
	}
	for i := range groups {
		g := &groups[i]
		if g.WithCoverage > 0 {
			g.MeanLinePct = g.sumLine / float64(g.WithCoverage)
			g.MeanBranchPct = g.sumBrch / float64(g.WithCoverage)
		}
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups
}

func ByProject(outcomes []*result.Outcome) []Group {
	return groupBy(outcomes, func(o *result.Outcome) string { return o.Project })
}

func ByModel(outcomes []*result.Outcome) []Group {
	return groupBy(outcomes, func(o *result.Outcome) string { return o.Model })
}

// Band is one histogram bucket: [Low, High), except the top band which
// includes 100 and the bottom band which has no lower bound.
type Band struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

var bandLabels = []string{"90-100", "80-90", "70-80", "60-70", "<60"}

// Histogram counts outcomes with line coverage into the fixed bands.
func Histogram(outcomes []*result.Outcome) []Band {
	bands := make([]Band, len(bandLabels))
	for i, l := range bandLabels {
		bands[i].Label = l
	}
	for _, o := range outcomes {
		if o.Coverage == nil {
			continue
		}
		bands[bandIndex(o.Coverage.LineCoveragePct)].Count++
	}
	return bands
}

func bandIndex(pct float64) int {
	switch {
	case pct >= 90:
		return 0
	case pct >= 80:
		return 1
	case pct >= 70:
		return 2
	case pct >= 60:
		return 3
	default:
		return 4
	}
}

// TopK returns up to k outcomes with line coverage, highest first. Ties keep
// input order.
func TopK(outcomes []*result.Outcome, k int) []*result.Outcome {
	var ranked []*result.Outcome
	for _, o := range outcomes {
		if o.Coverage != nil {
			ranked = append(ranked, o)
		}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Coverage.LineCoveragePct > ranked[b].Coverage.LineCoveragePct
	})
	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// Agreement classifies bugs attempted by exactly two models. A model detects
// the bug when its test fails against the buggy revision.
type Agreement struct {
	Pairs   int            `json:"pairs"`
	Both    int            `json:"both_detected"`
	OnlyOne int            `json:"only_one_detected"`
	Neither int            `json:"neither_detected"`
	OnlyBy  map[string]int `json:"only_by_model"`
	// Excluded counts bugs with fewer or more than two models.
	Excluded int `json:"excluded"`
}

type bugKey struct{ project, bug string }

func CrossModelAgreement(outcomes []*result.Outcome) Agreement {
	byBug := make(map[bugKey][]*result.Outcome)
	var order []bugKey
	for _, o := range outcomes {
		k := bugKey{o.Project, o.BugID}
		if _, ok := byBug[k]; !ok {
			order = append(order, k)
		}
		byBug[k] = append(byBug[k], o)
	}
	a := Agreement{OnlyBy: make(map[string]int)}
	for _, k := range order {
		set := byBug[k]
		if len(set) != 2 {
			a.Excluded++
			continue
		}
		a.Pairs++
		d0, d1 := !set[0].TestPassed, !set[1].TestPassed
		switch {
		case d0 && d1:
			a.Both++
		case d0:
			a.OnlyOne++
			a.OnlyBy[set[0].Model]++
		case d1:
			a.OnlyOne++
			a.OnlyBy[set[1].Model]++
		default:
			a.Neither++
		}
	}
	return a
}

const (
	compileWeight  = 0.3
	coverageWeight = 0.3
	lineWeight     = 0.4
)

// CompositeScore weighs compile rate, coverage success rate and mean line
// coverage (as a percentage) into one number in [0,1].
func CompositeScore(compileRate, coverageRate, meanLinePct float64) float64 {
	return compileWeight*compileRate + coverageWeight*coverageRate + lineWeight*(meanLinePct/100)
}

type ModelScore struct {
	Model        string  `json:"model"`
	CompileRate  float64 `json:"compile_rate"`
	CoverageRate float64 `json:"coverage_rate"`
	MeanLinePct  float64 `json:"mean_line_coverage"`
	Score        float64 `json:"score"`
}

// ModelScores returns the composite score per model, best first.
func ModelScores(outcomes []*result.Outcome) []ModelScore {
	var scores []ModelScore
	for _, g := range ByModel(outcomes) {
		scores = append(scores, ModelScore{
			Model:        g.Name,
			CompileRate:  g.CompileRate(),
			CoverageRate: g.CoverageRate(),
			MeanLinePct:  g.MeanLinePct,
			Score:        CompositeScore(g.CompileRate(), g.CoverageRate(), g.MeanLinePct),
		})
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].Score > scores[b].Score })
	return scores
}

// Report is the full aggregate view of an outcome set.
type Report struct {
	Totals    Counts            `json:"totals"`
	Projects  []Group           `json:"projects"`
	Models    []Group           `json:"models"`
	Histogram []Band            `json:"histogram"`
	Top       []*result.Outcome `json:"top"`
	Agreement Agreement         `json:"agreement"`
	Scores    []ModelScore      `json:"scores"`
}

func Build(outcomes []*result.Outcome, topK int) *Report {
	return &Report{
		Totals:    Totals(outcomes),
		Projects:  ByProject(outcomes),
		Models:    ByModel(outcomes),
		Histogram: Histogram(outcomes),
		Top:       TopK(outcomes, topK),
		Agreement: CrossModelAgreement(outcomes),
		Scores:    ModelScores(outcomes),
	}
}
