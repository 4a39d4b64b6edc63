// Package coverage turns a Cobertura-style coverage.xml into CoverageMetrics.
package coverage

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/signalnine/covbatch/internal/result"
)

// report mirrors the root attributes of the coverage artifact. Values are kept
// as strings so that a missing attribute can default to zero.
type report struct {
	XMLName         xml.Name
	LineRate        string `xml:"line-rate,attr"`
	BranchRate      string `xml:"branch-rate,attr"`
	LinesCovered    string `xml:"lines-covered,attr"`
	LinesValid      string `xml:"lines-valid,attr"`
	BranchesCovered string `xml:"branches-covered,attr"`
	BranchesValid   string `xml:"branches-valid,attr"`
}

// Parse extracts metrics from the artifact bytes. Any parse error, rate
// outside [0,1] or covered count above its valid count is an error.
func Parse(data []byte) (*result.CoverageMetrics, error) {
	var r report
	if err := xml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing coverage xml: %w", err)
	}

	lineRate, err := parseRate("line-rate", r.LineRate)
	if err != nil {
		return nil, err
	}
	branchRate, err := parseRate("branch-rate", r.BranchRate)
	if err != nil {
		return nil, err
	}
	m := &result.CoverageMetrics{
		LineCoveragePct:   toPct(lineRate),
		BranchCoveragePct: toPct(branchRate),
	}
	counts := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"lines-covered", r.LinesCovered, &m.LinesCovered},
		{"lines-valid", r.LinesValid, &m.LinesValid},
		{"branches-covered", r.BranchesCovered, &m.BranchesCovered},
		{"branches-valid", r.BranchesValid, &m.BranchesValid},
	}
	for _, c := range counts {
		if c.raw == "" {
			continue
		}
		n, err := strconv.Atoi(c.raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s %q", c.name, c.raw)
		}
		*c.dst = n
	}
	if m.LinesCovered > m.LinesValid {
		return nil, fmt.Errorf("lines-covered %d exceeds lines-valid %d", m.LinesCovered, m.LinesValid)
	}
	if m.BranchesCovered > m.BranchesValid {
		return nil, fmt.Errorf("branches-covered %d exceeds branches-valid %d", m.BranchesCovered, m.BranchesValid)
	}
	return m, nil
}

// ParseFile reads and parses the artifact at path.
func ParseFile(path string) (*result.CoverageMetrics, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading coverage artifact: %w", err)
	}
	return Parse(data)
}

func parseRate(name, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func toPct(rate float64) float64 {
	return math.Round(rate*100*100) / 100
}
