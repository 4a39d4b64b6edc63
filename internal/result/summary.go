package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalnine/covbatch/internal/job"
)

const (
	SummaryCSVName = "coverage_summary.csv"
	DetailJSONName = "coverage_analysis_detailed.json"
)

var csvHeader = []string{
	"Project", "BugID", "Model",
	"Checkout", "Compile", "TestPassed", "CoverageSuccess",
	"LineCoverage(%)", "BranchCoverage(%)",
	"LinesCovered", "LinesValid", "BranchesCovered", "BranchesValid",
	"TestClass", "Error",
}

// BatchSummary is the header of the detail record written at batch completion.
type BatchSummary struct {
	RunID          string    `json:"run_id"`
	TotalTests     int       `json:"total_tests"`
	Analyzed       int       `json:"analyzed"`
	Successful     int       `json:"successful"`
	Failed         int       `json:"failed"`
	ElapsedSeconds float64   `json:"elapsed_time_seconds"`
	Timestamp      time.Time `json:"timestamp"`
}

type Detail struct {
	Summary BatchSummary `json:"summary"`
	Results []*Outcome   `json:"results"`
}

// WriteSummaryCSV writes one row per outcome.
func WriteSummaryCSV(w io.Writer, outcomes []*Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		row := []string{
			o.Project, o.BugID, o.Model,
			yesNo(o.CheckoutOK), yesNo(o.CompileOK), yesNo(o.TestPassed), yesNo(o.CoverageSucceeded),
			"", "", "", "", "", "",
			o.TestClass, string(o.ErrorKind),
		}
		if c := o.Coverage; c != nil {
			row[7] = strconv.FormatFloat(c.LineCoveragePct, 'f', -1, 64)
			row[8] = strconv.FormatFloat(c.BranchCoveragePct, 'f', -1, 64)
			row[9] = strconv.Itoa(c.LinesCovered)
			row[10] = strconv.Itoa(c.LinesValid)
			row[11] = strconv.Itoa(c.BranchesCovered)
			row[12] = strconv.Itoa(c.BranchesValid)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSummaryCSV parses a summary CSV back into outcomes. Columns are matched
// by header name, so older files with fewer columns are accepted. Coverage is
// present only when the line coverage cell parses.
func ReadSummaryCSV(r io.Reader) ([]*Outcome, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var outcomes []*Outcome
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row: %w", err)
		}
		o := &Outcome{
			Descriptor: job.Descriptor{
				Project: get(row, "Project"),
				BugID:   get(row, "BugID"),
				Model:   get(row, "Model"),
			},
			CheckoutOK:        get(row, "Checkout") == "Yes",
			CompileOK:         get(row, "Compile") == "Yes",
			TestPassed:        get(row, "TestPassed") == "Yes",
			CoverageSucceeded: get(row, "CoverageSuccess") == "Yes",
			TestClass:         get(row, "TestClass"),
			ErrorKind:         ErrorKind(get(row, "Error")),
		}
		if line, err := strconv.ParseFloat(get(row, "LineCoverage(%)"), 64); err == nil {
			c := &CoverageMetrics{LineCoveragePct: line}
			c.BranchCoveragePct, _ = strconv.ParseFloat(get(row, "BranchCoverage(%)"), 64)
			c.LinesCovered, _ = strconv.Atoi(get(row, "LinesCovered"))
			c.LinesValid, _ = strconv.Atoi(get(row, "LinesValid"))
			c.BranchesCovered, _ = strconv.Atoi(get(row, "BranchesCovered"))
			c.BranchesValid, _ = strconv.Atoi(get(row, "BranchesValid"))
			o.Coverage = c
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// WriteSummaryFiles writes the CSV and detail JSON into dir.
func WriteSummaryFiles(dir string, detail *Detail) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, SummaryCSVName))
	if err != nil {
		return fmt.Errorf("creating summary csv: %w", err)
	}
	if err := WriteSummaryCSV(f, detail.Results); err != nil {
		f.Close()
		return fmt.Errorf("writing summary csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing summary csv: %w", err)
	}
	data, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling detail: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, DetailJSONName), data, 0o644)
}

func ReadDetail(path string) (*Detail, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading detail: %w", err)
	}
	var d Detail
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing detail: %w", err)
	}
	return &d, nil
}

// LoadHistory reads prior outcomes from a detail JSON or summary CSV file,
// chosen by extension.
func LoadHistory(path string) ([]*Outcome, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening history %s: %w", path, err)
		}
		defer f.Close()
		return ReadSummaryCSV(f)
	}
	d, err := ReadDetail(path)
	if err != nil {
		return nil, err
	}
	return d.Results, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
