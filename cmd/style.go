package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/signalnine/covbatch/internal/batch"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	retryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// progressLine renders one finished job for the terminal.
func progressLine(p batch.Progress) string {
	o := p.Outcome
	pos := dimStyle.Render(fmt.Sprintf("[%d/%d]", p.Index+1, p.Total))
	if p.Retry {
		pos += " " + retryStyle.Render("retry")
	}
	if o.Succeeded() && o.Coverage == nil {
		return fmt.Sprintf("%s %s %s", pos, okStyle.Render("OK  "), o.Key())
	}
	if o.Succeeded() {
		return fmt.Sprintf("%s %s %s line %.2f%% branch %.2f%%", pos, okStyle.Render("OK  "), o.Key(),
			o.Coverage.LineCoveragePct, o.Coverage.BranchCoveragePct)
	}
	return fmt.Sprintf("%s %s %s %s", pos, failStyle.Render("FAIL"), o.Key(), o.ErrorKind)
}
