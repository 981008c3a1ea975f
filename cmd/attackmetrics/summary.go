package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lexcodex/attackmetrics/export"
)

var (
	summaryHeaderStyle = lipgloss.NewStyle().Bold(true)
	summaryNameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Width(9)
	summaryDimStyle    = lipgloss.NewStyle().Faint(true)
)

// renderSummary lists each written file with its row count and checksum.
func renderSummary(report *export.Report) string {
	var b strings.Builder
	b.WriteString(summaryHeaderStyle.Render(fmt.Sprintf("%s: %d components in %s", report.Project, report.Fetched, formatDuration(report.FinishedAt.Sub(report.StartedAt)))))
	b.WriteString("\n")
	for _, f := range report.Files {
		b.WriteString("  ")
		b.WriteString(summaryNameStyle.Render(f.Name))
		b.WriteString(fmt.Sprintf("%5d rows  ", f.Rows))
		b.WriteString(summaryDimStyle.Render(export.FormatChecksum(f.Checksum)))
		b.WriteString("\n")
	}
	for _, loc := range report.Locations {
		b.WriteString("  -> ")
		b.WriteString(loc)
		b.WriteString("\n")
	}
	return b.String()
}
