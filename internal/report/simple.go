package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/webaudit/webaudit/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables per-page issue and recommendation detail.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with per-page issue details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.SiteReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeScores(&sb, report)
	w.writePages(&sb, report)
	w.writeFailed(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with audit information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.SiteReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      WEBSITE AUDIT REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Site:          %s\n", report.RootURL))
	sb.WriteString(fmt.Sprintf("Audit Date:    %s\n", report.FinishedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Pages Audited: %d\n", len(report.Pages)))
	sb.WriteString(fmt.Sprintf("Duration:      %s\n", report.FinishedAt.Sub(report.StartedAt).Round(10*time.Millisecond)))

	if report.Truncated {
		sb.WriteString("Status:        TRUNCATED (page or time limit reached)\n")
	} else {
		sb.WriteString("Status:        Complete\n")
	}

	sb.WriteString("\n")
}

// writeScores writes the site-level score summary.
func (w *SimpleWriter) writeScores(sb *strings.Builder, report *model.SiteReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("SCORE SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  OVERALL:  %s\n\n", formatScore(report.OverallScore)))

	// Per-analyzer means across all pages, sorted by name.
	for _, row := range analyzerAverages(report) {
		sb.WriteString(fmt.Sprintf("  %-14s %s\n", row.name+":", formatScore(row.mean)))
	}
	sb.WriteString("\n")
}

// writePages writes one line (or block, in verbose mode) per audited page.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.SiteReport) {
	if len(report.Pages) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Pages) == 0 {
		sb.WriteString("  No pages audited\n\n")
		return
	}

	for _, page := range report.Pages {
		sb.WriteString(fmt.Sprintf("  [%s] %s\n", scoreGrade(page.OverallScore), page.URL))
		sb.WriteString(fmt.Sprintf("      Score: %.1f  Depth: %d  Issues: %d\n",
			page.OverallScore, page.Depth, len(page.Issues)))
		if page.AllFailed {
			sb.WriteString("      WARNING: every analyzer failed on this page\n")
		}
		if w.verbose {
			for _, issue := range page.Issues {
				sb.WriteString(fmt.Sprintf("      * %s\n", issue))
			}
			for _, rec := range page.Recommendations {
				sb.WriteString(fmt.Sprintf("      > %s\n", rec))
			}
		}
	}
	sb.WriteString("\n")
}

// writeFailed writes the pages that could not be processed.
func (w *SimpleWriter) writeFailed(sb *strings.Builder, report *model.SiteReport) {
	if len(report.Failed) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("FAILED PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Failed) == 0 {
		sb.WriteString("  No failed pages\n")
	} else {
		for _, f := range report.Failed {
			sb.WriteString(fmt.Sprintf("  [!] %s\n", f.URL))
			sb.WriteString(fmt.Sprintf("      %s\n", f.Error))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by webaudit\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// analyzerRow is one analyzer's mean score across all audited pages.
type analyzerRow struct {
	name string
	mean float64
}

// analyzerAverages computes per-analyzer mean scores across the report's
// pages, skipping failed outcomes, sorted by analyzer name.
func analyzerAverages(report *model.SiteReport) []analyzerRow {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, page := range report.Pages {
		for name, outcome := range page.Analyzers {
			if outcome.Failed {
				continue
			}
			sums[name] += outcome.Score
			counts[name]++
		}
	}

	rows := make([]analyzerRow, 0, len(sums))
	for name, sum := range sums {
		rows = append(rows, analyzerRow{name: name, mean: sum / float64(counts[name])})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
	return rows
}
