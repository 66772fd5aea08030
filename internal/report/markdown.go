package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/webaudit/webaudit/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.SiteReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePages(md, report)
	w.writeIssues(md, report)
	w.writeFailed(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with audit information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.SiteReport) {
	md.H1("Website Audit Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + report.RootURL + "`"},
			{"Audit Date", report.FinishedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Audited", strconv.Itoa(len(report.Pages))},
			{"Failed Pages", strconv.Itoa(len(report.Failed))},
			{"Status", w.statusText(report)},
		},
	})
	md.PlainText("")
}

// statusText returns the status cell based on report state.
func (w *MarkdownWriter) statusText(report *model.SiteReport) string {
	if report.Truncated {
		return "⚠️ Truncated (partial results)"
	}
	return "✅ Complete"
}

// writeSummary writes the site-level score section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.SiteReport) {
	md.H2("Score Summary")
	md.PlainText("")

	rows := [][]string{
		{"**Overall**", "**" + formatScore(report.OverallScore) + "**"},
	}
	for _, row := range analyzerAverages(report) {
		rows = append(rows, []string{row.name, formatScore(row.mean)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Score"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(report.Pages) > 0 {
		w.writeGradeChart(md, report)
	}

	w.writeAlert(md, report)
}

// writeGradeChart writes a mermaid pie chart of page grade distribution.
func (w *MarkdownWriter) writeGradeChart(md *markdown.Markdown, report *model.SiteReport) {
	counts := make(map[string]uint64)
	for _, page := range report.Pages {
		counts[scoreGrade(page.OverallScore)]++
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Page Grade Distribution"),
		piechart.WithShowData(true),
	)
	for _, grade := range []string{"A", "B", "C", "D", "F"} {
		if counts[grade] > 0 {
			chart.LabelAndIntValue("Grade "+grade, counts[grade])
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matched to the site's overall score.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.SiteReport) {
	switch {
	case len(report.Pages) == 0:
		md.Cautionf("No pages could be audited. See the failed pages section.")
	case report.OverallScore < 50:
		md.Cautionf(
			"Site health is poor (%.1f/100). The issues below need immediate attention.",
			report.OverallScore,
		)
	case report.OverallScore < 70:
		md.Warningf(
			"Site health needs work (%.1f/100). Address the highest-impact issues first.",
			report.OverallScore,
		)
	case report.OverallScore < 90:
		md.Importantf(
			"Site health is fair (%.1f/100). A handful of fixes would raise the grade.",
			report.OverallScore,
		)
	default:
		md.Tip(fmt.Sprintf("Site health is excellent (%.1f/100).", report.OverallScore))
	}
	md.PlainText("")
}

// writePages writes the per-page score table.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.SiteReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Pages) == 0 {
		md.PlainText("No pages audited.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pages))
	for i, page := range report.Pages {
		rows[i] = []string{
			truncateString(page.URL, 60),
			strconv.Itoa(page.Depth),
			formatScore(page.OverallScore),
			strconv.Itoa(len(page.Issues)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Score", "Issues"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeIssues writes per-page issue details as collapsible sections.
func (w *MarkdownWriter) writeIssues(md *markdown.Markdown, report *model.SiteReport) {
	md.H2("Issues")
	md.PlainText("")

	any := false
	for _, page := range report.Pages {
		if len(page.Issues) == 0 && len(page.Recommendations) == 0 {
			continue
		}
		any = true
		var body string
		for _, issue := range page.Issues {
			body += "- " + issue + "\n"
		}
		for _, rec := range page.Recommendations {
			body += "- 💡 " + rec + "\n"
		}
		md.Details(fmt.Sprintf("%s — %d issue(s)", page.URL, len(page.Issues)), body)
	}
	if !any {
		md.PlainText("No issues found.")
	}
	md.PlainText("")
}

// writeFailed writes the failed pages table.
func (w *MarkdownWriter) writeFailed(md *markdown.Markdown, report *model.SiteReport) {
	if len(report.Failed) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, len(report.Failed))
	for i, f := range report.Failed {
		rows[i] = []string{
			truncateString(f.URL, 60),
			strconv.Itoa(f.Depth),
			truncateString(f.Error, 70),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by webaudit*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
