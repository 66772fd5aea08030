package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/webaudit/webaudit/internal/model"
)

// createTestReport creates a report with sample data for testing.
func createTestReport() *model.SiteReport {
	report := model.NewSiteReport("https://example.test/")
	report.StartedAt = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	report.AddPage(&model.PageEvaluationResult{
		URL:          "https://example.test/",
		OverallScore: 92,
		Depth:        0,
		Analyzers: map[string]model.AnalyzerOutcome{
			"seo":      {Analyzer: "seo", Score: 94},
			"security": {Analyzer: "security", Score: 90},
		},
		Issues:          []string{"Missing canonical URL"},
		Recommendations: []string{"Add a canonical link element"},
		EvaluatedAt:     report.StartedAt,
	})
	report.AddPage(&model.PageEvaluationResult{
		URL:          "https://example.test/about",
		OverallScore: 58,
		Depth:        1,
		Analyzers: map[string]model.AnalyzerOutcome{
			"seo":      {Analyzer: "seo", Score: 66},
			"security": {Analyzer: "security", Score: 50},
		},
		Issues:      []string{"Page served without Content-Security-Policy header"},
		EvaluatedAt: report.StartedAt,
	})
	report.AddFailure("https://example.test/broken", 1, errors.New("connection refused"))

	report.Finalize()
	report.FinishedAt = report.StartedAt.Add(3 * time.Second)
	return report
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "WEBSITE AUDIT REPORT") {
			t.Error("expected output to contain header")
		}
		if !strings.Contains(output, "https://example.test/") {
			t.Error("expected output to contain the root URL")
		}
		if !strings.Contains(output, "Pages Audited: 2") {
			t.Error("expected output to contain the page count")
		}
	})

	t.Run("writes score summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "SCORE SUMMARY") {
			t.Error("expected output to contain score summary")
		}
		// (92 + 58) / 2 = 75, grade C.
		if !strings.Contains(output, "75.0 (C)") {
			t.Errorf("expected overall score 75.0 (C) in output:\n%s", output)
		}
		// Per-analyzer means: seo (94+66)/2 = 80, security (90+50)/2 = 70.
		if !strings.Contains(output, "seo:") || !strings.Contains(output, "80.0 (B)") {
			t.Error("expected per-analyzer seo mean in output")
		}
		if !strings.Contains(output, "security:") || !strings.Contains(output, "70.0 (C)") {
			t.Error("expected per-analyzer security mean in output")
		}
	})

	t.Run("writes page list with grades", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[A] https://example.test/") {
			t.Error("expected grade A line for the root page")
		}
		if !strings.Contains(output, "[F] https://example.test/about") {
			t.Error("expected grade F line for the about page")
		}
	})

	t.Run("writes failed pages", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "FAILED PAGES") {
			t.Error("expected failed pages section")
		}
		if !strings.Contains(output, "connection refused") {
			t.Error("expected failure cause in output")
		}
	})

	t.Run("verbose includes issues", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf, WithVerbose(true))

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "Missing canonical URL") {
			t.Error("expected verbose output to contain issue text")
		}
		if !strings.Contains(output, "Add a canonical link element") {
			t.Error("expected verbose output to contain recommendation text")
		}
	})

	t.Run("non-verbose omits issue text", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if strings.Contains(buf.String(), "Missing canonical URL") {
			t.Error("issue text leaked into non-verbose output")
		}
	})

	t.Run("marks truncated audits", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)
		report := createTestReport()
		report.Truncated = true

		_, err := w.Write(report)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(buf.String(), "TRUNCATED") {
			t.Error("expected truncated status in output")
		}
	})
}

// TestJSONWriter tests the machine-readable report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf)

		n, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		var decoded model.SiteReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded.RootURL != "https://example.test/" {
			t.Errorf("unexpected root URL %q", decoded.RootURL)
		}
		if len(decoded.Pages) != 2 {
			t.Errorf("expected 2 pages, got %d", len(decoded.Pages))
		}
		if decoded.OverallScore != 75 {
			t.Errorf("expected overall score 75, got %.1f", decoded.OverallScore)
		}
	})

	t.Run("pretty print indents output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewJSONWriter(&buf, WithPrettyPrint())

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"") {
			t.Error("expected indented JSON output")
		}
	})

	t.Run("full writer wraps with version", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewFullJSONWriter(&buf, "1.2.3")

		if _, err := w.Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var wrapped JSONReport
		if err := json.Unmarshal(buf.Bytes(), &wrapped); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if wrapped.Version != "1.2.3" {
			t.Errorf("expected version 1.2.3, got %q", wrapped.Version)
		}
		if wrapped.Report == nil || wrapped.Report.RootURL != "https://example.test/" {
			t.Error("wrapped report missing or wrong")
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes headings and tables", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# Website Audit Report",
			"## Score Summary",
			"## Pages",
			"## Failed Pages",
			"https://example.test/about",
			"connection refused",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected markdown output to contain %q", want)
			}
		}
	})

	t.Run("includes grade distribution chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "mermaid") {
			t.Error("expected mermaid chart block")
		}
		if !strings.Contains(output, "Grade A") || !strings.Contains(output, "Grade F") {
			t.Error("expected grade labels in the chart")
		}
	})

	t.Run("issue details are collapsible", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewMarkdownWriter(&buf)

		_, err := w.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "<details>") {
			t.Error("expected details blocks for per-page issues")
		}
		if !strings.Contains(output, "Missing canonical URL") {
			t.Error("expected issue text inside details")
		}
	})
}

// TestMultiWriter tests fan-out to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

	total, err := mw.Write(createTestReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != text.Len()+js.Len() {
		t.Errorf("total %d != sum of writer outputs %d", total, text.Len()+js.Len())
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("one of the writers produced no output")
	}
}

// TestScoreGrade tests the score-to-grade banding.
func TestScoreGrade(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  string
	}{
		{100, "A"},
		{90, "A"},
		{89.9, "B"},
		{80, "B"},
		{70, "C"},
		{60, "D"},
		{59.9, "F"},
		{0, "F"},
	}
	for _, tt := range tests {
		if got := scoreGrade(tt.score); got != tt.want {
			t.Errorf("scoreGrade(%.1f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
