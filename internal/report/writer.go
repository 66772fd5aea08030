package report

import (
	"fmt"
	"io"

	"github.com/webaudit/webaudit/internal/model"
)

// Writer defines the interface for report output.
// Implementations render an audit report in a specific format.
//
// Design decision: We use an interface so different formats and
// destinations share one API. Writing to files, stdout, or network
// connections all look the same to the caller.
type Writer interface {
	// Write renders the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.SiteReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface takes reports,
// not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write renders the report through every configured Writer.
// Returns the total bytes written across all writers and stops on the
// first error encountered.
func (m *MultiWriter) Write(report *model.SiteReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides the shared output destination for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// scoreGrade maps a 0-100 score onto a letter grade for display.
func scoreGrade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// formatScore renders a score with its grade, e.g. "87.5 (B)".
func formatScore(score float64) string {
	return fmt.Sprintf("%.1f (%s)", score, scoreGrade(score))
}
