package model

import (
	"errors"
	"testing"
)

// TestSiteReportFinalize tests site-level score aggregation.
func TestSiteReportFinalize(t *testing.T) {
	t.Parallel()

	t.Run("empty report scores zero", func(t *testing.T) {
		t.Parallel()

		report := NewSiteReport("https://a.test/")
		report.Finalize()

		if report.OverallScore != 0 {
			t.Errorf("expected score 0, got %f", report.OverallScore)
		}
		if report.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
	})

	t.Run("averages page scores", func(t *testing.T) {
		t.Parallel()

		report := NewSiteReport("https://a.test/")
		report.AddPage(&PageEvaluationResult{URL: "https://a.test/", OverallScore: 80})
		report.AddPage(&PageEvaluationResult{URL: "https://a.test/b", OverallScore: 60})
		report.Finalize()

		if report.OverallScore != 70 {
			t.Errorf("expected score 70, got %f", report.OverallScore)
		}
	})

	t.Run("all-failed pages count as zero", func(t *testing.T) {
		t.Parallel()

		report := NewSiteReport("https://a.test/")
		report.AddPage(&PageEvaluationResult{URL: "https://a.test/", OverallScore: 100})
		report.AddPage(&PageEvaluationResult{URL: "https://a.test/b", AllFailed: true})
		report.Finalize()

		if report.OverallScore != 50 {
			t.Errorf("expected score 50, got %f", report.OverallScore)
		}
	})
}

// TestSiteReportAddFailure tests failed page bookkeeping.
func TestSiteReportAddFailure(t *testing.T) {
	t.Parallel()

	report := NewSiteReport("https://a.test/")
	report.AddFailure("https://a.test/broken", 2, errors.New("connection refused"))

	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failed))
	}
	failed := report.Failed[0]
	if failed.URL != "https://a.test/broken" || failed.Depth != 2 {
		t.Errorf("unexpected failure record: %+v", failed)
	}
	if failed.Error != "connection refused" {
		t.Errorf("expected error cause, got %q", failed.Error)
	}
}

// TestNewSiteReportID tests that each run gets a unique identifier.
func TestNewSiteReportID(t *testing.T) {
	t.Parallel()

	a := NewSiteReport("https://a.test/")
	b := NewSiteReport("https://a.test/")

	if a.ID == "" {
		t.Fatal("expected non-empty report ID")
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct IDs, both were %q", a.ID)
	}
}
