package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/webaudit/webaudit/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *AuditDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// sampleReport builds a finalized report for the given root with the given
// overall score.
func sampleReport(rootURL string, score float64) *model.SiteReport {
	report := model.NewSiteReport(rootURL)
	report.AddPage(&model.PageEvaluationResult{
		URL:          rootURL,
		OverallScore: score,
		Analyzers: map[string]model.AnalyzerOutcome{
			"seo":     {Analyzer: "seo", Score: score},
			"content": {Analyzer: "content", Score: score, Failed: false},
		},
		EvaluatedAt: time.Now(),
	})
	report.AddFailure(rootURL+"missing", 1, errors.New("not found"))
	report.Finalize()
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, dbFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")

		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected informative error, got %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")

		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		if _, err := db1.SaveReport(context.Background(), sampleReport("https://a.test/", 80)); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db2.Close()

		report, err := db2.GetLatestReport(context.Background(), "https://a.test/")
		if err != nil {
			t.Fatalf("failed to read persisted report: %v", err)
		}
		if report == nil || report.OverallScore != 80 {
			t.Error("persisted report not found after reopen")
		}
	})
}

// TestSaveAndGetReport tests the save/load round trip.
func TestSaveAndGetReport(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	original := sampleReport("https://a.test/", 85)
	original.Truncated = true

	id, err := db.SaveReport(ctx, original)
	if err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive row ID, got %d", id)
	}

	t.Run("latest by root URL", func(t *testing.T) {
		got, err := db.GetLatestReport(ctx, "https://a.test/")
		if err != nil {
			t.Fatalf("failed to get report: %v", err)
		}
		if got == nil {
			t.Fatal("expected report, got nil")
		}
		if got.ID != original.ID {
			t.Errorf("report UUID mismatch: got %q, want %q", got.ID, original.ID)
		}
		if got.OverallScore != 85 {
			t.Errorf("unexpected score %.1f", got.OverallScore)
		}
		if !got.Truncated {
			t.Error("truncated flag lost in round trip")
		}
		if len(got.Pages) != 1 || len(got.Failed) != 1 {
			t.Errorf("pages/failures lost: %d pages, %d failed", len(got.Pages), len(got.Failed))
		}
	})

	t.Run("by row ID", func(t *testing.T) {
		got, err := db.GetReportByID(ctx, id)
		if err != nil {
			t.Fatalf("failed to get report by ID: %v", err)
		}
		if got == nil || got.ID != original.ID {
			t.Error("report by row ID missing or wrong")
		}
	})

	t.Run("unknown root returns nil", func(t *testing.T) {
		got, err := db.GetLatestReport(ctx, "https://never-audited.test/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil report for unknown root")
		}
	})

	t.Run("unknown row ID returns nil", func(t *testing.T) {
		got, err := db.GetReportByID(ctx, 999999)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil report for unknown row ID")
		}
	})
}

// TestGetLatestReportOrdering tests that the newest run wins.
func TestGetLatestReportOrdering(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.SaveReport(ctx, sampleReport("https://a.test/", 60)); err != nil {
		t.Fatalf("failed to save first run: %v", err)
	}
	if _, err := db.SaveReport(ctx, sampleReport("https://a.test/", 90)); err != nil {
		t.Fatalf("failed to save second run: %v", err)
	}

	got, err := db.GetLatestReport(ctx, "https://a.test/")
	if err != nil {
		t.Fatalf("failed to get latest: %v", err)
	}
	if got.OverallScore != 90 {
		t.Errorf("expected latest run (score 90), got %.1f", got.OverallScore)
	}
}

// TestListAuditedSites tests the distinct-site listing.
func TestListAuditedSites(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for _, root := range []string{"https://b.test/", "https://a.test/", "https://b.test/"} {
		if _, err := db.SaveReport(ctx, sampleReport(root, 70)); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	sites, err := db.ListAuditedSites(ctx)
	if err != nil {
		t.Fatalf("failed to list sites: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 distinct sites, got %v", sites)
	}
	if sites[0] != "https://a.test/" || sites[1] != "https://b.test/" {
		t.Errorf("sites not sorted: %v", sites)
	}
}

// TestGetAuditHistory tests metadata listings.
func TestGetAuditHistory(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.SaveReport(ctx, sampleReport("https://a.test/", 55)); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	if _, err := db.SaveReport(ctx, sampleReport("https://a.test/", 75)); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	if _, err := db.SaveReport(ctx, sampleReport("https://other.test/", 99)); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	history, err := db.GetAuditHistory(ctx, "https://a.test/")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}

	// Newest first.
	if history[0].OverallScore != 75 || history[1].OverallScore != 55 {
		t.Errorf("history not newest-first: %+v", history)
	}
	for _, meta := range history {
		if meta.RootURL != "https://a.test/" {
			t.Errorf("foreign site leaked into history: %q", meta.RootURL)
		}
		if meta.PageCount != 1 || meta.FailedCount != 1 {
			t.Errorf("unexpected counts: %+v", meta)
		}
		if meta.ReportID == "" {
			t.Error("missing report UUID in metadata")
		}
		if meta.Timestamp.IsZero() {
			t.Error("timestamp not parsed")
		}
		if meta.ScoreSummary["seo"] != meta.OverallScore {
			t.Errorf("score summary mismatch: %+v", meta.ScoreSummary)
		}
	}
}

// TestHasRecentAudit tests the recency check.
func TestHasRecentAudit(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.SaveReport(ctx, sampleReport("https://a.test/", 70)); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	recent, err := db.HasRecentAudit(ctx, "https://a.test/", time.Hour)
	if err != nil {
		t.Fatalf("failed to check recency: %v", err)
	}
	if !recent {
		t.Error("just-saved audit not detected as recent")
	}

	recent, err = db.HasRecentAudit(ctx, "https://never.test/", time.Hour)
	if err != nil {
		t.Fatalf("failed to check recency: %v", err)
	}
	if recent {
		t.Error("unknown site reported as recently audited")
	}
}

// TestParseTimestamp tests the multi-format timestamp fallback.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		zero  bool
	}{
		{"2026-03-14 09:26:53", false},
		{"2026-03-14T09:26:53Z", false},
		{"2026-03-14T09:26:53", false},
		{"2026-03-14T09:26:53+09:00", false},
		{"2026-03-14 09:26:53.123", false},
		{"not a timestamp", true},
		{"", true},
	}

	for _, tt := range tests {
		got := parseTimestamp(tt.input)
		if got.IsZero() != tt.zero {
			t.Errorf("parseTimestamp(%q) zero=%v, want zero=%v", tt.input, got.IsZero(), tt.zero)
		}
	}
}
