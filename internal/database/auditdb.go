package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/webaudit/webaudit/internal/model"
)

// dbFileName is the SQLite file created inside the database directory.
const dbFileName = "webaudit.db"

// AuditDB provides SQLite-based storage for completed audit reports.
// It manages connection pooling and provides methods for saving runs
// and querying audit history.
//
// Design decision: We store the full report as a JSON blob plus a few
// indexed summary columns. History listings only touch the summary
// columns; the blob is decoded only when a specific run is requested.
type AuditDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AuditDB at the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (adb *AuditDB) createTables() error {
	schema := `
	-- Audit reports store complete audit runs as JSON plus summary columns
	CREATE TABLE IF NOT EXISTS audit_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL UNIQUE,
		root_url TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		overall_score REAL NOT NULL,
		page_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		truncated INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL,
		score_summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_reports_root ON audit_reports(root_url);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON audit_reports(timestamp);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveReport persists a completed audit report. Returns the database row ID.
func (adb *AuditDB) SaveReport(ctx context.Context, report *model.SiteReport) (int64, error) {
	if report == nil {
		return 0, errors.New("nil report")
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	summaryJSON, _ := json.Marshal(scoreSummary(report)) //nolint:errcheck,errchkjson // plain map of floats; Marshal won't fail

	query := `
	INSERT INTO audit_reports (report_id, root_url, overall_score, page_count, failed_count, truncated, report_json, score_summary)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := adb.db.ExecContext(ctx, query,
		report.ID,
		report.RootURL,
		report.OverallScore,
		len(report.Pages),
		len(report.Failed),
		boolToInt(report.Truncated),
		string(reportJSON),
		string(summaryJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save audit report: %w", err)
	}

	return result.LastInsertId()
}

// GetLatestReport retrieves the most recent audit report for a root URL.
// Returns (nil, nil) when the site has never been audited.
func (adb *AuditDB) GetLatestReport(ctx context.Context, rootURL string) (*model.SiteReport, error) {
	query := `
	SELECT report_json FROM audit_reports
	WHERE root_url = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := adb.db.QueryRowContext(ctx, query, rootURL).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit report: %w", err)
	}

	var report model.SiteReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// GetReportByID retrieves an audit report by its database row ID.
// Returns (nil, nil) when no such row exists.
func (adb *AuditDB) GetReportByID(ctx context.Context, id int64) (*model.SiteReport, error) {
	query := `
	SELECT report_json FROM audit_reports
	WHERE id = ?
	`

	var reportJSON string
	err := adb.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit report: %w", err)
	}

	var report model.SiteReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// ListAuditedSites returns the distinct root URLs that have stored reports.
func (adb *AuditDB) ListAuditedSites(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT root_url FROM audit_reports
	ORDER BY root_url
	`

	rows, err := adb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}

	return sites, rows.Err()
}

// AuditMetadata contains summary information about one stored audit run.
// This is used for displaying history without loading the full report.
type AuditMetadata struct {
	// ID is the unique identifier of the run in the database.
	ID int64

	// ReportID is the audit run's UUID.
	ReportID string

	// RootURL is the audited site.
	RootURL string

	// Timestamp is when the run was stored.
	Timestamp time.Time

	// OverallScore is the site-level score of the run.
	OverallScore float64

	// PageCount is the number of successfully audited pages.
	PageCount int

	// FailedCount is the number of pages that could not be processed.
	FailedCount int

	// Truncated marks runs cut short by the page or time limit.
	Truncated bool

	// ScoreSummary contains per-analyzer mean scores for the run.
	ScoreSummary map[string]float64
}

// GetAuditHistory retrieves run metadata for a root URL, newest first.
// This is more efficient than loading full reports when only summaries
// are needed.
func (adb *AuditDB) GetAuditHistory(ctx context.Context, rootURL string) ([]AuditMetadata, error) {
	query := `
	SELECT id, report_id, root_url, timestamp, overall_score, page_count, failed_count, truncated, score_summary
	FROM audit_reports
	WHERE root_url = ?
	ORDER BY timestamp DESC, id DESC
	`

	rows, err := adb.db.QueryContext(ctx, query, rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit history: %w", err)
	}
	defer rows.Close()

	var results []AuditMetadata
	for rows.Next() {
		var meta AuditMetadata
		var timestamp string
		var truncated int
		var summaryJSON sql.NullString

		if err := rows.Scan(
			&meta.ID,
			&meta.ReportID,
			&meta.RootURL,
			&timestamp,
			&meta.OverallScore,
			&meta.PageCount,
			&meta.FailedCount,
			&truncated,
			&summaryJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}

		meta.Timestamp = parseTimestamp(timestamp)
		meta.Truncated = truncated != 0

		if summaryJSON.Valid && summaryJSON.String != "" {
			if err := json.Unmarshal([]byte(summaryJSON.String), &meta.ScoreSummary); err != nil {
				meta.ScoreSummary = make(map[string]float64)
			}
		} else {
			meta.ScoreSummary = make(map[string]float64)
		}

		results = append(results, meta)
	}

	return results, rows.Err()
}

// HasRecentAudit checks whether the root URL was audited within the given
// duration.
func (adb *AuditDB) HasRecentAudit(ctx context.Context, rootURL string, within time.Duration) (bool, error) {
	query := `
	SELECT COUNT(*) FROM audit_reports
	WHERE root_url = ? AND timestamp > datetime('now', ?)
	`

	// SQLite datetime modifier format.
	modifier := fmt.Sprintf("-%d seconds", int(within.Seconds()))

	var count int
	if err := adb.db.QueryRowContext(ctx, query, rootURL, modifier).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check recent audit: %w", err)
	}

	return count > 0, nil
}

// scoreSummary computes per-analyzer mean scores across the report's pages,
// skipping failed outcomes.
func scoreSummary(report *model.SiteReport) map[string]float64 {
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

	summary := make(map[string]float64, len(sums))
	for name, sum := range sums {
		summary[name] = sum / float64(counts[name])
	}
	return summary
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on
// configuration. If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
