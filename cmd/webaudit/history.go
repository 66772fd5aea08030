package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/database"
	"github.com/webaudit/webaudit/internal/report"
)

// NewHistoryCmd creates the history command.
// This command inspects audit results stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show stored audit history for a site",
		Long: `History lists previous audit runs stored in the database.

For each run it shows the run ID, date, overall score, page counts, and the
score change relative to the preceding run. Individual runs can be printed
in full with --show.

Examples:
  # List audit history for a site
  webaudit history https://example.com

  # List all audited sites in the database
  webaudit history --list-sites

  # Print a stored report by run ID (use the listing to find IDs)
  webaudit history --show 5 https://example.com

  # Output history metadata as JSON
  webaudit history --json https://example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-sites", "L", false,
		"List all audited sites in the database")
	cmd.Flags().Int64P("show", "s", 0,
		"Print the full stored report with the given run ID")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	listSites, err := cmd.Flags().GetBool("list-sites")
	if err != nil {
		return err
	}
	showID, err := cmd.Flags().GetInt64("show")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var rootURL string
	if !listSites && showID == 0 {
		if len(args) == 0 {
			return errors.New("site URL is required (use --list-sites to see audited sites)")
		}
		rootURL = normalizeTarget(args[0])
	} else if len(args) > 0 {
		rootURL = normalizeTarget(args[0])
	}

	// The history database must already exist; history never creates one.
	db, err := database.Open(config.XDGDataDir(), database.Options{
		CreateIfNotExists: false,
		EnableWAL:         true,
	})
	if err != nil {
		return fmt.Errorf("no audit history available: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if showID > 0 {
		return showStoredReport(ctx, db, showID, jsonOutput)
	}
	if listSites {
		return listAuditedSites(ctx, db)
	}
	return listAuditHistory(ctx, db, rootURL, jsonOutput)
}

// listAuditedSites lists all sites that have stored audit runs.
func listAuditedSites(ctx context.Context, db *database.AuditDB) error {
	sites, err := db.ListAuditedSites(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sites: %w", err)
	}

	if len(sites) == 0 {
		fmt.Println("No audited sites found in the database.")
		fmt.Println("\nUse 'webaudit audit <url>' to audit a site.")
		return nil
	}

	fmt.Printf("Audited sites (%d):\n\n", len(sites))
	for _, site := range sites {
		fmt.Printf("  • %s\n", site)
	}
	fmt.Println("\nUse 'webaudit history <url>' to see audit runs for a site.")

	return nil
}

// listAuditHistory lists all stored runs for one site, newest first.
func listAuditHistory(ctx context.Context, db *database.AuditDB, rootURL string, jsonOutput bool) error {
	runs, err := db.GetAuditHistory(ctx, rootURL)
	if err != nil {
		return fmt.Errorf("failed to get audit history: %w", err)
	}

	if len(runs) == 0 {
		fmt.Printf("No audit history found for %s\n", rootURL)
		fmt.Println("\nUse 'webaudit audit' to audit this site.")
		return nil
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(runs)
	}

	fmt.Printf("Audit history for %s (%d runs):\n\n", rootURL, len(runs))
	fmt.Printf("  %-6s  %-20s  %-12s  %-7s  %-6s  %s\n",
		"ID", "Date", "Score", "Trend", "Pages", "Categories")
	fmt.Println("  " + strings.Repeat("-", 80))

	for i, meta := range runs {
		// Runs are newest first; the trend compares each run with the
		// next (older) one.
		trend := "-"
		if i+1 < len(runs) {
			trend = formatTrend(meta.OverallScore - runs[i+1].OverallScore)
		}

		pages := fmt.Sprintf("%d", meta.PageCount)
		if meta.FailedCount > 0 {
			pages += fmt.Sprintf("+%d!", meta.FailedCount)
		}
		if meta.Truncated {
			pages += "*"
		}

		fmt.Printf("  %-6d  %-20s  %-12s  %-7s  %-6s  %s\n",
			meta.ID,
			meta.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.1f", meta.OverallScore),
			trend,
			pages,
			formatScoreSummary(meta.ScoreSummary),
		)
	}

	fmt.Println("\n(pages column: audited+failed!, * = truncated run)")
	fmt.Println("Use 'webaudit history --show <id>' to print a stored report in full.")

	return nil
}

// formatTrend renders a score delta as a signed change indicator.
func formatTrend(delta float64) string {
	switch {
	case delta > 0.05:
		return fmt.Sprintf("+%.1f", delta)
	case delta < -0.05:
		return fmt.Sprintf("%.1f", delta)
	default:
		return "±0.0"
	}
}

// formatScoreSummary formats per-analyzer mean scores into one short string.
func formatScoreSummary(summary map[string]float64) string {
	if len(summary) == 0 {
		return "N/A"
	}

	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s:%.0f", name, summary[name]))
	}
	return strings.Join(parts, " ")
}

// showStoredReport prints one stored report in full.
func showStoredReport(ctx context.Context, db *database.AuditDB, id int64, jsonOutput bool) error {
	stored, err := db.GetReportByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", id, err)
	}
	if stored == nil {
		return fmt.Errorf("run %d not found (use 'webaudit history <url>' to list run IDs)", id)
	}

	var writer report.Writer
	if jsonOutput {
		writer = report.NewJSONWriter(os.Stdout, report.WithPrettyPrint())
	} else {
		writer = report.NewSimpleWriter(os.Stdout, report.WithVerbose(true))
	}

	_, err = writer.Write(stored)
	return err
}
