package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webaudit/webaudit/internal/analyzer"
	"github.com/webaudit/webaudit/internal/browser"
	"github.com/webaudit/webaudit/internal/cache"
	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/crawler"
	"github.com/webaudit/webaudit/internal/database"
	"github.com/webaudit/webaudit/internal/fetcher"
	"github.com/webaudit/webaudit/internal/log"
	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/pipeline"
	"github.com/webaudit/webaudit/internal/report"
)

// NewAuditCmd creates the audit command.
func NewAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [url]",
		Short: "Crawl a website and score each page",
		Long: `Audit crawls a website breadth-first from the given root URL and runs
every page through the configured analyzers:
- SEO (titles, meta descriptions, canonical URLs, structured data)
- Accessibility (alt text, heading structure, form labels, language)
- Security (HTTPS, security headers, cookie flags, mixed content)
- Performance (response time, payload size, blocking resources)
- Content (word count, link density, document structure)

Examples:
  # Audit a single site
  webaudit audit https://example.com

  # Audit several sites in one run
  webaudit audit https://example.com https://example.org

  # Limit crawl depth and page count
  webaudit audit --depth 2 --max-pages 20 https://example.com

  # Render pages in a headless browser before analysis
  webaudit audit --render https://example.com

  # Run only selected analyzers
  webaudit audit --analyzers seo,security https://example.com

  # Output a Markdown report to a file
  webaudit audit --markdown --output report.md https://example.com

Configuration file (.webaudit) example:
  sites:
    app.example.com:
      render: true
      cookie: "session_id=abc123"
      headers:
        Authorization: "Bearer token"
      depth: 5
      ignorePatterns:
        - "/logout*"
        - "/admin/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runAuditCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum crawl recursion depth (0 = root page only)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to process per site")
	cmd.Flags().IntP("concurrency", "w", config.DefaultCrawlConcurrency,
		"Number of parallel crawl workers")
	cmd.Flags().Duration("crawl-timeout", config.DefaultCrawlTimeout,
		"Wall-clock budget for one whole crawl")
	cmd.Flags().Bool("no-robots", false,
		"Ignore robots.txt restrictions")

	// Fetch behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultFetchTimeout,
		"Timeout for each page fetch")
	cmd.Flags().Float64P("rate", "r", config.DefaultRequestsPerSecond,
		"Maximum outbound requests per second")
	cmd.Flags().Int("max-fetches", config.DefaultMaxConcurrentFetches,
		"Maximum simultaneous in-flight fetches")
	cmd.Flags().Int("retries", config.DefaultMaxRetries,
		"Retry budget for transient fetch failures")
	cmd.Flags().Bool("render", false,
		"Render all pages in a headless browser before analysis")
	cmd.Flags().Bool("refresh", false,
		"Re-fetch pages instead of reusing in-session cached responses")

	// Analysis flags
	cmd.Flags().StringSliceP("analyzers", "a", nil,
		"Comma-separated analyzer names (default: all registered)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .webaudit in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not store the audit result in the history database")

	return cmd
}

// runAuditCmd executes the audit command.
func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Audits may carry user-supplied cookies and auth headers; the secure
	// handler keeps them out of the logs.
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runAudit(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.CrawlDepth, err = cmd.Flags().GetInt("depth")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.CrawlConcurrency, err = cmd.Flags().GetInt("concurrency")
	if err != nil {
		return nil, err
	}

	cfg.CrawlTimeout, err = cmd.Flags().GetDuration("crawl-timeout")
	if err != nil {
		return nil, err
	}

	noRobots, err := cmd.Flags().GetBool("no-robots")
	if err != nil {
		return nil, err
	}
	cfg.RespectRobots = !noRobots

	cfg.FetchTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.RequestsPerSecond, err = cmd.Flags().GetFloat64("rate")
	if err != nil {
		return nil, err
	}

	cfg.MaxConcurrentFetches, err = cmd.Flags().GetInt("max-fetches")
	if err != nil {
		return nil, err
	}

	cfg.MaxRetries, err = cmd.Flags().GetInt("retries")
	if err != nil {
		return nil, err
	}

	cfg.RenderPages, err = cmd.Flags().GetBool("render")
	if err != nil {
		return nil, err
	}

	cfg.ForceRefresh, err = cmd.Flags().GetBool("refresh")
	if err != nil {
		return nil, err
	}

	cfg.Analyzers, err = cmd.Flags().GetStringSlice("analyzers")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load site-specific configurations from config file.
	// If user explicitly specified a config file path, error if not found.
	// If no path specified, silently use empty config if no file found.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	} else {
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	noSave, err := cmd.Flags().GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	cfg.DBDir = config.XDGDataDir()

	cfg.Verbose = getVerboseFlag(cmd)

	// Positional arguments are the root URLs; bare hosts get an https scheme.
	cfg.Targets = make([]string, 0, len(args))
	for _, arg := range args {
		cfg.Targets = append(cfg.Targets, normalizeTarget(arg))
	}

	return cfg, nil
}

// normalizeTarget prepends https:// to bare hostnames so "example.com" and
// "https://example.com" behave the same.
func normalizeTarget(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return "https://" + target
}

// runAudit executes the audit across all configured targets.
func runAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting audit",
		"targets", cfg.Targets,
		"depth", cfg.CrawlDepth,
		"maxPages", cfg.MaxPages,
		"render", cfg.RenderPages,
		"saveToDB", cfg.SaveToDB,
	)

	analyzers, err := analyzer.Get(cfg.Analyzers...)
	if err != nil {
		return err
	}

	var db *database.AuditDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	fetchOpts := []fetcher.Option{
		fetcher.WithTimeout(cfg.FetchTimeout),
		fetcher.WithConcurrency(int64(cfg.MaxConcurrentFetches)),
		fetcher.WithRateLimit(cfg.RequestsPerSecond),
		fetcher.WithRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryBackoffFactor),
		fetcher.WithCache(cache.New[*model.FetchResult](cfg.CacheMaxEntries), cfg.FetchCacheTTL),
		fetcher.WithSiteConfigs(cfg.SiteConfigs),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithLogger(logger),
	}

	// The browser pool is expensive; start it only when some target will
	// actually render.
	if needsRenderer(cfg) {
		pool := browser.NewPool(
			browser.NewChromeFactory(browser.ChromeOptions{
				UserAgent:  cfg.UserAgent,
				Headless:   true,
				ProfileDir: filepath.Join(config.XDGCacheDir(), "chrome"),
			}),
			browser.WithSize(cfg.BrowserPoolSize),
			browser.WithRecycleThreshold(cfg.BrowserRecycleAfter),
			browser.WithAcquireTimeout(cfg.BrowserAcquireTimeout),
			browser.WithLogger(logger),
		)
		defer pool.Close()
		fetchOpts = append(fetchOpts, fetcher.WithRenderer(pool))
	}

	f := fetcher.New(fetchOpts...)

	pipe := pipeline.New(analyzers,
		pipeline.WithCache(cache.New[*model.PageEvaluationResult](cfg.CacheMaxEntries), cfg.EvalCacheTTL),
		pipeline.WithAnalyzerTimeout(cfg.AnalyzerTimeout),
		pipeline.WithLogger(logger),
	)

	for _, target := range cfg.Targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fmt.Printf("Auditing %s...\n", target)
		startTime := time.Now()

		// Targets sharing a host would otherwise be served from the pages
		// cached by an earlier crawl in this run.
		if cfg.ForceRefresh {
			if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
				dropped := f.InvalidateHost(u.Hostname())
				logger.Debug("dropped cached pages", "host", u.Hostname(), "entries", dropped)
			}
		}

		c := createCrawlerForTarget(f, pipe, cfg, target, logger)
		siteReport, err := c.Crawl(ctx, target)
		if err != nil {
			logger.Error("audit failed", "target", target, "error", err)
			fmt.Fprintf(os.Stderr, "Audit error for %s: %v\n", target, err)
			continue
		}

		elapsed := time.Since(startTime)
		fmt.Printf("Audit completed in %s: %d pages, score %.1f\n\n",
			elapsed.Round(time.Millisecond), len(siteReport.Pages), siteReport.OverallScore)

		if err := outputReport(cfg, siteReport); err != nil {
			logger.Error("report failed", "target", target, "error", err)
		}

		if err := saveAuditReport(ctx, db, siteReport, logger); err != nil {
			logger.Error("failed to save audit report", "target", target, "error", err)
		}
	}

	return nil
}

// needsRenderer reports whether any target or site config requests
// browser-rendered fetches.
func needsRenderer(cfg *config.Config) bool {
	if cfg.RenderPages {
		return true
	}
	if cfg.SiteConfigs == nil {
		return false
	}
	if cfg.SiteConfigs.Defaults.Render {
		return true
	}
	for _, site := range cfg.SiteConfigs.Sites {
		if site.Render {
			return true
		}
	}
	return false
}

// createCrawlerForTarget builds a crawler with per-site overrides applied.
func createCrawlerForTarget(f *fetcher.Fetcher, pipe *pipeline.Pipeline, cfg *config.Config, target string, logger *slog.Logger) *crawler.Crawler {
	siteConfig := siteConfigForTarget(cfg, target)

	depth := cfg.CrawlDepth
	if siteConfig.Depth > 0 {
		depth = siteConfig.Depth
	}

	renderMode := model.RenderStatic
	if cfg.RenderPages || siteConfig.Render {
		renderMode = model.RenderBrowser
	}

	return crawler.New(f, pipe,
		crawler.WithMaxDepth(depth),
		crawler.WithMaxPages(cfg.MaxPages),
		crawler.WithConcurrency(cfg.CrawlConcurrency),
		crawler.WithCrawlTimeout(cfg.CrawlTimeout),
		crawler.WithRenderMode(renderMode),
		crawler.WithRespectRobots(cfg.RespectRobots),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithIgnorePatterns(siteConfig.IgnorePatterns),
		crawler.WithLogger(logger),
	)
}

// siteConfigForTarget resolves the site configuration for a target URL.
func siteConfigForTarget(cfg *config.Config, target string) config.SiteConfig {
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	u, err := url.Parse(target)
	if err != nil {
		return cfg.SiteConfigs.Defaults
	}
	return cfg.SiteConfigs.GetSiteConfig(u.Hostname())
}

// outputReport writes the audit report in the requested format.
func outputReport(cfg *config.Config, siteReport *model.SiteReport) error {
	var output *os.File
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may quote cookie-bearing URLs and internal paths, so keep
		// them owner-readable only.
		fl, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer fl.Close()
		output = fl
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(siteReport)
	return err
}

// saveAuditReport stores the report in the database if enabled.
// If db is nil, this function is a no-op.
func saveAuditReport(ctx context.Context, db *database.AuditDB, siteReport *model.SiteReport, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	id, err := db.SaveReport(ctx, siteReport)
	if err != nil {
		return fmt.Errorf("failed to save audit report: %w", err)
	}

	logger.Info("audit report saved", "target", siteReport.RootURL, "rowID", id)
	return nil
}
