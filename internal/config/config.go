package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen to keep a default audit polite toward the target
// site while still finishing in a reasonable time on medium-sized sites.
const (
	// DefaultFetchTimeout is the per-request timeout for page fetches.
	// Rendered fetches share the same budget; a page that takes longer than
	// 30 seconds to respond is not worth auditing in a default run.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultMaxConcurrentFetches caps simultaneous in-flight fetches
	// across the whole process, regardless of crawl concurrency. This is
	// the fetcher's global ceiling, not a per-site limit.
	DefaultMaxConcurrentFetches = 8

	// DefaultRequestsPerSecond is the token-bucket refill rate for
	// outbound requests. Two requests per second is conservative enough
	// not to look like abuse to most origins.
	DefaultRequestsPerSecond = 2.0

	// DefaultMaxRetries is how many times a transient fetch failure is
	// retried before it is reported as permanent.
	DefaultMaxRetries = 3

	// DefaultRetryBaseDelay is the first retry delay; subsequent retries
	// back off exponentially (base * factor^attempt).
	DefaultRetryBaseDelay = 500 * time.Millisecond

	// DefaultRetryBackoffFactor is the exponential backoff multiplier.
	DefaultRetryBackoffFactor = 2.0

	// DefaultFetchCacheTTL is how long fetched responses stay valid.
	// Pages change rarely within a single audit session, so 15 minutes
	// covers repeated evaluations without re-fetching.
	DefaultFetchCacheTTL = 15 * time.Minute

	// DefaultEvalCacheTTL is how long finished page evaluations stay
	// valid. Evaluations are more expensive than fetches and strictly
	// derived from them, so they keep a longer TTL.
	DefaultEvalCacheTTL = time.Hour

	// DefaultCacheMaxEntries bounds the result cache. When exceeded, the
	// least-recently-used entry is evicted before insertion.
	DefaultCacheMaxEntries = 1024

	// DefaultBrowserPoolSize is the number of concurrent headless browser
	// instances. Each instance is a full Chrome process; more than a
	// handful exhausts memory on typical hosts.
	DefaultBrowserPoolSize = 3

	// DefaultBrowserRecycleAfter is how many rendered pages a browser
	// instance serves before it is torn down and replaced. Long-lived
	// Chrome processes accumulate memory and must be bounded.
	DefaultBrowserRecycleAfter = 32

	// DefaultBrowserAcquireTimeout bounds the wait for a free browser
	// handle. Exceeding it surfaces as a pool-exhausted error to the
	// caller rather than blocking a crawl worker forever.
	DefaultBrowserAcquireTimeout = 60 * time.Second

	// DefaultAnalyzerTimeout is the per-analyzer time budget. A single
	// slow analyzer contributes a failure outcome instead of stalling
	// the whole page evaluation.
	DefaultAnalyzerTimeout = 20 * time.Second

	// DefaultCrawlDepth limits how deep the crawler follows links from
	// the root page. Depth 0 means only the root page.
	DefaultCrawlDepth = 3

	// DefaultMaxPages limits the total number of pages per crawl.
	// This prevents runaway crawling on large or infinitely-generating sites.
	DefaultMaxPages = 50

	// DefaultCrawlConcurrency is the number of crawl workers pulling from
	// the frontier.
	DefaultCrawlConcurrency = 4

	// DefaultCrawlTimeout is the wall-clock budget for one whole crawl.
	DefaultCrawlTimeout = 10 * time.Minute

	// DefaultUserAgent identifies webaudit in HTTP requests.
	// A descriptive User-Agent lets site operators identify audit traffic.
	DefaultUserAgent = "webaudit/1.0 (+https://github.com/webaudit/webaudit)"

	// DefaultMaxBodySize limits the maximum response body size to read.
	// 5MB is sufficient for most HTML pages while preventing memory
	// exhaustion from unexpectedly large responses.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// AppName is the application name used for XDG directory paths.
	AppName = "webaudit"
)

// Config holds all configuration options for webaudit.
// This struct is populated from CLI flags and passed through the application
// via dependency injection rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., FetcherConfig, CrawlConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// FetchTimeout is the timeout for each individual page fetch.
	FetchTimeout time.Duration

	// MaxConcurrentFetches is the global ceiling on in-flight fetches.
	MaxConcurrentFetches int

	// RequestsPerSecond is the outbound request rate limit.
	RequestsPerSecond float64

	// MaxRetries is the retry budget for transient fetch failures.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay between retries.
	RetryBaseDelay time.Duration

	// RetryBackoffFactor is the exponential backoff multiplier.
	RetryBackoffFactor float64

	// FetchCacheTTL is the TTL for cached fetch responses.
	FetchCacheTTL time.Duration

	// EvalCacheTTL is the TTL for cached page evaluation results.
	EvalCacheTTL time.Duration

	// CacheMaxEntries bounds the result cache size (LRU eviction).
	CacheMaxEntries int

	// BrowserPoolSize is the maximum number of headless browser instances.
	BrowserPoolSize int

	// BrowserRecycleAfter is the per-instance request count before recycle.
	BrowserRecycleAfter int

	// BrowserAcquireTimeout bounds the wait for a free browser handle.
	BrowserAcquireTimeout time.Duration

	// AnalyzerTimeout is the per-analyzer time budget during evaluation.
	AnalyzerTimeout time.Duration

	// CrawlDepth is the maximum link depth from the root page.
	CrawlDepth int

	// MaxPages is the maximum number of pages to process per crawl.
	MaxPages int

	// CrawlConcurrency is the number of crawl worker goroutines.
	CrawlConcurrency int

	// CrawlTimeout is the wall-clock budget for a whole crawl.
	CrawlTimeout time.Duration

	// RenderPages requests browser-rendered fetches for all pages.
	// Site-specific configuration can override this per host.
	RenderPages bool

	// ForceRefresh drops cached pages for each target host before its
	// crawl, so a host audited more than once in a run is re-fetched.
	ForceRefresh bool

	// RespectRobots enables robots.txt checks before fetching pages.
	RespectRobots bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// Analyzers selects the analyzer set by name. Empty means all
	// registered analyzers.
	Analyzers []string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the site configuration file.
	// If empty, the tool searches for .webaudit in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the
	// config file.
	SiteConfigs *File

	// JSONReport enables JSON report output instead of human-readable format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Targets is the list of root URLs to audit.
	Targets []string

	// DBDir is the directory path for storing the SQLite database.
	// When empty, audit results are not persisted.
	DBDir string

	// SaveToDB indicates whether to save audit results to the database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeouts, pool sizes).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		FetchTimeout:          DefaultFetchTimeout,
		MaxConcurrentFetches:  DefaultMaxConcurrentFetches,
		RequestsPerSecond:     DefaultRequestsPerSecond,
		MaxRetries:            DefaultMaxRetries,
		RetryBaseDelay:        DefaultRetryBaseDelay,
		RetryBackoffFactor:    DefaultRetryBackoffFactor,
		FetchCacheTTL:         DefaultFetchCacheTTL,
		EvalCacheTTL:          DefaultEvalCacheTTL,
		CacheMaxEntries:       DefaultCacheMaxEntries,
		BrowserPoolSize:       DefaultBrowserPoolSize,
		BrowserRecycleAfter:   DefaultBrowserRecycleAfter,
		BrowserAcquireTimeout: DefaultBrowserAcquireTimeout,
		AnalyzerTimeout:       DefaultAnalyzerTimeout,
		CrawlDepth:            DefaultCrawlDepth,
		MaxPages:              DefaultMaxPages,
		CrawlConcurrency:      DefaultCrawlConcurrency,
		CrawlTimeout:          DefaultCrawlTimeout,
		RespectRobots:         true,
		UserAgent:             DefaultUserAgent,
		MaxBodySize:           DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for webaudit.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/webaudit
// On macOS: ~/Library/Application Support/webaudit
// On Windows: %LOCALAPPDATA%\webaudit
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for webaudit.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// We return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.FetchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConcurrentFetches <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RequestsPerSecond <= 0 {
		return ErrInvalidRate
	}
	if c.MaxRetries < 0 {
		return ErrInvalidRetries
	}
	if c.CacheMaxEntries <= 0 {
		return ErrInvalidCacheSize
	}
	if c.BrowserPoolSize <= 0 {
		return ErrInvalidPoolSize
	}
	if c.CrawlDepth < 0 {
		return ErrInvalidDepth
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.CrawlConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	return nil
}
