package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrNoTarget is returned when no root URL is specified.
	ErrNoTarget = errors.New("no target specified: provide one or more root URLs as arguments")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	// A timeout of zero or negative would cause immediate request failures.
	ErrInvalidTimeout = errors.New("invalid fetch timeout: must be positive")

	// ErrInvalidConcurrency is returned when a concurrency setting is not
	// positive. Zero concurrency would mean no work gets done at all.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRate is returned when the request rate is not positive.
	ErrInvalidRate = errors.New("invalid request rate: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	// Use 0 to disable retries entirely.
	ErrInvalidRetries = errors.New("invalid retry count: must be non-negative")

	// ErrInvalidCacheSize is returned when the cache entry bound is not
	// positive. An unbounded cache is not supported.
	ErrInvalidCacheSize = errors.New("invalid cache size: must be positive")

	// ErrInvalidPoolSize is returned when the browser pool size is not
	// positive. Rendered fetches require at least one browser instance.
	ErrInvalidPoolSize = errors.New("invalid browser pool size: must be positive")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	// Depth 0 audits only the root page.
	ErrInvalidDepth = errors.New("invalid crawl depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is not positive.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
