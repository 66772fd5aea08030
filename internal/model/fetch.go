package model

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// RenderMode selects how a page is fetched.
type RenderMode string

const (
	// RenderStatic fetches the raw HTML over plain HTTP.
	RenderStatic RenderMode = "static"

	// RenderBrowser loads the page in a headless browser and captures the
	// DOM after JavaScript execution.
	RenderBrowser RenderMode = "browser"
)

// FetchRequest describes one page fetch.
// It is created by the crawler (or a direct API caller) and consumed by the
// fetcher. The URL must already be normalized; the fetcher uses Key() as the
// cache and deduplication key without further canonicalization.
type FetchRequest struct {
	// URL is the normalized target URL.
	URL string

	// Mode selects static HTTP or browser-rendered fetching.
	// Zero value means RenderStatic.
	Mode RenderMode

	// ForceRefresh bypasses the cache and always issues network I/O.
	// The fresh result still replaces the cached entry on success.
	ForceRefresh bool
}

// Key returns the cache/deduplication key for this request.
// Requests for the same URL in different render modes are distinct work:
// the rendered DOM and the raw HTML of the same page routinely differ.
func (r FetchRequest) Key() string {
	mode := r.Mode
	if mode == "" {
		mode = RenderStatic
	}
	return r.URL + "|" + string(mode)
}

// FetchResult is the outcome of one successful page fetch.
//
// Invariant: a FetchResult is never mutated after construction. The cache
// and the evaluation pipeline share the same instance, so all fields must be
// treated as read-only by every consumer.
type FetchResult struct {
	// URL is the request URL (pre-redirect).
	URL string `json:"url"`

	// Body is the response body, decoded and capped at the configured limit.
	Body []byte `json:"-"` // Excluded from JSON due to size

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// Headers contains the response headers.
	Headers http.Header `json:"headers,omitempty"`

	// ContentType is the MIME type from the Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Rendered is true if the body is a browser-rendered DOM snapshot.
	Rendered bool `json:"rendered"`

	// Hash is the SHA-256 hash of Body, used for change detection.
	Hash string `json:"hash,omitempty"`

	// Retries is the number of retry attempts before this fetch succeeded.
	Retries int `json:"retries"`

	// FetchedAt is when the response was received.
	FetchedAt time.Time `json:"fetched_at"`

	// Elapsed is the total wall-clock fetch duration including retries.
	Elapsed time.Duration `json:"elapsed"`
}

// ComputeHash calculates and sets the SHA-256 hash of the body.
// Call once during construction, before the result is shared.
func (f *FetchResult) ComputeHash() {
	if len(f.Body) == 0 {
		f.Hash = ""
		return
	}
	sum := sha256.Sum256(f.Body)
	f.Hash = hex.EncodeToString(sum[:])
}

// Header returns the first value of the named response header.
func (f *FetchResult) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers.Get(name)
}

// IsHTML reports whether the content type indicates an HTML document.
func (f *FetchResult) IsHTML() bool {
	return strings.HasPrefix(f.ContentType, "text/html") ||
		strings.HasPrefix(f.ContentType, "application/xhtml+xml")
}
