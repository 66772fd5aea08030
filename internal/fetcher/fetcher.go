package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/webaudit/webaudit/internal/cache"
	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
)

// Renderer produces a fetched page through a rendering backend that
// executes JavaScript before snapshotting the DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*model.FetchResult, error)
}

// Fetcher downloads pages under a shared concurrency, rate, and retry
// budget. It is safe for concurrent use by multiple crawl workers.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	sem       *semaphore.Weighted
	group     singleflight.Group
	cache     *cache.Cache[*model.FetchResult]
	cacheTTL  time.Duration
	renderer  Renderer
	sites     *config.File
	userAgent string
	maxBody   int64

	maxRetries    int
	baseDelay     time.Duration
	backoffFactor float64

	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithTimeout sets the per-request HTTP timeout. Apply after WithHTTPClient
// when both are used.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = d
	}
}

// WithConcurrency sets the maximum number of simultaneous in-flight fetches.
func WithConcurrency(n int64) Option {
	return func(f *Fetcher) {
		f.sem = semaphore.NewWeighted(n)
	}
}

// WithRateLimit sets the global request-rate ceiling in requests per second.
// A non-positive rate disables rate limiting.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy sets the bounded retry behavior for transient failures:
// up to maxRetries additional attempts, waiting base*factor^attempt between
// attempts.
func WithRetryPolicy(maxRetries int, base time.Duration, factor float64) Option {
	return func(f *Fetcher) {
		f.maxRetries = maxRetries
		f.baseDelay = base
		f.backoffFactor = factor
	}
}

// WithCache attaches the result cache used to memoize successful fetches
// for the given TTL.
func WithCache(c *cache.Cache[*model.FetchResult], ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithRenderer attaches a rendering backend for requests with
// RenderBrowser mode. Without one, browser-mode requests degrade to
// static fetches.
func WithRenderer(r Renderer) Option {
	return func(f *Fetcher) {
		f.renderer = r
	}
}

// WithSiteConfigs attaches per-site overrides (cookies, extra headers)
// applied to outgoing requests by host.
func WithSiteConfigs(sites *config.File) Option {
	return func(f *Fetcher) {
		f.sites = sites
	}
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxBodySize caps the decoded response body size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBody = n
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher with defaults from the config package, adjusted by
// the given options.
func New(opts ...Option) *Fetcher {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	f := &Fetcher{
		client: &http.Client{
			Timeout:   config.DefaultFetchTimeout,
			Transport: transport,
		},
		sem:           semaphore.NewWeighted(int64(config.DefaultMaxConcurrentFetches)),
		userAgent:     config.DefaultUserAgent,
		maxBody:       config.DefaultMaxBodySize,
		maxRetries:    config.DefaultMaxRetries,
		baseDelay:     config.DefaultRetryBaseDelay,
		backoffFactor: config.DefaultRetryBackoffFactor,
		logger:        slog.Default(),
	}
	WithRateLimit(config.DefaultRequestsPerSecond)(f)

	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves the page for req, honoring the cache, the in-flight
// deduplication table, and the concurrency/rate/retry budgets.
//
// Concurrent calls for the same request key share one underlying fetch and
// receive the same *model.FetchResult, which must be treated as read-only.
func (f *Fetcher) Fetch(ctx context.Context, req model.FetchRequest) (*model.FetchResult, error) {
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return nil, &FetchError{URL: req.URL, Transient: false, Cause: err}
	}

	key := req.Key()
	if !req.ForceRefresh && f.cache != nil {
		if res, ok := f.cache.Get(key); ok {
			f.logger.Debug("fetch cache hit", "url", req.URL)
			return res, nil
		}
	}

	res, err, shared := f.group.Do(key, func() (any, error) {
		// A sibling flight may have populated the cache between our miss
		// and acquiring the flight slot.
		if !req.ForceRefresh && f.cache != nil {
			if cached, ok := f.cache.Get(key); ok {
				return cached, nil
			}
		}

		result, err := f.fetchWithRetry(ctx, req)
		if err != nil {
			return nil, err
		}
		if f.cache != nil {
			f.cache.Put(key, result, f.cacheTTL)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		f.logger.Debug("joined in-flight fetch", "url", req.URL)
	}
	return res.(*model.FetchResult), nil
}

// InvalidateHost drops cached fetch results for every page under the given
// host and returns the number of entries removed. Used to force re-fetching
// when a host is audited again within one session.
//
// Cache keys are "url|mode", so after the host the key continues with a
// path, the mode separator, or a port. Matching all three keeps
// "example.com" from also dropping "example.com.evil.test".
func (f *Fetcher) InvalidateHost(host string) int {
	if f.cache == nil {
		return 0
	}
	n := f.cache.InvalidatePattern("*//" + host + "/*")
	n += f.cache.InvalidatePattern("*//" + host + "|*")
	n += f.cache.InvalidatePattern("*//" + host + ":*")
	return n
}

// retryState tracks the phase of the bounded retry loop.
type retryState int

const (
	stateAttempting retryState = iota
	stateWaiting
	stateSucceeded
	stateExhausted
)

// fetchWithRetry drives a single fetch through the explicit retry state
// machine: Attempting -> (Waiting -> Attempting)* -> Succeeded | Exhausted.
// Transient failures wait base*factor^attempt and try again; permanent
// failures and context cancellation exit immediately.
func (f *Fetcher) fetchWithRetry(ctx context.Context, req model.FetchRequest) (*model.FetchResult, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer f.sem.Release(1)

	var (
		state   = stateAttempting
		attempt = 0
		result  *model.FetchResult
		lastErr error
	)

	for {
		switch state {
		case stateAttempting:
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}

			result, lastErr = f.fetchOnce(ctx, req)
			if lastErr == nil {
				state = stateSucceeded
				break
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !IsTransient(lastErr) {
				state = stateExhausted
				break
			}
			if attempt >= f.maxRetries {
				state = stateExhausted
				break
			}
			state = stateWaiting

		case stateWaiting:
			delay := f.baseDelay
			for i := 0; i < attempt; i++ {
				delay = time.Duration(float64(delay) * f.backoffFactor)
			}
			f.logger.Debug("retrying fetch",
				"url", req.URL, "attempt", attempt+1, "delay", delay)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			attempt++
			state = stateAttempting

		case stateSucceeded:
			result.Retries = attempt
			return result, nil

		case stateExhausted:
			var fe *FetchError
			if errors.As(lastErr, &fe) && fe.Transient {
				// Retries are used up; the caller sees a permanent failure.
				fe.Transient = false
			}
			return nil, lastErr
		}
	}
}

// fetchOnce performs one attempt: rendered if requested and a renderer is
// available, plain HTTP otherwise. Renderer failures fall back to HTTP so a
// broken rendering backend degrades the audit instead of halting it.
func (f *Fetcher) fetchOnce(ctx context.Context, req model.FetchRequest) (*model.FetchResult, error) {
	if req.Mode == model.RenderBrowser && f.renderer != nil {
		result, err := f.renderer.Render(ctx, req.URL)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.logger.Warn("renderer failed, falling back to static fetch",
			"url", req.URL, "error", err)
	}
	return f.fetchHTTP(ctx, req.URL)
}

// fetchHTTP performs one plain HTTP GET attempt and classifies the outcome.
func (f *Fetcher) fetchHTTP(ctx context.Context, pageURL string) (*model.FetchResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Transient: false, Cause: err}
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	f.applySiteHeaders(httpReq)

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		// Network-level failures (timeouts, resets, refused connections)
		// are all retry candidates.
		return nil, &FetchError{URL: pageURL, Transient: true, Cause: err}
	}

	body, err := f.readBody(resp)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, &FetchError{URL: pageURL, Transient: false, StatusCode: resp.StatusCode, Cause: err}
		}
		return nil, &FetchError{URL: pageURL, Transient: true, StatusCode: resp.StatusCode, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &FetchError{URL: pageURL, Transient: true, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, &FetchError{URL: pageURL, Transient: false, StatusCode: resp.StatusCode}
	}

	result := &model.FetchResult{
		URL:         pageURL,
		Body:        body,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header.Clone(),
		ContentType: resp.Header.Get("Content-Type"),
		Rendered:    false,
		FetchedAt:   time.Now(),
		Elapsed:     time.Since(start),
	}
	result.ComputeHash()
	return result, nil
}

// applySiteHeaders adds the per-site cookie and extra headers configured
// for the request's host, if any.
func (f *Fetcher) applySiteHeaders(req *http.Request) {
	if f.sites == nil || req.URL == nil {
		return
	}
	site := f.sites.GetSiteConfig(req.URL.Hostname())
	if site.Cookie != "" {
		req.Header.Set("Cookie", site.Cookie)
	}
	for k, v := range site.Headers {
		req.Header.Set(k, v)
	}
}

// readBody decodes the response body according to Content-Encoding and
// enforces the configured size limit.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, f.maxBody+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.maxBody)
	}
	return body, nil
}
