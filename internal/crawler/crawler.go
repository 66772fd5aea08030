package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"

	"github.com/webaudit/webaudit/internal/config"
	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/parser"
)

// Fetcher obtains page content. Satisfied by the fetcher package.
type Fetcher interface {
	Fetch(ctx context.Context, req model.FetchRequest) (*model.FetchResult, error)
}

// Evaluator scores a parsed page. Satisfied by the pipeline package.
type Evaluator interface {
	Evaluate(ctx context.Context, page *parser.ParsedPage) (*model.PageEvaluationResult, error)
}

// CrawlError is returned when the root page cannot be fetched. Any other
// page failure is recorded in the report instead.
type CrawlError struct {
	RootURL string
	Cause   error
}

// Error implements the error interface.
func (e *CrawlError) Error() string {
	return fmt.Sprintf("crawl of %s failed: root page unreachable: %v", e.RootURL, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CrawlError) Unwrap() error { return e.Cause }

// Crawler walks a site breadth-first within depth, page, and concurrency
// bounds.
type Crawler struct {
	fetcher   Fetcher
	evaluator Evaluator

	maxDepth       int
	maxPages       int
	concurrency    int
	crawlTimeout   time.Duration
	renderMode     model.RenderMode
	respectRobots  bool
	userAgent      string
	ignorePatterns []string
	logger         *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithMaxDepth sets the maximum link depth from the root.
// 0 = only the root page, 1 = root plus directly linked pages, etc.
func WithMaxDepth(depth int) Option {
	return func(c *Crawler) {
		c.maxDepth = depth
	}
}

// WithMaxPages caps the number of URLs admitted to the crawl. Completed
// pages plus failed pages never exceed this bound.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		c.maxPages = n
	}
}

// WithConcurrency sets the number of parallel page workers.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		c.concurrency = n
	}
}

// WithCrawlTimeout bounds the whole crawl's wall-clock time. On expiry the
// report completes with whatever finished and is marked truncated.
func WithCrawlTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.crawlTimeout = d
	}
}

// WithRenderMode selects static or browser-rendered fetching for every
// page of the crawl.
func WithRenderMode(mode model.RenderMode) Option {
	return func(c *Crawler) {
		c.renderMode = mode
	}
}

// WithRespectRobots toggles robots.txt checks for discovered links.
func WithRespectRobots(respect bool) Option {
	return func(c *Crawler) {
		c.respectRobots = respect
	}
}

// WithUserAgent sets the agent name matched against robots.txt groups.
func WithUserAgent(ua string) Option {
	return func(c *Crawler) {
		c.userAgent = ua
	}
}

// WithIgnorePatterns sets URL path globs to skip (e.g. "/logout*").
func WithIgnorePatterns(patterns []string) Option {
	return func(c *Crawler) {
		c.ignorePatterns = patterns
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// New creates a Crawler over the given fetcher and evaluator.
func New(fetcher Fetcher, evaluator Evaluator, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:       fetcher,
		evaluator:     evaluator,
		maxDepth:      config.DefaultCrawlDepth,
		maxPages:      config.DefaultMaxPages,
		concurrency:   config.DefaultCrawlConcurrency,
		crawlTimeout:  config.DefaultCrawlTimeout,
		renderMode:    model.RenderStatic,
		respectRobots: true,
		userAgent:     config.AppName,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// frontierEntry is one discovered-but-unprocessed URL.
type frontierEntry struct {
	url   string // normalized
	depth int
}

// crawlState is the mutable state shared by workers: the visited set, the
// report accumulator, and the truncation flag. All access goes through its
// synchronized methods.
type crawlState struct {
	mu        sync.Mutex
	visited   map[string]bool
	maxPages  int
	report    *model.SiteReport
	truncated bool
}

// admit atomically checks the visited set and page budget, marking the URL
// visited when admitted. Budget exhaustion on an unseen URL marks the crawl
// truncated.
func (s *crawlState) admit(norm string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.visited[norm] {
		return false
	}
	if len(s.visited) >= s.maxPages {
		s.truncated = true
		return false
	}
	s.visited[norm] = true
	return true
}

func (s *crawlState) addPage(res *model.PageEvaluationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.AddPage(res)
}

func (s *crawlState) addFailure(pageURL string, depth int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report.AddFailure(pageURL, depth, err)
}

func (s *crawlState) markTruncated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated = true
}

// Crawl walks the site rooted at rootURL and returns the aggregated report.
// It fails with *CrawlError only when the root page itself cannot be
// fetched; every other failure is a report entry.
func (c *Crawler) Crawl(ctx context.Context, rootURL string) (*model.SiteReport, error) {
	root, err := url.Parse(rootURL)
	if err != nil {
		return nil, &CrawlError{RootURL: rootURL, Cause: err}
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, &CrawlError{RootURL: rootURL, Cause: fmt.Errorf("unsupported scheme %q", root.Scheme)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.crawlTimeout)
	defer cancel()

	norm := normalizeURL(root.String())
	state := &crawlState{
		visited:  make(map[string]bool),
		maxPages: c.maxPages,
		report:   model.NewSiteReport(norm),
	}

	robots := c.loadRobots(ctx, root)

	// The root is fetched synchronously: its failure is the only fatal one.
	state.admit(norm)
	links, err := c.processPage(ctx, state, norm, 0)
	if err != nil {
		return nil, &CrawlError{RootURL: norm, Cause: err}
	}

	frontier := c.enqueue(state, root, robots, links, 1)

	for depth := 1; depth <= c.maxDepth && len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			state.markTruncated()
			break
		}

		var nextMu sync.Mutex
		var next []frontierEntry

		eg := &errgroup.Group{}
		eg.SetLimit(c.concurrency)
		for _, entry := range frontier {
			eg.Go(func() error {
				if ctx.Err() != nil {
					state.addFailure(entry.url, entry.depth, ctx.Err())
					return nil
				}
				links, err := c.processPage(ctx, state, entry.url, entry.depth)
				if err != nil {
					state.addFailure(entry.url, entry.depth, err)
					return nil
				}
				if entry.depth+1 <= c.maxDepth {
					admitted := c.enqueue(state, root, robots, links, entry.depth+1)
					nextMu.Lock()
					next = append(next, admitted...)
					nextMu.Unlock()
				}
				return nil
			})
		}
		_ = eg.Wait() // workers record failures instead of returning errors
		frontier = next
	}

	if ctx.Err() != nil {
		state.markTruncated()
	}

	state.report.Truncated = state.truncated
	state.report.Finalize()
	c.logger.Info("crawl finished",
		"root", norm,
		"pages", len(state.report.Pages),
		"failed", len(state.report.Failed),
		"truncated", state.report.Truncated,
	)
	return state.report, nil
}

// processPage fetches, parses, and evaluates one page, records the result,
// and returns the page's internal links for enqueueing. Fetch and parse
// failures come back as the error for the caller to record (or, at the
// root, treat as fatal); evaluation failures are recorded here and still
// yield the page's links.
func (c *Crawler) processPage(ctx context.Context, state *crawlState, pageURL string, depth int) ([]string, error) {
	fetched, err := c.fetcher.Fetch(ctx, model.FetchRequest{URL: pageURL, Mode: c.renderMode})
	if err != nil {
		return nil, err
	}
	if !fetched.IsHTML() {
		return nil, fmt.Errorf("unsupported content type %q", fetched.ContentType)
	}

	p, err := parser.New(pageURL)
	if err != nil {
		return nil, err
	}
	page, err := p.Parse(fetched)
	if err != nil {
		return nil, err
	}

	// An evaluation failure (cancellation, mid-run timeout) is a per-page
	// failure even for the root; only fetch failure of the root is fatal.
	result, err := c.evaluator.Evaluate(ctx, page)
	if err != nil {
		state.addFailure(pageURL, depth, err)
		return page.InternalLinks, nil
	}

	// Evaluation results are shared through the cache; annotate a copy
	// with this crawl's depth instead of mutating the shared value.
	annotated := *result
	annotated.Depth = depth
	state.addPage(&annotated)

	return page.InternalLinks, nil
}

// enqueue normalizes, filters, and admits candidate links at the given
// depth, returning the admitted frontier entries in discovery order.
func (c *Crawler) enqueue(state *crawlState, root *url.URL, robots *robotstxt.Group, links []string, depth int) []frontierEntry {
	var admitted []frontierEntry
	for _, link := range links {
		norm := normalizeURL(link)
		u, err := url.Parse(norm)
		if err != nil {
			continue
		}
		if !sameOrigin(root, u) {
			continue
		}
		if matchesAny(c.ignorePatterns, u.Path) {
			continue
		}
		if robots != nil && !robots.Test(u.Path) {
			c.logger.Debug("skipping robots-disallowed URL", "url", norm)
			continue
		}
		if !state.admit(norm) {
			continue
		}
		admitted = append(admitted, frontierEntry{url: norm, depth: depth})
	}
	return admitted
}

// loadRobots fetches and parses the site's robots.txt. Any failure to
// retrieve or parse it means no restrictions.
func (c *Crawler) loadRobots(ctx context.Context, root *url.URL) *robotstxt.Group {
	if !c.respectRobots {
		return nil
	}

	robotsURL := root.Scheme + "://" + root.Host + "/robots.txt"
	res, err := c.fetcher.Fetch(ctx, model.FetchRequest{URL: robotsURL})
	if err != nil {
		c.logger.Debug("robots.txt not available", "url", robotsURL, "error", err)
		return nil
	}

	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		c.logger.Debug("robots.txt unparseable", "url", robotsURL, "error", err)
		return nil
	}
	return data.FindGroup(c.userAgent)
}
