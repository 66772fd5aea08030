package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/webaudit/webaudit/internal/model"
	"github.com/webaudit/webaudit/internal/parser"
)

// fakeFetcher serves an in-memory site and counts fetches per URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string // normalized URL -> HTML
	fail  map[string]error
	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]string),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, req model.FetchRequest) (*model.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[req.URL]++
	if err, ok := f.fail[req.URL]; ok {
		return nil, err
	}
	html, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("not found: %s", req.URL)
	}
	return &model.FetchResult{
		URL:         req.URL,
		Body:        []byte(html),
		StatusCode:  200,
		ContentType: "text/html; charset=utf-8",
	}, nil
}

func (f *fakeFetcher) fetchCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// fakeEvaluator returns a fixed score per URL.
type fakeEvaluator struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  int
}

func (e *fakeEvaluator) Evaluate(_ context.Context, page *parser.ParsedPage) (*model.PageEvaluationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	score := 80.0
	if s, ok := e.scores[page.URL]; ok {
		score = s
	}
	return &model.PageEvaluationResult{
		URL:          page.URL,
		OverallScore: score,
		EvaluatedAt:  time.Now(),
	}, nil
}

// pageWithLinks builds a minimal HTML page linking to the given hrefs.
func pageWithLinks(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<a href=%q>link</a>`, href)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestCrawler(f Fetcher, e Evaluator, opts ...Option) *Crawler {
	base := []Option{
		WithRespectRobots(false),
		WithConcurrency(4),
		WithCrawlTimeout(10 * time.Second),
	}
	return New(f, e, append(base, opts...)...)
}

func pageURLs(report *model.SiteReport) map[string]bool {
	urls := make(map[string]bool, len(report.Pages))
	for _, p := range report.Pages {
		urls[p.URL] = true
	}
	return urls
}

// TestCrawlDepthLimit tests that pages beyond max depth are not visited:
// the root links to /b and /c, /b links to /d, and with depth 1 the report
// holds the root, /b, and /c but not /d.
func TestCrawlDepthLimit(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/b", "/c")
	f.pages["https://a.test/b"] = pageWithLinks("/d")
	f.pages["https://a.test/c"] = pageWithLinks()
	f.pages["https://a.test/d"] = pageWithLinks()

	c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(1), WithMaxPages(50))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	urls := pageURLs(report)
	for _, want := range []string{"https://a.test/", "https://a.test/b", "https://a.test/c"} {
		if !urls[want] {
			t.Errorf("missing expected page %s (have %v)", want, urls)
		}
	}
	if urls["https://a.test/d"] {
		t.Error("page beyond max depth was crawled")
	}
	for _, p := range report.Pages {
		if p.Depth > 1 {
			t.Errorf("page %s recorded at depth %d > 1", p.URL, p.Depth)
		}
	}
	if report.Truncated {
		t.Error("depth-limited crawl wrongly marked truncated")
	}
}

// TestCrawlMaxPages tests the page budget: five discoverable links with a
// budget of two yields exactly two completed pages and a truncated report.
func TestCrawlMaxPages(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/p1", "/p2", "/p3", "/p4", "/p5")
	for i := 1; i <= 5; i++ {
		f.pages[fmt.Sprintf("https://a.test/p%d", i)] = pageWithLinks()
	}

	c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(3), WithMaxPages(2))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if got := len(report.Pages); got != 2 {
		t.Errorf("expected exactly 2 completed pages, got %d", got)
	}
	if !report.Truncated {
		t.Error("expected truncated report when budget cuts the frontier")
	}
}

// TestCrawlBudgetCoversFailures tests pages+failed <= max pages.
func TestCrawlBudgetCoversFailures(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/ok", "/broken", "/ok2")
	f.pages["https://a.test/ok"] = pageWithLinks()
	f.pages["https://a.test/ok2"] = pageWithLinks()
	f.fail["https://a.test/broken"] = errors.New("connection refused")

	c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(2), WithMaxPages(10))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("per-page failure must not abort the crawl: %v", err)
	}

	if len(report.Pages)+len(report.Failed) > 10 {
		t.Errorf("pages (%d) + failed (%d) exceeds budget", len(report.Pages), len(report.Failed))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 failed entry, got %+v", report.Failed)
	}
	failed := report.Failed[0]
	if failed.URL != "https://a.test/broken" {
		t.Errorf("unexpected failed URL %q", failed.URL)
	}
	if failed.Depth != 1 {
		t.Errorf("expected failure at depth 1, got %d", failed.Depth)
	}
	if !strings.Contains(failed.Error, "connection refused") {
		t.Errorf("failure cause not recorded: %q", failed.Error)
	}
	if len(report.Pages) != 3 {
		t.Errorf("expected 3 completed pages alongside the failure, got %d", len(report.Pages))
	}
}

// TestCrawlRootFailure tests that an unreachable root is the only fatal
// condition.
func TestCrawlRootFailure(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.fail["https://a.test/"] = errors.New("dns failure")

	c := newTestCrawler(f, &fakeEvaluator{})
	_, err := c.Crawl(context.Background(), "https://a.test/")

	var ce *CrawlError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CrawlError, got %v", err)
	}
	if !strings.Contains(ce.Error(), "root page unreachable") {
		t.Errorf("unexpected error text: %v", ce)
	}
}

// TestCrawlNoDuplicateVisits tests that cross-linking pages are fetched
// once each, and fragment variants collapse to one URL.
func TestCrawlNoDuplicateVisits(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/b", "/b#section", "/")
	f.pages["https://a.test/b"] = pageWithLinks("/", "/b")

	c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(5), WithMaxPages(50))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if len(report.Pages) != 2 {
		t.Errorf("expected 2 unique pages, got %d", len(report.Pages))
	}
	for _, url := range []string{"https://a.test/", "https://a.test/b"} {
		if got := f.fetchCount(url); got != 1 {
			t.Errorf("%s fetched %d times, want 1", url, got)
		}
	}
}

// TestCrawlStaysOnOrigin tests that external links are not followed.
func TestCrawlStaysOnOrigin(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/local", "https://other.test/away")
	f.pages["https://a.test/local"] = pageWithLinks()
	f.pages["https://other.test/away"] = pageWithLinks()

	c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(2), WithMaxPages(50))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if pageURLs(report)["https://other.test/away"] {
		t.Error("crawler left the root origin")
	}
	if got := f.fetchCount("https://other.test/away"); got != 0 {
		t.Errorf("external URL fetched %d times", got)
	}
}

// TestCrawlIgnorePatterns tests glob-based path exclusion.
func TestCrawlIgnorePatterns(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/keep", "/logout", "/admin/panel")
	f.pages["https://a.test/keep"] = pageWithLinks()
	f.pages["https://a.test/logout"] = pageWithLinks()
	f.pages["https://a.test/admin/panel"] = pageWithLinks()

	c := newTestCrawler(f, &fakeEvaluator{},
		WithMaxDepth(2), WithMaxPages(50),
		WithIgnorePatterns([]string{"/logout*", "/admin/*"}),
	)
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	urls := pageURLs(report)
	if !urls["https://a.test/keep"] {
		t.Error("non-ignored page missing")
	}
	if urls["https://a.test/logout"] || urls["https://a.test/admin/panel"] {
		t.Errorf("ignored paths were crawled: %v", urls)
	}
}

// TestCrawlRespectsRobots tests robots.txt filtering of discovered links.
func TestCrawlRespectsRobots(t *testing.T) {
	t.Parallel()

	buildSite := func() *fakeFetcher {
		f := newFakeFetcher()
		f.pages["https://a.test/robots.txt"] = "User-agent: *\nDisallow: /private\n"
		f.pages["https://a.test/"] = pageWithLinks("/public", "/private")
		f.pages["https://a.test/public"] = pageWithLinks()
		f.pages["https://a.test/private"] = pageWithLinks()
		return f
	}

	t.Run("disallowed path skipped", func(t *testing.T) {
		t.Parallel()

		f := buildSite()
		c := New(f, &fakeEvaluator{},
			WithRespectRobots(true),
			WithMaxDepth(2), WithMaxPages(50),
			WithCrawlTimeout(10*time.Second),
		)
		report, err := c.Crawl(context.Background(), "https://a.test/")
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		urls := pageURLs(report)
		if urls["https://a.test/private"] {
			t.Error("robots-disallowed page was crawled")
		}
		if !urls["https://a.test/public"] {
			t.Error("allowed page missing")
		}
	})

	t.Run("robots disabled", func(t *testing.T) {
		t.Parallel()

		f := buildSite()
		c := newTestCrawler(f, &fakeEvaluator{}, WithMaxDepth(2), WithMaxPages(50))
		report, err := c.Crawl(context.Background(), "https://a.test/")
		if err != nil {
			t.Fatalf("crawl failed: %v", err)
		}
		if !pageURLs(report)["https://a.test/private"] {
			t.Error("robots filtering applied despite being disabled")
		}
	})
}

// TestCrawlReportScore tests the site-level score aggregation.
func TestCrawlReportScore(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/b")
	f.pages["https://a.test/b"] = pageWithLinks()

	e := &fakeEvaluator{scores: map[string]float64{
		"https://a.test/":  90,
		"https://a.test/b": 70,
	}}

	c := newTestCrawler(f, e, WithMaxDepth(1), WithMaxPages(50))
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("crawl failed: %v", err)
	}

	if report.OverallScore != 80 {
		t.Errorf("expected site score 80, got %.1f", report.OverallScore)
	}
	if report.FinishedAt.IsZero() {
		t.Error("report not finalized")
	}
	if report.ID == "" {
		t.Error("report has no ID")
	}
}

// TestCrawlTimeout tests that an expired crawl deadline still yields a
// (truncated) report instead of an error.
func TestCrawlTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher()
	f.pages["https://a.test/"] = pageWithLinks("/b")
	f.pages["https://a.test/b"] = pageWithLinks()

	c := newTestCrawler(f, &fakeEvaluator{}, WithCrawlTimeout(time.Nanosecond))

	// Root fetch happens under the expired deadline; the fake fetcher
	// ignores ctx, so the root succeeds and the loop then observes expiry.
	report, err := c.Crawl(context.Background(), "https://a.test/")
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if !report.Truncated {
		t.Error("timed-out crawl not marked truncated")
	}
}
