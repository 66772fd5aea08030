package analyzer

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/webaudit/webaudit/internal/parser"
)

func init() {
	Register(&PerformanceAnalyzer{})
}

// Performance thresholds. Response time bands follow the usual "good
// under one second, poor past two and a half" guidance for server response.
const (
	perfGoodResponse = 1 * time.Second
	perfPoorResponse = 2500 * time.Millisecond
	perfMaxBodyBytes = 1 << 20 // pages past 1 MiB of HTML are doing something wrong
	perfMaxScripts   = 15
	perfMaxSheets    = 10
)

// PerformanceAnalyzer scores the delivery-side signals measurable from a
// single fetch: response time, payload weight, compression and caching
// headers, and how the page loads its scripts and images.
type PerformanceAnalyzer struct{}

// Name implements Analyzer.
func (a *PerformanceAnalyzer) Name() string { return "performance" }

// Analyze implements Analyzer.
func (a *PerformanceAnalyzer) Analyze(_ context.Context, page *parser.ParsedPage) (*Report, error) {
	var c checklist
	fetch := page.Fetch

	switch {
	case fetch.Elapsed > perfPoorResponse:
		c.issue(fmt.Sprintf("Response time %v is poor (over %v)", fetch.Elapsed.Round(time.Millisecond), perfPoorResponse))
	case fetch.Elapsed > perfGoodResponse:
		c.issue(fmt.Sprintf("Response time %v could be faster (over %v)", fetch.Elapsed.Round(time.Millisecond), perfGoodResponse))
	default:
		c.check(true, "", fmt.Sprintf("Response time %v is good", fetch.Elapsed.Round(time.Millisecond)))
	}

	c.check(len(fetch.Body) <= perfMaxBodyBytes,
		fmt.Sprintf("HTML payload is %d KiB; over the %d KiB budget", len(fetch.Body)/1024, perfMaxBodyBytes/1024),
		"HTML payload size is within budget")

	// Rendered snapshots lose the original response headers, so header
	// checks only apply to static fetches.
	if !fetch.Rendered {
		c.check(fetch.Header("Content-Encoding") != "",
			"Response is not compressed (no Content-Encoding)",
			"Response is compressed")
		c.check(fetch.Header("Cache-Control") != "",
			"Missing Cache-Control header",
			"Caching policy is declared")
	}

	c.check(len(page.Scripts) <= perfMaxScripts,
		fmt.Sprintf("Page loads %d scripts (budget %d)", len(page.Scripts), perfMaxScripts),
		"Script count is within budget")

	blocking := 0
	external := 0
	for _, script := range page.Scripts {
		if script.Src == "" {
			continue
		}
		external++
		if !script.Async && !script.Defer {
			blocking++
		}
	}
	if external > 0 {
		c.check(blocking == 0,
			fmt.Sprintf("%d of %d external scripts block parsing (no async/defer)", blocking, external),
			"External scripts load without blocking")
	}

	c.check(len(page.Stylesheets) <= perfMaxSheets,
		fmt.Sprintf("Page loads %d stylesheets (budget %d)", len(page.Stylesheets), perfMaxSheets),
		"Stylesheet count is within budget")

	if page.Doc != nil && len(page.Images) > 3 {
		lazy := 0
		page.Doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			if v, _ := s.Attr("loading"); v == "lazy" {
				lazy++
			}
		})
		c.check(lazy > 0,
			fmt.Sprintf("None of %d images use lazy loading", len(page.Images)),
			"Images use lazy loading")
	}

	return c.report(), nil
}
