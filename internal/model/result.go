package model

import (
	"time"

	"github.com/google/uuid"
)

// AnalyzerOutcome is the result of one analyzer invocation against one page.
// Exactly one of Score or Failed is meaningful: a failed analyzer carries an
// error string and is excluded from score aggregation.
type AnalyzerOutcome struct {
	// Analyzer is the registered analyzer name.
	Analyzer string `json:"analyzer"`

	// Score is the analyzer's score in [0, 100]. Zero when Failed is true.
	Score float64 `json:"score"`

	// Failed marks an analyzer that errored, panicked, or timed out.
	Failed bool `json:"failed,omitempty"`

	// Error is the failure cause when Failed is true.
	Error string `json:"error,omitempty"`

	// Issues lists problems the analyzer found on the page.
	Issues []string `json:"issues,omitempty"`

	// Recommendations lists suggested fixes for the issues.
	Recommendations []string `json:"recommendations,omitempty"`

	// Elapsed is how long the analyzer ran.
	Elapsed time.Duration `json:"elapsed"`
}

// PageEvaluationResult holds all analyzer outcomes for one page.
//
// Invariant: immutable after aggregation completes. The cache hands the same
// instance to every caller, so consumers must not modify it.
type PageEvaluationResult struct {
	// URL is the evaluated page URL.
	URL string `json:"url"`

	// OverallScore is the arithmetic mean of all successful analyzer
	// scores. Failed analyzers are excluded from the denominator.
	OverallScore float64 `json:"overall_score"`

	// AllFailed is true when no analyzer produced a score. The result is
	// still returned so callers can render a partial report.
	AllFailed bool `json:"all_failed,omitempty"`

	// Analyzers maps analyzer name to its outcome.
	Analyzers map[string]AnalyzerOutcome `json:"analyzers"`

	// Issues is the union of all analyzer issues, in analyzer order.
	Issues []string `json:"issues,omitempty"`

	// Recommendations is the union of all analyzer recommendations.
	Recommendations []string `json:"recommendations,omitempty"`

	// Depth is the crawl depth at which the page was discovered.
	// Zero for the root page and for direct single-page evaluations.
	Depth int `json:"depth"`

	// EvaluatedAt is when aggregation completed.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// FailedPage records a page the crawler could not fetch or evaluate.
// Failed pages never abort a crawl; they are reported alongside successes.
type FailedPage struct {
	// URL is the page that failed.
	URL string `json:"url"`

	// Depth is the crawl depth at which the URL was discovered.
	Depth int `json:"depth"`

	// Error is the failure cause.
	Error string `json:"error"`
}

// SiteReport is the final result of one site crawl.
//
// A SiteReport always completes with whatever subset of pages succeeded;
// a report with zero successful pages is still a valid report.
type SiteReport struct {
	// ID uniquely identifies this audit run.
	ID string `json:"id"`

	// RootURL is the crawl starting point.
	RootURL string `json:"root_url"`

	// Pages contains the evaluation results for all completed pages,
	// in completion order.
	Pages []*PageEvaluationResult `json:"pages"`

	// Failed contains pages that could not be fetched or evaluated.
	Failed []FailedPage `json:"failed,omitempty"`

	// Truncated is true when the crawl stopped at the page limit with
	// frontier entries still unexplored.
	Truncated bool `json:"truncated"`

	// OverallScore is the mean of the per-page overall scores.
	OverallScore float64 `json:"overall_score"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl terminated.
	FinishedAt time.Time `json:"finished_at"`
}

// NewSiteReport creates an empty report for the given root URL.
func NewSiteReport(rootURL string) *SiteReport {
	return &SiteReport{
		ID:        uuid.NewString(),
		RootURL:   rootURL,
		Pages:     make([]*PageEvaluationResult, 0),
		Failed:    make([]FailedPage, 0),
		StartedAt: time.Now(),
	}
}

// AddPage appends a completed page evaluation to the report.
func (r *SiteReport) AddPage(page *PageEvaluationResult) {
	r.Pages = append(r.Pages, page)
}

// AddFailure records a page that could not be processed.
func (r *SiteReport) AddFailure(url string, depth int, err error) {
	r.Failed = append(r.Failed, FailedPage{URL: url, Depth: depth, Error: err.Error()})
}

// Finalize computes the site-level score and stamps the finish time.
// Pages flagged AllFailed contribute their zero score: a page where every
// analyzer failed is still a completed page, just a badly scoring one.
func (r *SiteReport) Finalize() {
	r.FinishedAt = time.Now()
	if len(r.Pages) == 0 {
		r.OverallScore = 0
		return
	}
	var sum float64
	for _, p := range r.Pages {
		sum += p.OverallScore
	}
	r.OverallScore = sum / float64(len(r.Pages))
}
