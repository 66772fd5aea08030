// Package model defines the core data structures exchanged between the
// fetcher, cache, browser pool, evaluation pipeline, and crawler.
//
// This package contains the following main types:
//   - FetchRequest/FetchResult: One page fetch and its immutable response
//   - AnalyzerOutcome: The result of a single analyzer run against a page
//   - PageEvaluationResult: All analyzer outcomes for one page, aggregated
//   - SiteReport: The final per-site report produced by a crawl
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (fetcher, pipeline, crawler, report) need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
