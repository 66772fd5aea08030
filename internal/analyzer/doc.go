// Package analyzer defines the pluggable page-analysis contract and the
// built-in analyzers (SEO, accessibility, security, performance, content).
//
// An Analyzer is a pure function of a parsed page: it inspects the page
// representation and returns a 0-100 score with issues and recommendations.
// Analyzers must not fetch anything themselves and must respect ctx, since
// the evaluation pipeline enforces a per-analyzer timeout around each call.
//
// Implementations register themselves by name in a package-level registry;
// the pipeline selects a set of registered names at construction time.
package analyzer
