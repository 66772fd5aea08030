// Package pipeline runs the configured analyzers against one fetched page
// and aggregates their outcomes into a single scored result.
//
// Analyzers run concurrently against the same parsed page, each under its
// own timeout and panic isolation: a crashing or hanging analyzer produces
// a failed outcome for itself and nothing else. The overall score is the
// arithmetic mean of the successful analyzers; if every analyzer fails the
// result reports a zero score with the AllFailed flag set rather than
// returning an error, so callers can still render a partial report.
//
// Finished results are memoized per (URL, analyzer set) and concurrent
// evaluations of the same URL join a single in-flight run.
package pipeline
