// Package crawler drives a bounded breadth-first traversal of a site's
// internal links, feeding each discovered page through the evaluation
// pipeline and collecting the per-page results into a site report.
//
// The frontier is processed one depth level at a time by a bounded worker
// pool, so same-depth pages are handled in discovery order. The visited-set
// check, the page budget check, and enqueueing happen under one lock, which
// keeps concurrent workers from queueing the same URL twice.
//
// A failed page is recorded in the report and never halts the crawl; only
// an unreachable root page is fatal. Hitting the page budget with frontier
// entries still waiting marks the report truncated.
package crawler
