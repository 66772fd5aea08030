// Package browser manages a bounded pool of reusable headless-browser
// instances for JavaScript rendering.
//
// Launching a browser per page is the dominant cost of rendered audits, so
// the pool keeps up to Size instances alive and leases them out one caller
// at a time. Instances are created lazily on first acquire and recycled
// after serving RecycleAfter pages; long-lived browser processes accumulate
// memory and must be bounded.
//
// Design decision: instance construction is behind a Factory function
// rather than hard-wired to chromedp. The pool's lease accounting, recycle
// threshold, and exhaustion behavior are all testable with a stub factory,
// and the chromedp-backed factory stays a thin adapter.
package browser
