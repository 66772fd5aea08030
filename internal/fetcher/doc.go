// Package fetcher retrieves pages over HTTP (or through a rendering
// backend) under a global concurrency and request-rate budget.
//
// Every outbound fetch passes through three gates in order: a weighted
// semaphore caps the number of simultaneous in-flight requests, a token
// bucket caps the request rate, and a singleflight group collapses
// concurrent requests for the same key into one network operation whose
// result all callers share. Acquiring the semaphore and the rate token are
// the only blocking points in the package.
//
// Transient failures (timeouts, connection resets, 429 and 5xx responses)
// are retried with exponential backoff up to a configured maximum; the
// retry loop is an explicit state machine so backoff timing and termination
// are directly testable. Retries exhausted, the error surfaces as permanent.
//
// Successful results are stored in the shared result cache, so a repeat
// fetch within the TTL returns the cached copy without network I/O unless
// the request sets ForceRefresh.
package fetcher
