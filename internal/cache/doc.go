// Package cache provides an in-memory key-value store with per-entry TTL
// and LRU eviction.
//
// The store memoizes two payload classes through the same mechanism: raw
// fetch responses and finished page-evaluation results. They differ only in
// the TTL the caller attaches to each entry, so the cache itself is generic
// over the payload type and each package instantiates its own.
//
// Design decision: expiry is evaluated lazily at read time rather than by a
// background sweeper. An audit run is short-lived and bounded by
// MaxEntries, so a janitor goroutine would add lifecycle management (start,
// stop, leak on forgotten Close) for no measurable memory win. An expired
// entry is treated as absent on Get and physically replaced on the next Put.
package cache
