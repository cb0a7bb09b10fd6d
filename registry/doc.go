// Package registry implements the in-memory service store shared by the DNS server,
// the registry HTTP API, the container event applier and the peer sync engine.
//
// Entries are partitioned by origin: local entries are keyed by the owning container,
// remote entries by the peer they were learned from. Every write rebuilds an immutable
// view that is published atomically, so a lookup observes a peer's snapshot either
// entirely or not at all.
package registry
