/*
Package peersync replicates the public entries of peer registry nodes into the local store.

Replication is pull-only: every peer gets its own goroutine which, once per interval,
requests the peer's /api/self/services snapshot with a bounded timeout. A successful
response replaces everything previously learned from that peer in a single store
operation. A failed or timed-out request changes nothing.

# Failure Handling

Each peer has a circuit breaker. After BreakerFailures consecutive failures calls are
skipped until the breaker half-opens; skipped calls count as failures.

When a peer has not been synced successfully for longer than StaleAfter its entries are
expired, once. For a peer that never answered, the baseline is the engine start.

# Usage

	engine := peersync.NewEngine(peersync.Config{
	    Peers: peers,
	    Store: store,
	    Log:   log,
	})
	go engine.Run(ctx)

	for _, status := range engine.Statuses() {
	    fmt.Println(status.Name, status.Breaker, status.Entries)
	}
*/
package peersync
