/*
Package api holds the wire types of the DNS registry HTTP API.

The API is split into subpackages:

1. handlers - chi route handlers backed by the registry store and the peer sync engine
2. clients - HTTP client used by peers and the command line tool

# Endpoints

	GET /api/self/services          public snapshot of this node, consumed by peers
	GET /api/peers                  sync status of every configured peer
	GET /api/peers/{peer}/services  entries currently held for one peer
	GET /api/services/{name}        every entry for one name, for diagnostics
	GET /health                     plain liveness check

Snapshots are encoded as a JSON object mapping service names to address strings:

	{"foo": ["10.0.0.5"], "bar": ["10.0.0.6", "fd00::6"]}

Only entries declared public by containers of the answering node are ever part of
/api/self/services; entries learned from other peers are never re-exported.
*/
package api
