/*
Package handlers implements the registry HTTP API.

Handler reads from the registry store and, when replication is enabled, from the peer
sync engine. It never writes: local entries come from the container feed and remote
entries from peer sync.

# Routes

  - GET /api/self/services returns the public snapshot peers pull from. Entries are
    filtered on the store side so private and remote entries can never leak.
  - GET /api/peers returns api.PeerStatus for every configured peer.
  - GET /api/peers/{peer}/services returns what was last learned from a peer, 404 if the
    store holds nothing for it.
  - GET /api/services/{name} returns every entry for a name, for debugging.
  - GET /health returns 200.

Every JSON response carries the node hostname in the X-Registry-Hostname header.
*/
package handlers
