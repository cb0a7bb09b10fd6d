// Package interfaces defines core interfaces and types for the DNS registry
// system, separating interface definitions from implementations.
//
// # Domain Types
//
// ServiceEntry: one resolvable record, combining a name, an address, a Visibility
// (Public or Private) and an Origin (Local container or Remote peer).
//
// Snapshot: mapping from service name to addresses, the unit exchanged between peers.
//
// ContainerEvent: one message of the container lifecycle feed.
//
// # Store Interfaces
//
// LocalWriter: written by the container event applier.
//
// RemoteWriter: written by the peer sync engine.
//
// Resolver and SnapshotReader: read by the DNS server and the registry HTTP API.
//
// # Collaborators
//
// ContainerFeed: the container runtime's event and inspection feed.
package interfaces
