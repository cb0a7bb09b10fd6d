package interfaces

import (
	"net/netip"
)

// Resolver answers name lookups from the merged local and replicated view.
type Resolver interface {
	// Resolve returns every known address for name, regardless of origin or visibility.
	Resolve(name string) []netip.Addr

	// Has reports whether any entry exists for name.
	Has(name string) bool
}

// LocalWriter is implemented by the store for the container event applier.
type LocalWriter interface {
	// UpsertLocal replaces all entries owned by the container with entries.
	UpsertLocal(containerID string, entries []ServiceEntry) error

	// RemoveLocal deletes all entries owned by the container.
	RemoveLocal(containerID string)
}

// RemoteWriter is implemented by the store for the peer sync engine.
type RemoteWriter interface {
	// ReplaceRemote atomically replaces all entries learned from peer.
	ReplaceRemote(peer string, snapshot Snapshot) int

	// ExpireRemote deletes all entries learned from peer.
	ExpireRemote(peer string) int
}

// SnapshotReader exposes the read side used by the registry HTTP API.
type SnapshotReader interface {
	Resolver

	// PublicSnapshot returns the locally declared public entries only.
	PublicSnapshot() Snapshot

	// RemoteSnapshot returns the entries learned from peer and whether the peer is known.
	RemoteSnapshot(peer string) (Snapshot, bool)

	// Entries returns all entries for name.
	Entries(name string) []ServiceEntry

	// Peers returns the names of the peers the store holds entries for.
	Peers() []string
}

// Store is the complete registry store contract.
type Store interface {
	LocalWriter
	RemoteWriter
	SnapshotReader
}
