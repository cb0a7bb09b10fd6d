package registry

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"sync"

	"github.com/ruteri/docker-dns-registry/interfaces"
	"go.uber.org/atomic"
)

// Stats counts the entries currently held by the store.
type Stats struct {
	LocalPublic  int
	LocalPrivate int
	Remote       int
	Containers   int
	Peers        int
}

// view is an immutable state of the registry. Writers build a new view and swap it in,
// readers load the current pointer and never take a lock.
type view struct {
	// local entries by container id
	local map[string][]interfaces.ServiceEntry

	// remote entries by peer name
	remote map[string][]interfaces.ServiceEntry

	// byName indexes every entry by service name
	byName map[string][]interfaces.ServiceEntry

	// public is the snapshot published to peers
	public interfaces.Snapshot
}

// Store is the registry of service entries declared by local containers and learned
// from peers. It is safe for concurrent use.
//
// Mutations are serialized by mu and replace the whole view; lookups read the view
// through an atomic pointer and are never blocked by a writer.
type Store struct {
	mu   sync.Mutex
	cur  atomic.Pointer[view]
	log  *slog.Logger
	hook func(Stats)
}

// NewStore creates an empty store.
//
// Parameters:
//   - log: Structured logger for lifecycle diagnostics
//
// Returns an empty Store ready for use.
func NewStore(log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{log: log.With("component", "registry")}
	s.cur.Store(buildView(nil, nil))
	return s
}

// OnChange registers a function called with fresh stats after every mutation.
// It must be set before the store is shared between goroutines.
func (s *Store) OnChange(hook func(Stats)) {
	s.hook = hook
}

// UpsertLocal replaces all entries owned by containerID with entries.
// Calling it again with the same set is a no-op; an empty set removes the container.
// Entries are validated before anything is applied, and their origin is forced to
// Local(containerID).
func (s *Store) UpsertLocal(containerID string, entries []interfaces.ServiceEntry) error {
	owned := make([]interfaces.ServiceEntry, 0, len(entries))
	for _, e := range entries {
		e.Name = interfaces.NormalizeName(e.Name)
		e.Address = e.Address.Unmap()
		e.Origin = interfaces.Local(containerID)
		if err := e.Validate(); err != nil {
			return fmt.Errorf("container %s: %w", containerID, err)
		}
		owned = append(owned, e)
	}
	owned = dedupe(owned)

	s.mutate(func(local, remote map[string][]interfaces.ServiceEntry) {
		if len(owned) == 0 {
			delete(local, containerID)
			return
		}
		local[containerID] = owned
	})

	s.log.Debug("Local entries updated", "container", containerID, "entries", len(owned))
	return nil
}

// RemoveLocal deletes all entries owned by containerID.
func (s *Store) RemoveLocal(containerID string) {
	s.mutate(func(local, remote map[string][]interfaces.ServiceEntry) {
		delete(local, containerID)
	})
	s.log.Debug("Local entries removed", "container", containerID)
}

// ReplaceRemote atomically replaces all entries learned from peer with the snapshot.
// Every resulting entry is Public with origin Remote(peer). Names that do not normalize
// to a non-empty name and invalid addresses are skipped.
//
// Returns the number of entries now held for the peer.
func (s *Store) ReplaceRemote(peer string, snapshot interfaces.Snapshot) int {
	entries := make([]interfaces.ServiceEntry, 0, len(snapshot))
	for name, addrs := range snapshot {
		name = interfaces.NormalizeName(name)
		if name == "" {
			continue
		}
		for _, addr := range addrs {
			if !addr.IsValid() {
				continue
			}
			entries = append(entries, interfaces.ServiceEntry{
				Name:       name,
				Address:    addr.Unmap(),
				Visibility: interfaces.Public,
				Origin:     interfaces.Remote(peer),
			})
		}
	}
	entries = dedupe(entries)

	s.mutate(func(local, remote map[string][]interfaces.ServiceEntry) {
		remote[peer] = entries
	})
	return len(entries)
}

// ExpireRemote deletes all entries learned from peer.
// Returns the number of entries removed.
func (s *Store) ExpireRemote(peer string) int {
	var removed int
	s.mutate(func(local, remote map[string][]interfaces.ServiceEntry) {
		removed = len(remote[peer])
		delete(remote, peer)
	})
	return removed
}

// Resolve returns the addresses of every entry for name, across origins and visibilities.
// The result is de-duplicated and sorted.
func (s *Store) Resolve(name string) []netip.Addr {
	entries := s.cur.Load().byName[interfaces.NormalizeName(name)]
	if len(entries) == 0 {
		return nil
	}

	addrs := make([]netip.Addr, 0, len(entries))
	for _, e := range entries {
		addrs = append(addrs, e.Address)
	}
	return sortAddrs(addrs)
}

// Has reports whether any entry exists for name.
func (s *Store) Has(name string) bool {
	return len(s.cur.Load().byName[interfaces.NormalizeName(name)]) > 0
}

// Entries returns a copy of every entry stored for name.
func (s *Store) Entries(name string) []interfaces.ServiceEntry {
	entries := s.cur.Load().byName[interfaces.NormalizeName(name)]
	return append([]interfaces.ServiceEntry(nil), entries...)
}

// PublicSnapshot returns the public entries declared by local containers.
// Entries learned from peers are never part of it, so nothing is re-exported.
func (s *Store) PublicSnapshot() interfaces.Snapshot {
	return copySnapshot(s.cur.Load().public)
}

// RemoteSnapshot returns the entries currently held for peer.
// The boolean is false when the store has never received entries from the peer
// or they have expired.
func (s *Store) RemoteSnapshot(peer string) (interfaces.Snapshot, bool) {
	entries, ok := s.cur.Load().remote[peer]
	if !ok {
		return nil, false
	}
	return toSnapshot(entries), true
}

// Peers returns the names of the peers with entries in the store, sorted.
func (s *Store) Peers() []string {
	v := s.cur.Load()
	peers := make([]string, 0, len(v.remote))
	for peer := range v.remote {
		peers = append(peers, peer)
	}
	sort.Strings(peers)
	return peers
}

// mutate applies fn to copies of the current origin maps and publishes the rebuilt view.
// Only the top-level maps are copied: entry slices are never modified in place.
func (s *Store) mutate(fn func(local, remote map[string][]interfaces.ServiceEntry)) {
	s.mu.Lock()
	old := s.cur.Load()
	local := make(map[string][]interfaces.ServiceEntry, len(old.local)+1)
	for k, v := range old.local {
		local[k] = v
	}
	remote := make(map[string][]interfaces.ServiceEntry, len(old.remote)+1)
	for k, v := range old.remote {
		remote[k] = v
	}
	fn(local, remote)
	next := buildView(local, remote)
	s.cur.Store(next)
	if s.hook != nil {
		s.hook(next.stats())
	}
	s.mu.Unlock()
}

func buildView(local, remote map[string][]interfaces.ServiceEntry) *view {
	if local == nil {
		local = make(map[string][]interfaces.ServiceEntry)
	}
	if remote == nil {
		remote = make(map[string][]interfaces.ServiceEntry)
	}

	v := &view{
		local:  local,
		remote: remote,
		byName: make(map[string][]interfaces.ServiceEntry),
		public: make(interfaces.Snapshot),
	}
	for _, entries := range local {
		for _, e := range entries {
			v.byName[e.Name] = append(v.byName[e.Name], e)
			if e.Visibility == interfaces.Public {
				v.public[e.Name] = append(v.public[e.Name], e.Address)
			}
		}
	}
	for _, entries := range remote {
		for _, e := range entries {
			v.byName[e.Name] = append(v.byName[e.Name], e)
		}
	}
	for name, addrs := range v.public {
		v.public[name] = sortAddrs(addrs)
	}
	return v
}

func (v *view) stats() Stats {
	st := Stats{Containers: len(v.local), Peers: len(v.remote)}
	for _, entries := range v.local {
		for _, e := range entries {
			if e.Visibility == interfaces.Public {
				st.LocalPublic++
			} else {
				st.LocalPrivate++
			}
		}
	}
	for _, entries := range v.remote {
		st.Remote += len(entries)
	}
	return st
}

func dedupe(entries []interfaces.ServiceEntry) []interfaces.ServiceEntry {
	seen := make(map[interfaces.ServiceEntry]struct{}, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// sortAddrs sorts addrs in place and drops duplicates.
func sortAddrs(addrs []netip.Addr) []netip.Addr {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	out := addrs[:0]
	for _, a := range addrs {
		if len(out) > 0 && out[len(out)-1] == a {
			continue
		}
		out = append(out, a)
	}
	return out
}

func toSnapshot(entries []interfaces.ServiceEntry) interfaces.Snapshot {
	snap := make(interfaces.Snapshot)
	for _, e := range entries {
		snap[e.Name] = append(snap[e.Name], e.Address)
	}
	for name, addrs := range snap {
		snap[name] = sortAddrs(addrs)
	}
	return snap
}

func copySnapshot(in interfaces.Snapshot) interfaces.Snapshot {
	out := make(interfaces.Snapshot, len(in))
	for name, addrs := range in {
		out[name] = append([]netip.Addr(nil), addrs...)
	}
	return out
}
