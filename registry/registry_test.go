package registry

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"

	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func entry(name, addr string, vis interfaces.Visibility) interfaces.ServiceEntry {
	return interfaces.ServiceEntry{
		Name:       name,
		Address:    netip.MustParseAddr(addr),
		Visibility: vis,
	}
}

func addrs(ss ...string) []netip.Addr {
	out := make([]netip.Addr, 0, len(ss))
	for _, s := range ss {
		out = append(out, netip.MustParseAddr(s))
	}
	return out
}

func TestStore_UpsertLocal(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.5", interfaces.Public),
		entry("bar", "10.0.0.5", interfaces.Private),
	}))

	assert.Equal(t, addrs("10.0.0.5"), s.Resolve("foo"))
	assert.Equal(t, addrs("10.0.0.5"), s.Resolve("bar"))
	assert.Equal(t, addrs("10.0.0.5"), s.Resolve("FOO."))

	// origin is forced to the owning container
	for _, e := range s.Entries("foo") {
		assert.Equal(t, interfaces.Local("svc1"), e.Origin)
	}

	// idempotent
	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.5", interfaces.Public),
		entry("bar", "10.0.0.5", interfaces.Private),
	}))
	assert.Len(t, s.Entries("foo"), 1)

	// wholesale replacement drops names no longer declared
	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.6", interfaces.Public),
	}))
	assert.Equal(t, addrs("10.0.0.6"), s.Resolve("foo"))
	assert.Empty(t, s.Resolve("bar"))
	assert.False(t, s.Has("bar"))

	// empty set removes the container
	require.NoError(t, s.UpsertLocal("svc1", nil))
	assert.False(t, s.Has("foo"))
	assert.Equal(t, 0, s.cur.Load().stats().Containers)
}

func TestStore_UpsertLocalRejectsInvalidEntries(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{entry("foo", "10.0.0.5", interfaces.Public)}))

	err := s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.7", interfaces.Public),
		{Name: "broken"},
	})
	require.ErrorIs(t, err, interfaces.ErrInvalidEntry)

	// nothing applied
	assert.Equal(t, addrs("10.0.0.5"), s.Resolve("foo"))
}

func TestStore_RemoveLocalIsImmediate(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{entry("foo", "10.0.0.5", interfaces.Public)}))
	require.NoError(t, s.UpsertLocal("svc2", []interfaces.ServiceEntry{entry("foo", "10.0.0.6", interfaces.Public)}))

	assert.Equal(t, interfaces.Snapshot{"foo": addrs("10.0.0.5", "10.0.0.6")}, s.PublicSnapshot())

	s.RemoveLocal("svc1")

	assert.Equal(t, addrs("10.0.0.6"), s.Resolve("foo"))
	assert.Equal(t, interfaces.Snapshot{"foo": addrs("10.0.0.6")}, s.PublicSnapshot())

	s.RemoveLocal("svc2")
	assert.Empty(t, s.Resolve("foo"))
	assert.Empty(t, s.PublicSnapshot())

	// unknown containers are fine
	s.RemoveLocal("missing")
}

func TestStore_PublicSnapshotExcludesPrivateAndRemote(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.5", interfaces.Public),
		entry("secret", "10.0.0.5", interfaces.Private),
	}))
	s.ReplaceRemote("bob", interfaces.Snapshot{
		"foo":  addrs("10.1.0.5"),
		"bobs": addrs("10.1.0.6"),
	})

	snap := s.PublicSnapshot()
	assert.Equal(t, interfaces.Snapshot{"foo": addrs("10.0.0.5")}, snap)

	// the merged view still serves everything locally
	assert.Equal(t, addrs("10.0.0.5", "10.1.0.5"), s.Resolve("foo"))
	assert.Equal(t, addrs("10.0.0.5"), s.Resolve("secret"))
	assert.Equal(t, addrs("10.1.0.6"), s.Resolve("bobs"))

	// snapshot is a copy
	snap["foo"][0] = netip.MustParseAddr("1.1.1.1")
	assert.Equal(t, addrs("10.0.0.5"), s.PublicSnapshot()["foo"])
}

func TestStore_ReplaceRemoteReplacesWholesale(t *testing.T) {
	s := newTestStore()

	n := s.ReplaceRemote("bob", interfaces.Snapshot{
		"a": addrs("10.1.0.1", "10.1.0.2"),
		"b": addrs("10.1.0.3"),
	})
	assert.Equal(t, 3, n)

	n = s.ReplaceRemote("bob", interfaces.Snapshot{
		"a": addrs("10.1.0.2"),
		"":  addrs("10.1.0.9"),
		"c": {{}},
	})
	assert.Equal(t, 1, n)

	assert.Equal(t, addrs("10.1.0.2"), s.Resolve("a"))
	assert.False(t, s.Has("b"))
	assert.False(t, s.Has("c"))

	for _, e := range s.Entries("a") {
		assert.Equal(t, interfaces.Public, e.Visibility)
		assert.Equal(t, interfaces.Remote("bob"), e.Origin)
	}

	snap, ok := s.RemoteSnapshot("bob")
	require.True(t, ok)
	assert.Equal(t, interfaces.Snapshot{"a": addrs("10.1.0.2")}, snap)
}

func TestStore_PeersAreIndependent(t *testing.T) {
	s := newTestStore()
	s.ReplaceRemote("bob", interfaces.Snapshot{"shared": addrs("10.1.0.1")})
	s.ReplaceRemote("carol", interfaces.Snapshot{"shared": addrs("10.2.0.1")})

	assert.Equal(t, []string{"bob", "carol"}, s.Peers())
	assert.Equal(t, addrs("10.1.0.1", "10.2.0.1"), s.Resolve("shared"))

	assert.Equal(t, 1, s.ExpireRemote("bob"))
	assert.Equal(t, addrs("10.2.0.1"), s.Resolve("shared"))

	_, ok := s.RemoteSnapshot("bob")
	assert.False(t, ok)
	assert.Equal(t, 0, s.ExpireRemote("bob"))
}

func TestStore_OnChange(t *testing.T) {
	s := newTestStore()

	var last Stats
	s.OnChange(func(st Stats) { last = st })

	require.NoError(t, s.UpsertLocal("svc1", []interfaces.ServiceEntry{
		entry("foo", "10.0.0.5", interfaces.Public),
		entry("bar", "10.0.0.5", interfaces.Private),
	}))
	s.ReplaceRemote("bob", interfaces.Snapshot{"x": addrs("10.1.0.1")})

	assert.Equal(t, Stats{LocalPublic: 1, LocalPrivate: 1, Remote: 1, Containers: 1, Peers: 1}, last)
	assert.Equal(t, last, s.cur.Load().stats())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("svc%d", w)
			for i := 0; i < 200; i++ {
				addr := netip.AddrFrom4([4]byte{10, byte(w), 0, byte(i%250 + 1)})
				assert.NoError(t, s.UpsertLocal(id, []interfaces.ServiceEntry{
					{Name: "multi", Address: addr, Visibility: interfaces.Public},
					{Name: "multi", Address: addr.Next(), Visibility: interfaces.Private},
				}))
				if i%3 == 0 {
					s.RemoveLocal(id)
				}
			}
		}(w)
	}
	for p := 0; p < 2; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			peer := fmt.Sprintf("peer%d", p)
			for i := 0; i < 200; i++ {
				s.ReplaceRemote(peer, interfaces.Snapshot{
					"multi": {netip.AddrFrom4([4]byte{10, 100, byte(p), 1}), netip.AddrFrom4([4]byte{10, 100, byte(p), 2})},
				})
				if i%5 == 0 {
					s.ExpireRemote(peer)
				}
			}
		}(p)
	}

	// readers must always observe complete replacements: a peer contributes
	// either both of its addresses or none
	done := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				perPeer := map[byte]int{}
				for _, a := range s.Resolve("multi") {
					b := a.As4()
					if b[1] == 100 {
						perPeer[b[2]]++
					}
				}
				for peer, n := range perPeer {
					assert.Equal(t, 2, n, "partial replacement observed for peer %d", peer)
				}
				_ = s.PublicSnapshot()
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()
}
