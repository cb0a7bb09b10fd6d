package dnsserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/ruteri/docker-dns-registry/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestStore(t *testing.T) *registry.Store {
	store := registry.NewStore(testLog)
	require.NoError(t, store.UpsertLocal("c1", []interfaces.ServiceEntry{
		{Name: "foo", Address: netip.MustParseAddr("10.0.0.5"), Visibility: interfaces.Public},
		{Name: "foo", Address: netip.MustParseAddr("fd00::5"), Visibility: interfaces.Public},
		{Name: "secret", Address: netip.MustParseAddr("10.0.0.6"), Visibility: interfaces.Private},
	}))
	store.ReplaceRemote("bob:3000", interfaces.Snapshot{
		"foo": {netip.MustParseAddr("10.1.0.5")},
		"v6":  {netip.MustParseAddr("fd00::7")},
	})
	return store
}

func startServer(t *testing.T, cfg Config, resolver interfaces.Resolver) *Server {
	t.Helper()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Log = testLog
	srv := New(cfg, resolver)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func query(t *testing.T, srv *Server, name string, qtype uint16) *dns.Msg {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	return exchange(t, "udp", srv, m)
}

func exchange(t *testing.T, network string, srv *Server, m *dns.Msg) *dns.Msg {
	t.Helper()
	c := &dns.Client{Net: network, Timeout: 2 * time.Second}
	in, _, err := c.Exchange(m, srv.Addr().String())
	require.NoError(t, err)
	return in
}

func answerIPs(m *dns.Msg) []string {
	var ips []string
	for _, rr := range m.Answer {
		switch v := rr.(type) {
		case *dns.A:
			ips = append(ips, v.A.String())
		case *dns.AAAA:
			ips = append(ips, v.AAAA.String())
		}
	}
	return ips
}

func TestServer_Answers(t *testing.T) {
	srv := startServer(t, Config{TTL: 30}, newTestStore(t))

	tests := []struct {
		name      string
		qname     string
		qtype     uint16
		wantRcode int
		wantIPs   []string
	}{
		{name: "merged local and remote", qname: "foo.", qtype: dns.TypeA, wantRcode: dns.RcodeSuccess, wantIPs: []string{"10.0.0.5", "10.1.0.5"}},
		{name: "aaaa", qname: "foo.", qtype: dns.TypeAAAA, wantRcode: dns.RcodeSuccess, wantIPs: []string{"fd00::5"}},
		{name: "public suffix and case", qname: "FOO.Public.", qtype: dns.TypeA, wantRcode: dns.RcodeSuccess, wantIPs: []string{"10.0.0.5", "10.1.0.5"}},
		{name: "private served locally", qname: "secret.private.", qtype: dns.TypeA, wantRcode: dns.RcodeSuccess, wantIPs: []string{"10.0.0.6"}},
		{name: "no ipv4 for name", qname: "v6.", qtype: dns.TypeA, wantRcode: dns.RcodeSuccess},
		{name: "unsupported type", qname: "foo.", qtype: dns.TypeMX, wantRcode: dns.RcodeSuccess},
		{name: "unknown", qname: "nope.", qtype: dns.TypeA, wantRcode: dns.RcodeNameError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := query(t, srv, tt.qname, tt.qtype)
			assert.Equal(t, tt.wantRcode, in.Rcode)
			assert.True(t, in.Authoritative)
			assert.ElementsMatch(t, tt.wantIPs, answerIPs(in))
			for _, rr := range in.Answer {
				assert.Equal(t, uint32(30), rr.Header().Ttl)
				assert.Equal(t, tt.qname, rr.Header().Name)
			}
		})
	}
}

func TestServer_Domain(t *testing.T) {
	srv := startServer(t, Config{Domain: "registry.internal."}, newTestStore(t))

	in := query(t, srv, "foo.public.registry.internal.", dns.TypeA)
	assert.Equal(t, dns.RcodeSuccess, in.Rcode)
	assert.ElementsMatch(t, []string{"10.0.0.5", "10.1.0.5"}, answerIPs(in))

	in = query(t, srv, "foo.registry.internal.", dns.TypeA)
	assert.Len(t, in.Answer, 2)
}

func TestServer_MalformedQueries(t *testing.T) {
	srv := startServer(t, Config{}, newTestStore(t))

	notify := new(dns.Msg)
	notify.SetQuestion("foo.", dns.TypeA)
	notify.Opcode = dns.OpcodeStatus
	assert.Equal(t, dns.RcodeNotImplemented, exchange(t, "udp", srv, notify).Rcode)

	noQuestion := new(dns.Msg)
	noQuestion.Id = dns.Id()
	assert.Equal(t, dns.RcodeFormatError, exchange(t, "udp", srv, noQuestion).Rcode)

	twoQuestions := new(dns.Msg)
	twoQuestions.SetQuestion("foo.", dns.TypeA)
	twoQuestions.Question = append(twoQuestions.Question, dns.Question{Name: "bar.", Qtype: dns.TypeA, Qclass: dns.ClassINET})
	assert.Equal(t, dns.RcodeFormatError, exchange(t, "udp", srv, twoQuestions).Rcode)

	// the loop keeps serving
	assert.Len(t, query(t, srv, "foo.", dns.TypeA).Answer, 2)
}

type panickingResolver struct {
	interfaces.Resolver
}

func (r panickingResolver) Has(name string) bool {
	if name == "boom" {
		panic("resolver failure")
	}
	return r.Resolver.Has(name)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	srv := startServer(t, Config{}, panickingResolver{newTestStore(t)})

	assert.Equal(t, dns.RcodeServerFailure, query(t, srv, "boom.", dns.TypeA).Rcode)
	assert.Len(t, query(t, srv, "foo.", dns.TypeA).Answer, 2)
}

func TestServer_TCP(t *testing.T) {
	srv := startServer(t, Config{TCP: true}, newTestStore(t))

	m := new(dns.Msg)
	m.SetQuestion("foo.", dns.TypeA)
	in := exchange(t, "tcp", srv, m)
	assert.ElementsMatch(t, []string{"10.0.0.5", "10.1.0.5"}, answerIPs(in))
}

func TestServer_UpstreamForwarding(t *testing.T) {
	upstreamStore := registry.NewStore(testLog)
	require.NoError(t, upstreamStore.UpsertLocal("u1", []interfaces.ServiceEntry{
		{Name: "example.com", Address: netip.MustParseAddr("93.184.216.34"), Visibility: interfaces.Public},
	}))
	upstream := startServer(t, Config{}, upstreamStore)

	srv := startServer(t, Config{Upstream: upstream.Addr().String()}, newTestStore(t))

	in := query(t, srv, "example.com.", dns.TypeA)
	assert.Equal(t, dns.RcodeSuccess, in.Rcode)
	assert.Equal(t, []string{"93.184.216.34"}, answerIPs(in))

	// unknown upstream too
	assert.Equal(t, dns.RcodeNameError, query(t, srv, "nope.", dns.TypeA).Rcode)

	// registry names never go upstream
	local := query(t, srv, "foo.", dns.TypeA)
	assert.True(t, local.Authoritative)
	assert.True(t, local.RecursionAvailable)
	assert.Len(t, local.Answer, 2)
}

func TestServer_UpstreamUnreachable(t *testing.T) {
	// a bound socket that never answers
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	srv := startServer(t, Config{Upstream: pc.LocalAddr().String(), UpstreamTimeout: 100 * time.Millisecond}, newTestStore(t))
	assert.Equal(t, dns.RcodeServerFailure, query(t, srv, "example.com.", dns.TypeA).Rcode)
}

func TestServer_RateLimit(t *testing.T) {
	srv := startServer(t, Config{RateLimit: 0.001, RateBurst: 2}, newTestStore(t))

	assert.Equal(t, dns.RcodeSuccess, query(t, srv, "foo.", dns.TypeA).Rcode)
	assert.Equal(t, dns.RcodeSuccess, query(t, srv, "foo.", dns.TypeA).Rcode)
	assert.Equal(t, dns.RcodeRefused, query(t, srv, "foo.", dns.TypeA).Rcode)
}

func TestServer_Run(t *testing.T) {
	srv := New(Config{ListenAddr: "127.0.0.1:0", Log: testLog}, newTestStore(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_ListenError(t *testing.T) {
	srv := New(Config{ListenAddr: "256.0.0.1:53", Log: testLog}, newTestStore(t))
	assert.Error(t, srv.Run(context.Background()))
}
