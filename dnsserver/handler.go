package dnsserver

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"runtime/debug"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/ruteri/docker-dns-registry/metrics"
)

// Handler answers A and AAAA queries from a Resolver.
// Names unknown to the resolver are forwarded upstream when an upstream is configured,
// otherwise answered NXDOMAIN.
type Handler struct {
	resolver interfaces.Resolver
	log      *slog.Logger

	domain          string
	ttl             uint32
	upstream        string
	upstreamTimeout time.Duration
	limiter         *clientLimiter
}

// NewHandler creates a DNS handler reading from resolver.
func NewHandler(resolver interfaces.Resolver, cfg Config) *Handler {
	cfg.setDefaults()
	h := &Handler{
		resolver:        resolver,
		log:             cfg.Log.With("component", "dns"),
		domain:          interfaces.NormalizeName(cfg.Domain),
		ttl:             cfg.TTL,
		upstream:        cfg.Upstream,
		upstreamTimeout: cfg.UpstreamTimeout,
	}
	if cfg.RateLimit > 0 {
		h.limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	return h
}

// ServeDNS implements dns.Handler. A panic while answering is recovered and answered
// SERVFAIL so the serve loop keeps running.
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("Panic while answering query", "panic", rec, "stack", string(debug.Stack()))
			m := new(dns.Msg)
			m.SetRcode(r, dns.RcodeServerFailure)
			h.write(w, r, m)
		}
	}()

	h.write(w, r, h.answer(r, clientAddr(w.RemoteAddr())))
}

func (h *Handler) write(w dns.ResponseWriter, r, m *dns.Msg) {
	qtype := "NONE"
	if len(r.Question) > 0 {
		qtype = dns.TypeToString[r.Question[0].Qtype]
	}
	metrics.ObserveDNSQuery(qtype, dns.RcodeToString[m.Rcode])

	if err := w.WriteMsg(m); err != nil {
		h.log.Warn("Failed to write DNS response", "err", err)
	}
}

// answer builds the response to r.
func (h *Handler) answer(r *dns.Msg, client netip.Addr) *dns.Msg {
	m := new(dns.Msg)

	if h.limiter != nil && !h.limiter.Allow(client) {
		return m.SetRcode(r, dns.RcodeRefused)
	}
	if r.Opcode != dns.OpcodeQuery {
		return m.SetRcode(r, dns.RcodeNotImplemented)
	}
	if len(r.Question) != 1 {
		return m.SetRcodeFormatError(r)
	}

	q := r.Question[0]
	if q.Qclass != dns.ClassINET {
		return m.SetRcode(r, dns.RcodeRefused)
	}

	name := h.serviceName(q.Name)
	if !h.resolver.Has(name) {
		if h.upstream != "" {
			return h.forward(r)
		}
		h.log.Debug("Unknown name", "query", q.Name, "name", name)
		m.SetRcode(r, dns.RcodeNameError)
		m.Authoritative = true
		return m
	}

	m.SetReply(r)
	m.Authoritative = true
	m.RecursionAvailable = h.upstream != ""
	for _, addr := range h.resolver.Resolve(name) {
		if rr := h.record(q, addr); rr != nil {
			m.Answer = append(m.Answer, rr)
		}
	}
	h.log.Debug("Answered query", "query", q.Name, "qtype", dns.TypeToString[q.Qtype], "answers", len(m.Answer))
	return m
}

// record returns the answer for addr if it matches the question type, nil otherwise.
func (h *Handler) record(q dns.Question, addr netip.Addr) dns.RR {
	hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: h.ttl}
	switch {
	case q.Qtype == dns.TypeA && addr.Is4():
		return &dns.A{Hdr: hdr, A: net.IP(addr.AsSlice())}
	case q.Qtype == dns.TypeAAAA && addr.Is6() && !addr.Is4In6():
		return &dns.AAAA{Hdr: hdr, AAAA: net.IP(addr.AsSlice())}
	default:
		return nil
	}
}

// serviceName maps a query name to a registry name: lower-case without trailing dot,
// without the served domain and without a visibility suffix.
func (h *Handler) serviceName(qname string) string {
	name := interfaces.NormalizeName(qname)
	if h.domain != "" {
		name = strings.TrimSuffix(name, "."+h.domain)
	}
	for _, suffix := range []string{interfaces.PublicSuffix, interfaces.PrivateSuffix} {
		if trimmed, ok := strings.CutSuffix(name, "."+suffix); ok {
			return trimmed
		}
	}
	return name
}

// forward relays r to the upstream resolver. A truncated UDP answer is retried over TCP.
func (h *Handler) forward(r *dns.Msg) *dns.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), h.upstreamTimeout)
	defer cancel()

	in, _, err := (&dns.Client{Net: "udp"}).ExchangeContext(ctx, r, h.upstream)
	if err == nil && in.Truncated {
		in, _, err = (&dns.Client{Net: "tcp"}).ExchangeContext(ctx, r, h.upstream)
	}
	if err != nil {
		h.log.Warn("Upstream query failed", "upstream", h.upstream, "query", r.Question[0].Name, "err", err)
		return new(dns.Msg).SetRcode(r, dns.RcodeServerFailure)
	}

	in.Id = r.Id
	return in
}

func clientAddr(addr net.Addr) netip.Addr {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.AddrPort().Addr().Unmap()
	case *net.TCPAddr:
		return a.AddrPort().Addr().Unmap()
	default:
		return netip.Addr{}
	}
}
