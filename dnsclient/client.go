// Package dnsclient resolves registry names against a DNS registry node.
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/multierr"
)

// ErrNotFound is returned when the server answers NXDOMAIN.
var ErrNotFound = errors.New("name not found")

// Client sends address queries to a single DNS server.
type Client struct {
	server string
	client *dns.Client
}

// New creates a client for the DNS server at addr (host:port).
//
// Parameters:
//   - addr: Address of the DNS server
//   - network: "udp" or "tcp"
//   - timeout: Per-query timeout
func New(addr, network string, timeout time.Duration) *Client {
	return &Client{
		server: addr,
		client: &dns.Client{Net: network, Timeout: timeout},
	}
}

// Query sends a single question for name and returns the raw response.
func (c *Client) Query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.Question = []dns.Question{{Name: dns.Fqdn(name), Qtype: qtype, Qclass: dns.ClassINET}}

	in, _, err := c.client.ExchangeContext(ctx, m, c.server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], name, err)
	}
	return in, nil
}

// Lookup returns the IPv4 and IPv6 addresses of name.
// ErrNotFound is returned when both queries are answered NXDOMAIN.
func (c *Client) Lookup(ctx context.Context, name string) ([]netip.Addr, error) {
	var (
		addrs    []netip.Addr
		errs     error
		notFound int
	)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		in, err := c.Query(ctx, name, qtype)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		switch in.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			notFound++
			continue
		default:
			errs = multierr.Append(errs, fmt.Errorf("query %s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode]))
			continue
		}

		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *dns.A:
				if addr, ok := netip.AddrFromSlice(v.A.To4()); ok {
					addrs = append(addrs, addr)
				}
			case *dns.AAAA:
				if addr, ok := netip.AddrFromSlice(v.AAAA); ok {
					addrs = append(addrs, addr)
				}
			}
		}
	}

	if errs != nil {
		return addrs, errs
	}
	if notFound == 2 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return addrs, nil
}
