package api

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/ruteri/docker-dns-registry/interfaces"
)

// Registry HTTP API paths.
const (
	SelfServicesPath = "/api/self/services"
	PeersPath        = "/api/peers"
	PeerServicesPath = "/api/peers/{peer}/services"
	ServicePath      = "/api/services/{name}"
	HealthPath       = "/health"
)

// HostnameHeader carries the hostname of the node answering a registry request.
const HostnameHeader = "X-Registry-Hostname"

// ServicesResponse is the JSON body of the services endpoints: service name to addresses.
// It is the snapshot format exchanged between peers.
type ServicesResponse map[string][]string

// PeerStatus is the sync state of one configured peer.
type PeerStatus struct {
	// Name is the peer key used for remote entry ownership (URL host).
	Name string `json:"name"`

	// URL is the base URL of the peer's registry API.
	URL string `json:"url"`

	// LastSuccess is the time of the last successful sync, nil if none yet.
	LastSuccess *time.Time `json:"last_success,omitempty"`

	// LastError is the error of the most recent failed cycle, empty after a success.
	LastError string `json:"last_error,omitempty"`

	// Hostname is the value of the peer's hostname header at the last success.
	Hostname string `json:"hostname,omitempty"`

	// Breaker is the state of the peer's circuit breaker.
	Breaker string `json:"breaker"`

	// Entries is the number of entries currently held for the peer.
	Entries int `json:"entries"`
}

// ServiceView is the diagnostic view of one name.
type ServiceView struct {
	Name      string                    `json:"name"`
	Addresses []string                  `json:"addresses"`
	Entries   []interfaces.ServiceEntry `json:"entries"`
}

// ErrInvalidAddress is reported for snapshot addresses that do not parse as IPs.
var ErrInvalidAddress = errors.New("invalid address")

// EncodeSnapshot converts a snapshot to its wire format.
func EncodeSnapshot(snap interfaces.Snapshot) ServicesResponse {
	resp := make(ServicesResponse, len(snap))
	for name, addrs := range snap {
		out := make([]string, 0, len(addrs))
		for _, addr := range addrs {
			out = append(out, addr.String())
		}
		resp[name] = out
	}
	return resp
}

// DecodeSnapshot converts a wire snapshot back to typed addresses.
// Empty names and unparsable addresses are dropped and reported, the rest is kept.
func (r ServicesResponse) DecodeSnapshot() (interfaces.Snapshot, []error) {
	var errs []error
	snap := make(interfaces.Snapshot, len(r))

	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		normalized := interfaces.NormalizeName(name)
		if normalized == "" {
			errs = append(errs, fmt.Errorf("%w: empty name", interfaces.ErrInvalidEntry))
			continue
		}
		for _, raw := range r[name] {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w %q for %s", ErrInvalidAddress, raw, normalized))
				continue
			}
			snap[normalized] = append(snap[normalized], addr.Unmap())
		}
	}
	return snap, errs
}
