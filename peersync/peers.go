package peersync

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidPeerURL is returned for peer URLs without an http(s) scheme or a host.
	ErrInvalidPeerURL = errors.New("invalid peer url")

	// ErrDuplicatePeer is returned when two URLs map to the same peer name.
	ErrDuplicatePeer = errors.New("duplicate peer")
)

// Peer is one remote registry node.
type Peer struct {
	// Name keys the entries learned from the peer. It is the host[:port] of URL.
	Name string

	// URL is the base URL of the peer's registry API, without trailing slash.
	URL string
}

// ParsePeers parses a whitespace or comma separated list of peer base URLs.
// An empty list is valid and yields no peers.
func ParsePeers(list string) ([]Peer, error) {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	peers := make([]Peer, 0, len(fields))
	seen := make(map[string]string, len(fields))
	for _, raw := range fields {
		peer, err := ParsePeer(raw)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[peer.Name]; dup {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrDuplicatePeer, prev, raw, peer.Name)
		}
		seen[peer.Name] = raw
		peers = append(peers, peer)
	}
	return peers, nil
}

// ParsePeer parses a single peer base URL.
func ParsePeer(raw string) (Peer, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Peer{}, fmt.Errorf("%w %q: %w", ErrInvalidPeerURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Peer{}, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidPeerURL, raw)
	}
	if u.Host == "" {
		return Peer{}, fmt.Errorf("%w %q: missing host", ErrInvalidPeerURL, raw)
	}

	u.RawQuery = ""
	u.Fragment = ""
	return Peer{
		Name: strings.ToLower(u.Host),
		URL:  strings.TrimSuffix(u.String(), "/"),
	}, nil
}
