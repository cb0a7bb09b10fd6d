package interfaces

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// Visibility determines whether a service entry is eligible for replication to peers.
type Visibility int

const (
	// Private entries are served by the declaring node only.
	Private Visibility = iota
	// Public entries are published to peers through the registry snapshot.
	Public
)

// Visibility suffixes used in container labels and accepted on DNS query names.
const (
	PublicSuffix  = "public"
	PrivateSuffix = "private"
)

// ErrUnknownVisibility is returned when a visibility suffix is neither "public" nor "private".
var ErrUnknownVisibility = errors.New("unknown visibility")

// ParseVisibility converts a label suffix into a Visibility. Matching is case-insensitive.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(s) {
	case PublicSuffix:
		return Public, nil
	case PrivateSuffix:
		return Private, nil
	default:
		return Private, fmt.Errorf("%w: %q", ErrUnknownVisibility, s)
	}
}

// String returns the label suffix form of the visibility.
func (v Visibility) String() string {
	if v == Public {
		return PublicSuffix
	}
	return PrivateSuffix
}

// MarshalText implements encoding.TextMarshaler.
func (v Visibility) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Visibility) UnmarshalText(text []byte) error {
	parsed, err := ParseVisibility(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// OriginKind tells whether an entry was declared by a local container or learned from a peer.
type OriginKind int

const (
	// LocalOrigin entries are owned by a container running on this node.
	LocalOrigin OriginKind = iota
	// RemoteOrigin entries are owned by the sync relationship with a peer.
	RemoteOrigin
)

// String returns "local" or "remote".
func (k OriginKind) String() string {
	if k == RemoteOrigin {
		return "remote"
	}
	return "local"
}

// MarshalText implements encoding.TextMarshaler.
func (k OriginKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *OriginKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "local":
		*k = LocalOrigin
	case "remote":
		*k = RemoteOrigin
	default:
		return fmt.Errorf("unknown origin kind %q", text)
	}
	return nil
}

// Origin identifies the source contributing an entry.
// ID is a container id for local entries and a peer name for remote ones.
type Origin struct {
	Kind OriginKind `json:"kind"`
	ID   string     `json:"id"`
}

// Local returns the origin of entries declared by the given container.
func Local(containerID string) Origin {
	return Origin{Kind: LocalOrigin, ID: containerID}
}

// Remote returns the origin of entries learned from the given peer.
func Remote(peer string) Origin {
	return Origin{Kind: RemoteOrigin, ID: peer}
}

// String returns a "kind:id" representation.
func (o Origin) String() string {
	return o.Kind.String() + ":" + o.ID
}

// ServiceEntry is one resolvable (name, address, visibility, origin) record.
type ServiceEntry struct {
	// Name is the externally resolvable name, lower-case and without trailing dot.
	Name string `json:"name"`

	// Address is a single container-assigned (or advertised) IP.
	Address netip.Addr `json:"address"`

	// Visibility gates replication to peers.
	Visibility Visibility `json:"visibility"`

	// Origin identifies the contributing container or peer.
	Origin Origin `json:"origin"`
}

// ErrInvalidEntry is returned for entries without a name or a valid address.
var ErrInvalidEntry = errors.New("invalid service entry")

// Validate checks the fields every stored entry must have.
func (e ServiceEntry) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEntry)
	}
	if !e.Address.IsValid() {
		return fmt.Errorf("%w: invalid address for %q", ErrInvalidEntry, e.Name)
	}
	return nil
}

// NormalizeName lower-cases a service or query name and strips the trailing dot.
func NormalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// Snapshot maps service names to the addresses published for them.
type Snapshot map[string][]netip.Addr
