package interfaces

import (
	"context"
	"net/netip"
)

// ContainerEventKind distinguishes container lifecycle events relevant to the registry.
type ContainerEventKind int

const (
	// ContainerStarted covers start and update (labels or networks changed).
	ContainerStarted ContainerEventKind = iota
	// ContainerStopped covers stop, die and removal.
	ContainerStopped
)

// String returns "started" or "stopped".
func (k ContainerEventKind) String() string {
	if k == ContainerStopped {
		return "stopped"
	}
	return "started"
}

// ContainerEvent is one message of the container lifecycle feed.
// Labels and Addresses are only set for ContainerStarted.
type ContainerEvent struct {
	Kind      ContainerEventKind
	ID        string
	Name      string
	Labels    map[string]string
	Addresses []netip.Addr
}

// ContainerFeed produces container lifecycle events.
//
// Run blocks until ctx is cancelled or the feed is lost. A non-nil error other than
// ctx.Err() means the registry can no longer be trusted and the process should exit.
type ContainerFeed interface {
	Run(ctx context.Context, out chan<- ContainerEvent) error
}
