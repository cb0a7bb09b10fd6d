package containers

import (
	"context"
	"errors"
	"net/netip"
)

// ErrContainerNotFound is returned by Runtime.Inspect for containers that no longer exist.
var ErrContainerNotFound = errors.New("container not found")

// Event types and actions reported by the runtime event stream.
const (
	ContainerEventType = "container"
	NetworkEventType   = "network"
)

// ContainerInfo is what the registry needs to know about one container.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
	Labels  map[string]string

	// Networks maps network names to the container's addresses on them.
	Networks map[string][]netip.Addr
}

// RuntimeEvent is one message of the runtime event stream.
type RuntimeEvent struct {
	// Type is ContainerEventType or NetworkEventType.
	Type string

	// Action is the runtime action, e.g. "start", "die" or "connect".
	Action string

	// ContainerID is the affected container. For network events it is the container
	// connected or disconnected.
	ContainerID string
}

// Runtime is the narrow view of the container engine used by Feed.
type Runtime interface {
	// Events subscribes to container and network events. The error channel receives at
	// most one error, after which the stream is dead.
	Events(ctx context.Context) (<-chan RuntimeEvent, <-chan error)

	// RunningContainers lists the ids of running containers.
	RunningContainers(ctx context.Context) ([]string, error)

	// Inspect returns the current state of a container.
	Inspect(ctx context.Context, id string) (*ContainerInfo, error)
}
