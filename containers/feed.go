package containers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"strings"

	"github.com/ruteri/docker-dns-registry/interfaces"
)

// ErrFeedClosed is returned when the runtime closes the event stream.
var ErrFeedClosed = errors.New("container event stream closed")

// FeedConfig configures address selection for Feed.
type FeedConfig struct {
	// Network restricts addresses to the named network. Empty uses every network.
	Network string

	// AdvertiseIP, when valid, replaces the addresses of every container.
	AdvertiseIP netip.Addr

	// Log is the structured logger.
	Log *slog.Logger
}

// Feed turns runtime events into interfaces.ContainerEvent messages.
// It implements interfaces.ContainerFeed.
type Feed struct {
	rt  Runtime
	cfg FeedConfig
	log *slog.Logger
}

// NewFeed creates a container feed on rt.
func NewFeed(rt Runtime, cfg FeedConfig) *Feed {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Feed{rt: rt, cfg: cfg, log: cfg.Log.With("component", "containers")}
}

// Run subscribes to runtime events, emits a ContainerStarted event for every running
// container, then translates live events until ctx is cancelled or the stream is lost.
// Subscribing before listing ensures no event between the two is missed.
func (f *Feed) Run(ctx context.Context, out chan<- interfaces.ContainerEvent) error {
	evCh, errCh := f.rt.Events(ctx)

	ids, err := f.rt.RunningContainers(ctx)
	if err != nil {
		return err
	}
	f.log.Info("Syncing running containers", "count", len(ids))
	for _, id := range ids {
		if err := f.refresh(ctx, id, out); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("container event stream failed: %w", err)
		case ev, ok := <-evCh:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrFeedClosed
			}
			if err := f.handle(ctx, ev, out); err != nil {
				return err
			}
		}
	}
}

func (f *Feed) handle(ctx context.Context, ev RuntimeEvent, out chan<- interfaces.ContainerEvent) error {
	if ev.ContainerID == "" {
		return nil
	}

	// exec and health actions carry details after a colon
	action, _, _ := strings.Cut(ev.Action, ":")

	switch ev.Type {
	case ContainerEventType:
		switch action {
		case "start", "unpause", "restart":
			return f.refresh(ctx, ev.ContainerID, out)
		case "die", "stop", "pause", "destroy":
			return f.emit(ctx, out, interfaces.ContainerEvent{Kind: interfaces.ContainerStopped, ID: ev.ContainerID})
		}
	case NetworkEventType:
		switch action {
		case "connect", "disconnect":
			return f.refresh(ctx, ev.ContainerID, out)
		}
	}
	return nil
}

// refresh inspects a container and emits its current state.
func (f *Feed) refresh(ctx context.Context, id string, out chan<- interfaces.ContainerEvent) error {
	info, err := f.rt.Inspect(ctx, id)
	if errors.Is(err, ErrContainerNotFound) {
		return f.emit(ctx, out, interfaces.ContainerEvent{Kind: interfaces.ContainerStopped, ID: id})
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a transient inspect failure loses one update, not the feed
		f.log.Warn("Could not inspect container", "container", id, "err", err)
		return nil
	}

	if !info.Running {
		return f.emit(ctx, out, interfaces.ContainerEvent{Kind: interfaces.ContainerStopped, ID: info.ID, Name: info.Name})
	}
	return f.emit(ctx, out, interfaces.ContainerEvent{
		Kind:      interfaces.ContainerStarted,
		ID:        info.ID,
		Name:      info.Name,
		Labels:    info.Labels,
		Addresses: f.addresses(info),
	})
}

// addresses selects the addresses to publish for a container.
func (f *Feed) addresses(info *ContainerInfo) []netip.Addr {
	if f.cfg.AdvertiseIP.IsValid() {
		return []netip.Addr{f.cfg.AdvertiseIP}
	}
	if f.cfg.Network != "" {
		return append([]netip.Addr(nil), info.Networks[f.cfg.Network]...)
	}

	var addrs []netip.Addr
	for _, networkAddrs := range info.Networks {
		addrs = append(addrs, networkAddrs...)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	return addrs
}

func (f *Feed) emit(ctx context.Context, out chan<- interfaces.ContainerEvent, ev interfaces.ContainerEvent) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
