package containers

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// DockerRuntime implements Runtime on the Docker Engine API.
type DockerRuntime struct {
	cli *client.Client
}

// NewDockerRuntime connects to the engine configured by the DOCKER_HOST family of
// environment variables, negotiating the API version.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("could not create docker client: %w", err)
	}
	return &DockerRuntime{cli: cli}, nil
}

// Ping checks that the engine is reachable.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker engine unreachable: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

// Events implements Runtime.
func (d *DockerRuntime) Events(ctx context.Context) (<-chan RuntimeEvent, <-chan error) {
	msgs, errs := d.cli.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(
			filters.Arg("type", string(events.ContainerEventType)),
			filters.Arg("type", string(events.NetworkEventType)),
		),
	})

	out := make(chan RuntimeEvent)
	outErr := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				outErr <- err
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev := RuntimeEvent{
					Type:        string(msg.Type),
					Action:      string(msg.Action),
					ContainerID: msg.Actor.ID,
				}
				if msg.Type == events.NetworkEventType {
					ev.ContainerID = msg.Actor.Attributes["container"]
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, outErr
}

// RunningContainers implements Runtime.
func (d *DockerRuntime) RunningContainers(ctx context.Context) ([]string, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, fmt.Errorf("could not list containers: %w", err)
	}

	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Inspect implements Runtime.
func (d *DockerRuntime) Inspect(ctx context.Context, id string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, id)
		}
		return nil, fmt.Errorf("could not inspect container %s: %w", id, err)
	}
	return infoFromInspect(id, resp), nil
}

func infoFromInspect(id string, resp container.InspectResponse) *ContainerInfo {
	info := &ContainerInfo{
		ID:       id,
		Networks: make(map[string][]netip.Addr),
	}
	if resp.ContainerJSONBase != nil {
		info.ID = resp.ID
		info.Name = strings.TrimPrefix(resp.Name, "/")
		if resp.State != nil {
			info.Running = resp.State.Running && !resp.State.Paused
		}
	}
	if resp.Config != nil {
		info.Labels = resp.Config.Labels
	}
	if resp.NetworkSettings != nil {
		for name, ep := range resp.NetworkSettings.Networks {
			if ep == nil {
				continue
			}
			for _, raw := range []string{ep.IPAddress, ep.GlobalIPv6Address} {
				if addr, err := netip.ParseAddr(raw); err == nil {
					info.Networks[name] = append(info.Networks[name], addr)
				}
			}
		}
	}
	return info
}
