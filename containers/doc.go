/*
Package containers connects the registry to the container engine.

Feed produces interfaces.ContainerEvent messages from a Runtime. DockerRuntime is the
Docker Engine implementation; it is configured through the usual DOCKER_HOST
environment variables.

On start Feed subscribes to events first, then lists and inspects the running
containers, so nothing is missed between the two. Afterwards:

  - start, unpause, restart and network connect/disconnect re-inspect the container
  - die, stop, pause and destroy emit ContainerStopped
  - a container that vanished before it could be inspected is treated as stopped

A failing or closed event stream ends Run with an error: the registry can no longer
track the host and the process is expected to exit.

Applier consumes the events and is the only writer of local entries.
*/
package containers
