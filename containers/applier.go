package containers

import (
	"context"
	"log/slog"

	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/ruteri/docker-dns-registry/labels"
	"github.com/ruteri/docker-dns-registry/metrics"
)

// Applier is the single owner applying container events to the store.
type Applier struct {
	store  interfaces.LocalWriter
	parser *labels.Parser
	log    *slog.Logger
}

// NewApplier creates an applier writing to store and parsing labels with parser.
func NewApplier(store interfaces.LocalWriter, parser *labels.Parser, log *slog.Logger) *Applier {
	if log == nil {
		log = slog.Default()
	}
	return &Applier{
		store:  store,
		parser: parser,
		log:    log.With("component", "applier"),
	}
}

// Run applies events from in until ctx is cancelled or in is closed.
func (a *Applier) Run(ctx context.Context, in <-chan interfaces.ContainerEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			a.Apply(ev)
		}
	}
}

// Apply applies a single event. Labels are parsed before the store is touched; malformed
// values are logged and skipped without affecting the container's other declarations.
func (a *Applier) Apply(ev interfaces.ContainerEvent) {
	metrics.ObserveContainerEvent(ev.Kind.String())

	if ev.Kind == interfaces.ContainerStopped {
		a.store.RemoveLocal(ev.ID)
		a.log.Debug("Container stopped", "container", ev.ID, "name", ev.Name)
		return
	}

	decls, errs := a.parser.Parse(ev.Labels)
	for _, err := range errs {
		a.log.Warn("Skipping malformed service label", "container", ev.ID, "name", ev.Name, "err", err)
	}
	metrics.ObserveLabelErrors(len(errs))

	entries := labels.Entries(ev.ID, decls, ev.Addresses)
	if len(decls) > 0 && len(entries) == 0 {
		a.log.Warn("Container declares services but has no usable address", "container", ev.ID, "name", ev.Name)
	}

	if err := a.store.UpsertLocal(ev.ID, entries); err != nil {
		a.log.Error("Failed to update container entries", "container", ev.ID, "err", err)
		return
	}
	if len(entries) > 0 {
		a.log.Info("Container services registered", "container", ev.ID, "name", ev.Name, "services", len(decls), "entries", len(entries))
	}
}
