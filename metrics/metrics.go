// Package metrics holds the Prometheus collectors of the DNS registry and the
// HTTP server exposing them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ruteri/docker-dns-registry/common"
)

// Registry is the collector registry served on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	dnsQueries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "dns",
		Name:      "queries_total",
		Help:      "DNS queries answered, by question type and response code.",
	}, []string{"qtype", "rcode"})

	peerSyncs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "peer",
		Name:      "syncs_total",
		Help:      "Peer sync attempts, by peer and result.",
	}, []string{"peer", "result"})

	peerLastSuccess = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Subsystem: "peer",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful sync with a peer.",
	}, []string{"peer"})

	peerExpiries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "peer",
		Name:      "expiries_total",
		Help:      "Times a peer's entries were dropped after the staleness TTL.",
	}, []string{"peer"})

	registryEntries = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: common.PackageName,
		Subsystem: "registry",
		Name:      "entries",
		Help:      "Service entries held by the registry, by origin and visibility.",
	}, []string{"origin", "visibility"})

	containerEvents = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "containers",
		Name:      "events_total",
		Help:      "Container lifecycle events applied to the registry, by kind.",
	}, []string{"kind"})

	labelErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Subsystem: "containers",
		Name:      "label_errors_total",
		Help:      "Malformed service label values that were skipped.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Sync results recorded by ObservePeerSync.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// ObserveDNSQuery counts one answered DNS query.
func ObserveDNSQuery(qtype, rcode string) {
	dnsQueries.WithLabelValues(qtype, rcode).Inc()
}

// ObservePeerSync counts one sync attempt with peer.
func ObservePeerSync(peer, result string) {
	peerSyncs.WithLabelValues(peer, result).Inc()
}

// SetPeerLastSuccess records the time of the last successful sync with peer.
func SetPeerLastSuccess(peer string, t time.Time) {
	peerLastSuccess.WithLabelValues(peer).Set(float64(t.Unix()))
}

// ObservePeerExpiry counts one staleness expiry of peer.
func ObservePeerExpiry(peer string) {
	peerExpiries.WithLabelValues(peer).Inc()
}

// SetRegistryEntries updates the registry entry gauges.
func SetRegistryEntries(localPublic, localPrivate, remote int) {
	registryEntries.WithLabelValues("local", "public").Set(float64(localPublic))
	registryEntries.WithLabelValues("local", "private").Set(float64(localPrivate))
	registryEntries.WithLabelValues("remote", "public").Set(float64(remote))
}

// ObserveContainerEvent counts one applied container event.
func ObserveContainerEvent(kind string) {
	containerEvents.WithLabelValues(kind).Inc()
}

// ObserveLabelErrors counts skipped label values.
func ObserveLabelErrors(n int) {
	labelErrors.Add(float64(n))
}
