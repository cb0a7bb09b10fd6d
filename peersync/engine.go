package peersync

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/docker-dns-registry/api"
	"github.com/ruteri/docker-dns-registry/api/clients"
	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/ruteri/docker-dns-registry/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/atomic"
)

// Defaults applied to zero Config fields.
const (
	DefaultInterval        = 10 * time.Second
	DefaultTimeout         = 5 * time.Second
	DefaultStaleAfter      = 60 * time.Second
	DefaultBreakerFailures = 3
)

// Config configures the peer sync engine.
type Config struct {
	// Peers to pull snapshots from. Names must be unique.
	Peers []Peer

	// Interval between two sync cycles with the same peer.
	Interval time.Duration

	// Timeout bounds every snapshot request.
	Timeout time.Duration

	// StaleAfter is how long a peer may go without a successful sync before its
	// entries are expired.
	StaleAfter time.Duration

	// BreakerFailures is the number of consecutive failures opening a peer's breaker.
	BreakerFailures uint32

	// BreakerTimeout is how long an open breaker skips calls before letting one through.
	// Defaults to three intervals. It is measured on the wall clock, not on Clock.
	BreakerTimeout time.Duration

	// Fetcher requests snapshots. Defaults to a clients.RegistryClient.
	Fetcher clients.SnapshotFetcher

	// Store receives the replicated entries.
	Store interfaces.RemoteWriter

	// Clock is the time source for ticks and staleness. Defaults to the wall clock.
	Clock clock.Clock

	// Log is the structured logger.
	Log *slog.Logger
}

type peerState struct {
	Peer

	breaker *gobreaker.CircuitBreaker[*clients.SnapshotResult]

	// written by the peer's goroutine only, read by Statuses
	lastSuccess atomic.Time
	lastError   atomic.String
	hostname    atomic.String
	entries     atomic.Int64
}

// Engine pulls the public snapshot of every peer on its own schedule and replaces the
// peer's remote entries in the store. Peers never block each other.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	peers   []*peerState
	started time.Time
}

// NewEngine creates a sync engine. Zero durations and thresholds are replaced by
// their defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 3 * cfg.Interval
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = clients.NewRegistryClient()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	e := &Engine{
		cfg:     cfg,
		log:     cfg.Log.With("component", "peersync"),
		started: cfg.Clock.Now(),
	}
	for _, peer := range cfg.Peers {
		e.peers = append(e.peers, e.newPeerState(peer))
	}
	return e
}

func (e *Engine) newPeerState(peer Peer) *peerState {
	failures := e.cfg.BreakerFailures
	log := e.log
	return &peerState{
		Peer: peer,
		breaker: gobreaker.NewCircuitBreaker[*clients.SnapshotResult](gobreaker.Settings{
			Name:        peer.Name,
			MaxRequests: 1,
			Timeout:     e.cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info("Peer breaker state changed", "peer", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Run starts one sync loop per peer and blocks until ctx is cancelled.
// The first cycle with every peer starts immediately.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.peers) == 0 {
		e.log.Info("No peers configured, replication disabled")
		<-ctx.Done()
		return nil
	}

	e.log.Info("Starting peer sync", "peers", len(e.peers), "interval", e.cfg.Interval, "timeout", e.cfg.Timeout, "staleAfter", e.cfg.StaleAfter)

	var wg sync.WaitGroup
	for _, ps := range e.peers {
		wg.Add(1)
		go func(ps *peerState) {
			defer wg.Done()
			e.runPeer(ctx, ps)
		}(ps)
	}
	wg.Wait()
	return nil
}

func (e *Engine) runPeer(ctx context.Context, ps *peerState) {
	ticker := e.cfg.Clock.Ticker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		e.syncPeer(ctx, ps)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// syncPeer runs one cycle with ps: fetch, apply on success, then the staleness check.
func (e *Engine) syncPeer(ctx context.Context, ps *peerState) {
	res, err := ps.breaker.Execute(func() (*clients.SnapshotResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
		return e.cfg.Fetcher.FetchSnapshot(callCtx, ps.URL)
	})
	if ctx.Err() != nil {
		return
	}

	now := e.cfg.Clock.Now()
	if err == nil {
		e.apply(ps, res, now)
	} else {
		result := metrics.ResultFailure
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = metrics.ResultSkipped
		}
		ps.lastError.Store(err.Error())
		metrics.ObservePeerSync(ps.Name, result)
		e.log.Warn("Peer sync failed", "peer", ps.Name, "result", result, "err", err)
	}

	e.expireIfStale(ps, now)
}

func (e *Engine) apply(ps *peerState, res *clients.SnapshotResult, now time.Time) {
	snap, dropped := res.Services.DecodeSnapshot()
	for _, err := range dropped {
		e.log.Warn("Dropping invalid peer entry", "peer", ps.Name, "err", err)
	}

	n := e.cfg.Store.ReplaceRemote(ps.Name, snap)

	ps.lastSuccess.Store(now)
	ps.lastError.Store("")
	ps.hostname.Store(res.Hostname)
	ps.entries.Store(int64(n))

	metrics.ObservePeerSync(ps.Name, metrics.ResultSuccess)
	metrics.SetPeerLastSuccess(ps.Name, now)
	e.log.Debug("Peer synced", "peer", ps.Name, "hostname", res.Hostname, "entries", n)
}

// expireIfStale drops the entries of a peer not synced for longer than StaleAfter.
// The baseline of a peer never synced is the engine start.
func (e *Engine) expireIfStale(ps *peerState, now time.Time) {
	last := ps.lastSuccess.Load()
	if last.IsZero() {
		last = e.started
	}
	if now.Sub(last) <= e.cfg.StaleAfter || ps.entries.Load() == 0 {
		return
	}

	removed := e.cfg.Store.ExpireRemote(ps.Name)
	ps.entries.Store(0)
	metrics.ObservePeerExpiry(ps.Name)
	e.log.Warn("Peer entries expired", "peer", ps.Name, "removed", removed, "lastSuccess", last)
}

// Statuses returns the sync state of every configured peer, sorted by name.
func (e *Engine) Statuses() []api.PeerStatus {
	statuses := make([]api.PeerStatus, 0, len(e.peers))
	for _, ps := range e.peers {
		status := api.PeerStatus{
			Name:      ps.Name,
			URL:       ps.URL,
			LastError: ps.lastError.Load(),
			Hostname:  ps.hostname.Load(),
			Breaker:   ps.breaker.State().String(),
			Entries:   int(ps.entries.Load()),
		}
		if last := ps.lastSuccess.Load(); !last.IsZero() {
			status.LastSuccess = &last
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
