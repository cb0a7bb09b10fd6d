package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/docker-dns-registry/api/handlers"
	"github.com/ruteri/docker-dns-registry/cmd/flags"
	"github.com/ruteri/docker-dns-registry/containers"
	"github.com/ruteri/docker-dns-registry/dnsserver"
	"github.com/ruteri/docker-dns-registry/httpserver"
	"github.com/ruteri/docker-dns-registry/interfaces"
	"github.com/ruteri/docker-dns-registry/labels"
	"github.com/ruteri/docker-dns-registry/metrics"
	"github.com/ruteri/docker-dns-registry/peersync"
	"github.com/ruteri/docker-dns-registry/registry"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	flagHostname = &cli.StringFlag{
		Name:     "hostname",
		Required: true,
		Usage:    "name of this node, reported to peers",
		EnvVars:  []string{"SELF_HOSTNAME"},
	}
	flagListenAddr = &cli.StringFlag{
		Name:    "listen-addr",
		Value:   "0.0.0.0:3000",
		Usage:   "address to listen on for the registry API",
		EnvVars: []string{"SERVICE_REGISTRY_LISTEN"},
	}
	flagPeers = &cli.StringFlag{
		Name:    "peers",
		Usage:   "space separated base URLs of peer registries",
		EnvVars: []string{"REGISTRY_URLS"},
	}
	flagSyncInterval = &cli.DurationFlag{
		Name:  "sync-interval",
		Value: peersync.DefaultInterval,
		Usage: "interval between two syncs with the same peer",
	}
	flagSyncTimeout = &cli.DurationFlag{
		Name:  "sync-timeout",
		Value: peersync.DefaultTimeout,
		Usage: "timeout of a single peer request",
	}
	flagStaleAfter = &cli.DurationFlag{
		Name:  "stale-after",
		Value: peersync.DefaultStaleAfter,
		Usage: "drop a peer's entries when it has not been synced for this long",
	}
	flagBreakerFailures = &cli.UintFlag{
		Name:  "breaker-failures",
		Value: peersync.DefaultBreakerFailures,
		Usage: "consecutive failures before requests to a peer are skipped",
	}
	flagDNSListen = &cli.StringFlag{
		Name:    "dns-listen",
		Value:   dnsserver.DefaultListenAddr,
		Usage:   "UDP address of the DNS server",
		EnvVars: []string{"DNS_SERVER_LISTEN"},
	}
	flagDNSTCP = &cli.BoolFlag{
		Name:  "dns-tcp",
		Usage: "also serve DNS over TCP on the same address",
	}
	flagDNSDomain = &cli.StringFlag{
		Name:  "dns-domain",
		Usage: "zone suffix stripped from query names",
	}
	flagDNSTTL = &cli.UintFlag{
		Name:  "dns-ttl",
		Value: 0,
		Usage: "TTL of DNS answers in seconds",
	}
	flagDNSUpstream = &cli.StringFlag{
		Name:    "dns-upstream",
		Usage:   "host:port of a resolver for names not in the registry, empty answers NXDOMAIN",
		EnvVars: []string{"DNS_UPSTREAM"},
	}
	flagDNSRateLimit = &cli.Float64Flag{
		Name:  "dns-rate-limit",
		Usage: "queries per second allowed per client, 0 disables",
	}
	flagDNSRateBurst = &cli.IntFlag{
		Name:  "dns-rate-burst",
		Value: 50,
		Usage: "per client burst size",
	}
	flagLabelPrefix = &cli.StringFlag{
		Name:  "label-prefix",
		Value: labels.DefaultPrefix,
		Usage: "container label key declaring service names",
	}
	flagDockerNetwork = &cli.StringFlag{
		Name:  "docker-network",
		Usage: "only publish container addresses on this network",
	}
	flagAdvertiseIP = &cli.StringFlag{
		Name:    "advertise-ip",
		Usage:   "publish this address for every container instead of the container addresses",
		EnvVars: []string{"DNS_HOST_IP"},
	}
)

func main() {
	app := &cli.App{
		Name:  "dnsregistry",
		Usage: "Serve DNS for labelled containers and replicate public names across peers",
		Flags: append([]cli.Flag{
			flagHostname,
			flagListenAddr,
			flagPeers,
			flagSyncInterval,
			flagSyncTimeout,
			flagStaleAfter,
			flagBreakerFailures,
			flagDNSListen,
			flagDNSTCP,
			flagDNSDomain,
			flagDNSTTL,
			flagDNSUpstream,
			flagDNSRateLimit,
			flagDNSRateBurst,
			flagLabelPrefix,
			flagDockerNetwork,
			flagAdvertiseIP,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := flags.LoadEnvFile(os.Args); err != nil {
		log.Fatal(err)
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	hostname := cCtx.String(flagHostname.Name)

	peers, err := peersync.ParsePeers(cCtx.String(flagPeers.Name))
	if err != nil {
		return err
	}

	var advertiseIP netip.Addr
	if raw := cCtx.String(flagAdvertiseIP.Name); raw != "" {
		advertiseIP, err = netip.ParseAddr(raw)
		if err != nil {
			return fmt.Errorf("invalid advertise ip: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := containers.NewDockerRuntime()
	if err != nil {
		return err
	}
	defer runtime.Close()
	if err := runtime.Ping(ctx); err != nil {
		return err
	}

	store := registry.NewStore(logger)
	store.OnChange(func(st registry.Stats) {
		metrics.SetRegistryEntries(st.LocalPublic, st.LocalPrivate, st.Remote)
	})

	var feed interfaces.ContainerFeed = containers.NewFeed(runtime, containers.FeedConfig{
		Network:     cCtx.String(flagDockerNetwork.Name),
		AdvertiseIP: advertiseIP,
		Log:         logger,
	})
	applier := containers.NewApplier(store, labels.NewParser(cCtx.String(flagLabelPrefix.Name)), logger)

	engine := peersync.NewEngine(peersync.Config{
		Peers:           peers,
		Interval:        cCtx.Duration(flagSyncInterval.Name),
		Timeout:         cCtx.Duration(flagSyncTimeout.Name),
		StaleAfter:      cCtx.Duration(flagStaleAfter.Name),
		BreakerFailures: uint32(cCtx.Uint(flagBreakerFailures.Name)),
		Store:           store,
		Log:             logger,
	})

	dnsSrv := dnsserver.New(dnsserver.Config{
		ListenAddr: cCtx.String(flagDNSListen.Name),
		TCP:        cCtx.Bool(flagDNSTCP.Name),
		Domain:     cCtx.String(flagDNSDomain.Name),
		TTL:        uint32(cCtx.Uint(flagDNSTTL.Name)),
		Upstream:   cCtx.String(flagDNSUpstream.Name),
		RateLimit:  cCtx.Float64(flagDNSRateLimit.Name),
		RateBurst:  cCtx.Int(flagDNSRateBurst.Name),
		Log:        logger,
	}, store)

	httpSrv := httpserver.New(
		flags.ConfigureServer(cCtx, logger, cCtx.String(flagListenAddr.Name)),
		handlers.NewHandler(store, engine, hostname, logger),
	)

	logger.Info("Starting DNS registry", "hostname", hostname, "peers", len(peers))

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan interfaces.ContainerEvent, 64)

	g.Go(func() error { return ignoreCanceled(ctx, feed.Run(ctx, events)) })
	g.Go(func() error { return applier.Run(ctx, events) })
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return dnsSrv.Run(ctx) })
	g.Go(func() error { return httpSrv.Run(ctx) })

	if err := g.Wait(); err != nil {
		logger.Error("DNS registry stopped", "err", err)
		return err
	}
	logger.Info("DNS registry stopped")
	return nil
}

// ignoreCanceled drops the error of a component that stopped because ctx was cancelled.
func ignoreCanceled(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
