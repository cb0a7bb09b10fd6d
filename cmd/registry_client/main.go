package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ruteri/docker-dns-registry/api/clients"
	"github.com/ruteri/docker-dns-registry/dnsclient"
	"github.com/urfave/cli/v2"
)

var flagServerAddr = &cli.StringFlag{
	Name:    "registry-addr",
	Value:   "http://127.0.0.1:3000",
	Usage:   "registry API base URL",
	EnvVars: []string{"REGISTRY_ADDR"},
}
var flagDNSAddr = &cli.StringFlag{
	Name:  "dns-addr",
	Value: "127.0.0.1:53",
	Usage: "DNS server address for lookups",
}
var flagDNSNet = &cli.StringFlag{
	Name:  "dns-net",
	Value: "udp",
	Usage: "DNS transport, udp or tcp",
}
var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 5 * time.Second,
	Usage: "request timeout",
}

func main() {
	app := &cli.App{
		Name:  "registry_client",
		Usage: "Inspect a DNS registry node",
		Flags: []cli.Flag{
			flagServerAddr,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:  "snapshot",
				Usage: "print the public services the node publishes to its peers",
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := requestContext(cCtx)
					defer cancel()
					res, err := clients.NewRegistryClient().FetchSnapshot(ctx, cCtx.String(flagServerAddr.Name))
					if err != nil {
						return err
					}
					if res.Hostname != "" {
						fmt.Fprintf(os.Stderr, "hostname: %s\n", res.Hostname)
					}
					return printJSON(res.Services)
				},
			},
			{
				Name:  "peers",
				Usage: "print the sync status of every peer of the node",
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := requestContext(cCtx)
					defer cancel()
					statuses, err := clients.NewRegistryClient().FetchPeers(ctx, cCtx.String(flagServerAddr.Name))
					if err != nil {
						return err
					}
					return printJSON(statuses)
				},
			},
			{
				Name:      "peer-services",
				Usage:     "print the services the node learned from a peer",
				ArgsUsage: "<peer host:port>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return cli.Exit("expected exactly one peer name", 1)
					}
					ctx, cancel := requestContext(cCtx)
					defer cancel()
					services, err := clients.NewRegistryClient().FetchPeerServices(ctx, cCtx.String(flagServerAddr.Name), cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(services)
				},
			},
			{
				Name:      "service",
				Usage:     "print every entry the node holds for a name",
				ArgsUsage: "<name>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return cli.Exit("expected exactly one name", 1)
					}
					ctx, cancel := requestContext(cCtx)
					defer cancel()
					view, err := clients.NewRegistryClient().FetchService(ctx, cCtx.String(flagServerAddr.Name), cCtx.Args().First())
					if err != nil {
						return err
					}
					return printJSON(view)
				},
			},
			{
				Name:      "lookup",
				Usage:     "resolve a name through the node's DNS server",
				ArgsUsage: "<name>",
				Flags:     []cli.Flag{flagDNSAddr, flagDNSNet},
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return cli.Exit("expected exactly one name", 1)
					}
					ctx, cancel := requestContext(cCtx)
					defer cancel()
					c := dnsclient.New(cCtx.String(flagDNSAddr.Name), cCtx.String(flagDNSNet.Name), cCtx.Duration(flagTimeout.Name))
					addrs, err := c.Lookup(ctx, cCtx.Args().First())
					if err != nil {
						return err
					}
					for _, addr := range addrs {
						fmt.Println(addr)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func requestContext(cCtx *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
