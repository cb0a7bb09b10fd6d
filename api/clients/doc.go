/*
Package clients provides the HTTP client for the DNS registry API.

RegistryClient is used in two places:

1. the peer sync engine, which calls FetchSnapshot on every configured peer
2. the registry_client command line tool, which inspects a running node

Every method takes a context; the sync engine bounds each call with its own deadline so a
hung peer never stalls a cycle for longer than the configured timeout.

# Example Usage

	client := clients.NewRegistryClient()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := client.FetchSnapshot(ctx, "http://10.0.0.2:3000")
	if err != nil {
	    return err
	}
	snap, dropped := res.Services.DecodeSnapshot()

MockSnapshotFetcher is a testify mock of the SnapshotFetcher interface.
*/
package clients
