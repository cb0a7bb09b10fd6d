package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/docker-dns-registry/api"
	"github.com/stretchr/testify/mock"
)

// maxBodySize bounds the size of snapshot responses read from a peer.
const maxBodySize = 4 << 20

// SnapshotResult is the decoded answer of a peer's services endpoint.
type SnapshotResult struct {
	// Services is the raw wire snapshot.
	Services api.ServicesResponse

	// Hostname is the value of the hostname header, empty if the peer did not send one.
	Hostname string
}

// SnapshotFetcher fetches the public snapshot of a peer.
type SnapshotFetcher interface {
	// FetchSnapshot requests <baseURL>/api/self/services.
	// Any transport error, non-200 status or undecodable body is returned as an error.
	FetchSnapshot(ctx context.Context, baseURL string) (*SnapshotResult, error)
}

// RegistryClient talks to the registry HTTP API of a node.
type RegistryClient struct {
	httpClient *http.Client
}

// NewRegistryClient creates a registry client.
//
// Parameters:
//   - timeout: Request timeout duration (optional). Callers usually bound each call
//     with a context deadline instead.
//
// Returns:
//   - Configured RegistryClient instance
func NewRegistryClient(timeout ...time.Duration) *RegistryClient {
	client := &http.Client{}
	if len(timeout) > 0 {
		client.Timeout = timeout[0]
	}
	return &RegistryClient{httpClient: client}
}

// FetchSnapshot requests the public snapshot of the node at baseURL.
func (c *RegistryClient) FetchSnapshot(ctx context.Context, baseURL string) (*SnapshotResult, error) {
	var services api.ServicesResponse
	header, err := c.getJSON(ctx, baseURL, api.SelfServicesPath, &services)
	if err != nil {
		return nil, err
	}
	if services == nil {
		services = api.ServicesResponse{}
	}
	return &SnapshotResult{
		Services: services,
		Hostname: header.Get(api.HostnameHeader),
	}, nil
}

// FetchPeers requests the peer sync statuses of the node at baseURL.
func (c *RegistryClient) FetchPeers(ctx context.Context, baseURL string) ([]api.PeerStatus, error) {
	var statuses []api.PeerStatus
	if _, err := c.getJSON(ctx, baseURL, api.PeersPath, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// FetchPeerServices requests the entries the node at baseURL currently holds for peer.
func (c *RegistryClient) FetchPeerServices(ctx context.Context, baseURL, peer string) (api.ServicesResponse, error) {
	path := strings.Replace(api.PeerServicesPath, "{peer}", url.PathEscape(peer), 1)

	var services api.ServicesResponse
	if _, err := c.getJSON(ctx, baseURL, path, &services); err != nil {
		return nil, err
	}
	return services, nil
}

// FetchService requests the diagnostic view of one name.
func (c *RegistryClient) FetchService(ctx context.Context, baseURL, name string) (*api.ServiceView, error) {
	path := strings.Replace(api.ServicePath, "{name}", url.PathEscape(name), 1)

	var view api.ServiceView
	if _, err := c.getJSON(ctx, baseURL, path, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *RegistryClient) getJSON(ctx context.Context, baseURL, path string, out any) (http.Header, error) {
	reqURL := strings.TrimSuffix(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodySize)
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(body)
		return nil, fmt.Errorf("%s returned error %d: %s", reqURL, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return nil, fmt.Errorf("could not parse response from %s: %w", reqURL, err)
	}
	return resp.Header, nil
}

// MockSnapshotFetcher implements a mock SnapshotFetcher for testing.
type MockSnapshotFetcher struct {
	mock.Mock
}

// FetchSnapshot implements the SnapshotFetcher interface for testing.
func (m *MockSnapshotFetcher) FetchSnapshot(ctx context.Context, baseURL string) (*SnapshotResult, error) {
	args := m.Called(ctx, baseURL)
	res, _ := args.Get(0).(*SnapshotResult)
	return res, args.Error(1)
}
