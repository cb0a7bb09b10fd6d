package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	ObservePeerSync("bob:3000", ResultFailure)
	ObservePeerSync("bob:3000", ResultFailure)
	assert.Equal(t, 2.0, testutil.ToFloat64(peerSyncs.WithLabelValues("bob:3000", ResultFailure)))

	SetRegistryEntries(3, 1, 7)
	assert.Equal(t, 3.0, testutil.ToFloat64(registryEntries.WithLabelValues("local", "public")))
	assert.Equal(t, 1.0, testutil.ToFloat64(registryEntries.WithLabelValues("local", "private")))
	assert.Equal(t, 7.0, testutil.ToFloat64(registryEntries.WithLabelValues("remote", "public")))

	now := time.Unix(1700000000, 0)
	SetPeerLastSuccess("bob:3000", now)
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(peerLastSuccess.WithLabelValues("bob:3000")))
}

func TestHandler(t *testing.T) {
	ObserveDNSQuery("A", "NOERROR")

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dnsregistry_dns_queries_total{qtype="A",rcode="NOERROR"}`)
	assert.Contains(t, string(body), "go_goroutines")
}
