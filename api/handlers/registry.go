package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/docker-dns-registry/api"
	"github.com/ruteri/docker-dns-registry/interfaces"
)

// PeerStatusProvider reports the sync state of the configured peers.
type PeerStatusProvider interface {
	Statuses() []api.PeerStatus
}

// Handler serves the registry HTTP API from the store.
type Handler struct {
	store    interfaces.SnapshotReader
	peers    PeerStatusProvider
	hostname string
	log      *slog.Logger
}

// NewHandler creates a registry API handler.
//
// Parameters:
//   - store: Read side of the registry store
//   - peers: Peer sync status source, may be nil when replication is disabled
//   - hostname: Identity of this node, sent in the hostname header
//   - log: Structured logger
//
// Returns a configured Handler instance.
func NewHandler(store interfaces.SnapshotReader, peers PeerStatusProvider, hostname string, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		peers:    peers,
		hostname: hostname,
		log:      log,
	}
}

// RegisterRoutes mounts the registry API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(api.SelfServicesPath, h.HandleSelfServices)
	r.Get(api.PeersPath, h.HandlePeers)
	r.Get(api.PeerServicesPath, h.HandlePeerServices)
	r.Get(api.ServicePath, h.HandleService)
	r.Get(api.HealthPath, h.HandleHealth)
}

// HandleSelfServices returns the public entries declared by local containers.
// This is the endpoint peers pull from; private and remote entries are never included.
//
// URL format: GET /api/self/services
//
// Response: JSON, see api.ServicesResponse
func (h *Handler) HandleSelfServices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, api.EncodeSnapshot(h.store.PublicSnapshot()))
}

// HandlePeers returns the sync status of every configured peer, followed by the peers
// the store holds entries for without being configured.
//
// URL format: GET /api/peers
func (h *Handler) HandlePeers(w http.ResponseWriter, r *http.Request) {
	statuses := []api.PeerStatus{}
	if h.peers != nil {
		statuses = append(statuses, h.peers.Statuses()...)
	}

	known := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		known[status.Name] = struct{}{}
	}
	for _, peer := range h.store.Peers() {
		if _, ok := known[peer]; ok {
			continue
		}
		status := api.PeerStatus{Name: peer}
		if snap, ok := h.store.RemoteSnapshot(peer); ok {
			for _, addrs := range snap {
				status.Entries += len(addrs)
			}
		}
		statuses = append(statuses, status)
	}
	h.writeJSON(w, statuses)
}

// HandlePeerServices returns the entries currently held for one peer.
//
// URL format: GET /api/peers/{peer}/services
func (h *Handler) HandlePeerServices(w http.ResponseWriter, r *http.Request) {
	peer, err := url.PathUnescape(chi.URLParam(r, "peer"))
	if err != nil {
		http.Error(w, "Invalid peer name", http.StatusBadRequest)
		return
	}

	snap, ok := h.store.RemoteSnapshot(peer)
	if !ok {
		http.Error(w, "Unknown peer", http.StatusNotFound)
		return
	}
	h.writeJSON(w, api.EncodeSnapshot(snap))
}

// HandleService returns every entry stored for one name.
//
// URL format: GET /api/services/{name}
func (h *Handler) HandleService(w http.ResponseWriter, r *http.Request) {
	name := interfaces.NormalizeName(chi.URLParam(r, "name"))
	entries := h.store.Entries(name)
	if len(entries) == 0 {
		http.Error(w, "Unknown service", http.StatusNotFound)
		return
	}

	view := api.ServiceView{Name: name, Entries: entries}
	for _, addr := range h.store.Resolve(name) {
		view.Addresses = append(view.Addresses, addr.String())
	}
	h.writeJSON(w, view)
}

// HandleHealth answers 200 while the process is up.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if h.hostname != "" {
		w.Header().Set(api.HostnameHeader, h.hostname)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
