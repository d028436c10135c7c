// Copyright 2025 OneCore Project
//
// HTTP status endpoint for the connection layer, reporting how many peer
// connections are open and how many requests are in flight on each. This
// is diagnostic surface only — the object sync protocol itself runs over
// the framed Connection/Multiplexer, never HTTP.

package connection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Registry tracks the Multiplexers StatusHandlers should report on. A node
// registers each peer connection's Multiplexer as it's established and
// unregisters it on disconnect.
type Registry struct {
	mu   sync.Mutex
	muxs map[string]*Multiplexer
}

// NewRegistry creates an empty connection Registry.
func NewRegistry() *Registry {
	return &Registry{muxs: make(map[string]*Multiplexer)}
}

// Track registers mux under peerID, for later status reporting.
func (r *Registry) Track(peerID string, mux *Multiplexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muxs[peerID] = mux
}

// Untrack removes peerID's entry, typically once its connection closes.
func (r *Registry) Untrack(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.muxs, peerID)
}

type peerStatus struct {
	PeerID         string `json:"peerId"`
	PendingCount   int    `json:"pendingRequests"`
	ServicesCount  int    `json:"servicesRegistered"`
}

// StatusHandlers provides HTTP handlers reporting connection status.
type StatusHandlers struct {
	registry *Registry
}

// NewStatusHandlers creates status handlers over registry.
func NewStatusHandlers(registry *Registry) *StatusHandlers {
	return &StatusHandlers{registry: registry}
}

// HandleConnections handles GET /api/connections requests.
func (h *StatusHandlers) HandleConnections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.registry.mu.Lock()
	statuses := make([]peerStatus, 0, len(h.registry.muxs))
	for peerID, mux := range h.registry.muxs {
		mux.mu.Lock()
		statuses = append(statuses, peerStatus{
			PeerID:        peerID,
			PendingCount:  len(mux.pending),
			ServicesCount: len(mux.services),
		})
		mux.mu.Unlock()
	}
	h.registry.mu.Unlock()

	if err := json.NewEncoder(w).Encode(map[string]any{"connections": statuses}); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to encode response: %s"}`, err.Error()), http.StatusInternalServerError)
	}
}
