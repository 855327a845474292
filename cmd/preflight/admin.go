// cmd/preflight/admin.go
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/preflight/pkg/preflight"
)

// adminServer is the daemon's local application surface: component
// registration, interaction tracking, prediction queries, and metrics.
// It binds to loopback by default; it is not the aggregator API.
type adminServer struct {
	client *preflight.Client
	mux    *http.ServeMux
}

func newAdminServer(client *preflight.Client) *adminServer {
	s := &adminServer{client: client, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /components", s.handleAddComponent)
	s.mux.HandleFunc("GET /components", s.handleListComponents)
	s.mux.HandleFunc("POST /bindings", s.handleBind)
	s.mux.HandleFunc("POST /track", s.handleTrack)
	s.mux.HandleFunc("GET /predict", s.handlePredict)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *adminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *adminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type componentRequest struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *adminServer) handleAddComponent(w http.ResponseWriter, r *http.Request) {
	var req componentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Type == "" {
		http.Error(w, `{"error":"id and type are required"}`, http.StatusBadRequest)
		return
	}
	s.client.TrackComponent(req.ID, req.Type, req.Metadata)
	w.WriteHeader(http.StatusNoContent)
}

func (s *adminServer) handleListComponents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.client.Components())
}

type bindingRequest struct {
	ActionType  string `json:"actionType"`
	ComponentID string `json:"componentId"`
}

func (s *adminServer) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ActionType == "" || req.ComponentID == "" {
		http.Error(w, `{"error":"actionType and componentId are required"}`, http.StatusBadRequest)
		return
	}
	if err := s.client.AssociateActionWithComponent(req.ActionType, req.ComponentID); err != nil {
		slog.Warn("bind rejected", "action", req.ActionType, "error", err)
		http.Error(w, `{"error":"component not tracked"}`, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type trackRequest struct {
	ActionType string `json:"actionType"`
}

func (s *adminServer) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ActionType == "" {
		http.Error(w, `{"error":"actionType is required"}`, http.StatusBadRequest)
		return
	}
	s.client.TrackInteraction(r.Context(), req.ActionType)
	w.WriteHeader(http.StatusNoContent)
}

func (s *adminServer) handlePredict(w http.ResponseWriter, r *http.Request) {
	p := s.client.Predict(time.Now().UnixMilli())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

func (s *adminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.client.Stats())
}

func (s *adminServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.client.ForceUploadData(r.Context()); err != nil {
		slog.Error("forced upload failed", "error", err)
		http.Error(w, `{"error":"upload failed"}`, http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
