package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"lanlink/internal/config"
	"lanlink/internal/coordinator"
)

// StatusHandler handles status, statistics, and configuration endpoints.
type StatusHandler struct {
	coord     *coordinator.Coordinator
	startTime time.Time
	version   string
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(coord *coordinator.Coordinator, version string) *StatusHandler {
	return &StatusHandler{
		coord:     coord,
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/health", h.health).Methods("GET")
	r.HandleFunc("/api/status", h.getStatus).Methods("GET")
	r.HandleFunc("/api/statistics", h.getStatistics).Methods("GET")
	r.HandleFunc("/api/config", h.getConfig).Methods("GET")
	r.HandleFunc("/api/config", h.updateConfig).Methods("PUT")
}

// health is the liveness endpoint.
func (h *StatusHandler) health(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "health").Logger()
	respondJSON(w, logger, map[string]string{"status": "ok"})
}

// getStatus returns daemon-level status.
func (h *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getStatus").Logger()

	respondJSON(w, logger, map[string]interface{}{
		"version":       h.version,
		"uptimeSeconds": int64(time.Since(h.startTime).Seconds()),
		"initialized":   h.coord.Initialized(),
	})
}

// getStatistics returns the aggregated network statistics snapshot.
func (h *StatusHandler) getStatistics(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getStatistics").Logger()

	stats, err := h.coord.GetNetworkStatistics()
	if err != nil {
		writeCommandError(w, err, "Failed to collect statistics")
		return
	}
	respondJSON(w, logger, stats)
}

// configView is the externally visible configuration. The hotspot password
// stays out of API responses.
type configView struct {
	Network config.NetworkConfig `json:"network"`
	Hotspot struct {
		SSID       string `json:"ssid"`
		Security   string `json:"security"`
		MaxClients int    `json:"maxClients"`
	} `json:"hotspot"`
}

// getConfig returns the current configuration.
func (h *StatusHandler) getConfig(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getConfig").Logger()

	cfg := h.coord.Config()
	var view configView
	view.Network = cfg.Network
	view.Hotspot.SSID = cfg.Hotspot.SSID
	view.Hotspot.Security = string(cfg.Hotspot.Security)
	view.Hotspot.MaxClients = cfg.Hotspot.MaxClients
	respondJSON(w, logger, view)
}

type updateConfigRequest struct {
	Network *config.NetworkConfig `json:"network"`
	Hotspot *config.HotspotConfig `json:"hotspot"`
}

// updateConfig replaces the network and hotspot settings wholesale. Omitted
// sections keep their current values.
func (h *StatusHandler) updateConfig(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "updateConfig").Logger()

	var req updateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	next := h.coord.Config()
	if req.Network != nil {
		next.Network = *req.Network
	}
	if req.Hotspot != nil {
		next.Hotspot = *req.Hotspot
	}
	if err := next.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.coord.UpdateConfig(r.Context(), &next); err != nil {
		logger.Error().Err(err).Msg("Failed to update configuration")
		writeCommandError(w, err, "Failed to update configuration")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "updated"})
}
