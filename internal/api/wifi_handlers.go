// Package api provides HTTP handlers for the LanLink control REST API. It
// exposes Wi-Fi operations, discovery and sharing control, transfer
// management, hotspot control, and configuration over the loopback server.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"lanlink/internal/coordinator"
	"lanlink/internal/models"
	"lanlink/internal/wifi"
)

// WifiHandler handles Wi-Fi related API endpoints.
type WifiHandler struct {
	coord *coordinator.Coordinator
}

// NewWifiHandler creates a new Wi-Fi handler.
func NewWifiHandler(coord *coordinator.Coordinator) *WifiHandler {
	return &WifiHandler{coord: coord}
}

// RegisterRoutes registers the Wi-Fi routes.
func (h *WifiHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/wifi/scan", h.scan).Methods("POST")
	r.HandleFunc("/api/wifi/networks", h.getNetworks).Methods("GET")
	r.HandleFunc("/api/wifi/connect", h.connect).Methods("POST")
	r.HandleFunc("/api/wifi/disconnect", h.disconnect).Methods("POST")
	r.HandleFunc("/api/wifi/saved", h.getSavedNetworks).Methods("GET")
	r.HandleFunc("/api/wifi/connection", h.getConnection).Methods("GET")
}

// scan triggers a one-shot Wi-Fi scan and returns the sorted results.
func (h *WifiHandler) scan(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "scan").Logger()

	networks, err := h.coord.ScanNetworks(r.Context())
	if err != nil {
		if errors.Is(err, wifi.ErrScanInProgress) {
			http.Error(w, "A scan is already in progress", http.StatusConflict)
			return
		}
		logger.Error().Err(err).Msg("Scan failed")
		writeCommandError(w, err, "Scan failed")
		return
	}

	respondJSON(w, logger, networks)
}

// getNetworks returns the results of the most recent scan.
func (h *WifiHandler) getNetworks(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getNetworks").Logger()
	respondJSON(w, logger, h.coord.AvailableNetworks())
}

type connectRequest struct {
	SSID         string `json:"ssid"`
	BSSID        string `json:"bssid"`
	Capabilities string `json:"capabilities"`
	Password     string `json:"password"`
}

// connect joins the requested network.
func (h *WifiHandler) connect(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "connect").Logger()

	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SSID == "" {
		http.Error(w, "ssid is required", http.StatusBadRequest)
		return
	}

	network := models.WifiNetwork{
		SSID:         req.SSID,
		BSSID:        req.BSSID,
		Capabilities: req.Capabilities,
		IsSecure:     models.ClassifySecurity(req.Capabilities),
	}
	if err := h.coord.ConnectToNetwork(r.Context(), network, req.Password); err != nil {
		if errors.Is(err, wifi.ErrPasswordRequired) {
			http.Error(w, "Password required for secure network", http.StatusBadRequest)
			return
		}
		logger.Error().Err(err).Str("ssid", req.SSID).Msg("Connect failed")
		writeCommandError(w, err, "Connect failed")
		return
	}

	respondJSON(w, logger, map[string]string{"status": "connected", "ssid": req.SSID})
}

// disconnect leaves the current network.
func (h *WifiHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "disconnect").Logger()

	if err := h.coord.Disconnect(r.Context()); err != nil {
		logger.Error().Err(err).Msg("Disconnect failed")
		writeCommandError(w, err, "Disconnect failed")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "disconnected"})
}

// getSavedNetworks returns the persisted network registry. Passwords never
// appear in the response.
func (h *WifiHandler) getSavedNetworks(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getSavedNetworks").Logger()

	saved, err := h.coord.SavedNetworks()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load saved networks")
		writeCommandError(w, err, "Failed to load saved networks")
		return
	}
	respondJSON(w, logger, saved)
}

// getConnection returns the current connectivity snapshot.
func (h *WifiHandler) getConnection(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getConnection").Logger()
	respondJSON(w, logger, h.coord.ConnectionInfo())
}
