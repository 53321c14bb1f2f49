package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"lanlink/internal/config"
	"lanlink/internal/coordinator"
	"lanlink/internal/hotspot"
	"lanlink/internal/sharing"
	"lanlink/internal/transfer"
)

// NetworkHandler handles discovery, sharing, transfer, and hotspot endpoints.
type NetworkHandler struct {
	coord *coordinator.Coordinator
}

// NewNetworkHandler creates a new network handler.
func NewNetworkHandler(coord *coordinator.Coordinator) *NetworkHandler {
	return &NetworkHandler{coord: coord}
}

// RegisterRoutes registers the discovery, sharing, transfer, and hotspot
// routes.
func (h *NetworkHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/discovery/start", h.startDiscovery).Methods("POST")
	r.HandleFunc("/api/discovery/stop", h.stopDiscovery).Methods("POST")
	r.HandleFunc("/api/devices", h.getDevices).Methods("GET")

	r.HandleFunc("/api/sharing/start", h.startSharing).Methods("POST")
	r.HandleFunc("/api/sharing/stop", h.stopSharing).Methods("POST")
	r.HandleFunc("/api/shares", h.getShares).Methods("GET")
	r.HandleFunc("/api/shares", h.shareFile).Methods("POST")
	r.HandleFunc("/api/shares/{id}/qrcode", h.generateQRCode).Methods("POST")

	r.HandleFunc("/api/transfers", h.getTransfers).Methods("GET")
	r.HandleFunc("/api/transfers/{id}/cancel", h.cancelTransfer).Methods("POST")

	r.HandleFunc("/api/hotspot/enable", h.enableHotspot).Methods("POST")
	r.HandleFunc("/api/hotspot/disable", h.disableHotspot).Methods("POST")
}

// startDiscovery begins LAN peer discovery.
func (h *NetworkHandler) startDiscovery(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startDiscovery").Logger()

	if err := h.coord.StartDiscovery(); err != nil {
		logger.Error().Err(err).Msg("Failed to start discovery")
		writeCommandError(w, err, "Failed to start discovery")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "started"})
}

// stopDiscovery halts LAN peer discovery.
func (h *NetworkHandler) stopDiscovery(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "stopDiscovery").Logger()

	if err := h.coord.StopDiscovery(); err != nil {
		writeCommandError(w, err, "Failed to stop discovery")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "stopped"})
}

// getDevices returns the discovered device registry.
func (h *NetworkHandler) getDevices(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getDevices").Logger()
	respondJSON(w, logger, h.coord.DiscoveredDevices())
}

type startSharingRequest struct {
	Directory string `json:"directory"`
	Port      int    `json:"port"`
	Password  string `json:"password"`
}

// startSharing brings the file server up.
func (h *NetworkHandler) startSharing(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "startSharing").Logger()

	var req startSharingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.coord.StartSharing(req.Directory, req.Port, req.Password); err != nil {
		if errors.Is(err, sharing.ErrServerRunning) {
			http.Error(w, "Sharing server is already running", http.StatusConflict)
			return
		}
		logger.Error().Err(err).Msg("Failed to start sharing server")
		writeCommandError(w, err, "Failed to start sharing server")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "started"})
}

// stopSharing tears the file server down.
func (h *NetworkHandler) stopSharing(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "stopSharing").Logger()

	if err := h.coord.StopSharing(); err != nil {
		writeCommandError(w, err, "Failed to stop sharing server")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "stopped"})
}

// getShares lists the registered shared files.
func (h *NetworkHandler) getShares(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getShares").Logger()
	respondJSON(w, logger, h.coord.Shares())
}

type shareFileRequest struct {
	Path           string     `json:"path"`
	DisplayName    string     `json:"displayName"`
	Password       string     `json:"password"`
	GenerateQRCode bool       `json:"generateQrCode"`
	ExpiresAt      *time.Time `json:"expiresAt"`
}

// shareFile registers a single file with the running server.
func (h *NetworkHandler) shareFile(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "shareFile").Logger()

	var req shareFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	file, err := h.coord.ShareFile(req.Path, sharing.ShareOptions{
		DisplayName:    req.DisplayName,
		GenerateQRCode: req.GenerateQRCode,
		Password:       req.Password,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, sharing.ErrServerNotRunning):
			http.Error(w, "Sharing server is not running", http.StatusConflict)
		case errors.Is(err, sharing.ErrFileTooLarge):
			http.Error(w, "File exceeds the maximum shared file size", http.StatusRequestEntityTooLarge)
		default:
			logger.Error().Err(err).Str("path", req.Path).Msg("Failed to share file")
			writeCommandError(w, err, "Failed to share file")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(file); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// generateQRCode issues the QR payload for an existing share.
func (h *NetworkHandler) generateQRCode(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "generateQRCode").Logger()
	id := mux.Vars(r)["id"]

	url, err := h.coord.GenerateQRCode(id)
	if err != nil {
		switch {
		case errors.Is(err, sharing.ErrUnknownShare):
			http.Error(w, "Share not found", http.StatusNotFound)
		case errors.Is(err, sharing.ErrQRCodeDisabled):
			http.Error(w, "QR code generation is disabled", http.StatusConflict)
		default:
			logger.Error().Err(err).Str("id", id).Msg("Failed to generate QR code")
			writeCommandError(w, err, "Failed to generate QR code")
		}
		return
	}
	respondJSON(w, logger, map[string]string{"id": id, "url": url})
}

// getTransfers lists all tracked transfer sessions.
func (h *NetworkHandler) getTransfers(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "getTransfers").Logger()
	respondJSON(w, logger, h.coord.Transfers())
}

// cancelTransfer cancels an in-flight transfer session.
func (h *NetworkHandler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "cancelTransfer").Logger()
	id := mux.Vars(r)["id"]

	if err := h.coord.CancelTransfer(id); err != nil {
		switch {
		case errors.Is(err, transfer.ErrUnknownSession):
			http.Error(w, "Transfer session not found", http.StatusNotFound)
		case errors.Is(err, transfer.ErrSessionFinished):
			http.Error(w, "Transfer session already finished", http.StatusConflict)
		default:
			logger.Error().Err(err).Str("id", id).Msg("Failed to cancel transfer")
			writeCommandError(w, err, "Failed to cancel transfer")
		}
		return
	}
	respondJSON(w, logger, map[string]string{"status": "cancelled", "id": id})
}

type hotspotRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
	Security string `json:"security"`
}

// enableHotspot starts the device-hosted access point.
func (h *NetworkHandler) enableHotspot(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "enableHotspot").Logger()

	var req hotspotRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	security := config.HotspotSecurity(req.Security)
	if req.Security != "" && !security.Valid() {
		http.Error(w, "Invalid security mode", http.StatusBadRequest)
		return
	}

	if err := h.coord.EnableHotspot(r.Context(), req.SSID, req.Password, security); err != nil {
		switch {
		case errors.Is(err, hotspot.ErrAlreadyEnabled):
			http.Error(w, "Hotspot is already enabled", http.StatusConflict)
		case errors.Is(err, hotspot.ErrInvalidSettings):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			logger.Error().Err(err).Msg("Failed to enable hotspot")
			writeCommandError(w, err, "Failed to enable hotspot")
		}
		return
	}
	respondJSON(w, logger, map[string]string{"status": "enabled"})
}

// disableHotspot tears the access point down.
func (h *NetworkHandler) disableHotspot(w http.ResponseWriter, r *http.Request) {
	logger := log.With().Str("handler", "disableHotspot").Logger()

	if err := h.coord.DisableHotspot(r.Context()); err != nil {
		logger.Error().Err(err).Msg("Failed to disable hotspot")
		writeCommandError(w, err, "Failed to disable hotspot")
		return
	}
	respondJSON(w, logger, map[string]string{"status": "disabled"})
}
