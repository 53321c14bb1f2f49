package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"lanlink/internal/coordinator"
)

// respondJSON writes v as a JSON response body.
func respondJSON(w http.ResponseWriter, logger zerolog.Logger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeCommandError maps coordinator command failures to HTTP statuses. A
// not-initialized coordinator rejects commands with 503 so clients can
// distinguish startup from bad requests.
func writeCommandError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, coordinator.ErrNotInitialized) {
		http.Error(w, "Coordinator is not initialized", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, msg, http.StatusInternalServerError)
}
