package sharing

import (
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// lookup returns a snapshot of the entry's public view plus its hash and QR
// payload. The snapshot keeps handlers off the registry lock during I/O.
func (s *Server) lookup(id string) (entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return entry{}, false
	}
	return entry{file: copyFile(e.file), passwordHash: e.passwordHash, qrPNG: e.qrPNG}, true
}

// handleShare streams a shared file's bytes. Unknown id gives 404, a past
// expiry gives 410, and a bad or missing password on a protected entry
// gives 401.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	e, ok := s.lookup(id)
	if !ok {
		http.Error(w, "Share not found", http.StatusNotFound)
		return
	}
	if e.file.ExpiresAt != nil && s.now().After(*e.file.ExpiresAt) {
		http.Error(w, "Share expired", http.StatusGone)
		return
	}
	if e.passwordHash != nil && !passwordMatches(r, e.passwordHash) {
		w.Header().Set("WWW-Authenticate", `Basic realm="lanlink share"`)
		http.Error(w, "Password required", http.StatusUnauthorized)
		return
	}

	f, err := os.Open(e.file.Path)
	if err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("Failed to open shared file")
		http.Error(w, "Failed to open shared file", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to stat shared file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+e.file.DisplayName+`"`)
	http.ServeContent(w, r, e.file.DisplayName, info.ModTime(), f)
}

// handleQRCode serves the PNG QR payload for a share, generating it on
// demand for entries created without one.
func (s *Server) handleQRCode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	e, ok := s.lookup(id)
	if !ok {
		http.Error(w, "Share not found", http.StatusNotFound)
		return
	}
	if e.file.ExpiresAt != nil && s.now().After(*e.file.ExpiresAt) {
		http.Error(w, "Share expired", http.StatusGone)
		return
	}

	png := e.qrPNG
	if png == nil {
		if _, err := s.GenerateQRCode(id); err != nil {
			if errors.Is(err, ErrQRCodeDisabled) {
				http.Error(w, "QR codes are disabled", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
			return
		}
		if e, ok = s.lookup(id); !ok || e.qrPNG == nil {
			http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
			return
		}
		png = e.qrPNG
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.logger.Error().Err(err).Str("id", id).Msg("Failed to write QR code response")
	}
}

// passwordMatches checks the supplied password from either basic auth or
// the password query parameter against the stored bcrypt hash.
func passwordMatches(r *http.Request, hash []byte) bool {
	supplied := r.URL.Query().Get("password")
	if _, pw, ok := r.BasicAuth(); ok && pw != "" {
		supplied = pw
	}
	if supplied == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(supplied)) == nil
}
