// Package sharing runs the embedded HTTP file server. Shared entries are
// in-memory only; stopping the server drops the registry but never touches
// the underlying files.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/bcrypt"

	"lanlink/internal/config"
	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
)

const qrImageSize = 256

var (
	// ErrServerRunning is returned by Start when the server is already up.
	ErrServerRunning = errors.New("sharing server is already running")
	// ErrServerNotRunning is returned by operations that need a listener.
	ErrServerNotRunning = errors.New("sharing server is not running")
	// ErrFileTooLarge is returned when a file exceeds the configured limit.
	ErrFileTooLarge = errors.New("file exceeds maximum shared file size")
	// ErrUnknownShare is returned for ids absent from the registry.
	ErrUnknownShare = errors.New("unknown share id")
	// ErrQRCodeDisabled is returned when QR generation is turned off in the
	// network configuration.
	ErrQRCodeDisabled = errors.New("qr code generation is disabled")
)

// Options controls server-wide sharing behavior for one Start call.
type Options struct {
	EnableQRCode   bool
	EnablePassword bool
	// Password protects entries bulk-registered from a directory.
	Password string
}

// ShareOptions controls a single ShareFile call.
type ShareOptions struct {
	DisplayName    string
	GenerateQRCode bool
	Password       string
	ExpiresAt      *time.Time
}

// entry is the internal registry record. The password hash and QR payload
// never appear in the exported models.SharedFile view.
type entry struct {
	file         models.SharedFile
	passwordHash []byte
	qrPNG        []byte
}

// Server registers shared files and serves their bytes over HTTP. The
// registry is owned by the server; all reads get copies.
type Server struct {
	cfg    config.NetworkConfig
	bus    *events.Bus
	logger zerolog.Logger

	// localIP resolves the address embedded in share URLs.
	localIP func() (string, error)
	now     func() time.Time

	mu       sync.Mutex
	running  bool
	port     int
	opts     Options
	httpSrv  *http.Server
	listener net.Listener
	entries  map[string]*entry
}

// NewServer creates a sharing server bound to the given network settings.
func NewServer(cfg config.NetworkConfig, bus *events.Bus) *Server {
	return &Server{
		cfg:     cfg,
		bus:     bus,
		logger:  log.With().Str("component", "sharing").Logger(),
		localIP: platform.LocalIPv4,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Running reports whether the server is listening.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, or 0 when the server is down.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return s.port
}

// Start binds the HTTP listener on the given port (config default when 0)
// and, when dir is non-empty, bulk-registers every regular file under it.
// Starting a running server is an error; callers wanting a reset stop first.
func (s *Server) Start(dir string, port int, opts Options) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrServerRunning
	}
	if port == 0 {
		port = s.cfg.DefaultPort
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		s.mu.Unlock()
		s.bus.Publish(events.ErrorEvent{Op: "sharing", Message: err.Error()})
		return fmt.Errorf("failed to bind sharing listener: %w", err)
	}
	// Resolve the real port so port 0 works.
	port = ln.Addr().(*net.TCPAddr).Port

	router := mux.NewRouter()
	router.HandleFunc("/share/{id}", s.handleShare).Methods("GET")
	router.HandleFunc("/share/{id}/qrcode", s.handleQRCode).Methods("GET")

	srv := &http.Server{Handler: router}

	s.running = true
	s.port = port
	s.opts = opts
	s.httpSrv = srv
	s.listener = ln
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Sharing server terminated")
			s.bus.Publish(events.ErrorEvent{Op: "sharing", Message: err.Error()})
		}
	}()

	if dir != "" {
		if err := s.registerDirectory(dir, opts); err != nil {
			s.logger.Error().Err(err).Str("dir", dir).Msg("Bulk registration failed")
			s.bus.Publish(events.ErrorEvent{Op: "sharing", Message: err.Error()})
		}
	}

	addr := s.shareHost(port)
	s.logger.Info().Str("address", addr).Msg("Sharing server started")
	s.bus.Publish(events.SharingServerStarted{Address: addr})
	return nil
}

// Stop shuts the listener down and clears the shared-file registry. The
// underlying files are untouched. It is a no-op when not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	srv := s.httpSrv
	ln := s.listener
	s.running = false
	s.port = 0
	s.httpSrv = nil
	s.listener = nil
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Sharing server shutdown failed")
	}
	// Shutdown only closes listeners Serve has registered; if the Serve
	// goroutine has not run yet, the socket would stay bound until it does.
	// Close it directly so the port is free when Stop returns.
	if ln != nil {
		_ = ln.Close()
	}

	s.logger.Info().Msg("Sharing server stopped")
	s.bus.Publish(events.SharingServerStopped{})
}

// ShareFile registers one file and returns its public entry. A non-empty
// password is stored only as a bcrypt hash. Entries with no explicit expiry
// inherit the configured session timeout.
func (s *Server) ShareFile(path string, opts ShareOptions) (models.SharedFile, error) {
	s.mu.Lock()
	running := s.running
	port := s.port
	s.mu.Unlock()
	if !running {
		return models.SharedFile{}, ErrServerNotRunning
	}

	file, err := s.register(path, port, opts)
	if err != nil {
		s.bus.Publish(events.ErrorEvent{Op: "sharing", Message: err.Error()})
		return models.SharedFile{}, err
	}

	s.logger.Info().Str("path", path).Str("id", file.ID).Msg("File shared")
	s.bus.Publish(events.FileShared{Path: path})
	return file, nil
}

// GenerateQRCode issues (or reuses) the QR payload for an existing share and
// returns the encoded URL. It honors the same configuration gate as
// registration-time generation.
func (s *Server) GenerateQRCode(id string) (string, error) {
	if !s.cfg.EnableQRCode {
		return "", ErrQRCodeDisabled
	}

	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return "", ErrUnknownShare
	}
	url := e.file.URL
	needQR := e.qrPNG == nil
	s.mu.Unlock()

	if needQR {
		png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
		if err != nil {
			return "", fmt.Errorf("failed to encode QR code: %w", err)
		}
		s.mu.Lock()
		if e, ok := s.entries[id]; ok {
			e.qrPNG = png
			e.file.HasQRCode = true
		}
		s.mu.Unlock()
	}

	s.bus.Publish(events.QRCodeGenerated{ShareID: id})
	return url, nil
}

// Shares returns copies of all registered entries, newest first.
func (s *Server) Shares() []models.SharedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.SharedFile, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyFile(e.file))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Count returns the registry size.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SweepExpired drops entries whose expiry has passed. The coordinator runs
// this on its shared scheduler; a client racing the sweep still gets 410
// from the handler's own expiry check.
func (s *Server) SweepExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, e := range s.entries {
		if e.file.ExpiresAt != nil && now.After(*e.file.ExpiresAt) {
			delete(s.entries, id)
			swept++
		}
	}
	if swept > 0 {
		s.logger.Debug().Int("swept", swept).Msg("Removed expired shares")
	}
}

// register validates and stores one entry. Expired entries are accepted at
// creation and rejected at access time.
func (s *Server) register(path string, port int, opts ShareOptions) (models.SharedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.SharedFile{}, fmt.Errorf("failed to stat shared file: %w", err)
	}
	if info.IsDir() {
		return models.SharedFile{}, fmt.Errorf("cannot share a directory: %s", path)
	}
	if s.cfg.MaxFileSize > 0 && info.Size() > s.cfg.MaxFileSize {
		return models.SharedFile{}, ErrFileTooLarge
	}

	name := opts.DisplayName
	if name == "" {
		name = filepath.Base(path)
	}

	now := s.now()
	expires := opts.ExpiresAt
	if expires == nil && s.cfg.SessionTimeout > 0 {
		t := now.Add(s.cfg.SessionTimeout.Std())
		expires = &t
	}

	id := uuid.NewString()
	url := fmt.Sprintf("http://%s/share/%s", s.shareHost(port), id)

	e := &entry{
		file: models.SharedFile{
			ID:          id,
			Path:        path,
			DisplayName: name,
			Size:        info.Size(),
			URL:         url,
			Protected:   opts.Password != "",
			ExpiresAt:   expires,
			CreatedAt:   now,
		},
	}

	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			return models.SharedFile{}, fmt.Errorf("failed to hash share password: %w", err)
		}
		e.passwordHash = hash
	}

	if opts.GenerateQRCode && s.cfg.EnableQRCode {
		png, err := qrcode.Encode(url, qrcode.Medium, qrImageSize)
		if err != nil {
			return models.SharedFile{}, fmt.Errorf("failed to encode QR code: %w", err)
		}
		e.qrPNG = png
		e.file.HasQRCode = true
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return models.SharedFile{}, ErrServerNotRunning
	}
	s.entries[id] = e
	s.mu.Unlock()

	return copyFile(e.file), nil
}

// registerDirectory shares every regular file under dir. Files that fail
// validation are skipped with a log entry rather than aborting the rest.
func (s *Server) registerDirectory(dir string, opts Options) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	shareOpts := ShareOptions{GenerateQRCode: opts.EnableQRCode}
	if opts.EnablePassword {
		shareOpts.Password = opts.Password
	}

	registered := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		file, regErr := s.register(path, port, shareOpts)
		if regErr != nil {
			s.logger.Warn().Err(regErr).Str("path", path).Msg("Skipped file during bulk registration")
			return nil
		}
		registered++
		s.bus.Publish(events.FileShared{Path: file.Path})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk shared directory: %w", err)
	}

	s.logger.Info().Str("dir", dir).Int("count", registered).Msg("Bulk-registered shared directory")
	return nil
}

// shareHost builds the host:port part of share URLs from the best-effort
// local IPv4 address.
func (s *Server) shareHost(port int) string {
	ip, err := s.localIP()
	if err != nil || ip == "" {
		ip = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", ip, port)
}

func copyFile(f models.SharedFile) models.SharedFile {
	if f.ExpiresAt != nil {
		t := *f.ExpiresAt
		f.ExpiresAt = &t
	}
	return f
}
