package wifi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
)

// ErrScanInProgress is returned when a scan is requested while one is
// already in flight.
var ErrScanInProgress = errors.New("a wifi scan is already in progress")

// ErrPermissionDenied is returned when the platform refuses the location
// permission required for scanning.
var ErrPermissionDenied = errors.New("location permission denied")

// DefaultSettleDelay is how long the scanner waits after triggering a
// platform scan before trusting the result list.
const DefaultSettleDelay = 2 * time.Second

// Scanner performs one-shot scans for nearby access points, guarding
// against overlapping scans with an in-flight flag.
type Scanner struct {
	wifi        platform.WifiPlatform
	perms       platform.PermissionGranter
	bus         *events.Bus
	logger      zerolog.Logger
	settleDelay time.Duration

	mu          sync.Mutex
	isScanning  bool
	scanTimeout time.Duration
	available   []models.WifiNetwork
}

// NewScanner creates a Wi-Fi scanner. A non-positive settleDelay disables
// the post-trigger settle wait.
func NewScanner(wifi platform.WifiPlatform, perms platform.PermissionGranter, bus *events.Bus, scanTimeout, settleDelay time.Duration) *Scanner {
	return &Scanner{
		wifi:        wifi,
		perms:       perms,
		bus:         bus,
		logger:      log.With().Str("component", "wifi-scanner").Logger(),
		scanTimeout: scanTimeout,
		settleDelay: settleDelay,
	}
}

// SetTimeout replaces the per-scan deadline. A scan already in flight keeps
// the deadline it started with.
func (s *Scanner) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanTimeout = d
}

// Networks returns a copy of the most recent scan results.
func (s *Scanner) Networks() []models.WifiNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WifiNetwork, len(s.available))
	copy(out, s.available)
	return out
}

// Scan performs a one-shot access-point scan. A second call while one is in
// flight fails immediately without mutating the previous result list. The
// in-flight flag is reset on every path out of this method.
func (s *Scanner) Scan(ctx context.Context) ([]models.WifiNetwork, error) {
	s.mu.Lock()
	if s.isScanning {
		s.mu.Unlock()
		return nil, ErrScanInProgress
	}
	s.isScanning = true
	timeout := s.scanTimeout
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isScanning = false
		s.mu.Unlock()
	}()

	if !s.perms.Request(platform.PermissionLocation) {
		s.logger.Warn().Msg("Location permission denied, cannot scan")
		s.bus.Publish(events.PermissionDenied{Permission: platform.PermissionLocation})
		return nil, ErrPermissionDenied
	}

	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info().Msg("Starting wifi scan")

	networks, err := s.wifi.Scan(scanCtx)
	if err != nil {
		err = fmt.Errorf("platform scan failed: %w", err)
		s.logger.Error().Err(err).Msg("Scan failed")
		s.bus.Publish(events.ErrorEvent{Op: "scanNetworks", Message: err.Error()})
		return nil, err
	}

	// Give drivers that report cached results a moment to settle.
	if s.settleDelay > 0 {
		select {
		case <-time.After(s.settleDelay):
		case <-scanCtx.Done():
			err := fmt.Errorf("scan timed out: %w", scanCtx.Err())
			s.bus.Publish(events.ErrorEvent{Op: "scanNetworks", Message: err.Error()})
			return nil, err
		}
	}

	classified := classifyAndSort(networks)

	s.mu.Lock()
	s.available = classified
	s.mu.Unlock()

	s.logger.Info().Int("count", len(classified)).Msg("Scan completed")
	s.bus.Publish(events.NetworksScanned{Count: len(classified)})

	out := make([]models.WifiNetwork, len(classified))
	copy(out, classified)
	return out, nil
}

// classifyAndSort derives security from capability tokens and orders the
// results by descending signal strength.
func classifyAndSort(networks []models.WifiNetwork) []models.WifiNetwork {
	out := make([]models.WifiNetwork, len(networks))
	copy(out, networks)

	for i := range out {
		out[i].IsSecure = models.ClassifySecurity(out[i].Capabilities)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SignalStrength > out[j].SignalStrength
	})
	return out
}
