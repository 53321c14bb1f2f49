// Package coordinator wires the LanLink components together and exposes the
// command surface the control API and embedding application consume. All
// components are injected at construction so tests substitute fakes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/config"
	"lanlink/internal/discovery"
	"lanlink/internal/events"
	"lanlink/internal/hotspot"
	"lanlink/internal/models"
	"lanlink/internal/platform"
	"lanlink/internal/scheduler"
	"lanlink/internal/sharing"
	"lanlink/internal/store"
	"lanlink/internal/transfer"
	"lanlink/internal/wifi"
)

const (
	// MetricsInterval drives the periodic performance snapshot.
	MetricsInterval = 5 * time.Second
	// ShareSweepInterval drives removal of expired share entries.
	ShareSweepInterval = 30 * time.Second
)

// ErrNotInitialized is returned by commands issued before Initialize
// succeeds.
var ErrNotInitialized = errors.New("coordinator is not initialized")

// Deps carries everything the coordinator needs. Platform implementations
// default to the real ones when nil.
type Deps struct {
	Config     *config.Config
	ConfigPath string
	Bus        *events.Bus
	Store      *store.Store
	Identity   discovery.Identity

	Wifi         platform.WifiPlatform
	Hotspot      platform.HotspotPlatform
	Connectivity platform.ConnectivitySource
	Permissions  platform.PermissionGranter
	Clock        platform.Clock
}

// Coordinator owns the component instances. Individual components guard
// their own state for command traffic; mu protects the coordinator's own
// fields, and lifecycle serializes the multi-step sequences (config
// replacement, sharing start/stop, shutdown) that span several of them.
// lifecycle is always acquired before mu.
type Coordinator struct {
	bus    *events.Bus
	store  *store.Store
	perms  platform.PermissionGranter
	logger zerolog.Logger

	scanner   *wifi.Scanner
	connector *wifi.Connector
	monitor   *wifi.Monitor
	discovery *discovery.Service
	transfers *transfer.Manager
	hotspot   *hotspot.Controller
	sched     *scheduler.Scheduler

	lifecycle sync.Mutex

	mu          sync.Mutex
	cfg         *config.Config
	sharing     *sharing.Server
	configPath  string
	initialized bool
	// shareDir is the directory passed to the last StartSharing call, kept
	// so a config replacement can rebuild the server with the same scope.
	shareDir string
}

// New builds a coordinator and its component graph from the injected
// dependencies.
func New(d Deps) *Coordinator {
	if d.Clock == nil {
		d.Clock = platform.SystemClock{}
	}
	if d.Permissions == nil {
		d.Permissions = platform.GrantAll{}
	}

	c := &Coordinator{
		bus:        d.Bus,
		store:      d.Store,
		perms:      d.Permissions,
		logger:     log.With().Str("component", "coordinator").Logger(),
		cfg:        d.Config,
		configPath: d.ConfigPath,
	}

	nc := d.Config.Network
	c.monitor = wifi.NewMonitor(d.Wifi, d.Connectivity, d.Bus)
	c.scanner = wifi.NewScanner(d.Wifi, d.Permissions, d.Bus, nc.ScanTimeout.Std(), wifi.DefaultSettleDelay)
	c.connector = wifi.NewConnector(d.Wifi, d.Store, c.monitor, d.Bus)
	c.discovery = discovery.New(d.Identity, d.Bus)
	c.sharing = sharing.NewServer(nc, d.Bus)
	c.transfers = transfer.NewManager(nc.MaxConcurrentTransfers, d.Bus)
	c.hotspot = hotspot.NewController(d.Hotspot, d.Config.Hotspot, d.Bus)
	c.sched = scheduler.New(d.Clock)

	return c
}

// Initialize validates configuration, requests the permission set, starts
// connectivity monitoring and the periodic jobs, and loads the saved-network
// registry. It is idempotent; a second call returns immediately. Partial
// permission denial degrades rather than fails, with each denial reported
// individually.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	cfg := c.cfg
	c.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		c.bus.Publish(events.ErrorEvent{Op: "config", Message: err.Error()})
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for _, perm := range []string{platform.PermissionLocation, platform.PermissionStorage, platform.PermissionNetwork} {
		if !c.perms.Request(perm) {
			c.logger.Warn().Str("permission", perm).Msg("Permission denied, continuing degraded")
			c.bus.Publish(events.PermissionDenied{Permission: perm})
		}
	}

	c.monitor.Start()
	c.monitor.Refresh(ctx)

	c.sched.Every("discovery-prune", discovery.PruneInterval, func(now time.Time) {
		c.discovery.Prune(now)
	})
	c.sched.Every("metrics", MetricsInterval, c.publishMetrics)
	c.sched.Every("share-sweep", ShareSweepInterval, func(now time.Time) {
		c.currentSharing().SweepExpired(now)
	})

	saved, err := c.store.All()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to load saved networks")
		c.bus.Publish(events.ErrorEvent{Op: "store", Message: err.Error()})
	} else {
		c.logger.Info().Int("count", len(saved)).Msg("Loaded saved networks")
	}

	if cfg.Network.EnableAutoDiscovery {
		if err := c.discovery.Start(); err != nil {
			c.logger.Error().Err(err).Msg("Auto-discovery failed to start")
			c.bus.Publish(events.ErrorEvent{Op: "discovery", Message: err.Error()})
		}
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.logger.Info().Msg("Coordinator initialized")
	c.bus.Publish(events.Initialized{})
	return nil
}

// Initialized reports whether Initialize has completed.
func (c *Coordinator) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *Coordinator) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// Config returns a copy of the current configuration.
func (c *Coordinator) Config() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.cfg
}

// UpdateConfig replaces the configuration wholesale, persists it, and
// rebuilds the dependent components. The whole stop-swap-restart sequence
// runs under the lifecycle lock so a concurrent update or sharing command
// can never revive the old server instance, and the sharing server is
// stopped fully before it is restarted with the new settings so no client
// observes a half-configured window.
func (c *Coordinator) UpdateConfig(ctx context.Context, next *config.Config) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		c.bus.Publish(events.ErrorEvent{Op: "config", Message: err.Error()})
		return fmt.Errorf("invalid configuration: %w", err)
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	path := c.configPath
	shareDir := c.shareDir
	srv := c.sharing
	c.mu.Unlock()

	if path != "" {
		if err := next.Save(path); err != nil {
			c.bus.Publish(events.ErrorEvent{Op: "config", Message: err.Error()})
			return fmt.Errorf("failed to persist configuration: %w", err)
		}
	}

	sharingWasRunning := srv.Running()
	srv.Stop()

	c.mu.Lock()
	c.cfg = next
	c.sharing = sharing.NewServer(next.Network, c.bus)
	c.mu.Unlock()

	c.scanner.SetTimeout(next.Network.ScanTimeout.Std())
	c.transfers.SetLimit(next.Network.MaxConcurrentTransfers)
	c.hotspot.SetConfig(next.Hotspot)
	if err := c.store.SetMaxSavedNetworks(next.Network.MaxSavedNetworks); err != nil {
		c.logger.Error().Err(err).Msg("Failed to apply saved-network limit")
	}

	if sharingWasRunning {
		if err := c.startSharing(shareDir, 0, ""); err != nil {
			c.logger.Error().Err(err).Msg("Failed to restart sharing server after config update")
			c.bus.Publish(events.ErrorEvent{Op: "sharing", Message: err.Error()})
		}
	}

	c.logger.Info().Msg("Configuration replaced")
	c.bus.Publish(events.ConfigUpdated{})
	return nil
}

// ScanNetworks performs a one-shot Wi-Fi scan.
func (c *Coordinator) ScanNetworks(ctx context.Context) ([]models.WifiNetwork, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	return c.scanner.Scan(ctx)
}

// AvailableNetworks returns the results of the most recent scan.
func (c *Coordinator) AvailableNetworks() []models.WifiNetwork {
	return c.scanner.Networks()
}

// ConnectToNetwork joins the given network and persists it.
func (c *Coordinator) ConnectToNetwork(ctx context.Context, network models.WifiNetwork, password string) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.connector.Connect(ctx, network, password)
}

// Disconnect leaves the current Wi-Fi network.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.connector.Disconnect(ctx)
}

// SavedNetworks returns the persisted network registry, most recent first.
func (c *Coordinator) SavedNetworks() ([]models.SavedNetwork, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	return c.connector.SavedNetworks()
}

// ConnectionInfo returns the current connectivity snapshot.
func (c *Coordinator) ConnectionInfo() models.ConnectionInfo {
	return c.monitor.Snapshot()
}

// StartDiscovery begins LAN peer discovery.
func (c *Coordinator) StartDiscovery() error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.discovery.Start()
}

// StopDiscovery halts LAN peer discovery.
func (c *Coordinator) StopDiscovery() error {
	if err := c.guard(); err != nil {
		return err
	}
	c.discovery.Stop()
	return nil
}

// DiscoveredDevices returns copies of the current device registry.
func (c *Coordinator) DiscoveredDevices() []models.DiscoveredDevice {
	return c.discovery.Devices()
}

// StartSharing brings the file server up. An empty dir shares nothing until
// ShareFile is called; port 0 uses the configured default.
func (c *Coordinator) StartSharing(dir string, port int, password string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	return c.startSharing(dir, port, password)
}

// startSharing is the lifecycle-locked body of StartSharing; UpdateConfig
// reuses it while already holding the lock.
func (c *Coordinator) startSharing(dir string, port int, password string) error {
	c.mu.Lock()
	cfg := c.cfg
	srv := c.sharing
	c.shareDir = dir
	c.mu.Unlock()

	opts := sharing.Options{
		EnableQRCode:   cfg.Network.EnableQRCode,
		EnablePassword: cfg.Network.EnablePasswordProtection || password != "",
		Password:       password,
	}
	return srv.Start(dir, port, opts)
}

// StopSharing tears the file server down and drops its registry.
func (c *Coordinator) StopSharing() error {
	if err := c.guard(); err != nil {
		return err
	}
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.currentSharing().Stop()
	return nil
}

// ShareFile registers a single file with the running server.
func (c *Coordinator) ShareFile(path string, opts sharing.ShareOptions) (models.SharedFile, error) {
	if err := c.guard(); err != nil {
		return models.SharedFile{}, err
	}
	return c.currentSharing().ShareFile(path, opts)
}

// GenerateQRCode returns the QR-encoded URL for an existing share.
func (c *Coordinator) GenerateQRCode(id string) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.currentSharing().GenerateQRCode(id)
}

// Shares lists the registered shared files.
func (c *Coordinator) Shares() []models.SharedFile {
	return c.currentSharing().Shares()
}

// StartTransfer admits a new transfer session.
func (c *Coordinator) StartTransfer(direction models.TransferDirection, fileName string, src io.Reader, dst io.Writer, totalBytes int64) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.transfers.Start(direction, fileName, src, dst, totalBytes)
}

// CancelTransfer cancels an in-flight transfer session.
func (c *Coordinator) CancelTransfer(id string) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.transfers.Cancel(id)
}

// Transfers lists all tracked transfer sessions.
func (c *Coordinator) Transfers() []models.TransferSession {
	return c.transfers.Sessions()
}

// EnableHotspot merges the overrides into the hotspot config and starts the
// access point.
func (c *Coordinator) EnableHotspot(ctx context.Context, ssid, password string, security config.HotspotSecurity) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.hotspot.Enable(ctx, ssid, password, security)
}

// DisableHotspot tears the access point down.
func (c *Coordinator) DisableHotspot(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.hotspot.Disable(ctx)
}

// GetNetworkStatistics aggregates every component's current state into one
// serializable snapshot.
func (c *Coordinator) GetNetworkStatistics() (models.NetworkStatistics, error) {
	if err := c.guard(); err != nil {
		return models.NetworkStatistics{}, err
	}

	savedCount, err := c.store.Count()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to count saved networks")
	}

	sharing := c.currentSharing()

	return models.NetworkStatistics{
		GeneratedAt:       time.Now(),
		Connection:        c.monitor.Snapshot(),
		AvailableNetworks: c.scanner.Networks(),
		SavedNetworks:     savedCount,
		DiscoveredDevices: c.discovery.Devices(),
		DiscoveryRunning:  c.discovery.Running(),
		SharedFiles:       sharing.Shares(),
		SharingRunning:    sharing.Running(),
		Transfers:         c.transfers.Sessions(),
		ActiveTransfers:   c.transfers.ActiveCount(),
		HotspotEnabled:    c.hotspot.Enabled(),
		HotspotSSID:       c.hotspot.SSID(),
	}, nil
}

// Shutdown stops every long-running component. The coordinator cannot be
// reused afterwards.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.sched.Stop()
	c.discovery.Stop()
	c.currentSharing().Stop()
	if c.hotspot.Enabled() {
		if err := c.hotspot.Disable(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to disable hotspot during shutdown")
		}
	}
	c.monitor.Stop()
	c.transfers.Wait()

	c.mu.Lock()
	c.initialized = false
	c.mu.Unlock()

	c.logger.Info().Msg("Coordinator shut down")
}

// currentSharing returns the live sharing server; UpdateConfig may have
// replaced the instance built at construction.
func (c *Coordinator) currentSharing() *sharing.Server {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharing
}

// publishMetrics builds the periodic performance snapshot from real
// component counts.
func (c *Coordinator) publishMetrics(now time.Time) {
	savedCount, err := c.store.Count()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Metrics tick skipped saved-network count")
	}

	c.bus.Publish(events.MetricsUpdated{
		Timestamp:         now,
		DiscoveredDevices: c.discovery.Count(),
		ActiveTransfers:   c.transfers.ActiveCount(),
		SharedFiles:       c.currentSharing().Count(),
		SavedNetworks:     savedCount,
	})
}
