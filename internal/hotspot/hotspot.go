// Package hotspot controls the device-hosted access point. Hotspot mode and
// Wi-Fi client mode are not treated as mutually exclusive here; platforms
// that cannot run both surface the conflict through the platform error.
package hotspot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/config"
	"lanlink/internal/events"
	"lanlink/internal/platform"
)

// DefaultOperationTimeout bounds the platform start/stop calls.
const DefaultOperationTimeout = 15 * time.Second

var (
	// ErrAlreadyEnabled is returned when the access point is already up.
	ErrAlreadyEnabled = errors.New("hotspot is already enabled")
	// ErrInvalidSettings wraps credential and config validation failures.
	ErrInvalidSettings = errors.New("invalid hotspot settings")
)

// Controller brings the access point up and down through the platform
// primitive and tracks the enabled flag.
type Controller struct {
	platform platform.HotspotPlatform
	bus      *events.Bus
	logger   zerolog.Logger
	timeout  time.Duration

	mu        sync.Mutex
	cfg       config.HotspotConfig
	enabled   bool
	idleTimer *time.Timer
}

// NewController creates a hotspot controller with the given base config.
func NewController(p platform.HotspotPlatform, cfg config.HotspotConfig, bus *events.Bus) *Controller {
	return &Controller{
		platform: p,
		bus:      bus,
		logger:   log.With().Str("component", "hotspot").Logger(),
		timeout:  DefaultOperationTimeout,
		cfg:      cfg,
	}
}

// Enabled reports whether the access point is up.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// SSID returns the active access point's SSID, or "" when disabled.
func (c *Controller) SSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		return ""
	}
	return c.cfg.SSID
}

// SetConfig replaces the base hotspot configuration. An active access point
// keeps its current settings until re-enabled.
func (c *Controller) SetConfig(cfg config.HotspotConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled {
		c.cfg = cfg
	}
}

// Enable merges the overrides into the configured hotspot settings,
// validates the credentials, and starts the access point. Empty overrides
// keep the configured values.
func (c *Controller) Enable(ctx context.Context, ssid, password string, security config.HotspotSecurity) error {
	c.mu.Lock()
	if c.enabled {
		c.mu.Unlock()
		return ErrAlreadyEnabled
	}
	merged := c.cfg.Merge(ssid, password, security)
	c.mu.Unlock()

	if err := merged.ValidateCredentials(); err != nil {
		c.bus.Publish(events.ErrorEvent{Op: "hotspot", Message: err.Error()})
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.platform.StartAccessPoint(opCtx, merged.SSID, merged.Password, string(merged.Security), merged.MaxClients); err != nil {
		c.logger.Error().Err(err).Str("ssid", merged.SSID).Msg("Failed to start access point")
		c.bus.Publish(events.ErrorEvent{Op: "hotspot", Message: err.Error()})
		return fmt.Errorf("failed to start access point: %w", err)
	}

	c.mu.Lock()
	c.cfg = merged
	c.enabled = true
	if merged.Timeout > 0 {
		c.idleTimer = time.AfterFunc(merged.Timeout.Std(), func() {
			c.logger.Info().Msg("Hotspot timeout reached, disabling")
			if err := c.Disable(context.Background()); err != nil {
				c.logger.Error().Err(err).Msg("Failed to disable hotspot on timeout")
			}
		})
	}
	c.mu.Unlock()

	c.logger.Info().Str("ssid", merged.SSID).Str("security", string(merged.Security)).Msg("Hotspot enabled")
	c.bus.Publish(events.HotspotEnabled{SSID: merged.SSID})
	return nil
}

// Disable tears the access point down. It is a no-op when already disabled.
func (c *Controller) Disable(ctx context.Context) error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.platform.StopAccessPoint(opCtx); err != nil {
		c.logger.Error().Err(err).Msg("Failed to stop access point")
		c.bus.Publish(events.ErrorEvent{Op: "hotspot", Message: err.Error()})
		return fmt.Errorf("failed to stop access point: %w", err)
	}

	c.mu.Lock()
	c.enabled = false
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
	c.mu.Unlock()

	c.logger.Info().Msg("Hotspot disabled")
	c.bus.Publish(events.HotspotDisabled{})
	return nil
}
