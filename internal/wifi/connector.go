package wifi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
	"lanlink/internal/store"
)

// ErrPasswordRequired is returned when joining a secure network without a
// password.
var ErrPasswordRequired = errors.New("password required for secure network")

// Connector joins Wi-Fi networks and maintains the saved-network registry.
type Connector struct {
	wifi    platform.WifiPlatform
	store   *store.Store
	monitor *Monitor
	bus     *events.Bus
	logger  zerolog.Logger
}

// NewConnector creates a Wi-Fi connector.
func NewConnector(wifi platform.WifiPlatform, st *store.Store, monitor *Monitor, bus *events.Bus) *Connector {
	return &Connector{
		wifi:    wifi,
		store:   st,
		monitor: monitor,
		bus:     bus,
		logger:  log.With().Str("component", "wifi-connector").Logger(),
	}
}

// Connect joins the given network. Secure networks require a non-empty
// password; the validation failure mutates no state and emits no events.
// On success the saved-network registry is upserted (connection count
// incremented for a known BSSID, inserted otherwise) and Connected is
// published. On failure the prior connection state is left untouched.
func (c *Connector) Connect(ctx context.Context, network models.WifiNetwork, password string) error {
	if network.IsSecure && password == "" {
		return ErrPasswordRequired
	}

	c.bus.Publish(events.Connecting{SSID: network.SSID})
	c.logger.Info().Str("ssid", network.SSID).Str("bssid", network.BSSID).Msg("Connecting to network")

	if err := c.wifi.Join(ctx, network.SSID, password); err != nil {
		err = fmt.Errorf("join %q failed: %w", network.SSID, err)
		c.logger.Error().Err(err).Msg("Connection failed")
		c.bus.Publish(events.ErrorEvent{Op: "connectToNetwork", Message: err.Error()})
		return err
	}

	c.monitor.Refresh(ctx)

	count, err := c.store.Upsert(models.SavedNetwork{
		SSID:          network.SSID,
		BSSID:         network.BSSID,
		Password:      password,
		IsSecure:      network.IsSecure,
		LastConnected: time.Now(),
	})
	if err != nil {
		// The join succeeded; a persistence failure is reported but does
		// not fail the connect.
		c.logger.Error().Err(err).Msg("Failed to persist saved network")
		c.bus.Publish(events.ErrorEvent{Op: "saveNetwork", Message: err.Error()})
	} else {
		c.bus.Publish(events.NetworksSaved{Count: count})
	}

	c.logger.Info().Str("ssid", network.SSID).Msg("Connected")
	c.bus.Publish(events.Connected{SSID: network.SSID})
	return nil
}

// Disconnect tears down the current association. It is a no-op when not
// connected to Wi-Fi.
func (c *Connector) Disconnect(ctx context.Context) error {
	snapshot := c.monitor.Snapshot()
	if snapshot.Connectivity != string(events.ConnectivityWifi) {
		return nil
	}

	c.bus.Publish(events.Disconnecting{SSID: snapshot.SSID})
	c.logger.Info().Str("ssid", snapshot.SSID).Msg("Disconnecting")

	if err := c.wifi.Leave(ctx); err != nil {
		err = fmt.Errorf("leave failed: %w", err)
		c.logger.Error().Err(err).Msg("Disconnect failed")
		c.bus.Publish(events.ErrorEvent{Op: "disconnect", Message: err.Error()})
		return err
	}

	c.monitor.Refresh(ctx)
	c.bus.Publish(events.Disconnected{})
	return nil
}

// SavedNetworks returns the persisted network registry, most recent first.
func (c *Connector) SavedNetworks() ([]models.SavedNetwork, error) {
	return c.store.All()
}
