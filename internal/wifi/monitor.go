// Package wifi implements Wi-Fi state management: connectivity monitoring,
// access-point scanning, and join/leave control with a persisted
// saved-network registry.
package wifi

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/events"
	"lanlink/internal/models"
	"lanlink/internal/platform"
)

const resolveTimeout = 5 * time.Second

// Monitor tracks the current connectivity kind, Wi-Fi identity, signal
// strength, and local IP. It reacts to OS connectivity-change notifications
// in delivery order and exposes a synchronous snapshot that never blocks.
type Monitor struct {
	wifi   platform.WifiPlatform
	source platform.ConnectivitySource
	bus    *events.Bus
	logger zerolog.Logger

	mu      sync.RWMutex
	current models.ConnectionInfo

	started  bool
	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a connectivity monitor. Call Start to begin consuming
// change notifications.
func NewMonitor(wifi platform.WifiPlatform, source platform.ConnectivitySource, bus *events.Bus) *Monitor {
	return &Monitor{
		wifi:   wifi,
		source: source,
		bus:    bus,
		logger: log.With().Str("component", "connectivity").Logger(),
		done:   make(chan struct{}),
	}
}

// Start resolves the initial state and begins processing notifications.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()

	m.Refresh(context.Background())

	go func() {
		defer close(m.done)
		for range m.source.Notifications() {
			m.Refresh(context.Background())
		}
	}()
}

// Stop closes the notification source and waits for the monitor goroutine.
// Stopping a monitor that never started is a no-op beyond closing the source.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if err := m.source.Close(); err != nil {
			m.logger.Error().Err(err).Msg("Failed to close connectivity source")
		}
		m.mu.RLock()
		started := m.started
		m.mu.RUnlock()
		if started {
			<-m.done
		}
	})
}

// Snapshot returns a copy of the current connectivity state.
func (m *Monitor) Snapshot() models.ConnectionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Refresh re-resolves the connectivity state and publishes
// ConnectivityChanged when the kind changes.
func (m *Monitor) Refresh(ctx context.Context) {
	resolveCtx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	next := m.resolve(resolveCtx)

	m.mu.Lock()
	changed := next != m.current
	m.current = next
	m.mu.Unlock()

	if changed {
		m.logger.Info().
			Str("connectivity", next.Connectivity).
			Str("ssid", next.SSID).
			Str("localIp", next.LocalIP).
			Msg("Connectivity changed")
		m.bus.Publish(events.ConnectivityChanged{
			Connectivity: events.ConnectivityKind(next.Connectivity),
		})
	}
}

func (m *Monitor) resolve(ctx context.Context) models.ConnectionInfo {
	info := models.ConnectionInfo{Connectivity: string(events.ConnectivityNone)}

	if ip, err := platform.LocalIPv4(); err == nil {
		info.LocalIP = ip
	}

	link, err := m.wifi.CurrentLink(ctx)
	if err == nil && link.SSID != "" {
		info.Connectivity = string(events.ConnectivityWifi)
		info.SSID = link.SSID
		info.BSSID = link.BSSID
		info.SignalStrength = link.SignalStrength
		info.IsConnected = true
		return info
	}

	// A usable address without a Wi-Fi association is treated as wired.
	if info.LocalIP != "" {
		info.Connectivity = string(events.ConnectivityEthernet)
		info.IsConnected = true
	}
	return info
}
