// Package platform isolates the OS-level capabilities LanLink depends on
// behind narrow interfaces: Wi-Fi scan/join primitives, access-point control,
// connectivity-change notifications, permission requests, and time. The
// coordination logic consumes only these interfaces so tests can substitute
// deterministic fakes.
package platform

import (
	"context"
	"errors"
	"net"
	"time"

	"lanlink/internal/models"
)

// Permissions the core requests at initialization.
const (
	PermissionLocation = "location"
	PermissionStorage  = "storage"
	PermissionNetwork  = "network"
)

// ErrNotSupported is returned by platform implementations for operations the
// host OS cannot perform.
var ErrNotSupported = errors.New("operation not supported on this platform")

// Link describes the currently associated Wi-Fi access point.
type Link struct {
	SSID           string
	BSSID          string
	SignalStrength int // dBm
}

// WifiPlatform provides the OS Wi-Fi primitives.
type WifiPlatform interface {
	// Scan triggers a fresh access-point scan and returns the results.
	Scan(ctx context.Context) ([]models.WifiNetwork, error)
	// Join associates with the given network. Password is empty for open
	// networks.
	Join(ctx context.Context, ssid, password string) error
	// Leave disassociates from the current network.
	Leave(ctx context.Context) error
	// CurrentLink returns the active association, or an error if there is
	// none.
	CurrentLink(ctx context.Context) (Link, error)
}

// HotspotPlatform controls the device-hosted access point.
type HotspotPlatform interface {
	StartAccessPoint(ctx context.Context, ssid, password, security string, maxClients int) error
	StopAccessPoint(ctx context.Context) error
}

// ConnectivitySource delivers OS connectivity-change notifications. The
// channel carries no payload; consumers re-resolve current state on each
// notification, in delivery order.
type ConnectivitySource interface {
	Notifications() <-chan struct{}
	Close() error
}

// PermissionGranter requests runtime permissions from the host platform.
type PermissionGranter interface {
	Request(permission string) bool
}

// Clock abstracts time so periodic work can be driven deterministically in
// tests.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the injectable counterpart of time.Ticker.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// SystemClock is the production Clock backed by package time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (st systemTicker) Chan() <-chan time.Time { return st.t.C }
func (st systemTicker) Stop()                  { st.t.Stop() }

// GrantAll is a PermissionGranter for platforms without a runtime permission
// model (desktop daemons).
type GrantAll struct{}

func (GrantAll) Request(string) bool { return true }

// LocalIPv4 returns a best-effort local address: the first non-loopback,
// non-link-local IPv4 assigned to an up interface.
func LocalIPv4() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			return ip.String(), nil
		}
	}

	return "", errors.New("no suitable local IPv4 address found")
}
