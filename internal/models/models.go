// Package models defines the data structures shared across LanLink.
// It contains the data models for Wi-Fi networks, discovered LAN devices,
// transfer sessions, shared files, and aggregated statistics used by the
// coordinator and the control API.
package models

import (
	"strings"
	"time"
)

// WifiNetwork is an ephemeral scan result for a nearby access point.
type WifiNetwork struct {
	SSID           string `json:"ssid"`
	BSSID          string `json:"bssid"`
	SignalStrength int    `json:"signalStrength"` // dBm, higher is stronger
	Frequency      int    `json:"frequency"`      // MHz
	Capabilities   string `json:"capabilities"`
	IsSecure       bool   `json:"isSecure"`
}

// ClassifySecurity derives IsSecure from the capability tokens reported by
// the platform scan (e.g. "[WPA2-PSK-CCMP][ESS]").
func ClassifySecurity(capabilities string) bool {
	caps := strings.ToUpper(capabilities)
	for _, token := range []string{"WPA3", "WPA2", "WPA", "WEP", "SAE", "EAP", "PSK"} {
		if strings.Contains(caps, token) {
			return true
		}
	}
	return false
}

// SavedNetwork is a persisted Wi-Fi network entry, unique per BSSID.
type SavedNetwork struct {
	SSID            string    `json:"ssid"`
	BSSID           string    `json:"bssid"`
	Password        string    `json:"-"`
	IsSecure        bool      `json:"isSecure"`
	LastConnected   time.Time `json:"lastConnected"`
	ConnectionCount int       `json:"connectionCount"`
}

// DeviceType classifies a discovered LAN device.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
	DeviceTablet  DeviceType = "tablet"
	DeviceServer  DeviceType = "server"
	DeviceUnknown DeviceType = "unknown"
)

// DiscoveredDevice is a device found on the local network. Entries are owned
// exclusively by the discovery service; external readers get copies.
type DiscoveredDevice struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	IPAddress string            `json:"ipAddress"`
	Type      DeviceType        `json:"type"`
	LastSeen  time.Time         `json:"lastSeen"`
	IsOnline  bool              `json:"isOnline"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TransferDirection distinguishes uploads from downloads.
type TransferDirection string

const (
	TransferUpload   TransferDirection = "upload"
	TransferDownload TransferDirection = "download"
)

// TransferState is the lifecycle state of a transfer session.
type TransferState string

const (
	TransferPending   TransferState = "pending"
	TransferActive    TransferState = "active"
	TransferCompleted TransferState = "completed"
	TransferFailed    TransferState = "failed"
	TransferCancelled TransferState = "cancelled"
)

// Terminal reports whether the state ends a session's lifecycle.
func (s TransferState) Terminal() bool {
	return s == TransferCompleted || s == TransferFailed || s == TransferCancelled
}

// TransferSession tracks one file upload or download.
type TransferSession struct {
	ID               string            `json:"id"`
	Direction        TransferDirection `json:"direction"`
	FileName         string            `json:"fileName"`
	TotalBytes       int64             `json:"totalBytes"`
	TransferredBytes int64             `json:"transferredBytes"`
	State            TransferState     `json:"state"`
	BytesPerSecond   float64           `json:"bytesPerSecond"`
	StartedAt        time.Time         `json:"startedAt"`
}

// SharedFile is the externally visible view of a shared file entry. The
// password hash never leaves the sharing server.
type SharedFile struct {
	ID          string     `json:"id"`
	Path        string     `json:"path"`
	DisplayName string     `json:"displayName"`
	Size        int64      `json:"size"`
	URL         string     `json:"url"`
	Protected   bool       `json:"protected"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	HasQRCode   bool       `json:"hasQrCode"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ConnectionInfo is a snapshot of the current connectivity state.
type ConnectionInfo struct {
	Connectivity   string `json:"connectivity"`
	SSID           string `json:"ssid,omitempty"`
	BSSID          string `json:"bssid,omitempty"`
	SignalStrength int    `json:"signalStrength,omitempty"`
	LocalIP        string `json:"localIp,omitempty"`
	IsConnected    bool   `json:"isConnected"`
}

// NetworkStatistics aggregates every component's current state for
// diagnostics and export.
type NetworkStatistics struct {
	GeneratedAt       time.Time          `json:"generatedAt"`
	Connection        ConnectionInfo     `json:"connection"`
	AvailableNetworks []WifiNetwork      `json:"availableNetworks"`
	SavedNetworks     int                `json:"savedNetworks"`
	DiscoveredDevices []DiscoveredDevice `json:"discoveredDevices"`
	DiscoveryRunning  bool               `json:"discoveryRunning"`
	SharedFiles       []SharedFile       `json:"sharedFiles"`
	SharingRunning    bool               `json:"sharingRunning"`
	Transfers         []TransferSession  `json:"transfers"`
	ActiveTransfers   int                `json:"activeTransfers"`
	HotspotEnabled    bool               `json:"hotspotEnabled"`
	HotspotSSID       string             `json:"hotspotSsid,omitempty"`
}
