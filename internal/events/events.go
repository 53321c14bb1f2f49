// Package events defines the LanLink event bus and its event types.
// Every component publishes state changes as typed events on a single
// broadcast bus; subscribers (UI layers, the control API, tests) observe
// changes without polling. The bus keeps no history: a subscriber that
// attaches after an event fires never observes it.
package events

import "time"

// Kind identifies an event variant.
type Kind string

const (
	KindInitialized         Kind = "initialized"
	KindConfigUpdated       Kind = "config_updated"
	KindConnectivityChanged Kind = "connectivity_changed"
	KindNetworksScanned     Kind = "networks_scanned"
	KindConnecting          Kind = "connecting"
	KindConnected           Kind = "connected"
	KindDisconnecting       Kind = "disconnecting"
	KindDisconnected        Kind = "disconnected"
	KindPermissionDenied    Kind = "permission_denied"
	KindDiscoveryStarted    Kind = "discovery_started"
	KindDiscoveryStopped    Kind = "discovery_stopped"
	KindDevicesDiscovered   Kind = "devices_discovered"
	KindSharingStarted      Kind = "sharing_server_started"
	KindSharingStopped      Kind = "sharing_server_stopped"
	KindFileShared          Kind = "file_shared"
	KindQRCodeGenerated     Kind = "qr_code_generated"
	KindHotspotEnabled      Kind = "hotspot_enabled"
	KindHotspotDisabled     Kind = "hotspot_disabled"
	KindNetworksSaved       Kind = "networks_saved"
	KindTransferProgress    Kind = "transfer_progress"
	KindMetricsUpdated      Kind = "metrics_updated"
	KindError               Kind = "error"
)

// Event is the closed set of things LanLink announces. Each variant is a
// concrete struct carrying exactly the payload it needs, so consumers
// switch on the static type instead of inspecting a generic data field.
type Event interface {
	Kind() Kind
}

// ConnectivityKind describes the current network attachment.
type ConnectivityKind string

const (
	ConnectivityNone     ConnectivityKind = "none"
	ConnectivityWifi     ConnectivityKind = "wifi"
	ConnectivityEthernet ConnectivityKind = "ethernet"
	ConnectivityCellular ConnectivityKind = "cellular"
)

// Initialized is published once the coordinator finishes startup.
type Initialized struct{}

// ConfigUpdated is published after a configuration replacement completes.
type ConfigUpdated struct{}

// ConnectivityChanged reports a change of the active network attachment.
type ConnectivityChanged struct {
	Connectivity ConnectivityKind
}

// NetworksScanned reports a completed Wi-Fi scan.
type NetworksScanned struct {
	Count int
}

// Connecting reports the start of a Wi-Fi join.
type Connecting struct {
	SSID string
}

// Connected reports a successful Wi-Fi join.
type Connected struct {
	SSID string
}

// Disconnecting reports the start of a Wi-Fi teardown.
type Disconnecting struct {
	SSID string
}

// Disconnected reports that the Wi-Fi link is gone.
type Disconnected struct{}

// PermissionDenied reports one denied platform permission.
type PermissionDenied struct {
	Permission string
}

// DiscoveryStarted reports that peer discovery is running.
type DiscoveryStarted struct{}

// DiscoveryStopped reports that peer discovery has stopped.
type DiscoveryStopped struct{}

// DevicesDiscovered reports a registry replacement from a discovery batch.
type DevicesDiscovered struct {
	Count int
}

// SharingServerStarted reports that the file server is listening.
type SharingServerStarted struct {
	Address string
}

// SharingServerStopped reports that the file server is down.
type SharingServerStopped struct{}

// FileShared reports a newly registered shared file.
type FileShared struct {
	Path string
}

// QRCodeGenerated reports a QR payload issued for a share.
type QRCodeGenerated struct {
	ShareID string
}

// HotspotEnabled reports that the device-hosted access point is up.
type HotspotEnabled struct {
	SSID string
}

// HotspotDisabled reports that the access point is down.
type HotspotDisabled struct{}

// NetworksSaved reports a persisted saved-network list update.
type NetworksSaved struct {
	Count int
}

// TransferProgress reports bytes moved on an active transfer session.
type TransferProgress struct {
	SessionID        string
	BytesTransferred int64
	TotalBytes       int64
	BytesPerSecond   float64
}

// MetricsUpdated carries the periodic performance snapshot.
type MetricsUpdated struct {
	Timestamp         time.Time
	DiscoveredDevices int
	ActiveTransfers   int
	SharedFiles       int
	SavedNetworks     int
}

// ErrorEvent reports an operation failure that was handled at its boundary.
type ErrorEvent struct {
	Op      string
	Message string
}

func (Initialized) Kind() Kind         { return KindInitialized }
func (ConfigUpdated) Kind() Kind       { return KindConfigUpdated }
func (ConnectivityChanged) Kind() Kind { return KindConnectivityChanged }
func (NetworksScanned) Kind() Kind     { return KindNetworksScanned }
func (Connecting) Kind() Kind          { return KindConnecting }
func (Connected) Kind() Kind           { return KindConnected }
func (Disconnecting) Kind() Kind       { return KindDisconnecting }
func (Disconnected) Kind() Kind        { return KindDisconnected }
func (PermissionDenied) Kind() Kind    { return KindPermissionDenied }
func (DiscoveryStarted) Kind() Kind    { return KindDiscoveryStarted }
func (DiscoveryStopped) Kind() Kind    { return KindDiscoveryStopped }
func (DevicesDiscovered) Kind() Kind   { return KindDevicesDiscovered }
func (SharingServerStarted) Kind() Kind { return KindSharingStarted }
func (SharingServerStopped) Kind() Kind { return KindSharingStopped }
func (FileShared) Kind() Kind          { return KindFileShared }
func (QRCodeGenerated) Kind() Kind     { return KindQRCodeGenerated }
func (HotspotEnabled) Kind() Kind      { return KindHotspotEnabled }
func (HotspotDisabled) Kind() Kind     { return KindHotspotDisabled }
func (NetworksSaved) Kind() Kind       { return KindNetworksSaved }
func (TransferProgress) Kind() Kind    { return KindTransferProgress }
func (MetricsUpdated) Kind() Kind      { return KindMetricsUpdated }
func (ErrorEvent) Kind() Kind          { return KindError }
