package wifi

import (
	"testing"

	"lanlink/internal/events"
	"lanlink/internal/platform"
)

func TestMonitorReactsToNotifications(t *testing.T) {
	fw := &fakeWifi{}
	fw.setLink(platform.Link{SSID: "HomeWifi", BSSID: "AA:BB:CC:DD:EE:01", SignalStrength: -48}, nil)

	source := newFakeSource()
	bus := events.NewBus()
	defer bus.Close()
	ch, cancel := bus.Subscribe()
	defer cancel()

	m := NewMonitor(fw, source, bus)
	m.Start()
	defer m.Stop()

	// Initial resolve sees the wifi association.
	e := waitForEvent(t, ch, events.KindConnectivityChanged)
	if e.(events.ConnectivityChanged).Connectivity != events.ConnectivityWifi {
		t.Fatalf("expected wifi connectivity, got %v", e)
	}

	snap := m.Snapshot()
	if snap.SSID != "HomeWifi" || !snap.IsConnected {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// Drop the association and notify: the kind must change away from wifi.
	fw.setLink(platform.Link{}, nil)
	source.notify()

	e = waitForEvent(t, ch, events.KindConnectivityChanged)
	if e.(events.ConnectivityChanged).Connectivity == events.ConnectivityWifi {
		t.Error("expected connectivity to leave wifi after link loss")
	}
	if m.Snapshot().SSID != "" {
		t.Errorf("expected cleared ssid, got %q", m.Snapshot().SSID)
	}
}

func TestMonitorSnapshotIsNonBlockingCopy(t *testing.T) {
	fw := &fakeWifi{}
	bus := events.NewBus()
	defer bus.Close()

	m := NewMonitor(fw, newFakeSource(), bus)
	m.Start()
	defer m.Stop()

	snap := m.Snapshot()
	snap.SSID = "mutated"
	if m.Snapshot().SSID == "mutated" {
		t.Error("snapshot must be a copy, not a live reference")
	}
}
