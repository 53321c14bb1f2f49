package hotspot

import (
	"context"
	"errors"
	"testing"
	"time"

	"lanlink/internal/config"
	"lanlink/internal/events"
)

// fakeHotspot records start/stop calls and can be scripted to fail.
type fakeHotspot struct {
	startErr error
	stopErr  error

	started    int
	stopped    int
	ssid       string
	password   string
	security   string
	maxClients int
}

func (f *fakeHotspot) StartAccessPoint(ctx context.Context, ssid, password, security string, maxClients int) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	f.ssid = ssid
	f.password = password
	f.security = security
	f.maxClients = maxClients
	return nil
}

func (f *fakeHotspot) StopAccessPoint(ctx context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped++
	return nil
}

func newTestController(t *testing.T, fake *fakeHotspot) (*Controller, <-chan events.Event) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	ch, cancel := bus.Subscribe()
	t.Cleanup(cancel)

	cfg := config.Default().Hotspot
	cfg.Password = "configured-pass"
	return NewController(fake, cfg, bus), ch
}

func collectKinds(ch <-chan events.Event) []events.Kind {
	var kinds []events.Kind
	for {
		select {
		case e := <-ch:
			kinds = append(kinds, e.Kind())
		case <-time.After(100 * time.Millisecond):
			return kinds
		}
	}
}

func TestEnableThenDisableEmitsOneEventEach(t *testing.T) {
	fake := &fakeHotspot{}
	c, ch := newTestController(t, fake)

	if err := c.Enable(context.Background(), "", "", ""); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if !c.Enabled() {
		t.Fatal("expected hotspot enabled")
	}
	if c.SSID() != "LanLink" {
		t.Errorf("unexpected ssid %q", c.SSID())
	}

	if err := c.Disable(context.Background()); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if c.Enabled() {
		t.Fatal("expected hotspot disabled")
	}
	if c.SSID() != "" {
		t.Errorf("expected empty ssid when disabled, got %q", c.SSID())
	}

	enabled, disabled := 0, 0
	for _, k := range collectKinds(ch) {
		switch k {
		case events.KindHotspotEnabled:
			enabled++
		case events.KindHotspotDisabled:
			disabled++
		}
	}
	if enabled != 1 || disabled != 1 {
		t.Errorf("expected exactly one enable and one disable event, got %d/%d", enabled, disabled)
	}
}

func TestEnableMergesOverrides(t *testing.T) {
	fake := &fakeHotspot{}
	c, _ := newTestController(t, fake)

	if err := c.Enable(context.Background(), "Override", "override-pass", config.SecurityWPA3); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if fake.ssid != "Override" || fake.password != "override-pass" || fake.security != "wpa3" {
		t.Errorf("overrides not applied: %+v", fake)
	}
	if c.SSID() != "Override" {
		t.Errorf("unexpected active ssid %q", c.SSID())
	}
}

func TestEnableRejectsWeakCredentials(t *testing.T) {
	fake := &fakeHotspot{}
	c, _ := newTestController(t, fake)

	err := c.Enable(context.Background(), "", "short", config.SecurityWPA2)
	if err == nil {
		t.Fatal("expected credential validation failure")
	}
	if fake.started != 0 {
		t.Error("platform must not be invoked on validation failure")
	}
	if c.Enabled() {
		t.Error("expected hotspot to stay disabled")
	}
}

func TestEnableWhileEnabledFails(t *testing.T) {
	fake := &fakeHotspot{}
	c, _ := newTestController(t, fake)

	if err := c.Enable(context.Background(), "", "", ""); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if err := c.Enable(context.Background(), "", "", ""); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
	if fake.started != 1 {
		t.Errorf("expected a single platform start, got %d", fake.started)
	}
}

func TestPlatformFailureLeavesStateUntouched(t *testing.T) {
	fake := &fakeHotspot{startErr: errors.New("radio busy")}
	c, ch := newTestController(t, fake)

	if err := c.Enable(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected platform failure to propagate")
	}
	if c.Enabled() {
		t.Error("expected hotspot to stay disabled after platform failure")
	}

	for _, k := range collectKinds(ch) {
		if k == events.KindHotspotEnabled {
			t.Error("unexpected HotspotEnabled event after failure")
		}
	}
}

func TestTimeoutDisablesHotspot(t *testing.T) {
	fake := &fakeHotspot{}
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	cfg := config.Default().Hotspot
	cfg.Password = "configured-pass"
	cfg.Timeout = config.Duration(20 * time.Millisecond)
	c := NewController(fake, cfg, bus)

	if err := c.Enable(context.Background(), "", "", ""); err != nil {
		t.Fatalf("enable failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for c.Enabled() {
		if time.Now().After(deadline) {
			t.Fatal("hotspot never disabled after timeout")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if fake.stopped != 1 {
		t.Errorf("expected one platform stop, got %d", fake.stopped)
	}
}

func TestDisableWhenDisabledIsNoop(t *testing.T) {
	fake := &fakeHotspot{}
	c, ch := newTestController(t, fake)

	if err := c.Disable(context.Background()); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if fake.stopped != 0 {
		t.Error("platform must not be invoked when already disabled")
	}
	if kinds := collectKinds(ch); len(kinds) != 0 {
		t.Errorf("unexpected events %v", kinds)
	}
}
