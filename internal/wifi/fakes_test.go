package wifi

import (
	"context"
	"sync"

	"lanlink/internal/models"
	"lanlink/internal/platform"
)

// fakeWifi is a scripted platform.WifiPlatform.
type fakeWifi struct {
	mu          sync.Mutex
	scanResults []models.WifiNetwork
	scanErr     error
	scanGate    chan struct{} // when set, Scan blocks until closed
	joinErr     error
	leaveErr    error
	link        platform.Link
	linkErr     error
	joined      []string
}

func (f *fakeWifi) Scan(ctx context.Context) ([]models.WifiNetwork, error) {
	f.mu.Lock()
	gate := f.scanGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	out := make([]models.WifiNetwork, len(f.scanResults))
	copy(out, f.scanResults)
	return out, nil
}

func (f *fakeWifi) Join(ctx context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	f.joined = append(f.joined, ssid)
	f.link = platform.Link{SSID: ssid, BSSID: "AA:BB:CC:DD:EE:FF", SignalStrength: -50}
	f.linkErr = nil
	return nil
}

func (f *fakeWifi) Leave(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.leaveErr != nil {
		return f.leaveErr
	}
	f.link = platform.Link{}
	return nil
}

func (f *fakeWifi) CurrentLink(ctx context.Context) (platform.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return platform.Link{}, f.linkErr
	}
	return f.link, nil
}

func (f *fakeWifi) setLink(link platform.Link, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.link = link
	f.linkErr = err
}

// fakeSource is a manually driven connectivity source.
type fakeSource struct {
	ch        chan struct{}
	closeOnce sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan struct{}, 8)}
}

func (f *fakeSource) Notifications() <-chan struct{} { return f.ch }

func (f *fakeSource) Close() error {
	f.closeOnce.Do(func() { close(f.ch) })
	return nil
}

func (f *fakeSource) notify() { f.ch <- struct{}{} }

// denyPerms denies the listed permissions and grants everything else.
type denyPerms struct {
	denied map[string]bool
}

func (d denyPerms) Request(permission string) bool {
	return !d.denied[permission]
}
