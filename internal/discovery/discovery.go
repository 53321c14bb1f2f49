// Package discovery locates other LanLink devices on the local network via
// mDNS. Each browse window produces a batch snapshot that fully replaces the
// device registry; absence is detected by staleness eviction since mDNS has
// no reliable "device left" signal.
package discovery

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/events"
	"lanlink/internal/models"
)

const (
	// ServiceName is the mDNS service LanLink devices advertise.
	ServiceName = "_lanlink._tcp"
	// Domain is the mDNS domain.
	Domain = "local."
	// DefaultBrowseWindow bounds each browse operation; batches are applied
	// at this cadence.
	DefaultBrowseWindow = 5 * time.Second
	// StalenessThreshold is the maximum lastSeen age before a device is
	// presumed gone.
	StalenessThreshold = 5 * time.Minute
	// PruneInterval is how often the coordinator should invoke Prune.
	PruneInterval = 10 * time.Second
)

type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Identity describes this device's mDNS advertisement.
type Identity struct {
	DeviceID   string
	DeviceName string
	DeviceType models.DeviceType
	Port       int
}

// Service discovers LanLink peers and owns the discovered-device registry.
// Registry writes (batch replacement and pruning) are serialized behind one
// mutex so a batch racing a prune can neither resurrect a dropped device nor
// lose a fresh one.
type Service struct {
	identity     Identity
	bus          *events.Bus
	logger       zerolog.Logger
	browseWindow time.Duration

	// browseOverride lets tests substitute the mDNS browse primitive.
	browseOverride browseFunc
	browse         browseFunc
	now            func() time.Time

	mu      sync.Mutex
	running bool
	devices map[string]models.DiscoveredDevice

	advertiser *zeroconf.Server
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a discovery service for the given identity.
func New(identity Identity, bus *events.Bus) *Service {
	return &Service{
		identity:     identity,
		bus:          bus,
		logger:       log.With().Str("component", "discovery").Logger(),
		browseWindow: DefaultBrowseWindow,
		now:          time.Now,
		devices:      make(map[string]models.DiscoveredDevice),
	}
}

// Running reports whether discovery is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start clears the registry, begins advertising this device, and launches
// the browse loop. Starting an already-running service is a no-op; the
// existing registry and browse loop are untouched.
func (s *Service) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.devices = make(map[string]models.DiscoveredDevice)
	s.mu.Unlock()

	if s.browseOverride != nil {
		s.browse = s.browseOverride
	} else {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			s.setStopped()
			return err
		}
		s.browse = resolver.Browse

		txt := []string{
			"id=" + s.identity.DeviceID,
			"type=" + string(s.identity.DeviceType),
		}
		server, err := zeroconf.Register(s.identity.DeviceName, ServiceName, Domain, s.identity.Port, txt, nil)
		if err != nil {
			s.setStopped()
			return err
		}
		s.advertiser = server
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info().Str("service", ServiceName).Msg("Discovery started")
	s.bus.Publish(events.DiscoveryStarted{})
	return nil
}

// Stop halts browsing and advertising. It is a no-op when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.advertiser != nil {
		s.advertiser.Shutdown()
		s.advertiser = nil
	}

	s.logger.Info().Msg("Discovery stopped")
	s.bus.Publish(events.DiscoveryStopped{})
}

// Devices returns a copy of the current registry.
func (s *Service) Devices() []models.DiscoveredDevice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DiscoveredDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, copyDevice(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the registry size.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// Prune evicts devices whose lastSeen age exceeds the staleness threshold.
// The coordinator invokes this on its shared scheduler.
func (s *Service) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, d := range s.devices {
		if now.Sub(d.LastSeen) > StalenessThreshold {
			delete(s.devices, id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Msg("Pruned stale devices")
	}
}

// ApplyBatch replaces the registry with a full snapshot from the underlying
// protocol and publishes DevicesDiscovered.
func (s *Service) ApplyBatch(batch []models.DiscoveredDevice) {
	now := s.now()

	next := make(map[string]models.DiscoveredDevice, len(batch))
	for _, d := range batch {
		if d.ID == "" {
			continue
		}
		d.LastSeen = now
		d.IsOnline = true
		next[d.ID] = d
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.devices = next
	count := len(next)
	s.mu.Unlock()

	s.logger.Debug().Int("count", count).Msg("Applied discovery batch")
	s.bus.Publish(events.DevicesDiscovered{Count: count})
}

func (s *Service) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		if err := s.runBrowseWindow(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Browse window failed")
			s.bus.Publish(events.ErrorEvent{Op: "discovery", Message: err.Error()})
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// runBrowseWindow collects entries for one window and applies the batch.
func (s *Service) runBrowseWindow(ctx context.Context) error {
	windowCtx, cancel := context.WithTimeout(ctx, s.browseWindow)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collected := make(map[string]models.DiscoveredDevice)
	var collectedMu sync.Mutex
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-windowCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				device, ok := parseEntry(entry, s.identity.DeviceID)
				if !ok {
					continue
				}
				collectedMu.Lock()
				collected[device.ID] = device
				collectedMu.Unlock()
			}
		}
	}()

	if err := s.browse(windowCtx, ServiceName, Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return err
	}

	<-windowCtx.Done()
	<-collectorDone

	collectedMu.Lock()
	batch := make([]models.DiscoveredDevice, 0, len(collected))
	for _, d := range collected {
		batch = append(batch, d)
	}
	collectedMu.Unlock()

	if ctx.Err() == nil {
		s.ApplyBatch(batch)
	}
	return nil
}

// parseEntry converts an mDNS entry into a discovered device, skipping our
// own advertisement.
func parseEntry(entry *zeroconf.ServiceEntry, selfID string) (models.DiscoveredDevice, bool) {
	txt := txtToMap(entry.Text)

	id := strings.TrimSpace(txt["id"])
	if id == "" {
		id = strings.TrimSpace(entry.Instance)
	}
	if id == "" || id == selfID {
		return models.DiscoveredDevice{}, false
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = id
	}

	ip := ""
	if len(entry.AddrIPv4) > 0 && entry.AddrIPv4[0] != nil {
		ip = entry.AddrIPv4[0].String()
	}

	return models.DiscoveredDevice{
		ID:        id,
		Name:      name,
		IPAddress: ip,
		Type:      parseDeviceType(txt["type"]),
		Metadata:  txt,
	}, true
}

func parseDeviceType(raw string) models.DeviceType {
	switch models.DeviceType(strings.ToLower(strings.TrimSpace(raw))) {
	case models.DeviceMobile:
		return models.DeviceMobile
	case models.DeviceDesktop:
		return models.DeviceDesktop
	case models.DeviceTablet:
		return models.DeviceTablet
	case models.DeviceServer:
		return models.DeviceServer
	default:
		return models.DeviceUnknown
	}
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}

func copyDevice(d models.DiscoveredDevice) models.DiscoveredDevice {
	out := d
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
