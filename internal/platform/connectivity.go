package platform

import (
	"net"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultPollInterval is how often the polling source re-reads interfaces.
const DefaultPollInterval = 5 * time.Second

// PollingConnectivitySource approximates OS connectivity-change notifications
// by periodically snapshotting the set of up interfaces and their addresses.
// Notifications are delivered in the order changes are observed.
type PollingConnectivitySource struct {
	interval time.Duration
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPollingConnectivitySource starts a polling source. A non-positive
// interval uses DefaultPollInterval.
func NewPollingConnectivitySource(interval time.Duration) *PollingConnectivitySource {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s := &PollingConnectivitySource{
		interval: interval,
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	go s.loop()
	return s
}

// Notifications returns the change channel.
func (s *PollingConnectivitySource) Notifications() <-chan struct{} {
	return s.notify
}

// Close stops polling and releases the notification channel.
func (s *PollingConnectivitySource) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

func (s *PollingConnectivitySource) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.notify)

	last := interfaceFingerprint()
	for {
		select {
		case <-ticker.C:
			current := interfaceFingerprint()
			if current != last {
				last = current
				select {
				case s.notify <- struct{}{}:
				default:
					// A pending notification already covers this change.
				}
			}
		case <-s.stop:
			return
		}
	}
}

// interfaceFingerprint builds a stable string identifying the current set of
// up interfaces and their addresses.
func interfaceFingerprint() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "error:" + err.Error()
	}

	var parts []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			parts = append(parts, iface.Name+"="+addr.String())
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
