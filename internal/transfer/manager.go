// Package transfer tracks concurrent upload and download sessions. Admission
// beyond the configured concurrency limit is rejected, not queued; callers
// retry once a slot frees up.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/events"
	"lanlink/internal/models"
)

const (
	// ChunkSize is the copy unit; cancellation is observed at every chunk
	// boundary.
	ChunkSize = 32 * 1024
	// DefaultProgressInterval throttles progress events on fast transfers.
	DefaultProgressInterval = 200 * time.Millisecond
)

var (
	// ErrTooManyTransfers is returned when admission would exceed the
	// concurrency limit.
	ErrTooManyTransfers = errors.New("concurrent transfer limit reached")
	// ErrUnknownSession is returned by Cancel for ids the manager does not
	// track.
	ErrUnknownSession = errors.New("unknown transfer session")
	// ErrSessionFinished is returned by Cancel once a session is terminal.
	ErrSessionFinished = errors.New("transfer session already finished")
)

// session pairs the public snapshot with the cancellation channel the copy
// loop polls at chunk boundaries.
type session struct {
	snapshot models.TransferSession
	cancelCh chan struct{}
}

// Manager owns all transfer sessions. Session records are mutated only under
// the manager's mutex; external reads receive copies.
type Manager struct {
	bus              *events.Bus
	logger           zerolog.Logger
	maxConcurrent    int
	progressInterval time.Duration
	now              func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	active   int
	wg       sync.WaitGroup
}

// NewManager creates a manager admitting at most maxConcurrent simultaneous
// sessions.
func NewManager(maxConcurrent int, bus *events.Bus) *Manager {
	return &Manager{
		bus:              bus,
		logger:           log.With().Str("component", "transfer").Logger(),
		maxConcurrent:    maxConcurrent,
		progressInterval: DefaultProgressInterval,
		now:              time.Now,
		sessions:         make(map[string]*session),
	}
}

// Start admits a new session and launches its copy loop. The session is
// created pending and flips to active once the copy loop begins. totalBytes
// may be zero when the source length is unknown. The returned id identifies
// the session for Cancel and progress events.
func (m *Manager) Start(direction models.TransferDirection, fileName string, src io.Reader, dst io.Writer, totalBytes int64) (string, error) {
	m.mu.Lock()
	if m.active >= m.maxConcurrent {
		m.mu.Unlock()
		m.bus.Publish(events.ErrorEvent{Op: "transfer", Message: ErrTooManyTransfers.Error()})
		return "", ErrTooManyTransfers
	}

	id := uuid.NewString()
	s := &session{
		snapshot: models.TransferSession{
			ID:         id,
			Direction:  direction,
			FileName:   fileName,
			TotalBytes: totalBytes,
			State:      models.TransferPending,
			StartedAt:  m.now(),
		},
		cancelCh: make(chan struct{}),
	}
	m.sessions[id] = s
	m.active++
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info().Str("id", id).Str("file", fileName).Str("direction", string(direction)).Msg("Transfer started")
	go m.run(s, src, dst)
	return id, nil
}

// Cancel marks a session cancelled. The copy loop observes the cancellation
// at its next chunk boundary and frees the concurrency slot. Unknown ids and
// already-terminal sessions fail without emitting an event.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if s.snapshot.State.Terminal() {
		return ErrSessionFinished
	}

	select {
	case <-s.cancelCh:
	default:
		close(s.cancelCh)
	}
	return nil
}

// Session returns a copy of one session's current state.
func (m *Manager) Session(id string) (models.TransferSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.TransferSession{}, false
	}
	return s.snapshot, true
}

// Sessions returns copies of all tracked sessions, newest first. Terminal
// sessions remain listed until the manager is discarded.
func (m *Manager) Sessions() []models.TransferSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.TransferSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// SetLimit applies a new concurrency cap. Sessions already admitted keep
// running; the cap applies to subsequent admissions.
func (m *Manager) SetLimit(maxConcurrent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxConcurrent = maxConcurrent
}

// ActiveCount returns the number of non-terminal sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Wait blocks until every launched copy loop has finished. Used on shutdown
// and in tests.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// run is the chunked copy loop. It checks the cancellation channel before
// every read so Cancel interrupts an in-flight session rather than only
// flipping a flag.
func (m *Manager) run(s *session, src io.Reader, dst io.Writer) {
	defer m.wg.Done()

	// A cancel landing between admission and here leaves the session
	// pending; finish handles either live state.
	m.mu.Lock()
	if s.snapshot.State == models.TransferPending {
		s.snapshot.State = models.TransferActive
	}
	m.mu.Unlock()

	buf := make([]byte, ChunkSize)
	start := m.now()
	lastProgress := time.Time{}
	var transferred int64

	for {
		select {
		case <-s.cancelCh:
			m.finish(s, models.TransferCancelled, nil)
			return
		default:
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				m.finish(s, models.TransferFailed, werr)
				return
			}
			transferred += int64(n)

			now := m.now()
			speed := rate(transferred, now.Sub(start))
			m.updateProgress(s, transferred, speed)
			if lastProgress.IsZero() || now.Sub(lastProgress) >= m.progressInterval {
				lastProgress = now
				m.publishProgress(s)
			}
		}
		if err == io.EOF {
			m.finish(s, models.TransferCompleted, nil)
			return
		}
		if err != nil {
			m.finish(s, models.TransferFailed, err)
			return
		}
	}
}

func (m *Manager) updateProgress(s *session, transferred int64, speed float64) {
	m.mu.Lock()
	s.snapshot.TransferredBytes = transferred
	s.snapshot.BytesPerSecond = speed
	m.mu.Unlock()
}

func (m *Manager) publishProgress(s *session) {
	m.mu.Lock()
	snap := s.snapshot
	m.mu.Unlock()

	m.bus.Publish(events.TransferProgress{
		SessionID:        snap.ID,
		BytesTransferred: snap.TransferredBytes,
		TotalBytes:       snap.TotalBytes,
		BytesPerSecond:   snap.BytesPerSecond,
	})
}

// finish moves a session to a terminal state exactly once and frees its
// concurrency slot.
func (m *Manager) finish(s *session, state models.TransferState, cause error) {
	m.mu.Lock()
	if s.snapshot.State.Terminal() {
		m.mu.Unlock()
		return
	}
	s.snapshot.State = state
	m.active--
	snap := s.snapshot
	m.mu.Unlock()

	switch state {
	case models.TransferFailed:
		m.logger.Error().Err(cause).Str("id", snap.ID).Msg("Transfer failed")
		m.bus.Publish(events.ErrorEvent{Op: "transfer", Message: cause.Error()})
	case models.TransferCancelled:
		m.logger.Info().Str("id", snap.ID).Msg("Transfer cancelled")
	default:
		m.logger.Info().Str("id", snap.ID).Int64("bytes", snap.TransferredBytes).Msg("Transfer completed")
	}

	m.bus.Publish(events.TransferProgress{
		SessionID:        snap.ID,
		BytesTransferred: snap.TransferredBytes,
		TotalBytes:       snap.TotalBytes,
		BytesPerSecond:   snap.BytesPerSecond,
	})
}

func rate(bytes int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
