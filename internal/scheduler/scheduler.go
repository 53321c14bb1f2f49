// Package scheduler centralizes LanLink's periodic work. The coordinator owns
// a single Scheduler instead of each component starting ad-hoc timers; jobs
// run on a goroutine per job driven by an injectable clock, so tests advance
// time deterministically instead of sleeping.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lanlink/internal/platform"
)

// Scheduler runs named periodic jobs.
type Scheduler struct {
	clock  platform.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
}

type job struct {
	name   string
	ticker platform.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New creates a scheduler driven by the given clock.
func New(clock platform.Clock) *Scheduler {
	return &Scheduler{
		clock:  clock,
		logger: log.With().Str("component", "scheduler").Logger(),
		jobs:   make(map[string]*job),
	}
}

// Every registers a periodic job and starts it immediately. Registering a
// name that already exists replaces the previous job.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(now time.Time)) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if existing, ok := s.jobs[name]; ok {
		delete(s.jobs, name)
		s.mu.Unlock()
		s.stopJob(existing)
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
	}

	j := &job{
		name:   name,
		ticker: s.clock.NewTicker(interval),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.jobs[name] = j
	s.mu.Unlock()

	s.logger.Debug().Str("job", name).Dur("interval", interval).Msg("Starting periodic job")

	go func() {
		defer close(j.done)
		defer j.ticker.Stop()
		for {
			select {
			case now := <-j.ticker.Chan():
				fn(now)
			case <-j.stop:
				return
			}
		}
	}()
}

// Cancel stops the named job. It is a no-op for unknown names.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	if ok {
		s.stopJob(j)
		s.logger.Debug().Str("job", name).Msg("Cancelled periodic job")
	}
}

// Stop cancels all jobs and rejects future registrations.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	jobs := make([]*job, 0, len(s.jobs))
	for name, j := range s.jobs {
		jobs = append(jobs, j)
		delete(s.jobs, name)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		s.stopJob(j)
	}
}

func (s *Scheduler) stopJob(j *job) {
	close(j.stop)
	<-j.done
}
