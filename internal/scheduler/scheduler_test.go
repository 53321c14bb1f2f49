package scheduler

import (
	"sync"
	"testing"
	"time"

	"lanlink/internal/platform"
)

// fakeClock drives tickers manually so tests never sleep.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) platform.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

// advance moves the clock and fires every live ticker once.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*fakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

type fakeTicker struct {
	mu      sync.Mutex
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return
	}
	select {
	case t.c <- now:
	default:
	}
}

func TestEveryRunsJobOnTick(t *testing.T) {
	clock := newFakeClock()
	s := New(clock)
	defer s.Stop()

	ran := make(chan time.Time, 4)
	s.Every("prune", 10*time.Second, func(now time.Time) {
		ran <- now
	})

	clock.advance(10 * time.Second)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on first tick")
	}

	clock.advance(10 * time.Second)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run on second tick")
	}
}

func TestCancelStopsJob(t *testing.T) {
	clock := newFakeClock()
	s := New(clock)
	defer s.Stop()

	ran := make(chan struct{}, 4)
	s.Every("metrics", 5*time.Second, func(time.Time) {
		ran <- struct{}{}
	})

	clock.advance(5 * time.Second)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("job did not run before cancel")
	}

	s.Cancel("metrics")
	clock.advance(5 * time.Second)
	clock.advance(5 * time.Second)

	select {
	case <-ran:
		t.Error("job ran after cancel")
	case <-time.After(50 * time.Millisecond):
	}

	// Cancelling twice is a no-op.
	s.Cancel("metrics")
}

func TestEveryReplacesExistingJob(t *testing.T) {
	clock := newFakeClock()
	s := New(clock)
	defer s.Stop()

	first := make(chan struct{}, 4)
	second := make(chan struct{}, 4)

	s.Every("sweep", time.Second, func(time.Time) { first <- struct{}{} })
	s.Every("sweep", time.Second, func(time.Time) { second <- struct{}{} })

	clock.advance(time.Second)

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("replacement job did not run")
	}
	select {
	case <-first:
		t.Error("replaced job still running")
	default:
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	clock := newFakeClock()
	s := New(clock)
	s.Stop()

	s.Every("late", time.Second, func(time.Time) {
		t.Error("job registered after Stop must not run")
	})
	clock.advance(time.Second)
	time.Sleep(20 * time.Millisecond)
}
