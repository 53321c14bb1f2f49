package events

import (
	"testing"
	"time"
)

func TestBusBroadcastsToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(NetworksScanned{Count: 3})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			scanned, ok := e.(NetworksScanned)
			if !ok {
				t.Fatalf("subscriber %d: expected NetworksScanned, got %T", i, e)
			}
			if scanned.Count != 3 {
				t.Errorf("subscriber %d: expected count 3, got %d", i, scanned.Count)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for event", i)
		}
	}
}

func TestBusHasNoReplay(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Publish(Initialized{})

	ch, cancel := bus.Subscribe()
	defer cancel()

	select {
	case e := <-ch:
		t.Fatalf("late subscriber observed replayed event %T", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overflow the subscriber buffer; Publish must not stall.
		for i := 0; i < DefaultSubscriberBuffer*2; i++ {
			bus.Publish(DevicesDiscovered{Count: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestBusCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe()
	cancel()

	if _, open := <-ch; open {
		t.Error("expected subscriber channel to be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(Disconnected{})
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe()

	bus.Close()

	select {
	case _, open := <-ch:
		if open {
			t.Error("expected closed channel after bus close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Idempotent close and post-close operations must be safe.
	bus.Close()
	bus.Publish(Initialized{})
	late, cancel := bus.Subscribe()
	defer cancel()
	if _, open := <-late; open {
		t.Error("expected closed channel for post-close subscriber")
	}
}
