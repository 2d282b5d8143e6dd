package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe(EventRealtime, received)

	bus.Publish(Event{
		Type:       EventRealtime,
		DeviceID:   7,
		DeviceCode: "SWM-001",
		Timestamp:  time.Now(),
	})

	select {
	case evt := <-received:
		if evt.Type != EventRealtime {
			t.Errorf("expected %s, got %s", EventRealtime, evt.Type)
		}
		if evt.DeviceID != 7 {
			t.Errorf("expected device 7, got %d", evt.DeviceID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe(EventRealtime, ch1)
	bus.Subscribe(EventRealtime, ch2)

	bus.Publish(Event{Type: EventRealtime, DeviceID: 1})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_TypeFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	rtCh := make(chan Event, 10)
	otherCh := make(chan Event, 10)
	bus.Subscribe(EventRealtime, rtCh)
	bus.Subscribe("device.offline", otherCh)

	bus.Publish(Event{Type: EventRealtime, DeviceID: 1})

	select {
	case <-rtCh:
	case <-time.After(time.Second):
		t.Fatal("realtime subscriber did not receive event")
	}

	select {
	case <-otherCh:
		t.Fatal("offline subscriber should NOT receive realtime event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe(EventRealtime, received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			bus.Publish(Event{Type: EventRealtime, DeviceID: id})
		}(int64(i))
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := New()
	received := make(chan Event, 1)
	bus.Subscribe(EventRealtime, received)
	bus.Close()

	bus.Publish(Event{Type: EventRealtime, DeviceID: 1})

	select {
	case <-received:
		t.Fatal("publish after close should be a no-op")
	case <-time.After(50 * time.Millisecond):
	}
}
