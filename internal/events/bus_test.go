package events

import (
	"errors"
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch1)
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch1; ok {
		t.Error("expected unsubscribed channel to be closed")
	}
	_ = ch2
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Publish(NewJobCompletedEvent("run-1", 3, 7, 55, 2))

	select {
	case received := <-ch:
		if received.Type != EventJobCompleted {
			t.Errorf("expected type %s, got %s", EventJobCompleted, received.Type)
		}
		if received.WorkerID != 3 || received.Data.Value != 55 || received.Data.Seq != 7 {
			t.Errorf("unexpected event %+v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event")
	}
}

func TestBusPublishMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewRunStartedEvent("run-1", 40, 8))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case received := <-ch:
			if received.Type != EventRunStarted {
				t.Errorf("subscriber %d: expected type %s, got %s", i, EventRunStarted, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusPublishNonBlocking(t *testing.T) {
	bus := NewBus()
	bus.bufferSize = 1 // Small buffer for testing

	ch := bus.Subscribe()

	bus.Publish(NewStateChangedEvent("run-1", "Running"))
	bus.Publish(NewStateChangedEvent("run-1", "Closing"))
	bus.Publish(NewStateChangedEvent("run-1", "Draining"))

	select {
	case ev := <-ch:
		if ev.Data.State != "Running" {
			t.Errorf("expected first event to be kept, got %s", ev.Data.State)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for first event")
	}
	if bus.Dropped() != 2 || bus.Published() != 3 {
		t.Errorf("expected 3 published and 2 dropped, got %d/%d", bus.Published(), bus.Dropped())
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	late := bus.Subscribe()
	if _, ok := <-late; ok {
		t.Error("expected subscription after close to be closed")
	}
	// Publishing after close must not panic
	bus.Publish(NewRunFinishedEvent("run-1", 0, 0))
	if bus.Published() != 0 {
		t.Errorf("expected publish after close to be ignored, got %d", bus.Published())
	}
}

func TestBusSubscribeFilter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	all := bus.Subscribe()
	runOnly := bus.SubscribeFilter(ForRun("run-1"))
	finished := bus.SubscribeFilter(ForRun("run-1", EventRunFinished, EventRunFailed))

	bus.Publish(NewJobCompletedEvent("run-1", 0, 0, 1, 1))
	bus.Publish(NewJobCompletedEvent("run-2", 0, 0, 1, 1))
	bus.Publish(NewRunFinishedEvent("run-2", 1, time.Millisecond))
	bus.Publish(NewRunFinishedEvent("run-1", 1, time.Millisecond))

	tests := []struct {
		name     string
		ch       <-chan Event
		expected int
	}{
		{"all", all, 4},
		{"run only", runOnly, 2},
		{"run terminal only", finished, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.ch); got != tt.expected {
				t.Errorf("expected %d events, got %d", tt.expected, got)
			}
		})
	}

	if ev := <-finished; ev.RunID != "run-1" || ev.Type != EventRunFinished {
		t.Errorf("unexpected event %+v", ev)
	}
	if bus.Published() != 4 {
		t.Errorf("expected 4 published events, got %d", bus.Published())
	}
}

func TestFilterMatch(t *testing.T) {
	event := NewStateChangedEvent("run-1", "running")

	tests := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"zero value", Filter{}, true},
		{"same run", ForRun("run-1"), true},
		{"other run", ForRun("run-2"), false},
		{"type listed", Filter{Types: []EventType{EventJobCompleted, EventStateChanged}}, true},
		{"type not listed", Filter{Types: []EventType{EventJobCompleted}}, false},
		{"run and type", ForRun("run-1", EventStateChanged), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(event); got != tt.expected {
				t.Errorf("Match() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseTypes(t *testing.T) {
	types, err := ParseTypes("job_completed, run_finished,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 2 || types[0] != EventJobCompleted || types[1] != EventRunFinished {
		t.Errorf("unexpected types %v", types)
	}

	if types, err := ParseTypes(""); err != nil || len(types) != 0 {
		t.Errorf("expected no types for empty input, got %v (%v)", types, err)
	}
	if _, err := ParseTypes("job_completed,job_lost"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEventTypeTerminal(t *testing.T) {
	for _, et := range AllTypes() {
		expected := et == EventRunFinished || et == EventRunFailed
		if et.Terminal() != expected {
			t.Errorf("%s: Terminal() = %v", et, et.Terminal())
		}
	}
}

func TestEventCreation(t *testing.T) {
	t.Run("RunFinished", func(t *testing.T) {
		event := NewRunFinishedEvent("run-9", 40, 1500*time.Millisecond)
		if event.Type != EventRunFinished {
			t.Errorf("expected %s, got %s", EventRunFinished, event.Type)
		}
		if event.Data.Completed != 40 || event.Data.Elapsed != "1.5s" {
			t.Errorf("unexpected data %+v", event.Data)
		}
		if event.WorkerID != -1 {
			t.Errorf("expected run-level event to have worker id -1, got %d", event.WorkerID)
		}
	})

	t.Run("RunFailed", func(t *testing.T) {
		event := NewRunFailedEvent("run-9", 3, time.Second, errors.New("boom"))
		if event.Type != EventRunFailed || event.Data.Error != "boom" {
			t.Errorf("unexpected event %+v", event)
		}

		noErr := NewRunFailedEvent("run-9", 0, 0, nil)
		if noErr.Data.Error != "" {
			t.Errorf("expected empty error, got %q", noErr.Data.Error)
		}
	})

	t.Run("StateChanged", func(t *testing.T) {
		event := NewStateChangedEvent("run-9", "Draining")
		if event.Type != EventStateChanged || event.Data.State != "Draining" {
			t.Errorf("unexpected event %+v", event)
		}
	})
}
