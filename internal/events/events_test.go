package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventTaskUpdated, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	payload := map[string]string{"task_id": "t1"}
	err := bus.PublishJSON(EventTaskUpdated, payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != EventTaskUpdated {
		t.Errorf("expected type %s, got %s", EventTaskUpdated, received.Type)
	}

	var decoded map[string]string
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["task_id"] != "t1" {
		t.Errorf("expected task_id=t1, got %s", decoded["task_id"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventSyncCompleted, map[string]int{"pushed": 1}); err != nil {
		t.Errorf("nil bus PublishJSON failed: %v", err)
	}
}
