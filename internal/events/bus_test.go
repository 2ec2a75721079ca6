package events

import "testing"

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := New()
	var order []string

	bus.Subscribe(func(StatusChanged) { order = append(order, "job-board") })
	bus.Subscribe(func(StatusChanged) { order = append(order, "payment") })
	bus.Subscribe(func(StatusChanged) { order = append(order, "panel") })

	bus.Publish(StatusChanged{BookingID: 1, Status: StatusCompleted})

	want := []string{"job-board", "payment", "panel"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d deliveries before Publish returned, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	count := 0

	unsubscribe := bus.Subscribe(func(StatusChanged) { count++ })
	bus.Publish(StatusChanged{BookingID: 1, Status: StatusReady})
	unsubscribe()
	unsubscribe()
	bus.Publish(StatusChanged{BookingID: 1, Status: StatusReady})

	if count != 1 {
		t.Errorf("Expected 1 delivery, got %d", count)
	}
}

func TestListenerMaySubscribeDuringPublish(t *testing.T) {
	bus := New()
	late := 0

	bus.Subscribe(func(StatusChanged) {
		bus.Subscribe(func(StatusChanged) { late++ })
	})

	bus.Publish(StatusChanged{BookingID: 3, Status: StatusCreated})
	if late != 0 {
		t.Errorf("Listener added during publish must not receive that event, got %d", late)
	}

	bus.Publish(StatusChanged{BookingID: 3, Status: StatusCreated})
	if late != 1 {
		t.Errorf("Expected late listener to receive next event, got %d", late)
	}
}
