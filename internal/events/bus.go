// Package events is the in-process broadcast used by independent UI
// surfaces to react to booking status transitions.
package events

import "sync"

// Status is a booking status transition announced on the bus.
type Status string

const (
	StatusCreated              Status = "created"
	StatusCancelled            Status = "cancelled"
	StatusReady                Status = "ready"
	StatusInProgress           Status = "inprogress"
	StatusCompleted            Status = "completed"
	StatusConfirmationRequired Status = "confirmation-required"
)

// StatusChanged is the payload of every bus event.
type StatusChanged struct {
	BookingID int
	Status    Status
}

// Listener receives bus events. Listeners run on the publisher's goroutine
// and must not panic; the bus does not recover.
type Listener func(StatusChanged)

type subscription struct {
	id int
	fn Listener
}

// Bus is a synchronous multicast bus. The zero value is ready to use.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every current listener in registration order and
// returns after the last one.
func (b *Bus) Publish(ev StatusChanged) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
