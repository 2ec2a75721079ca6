package store

import (
	"sort"
	"sync"

	"github.com/nhle/autohub/internal/model"
)

// DefaultCapacity is the number of notifications kept in memory.
const DefaultCapacity = 50

// NotificationStore is the in-memory list of the most recent notifications,
// newest first. Every mutation fans the new list out to subscribers.
type NotificationStore struct {
	mu       sync.Mutex
	items    []model.Notification
	capacity int
	subs     map[int]chan []model.Notification
	nextSub  int
}

// NewNotificationStore creates a store bounded to capacity items. A
// non-positive capacity falls back to DefaultCapacity.
func NewNotificationStore(capacity int) *NotificationStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &NotificationStore{
		capacity: capacity,
		subs:     make(map[int]chan []model.Notification),
	}
}

// Add records n in timestamp order, ahead of any notification with the same
// timestamp. When the store is full the oldest notification is evicted. It
// reports false, and changes nothing, when a notification with the same ID
// is already stored or n is older than everything in a full store.
func (s *NotificationStore) Add(n model.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(n.ID) >= 0 {
		return false
	}

	i := sort.Search(len(s.items), func(i int) bool {
		return !s.items[i].Timestamp.After(n.Timestamp)
	})
	if i >= s.capacity {
		return false
	}

	items := make([]model.Notification, 0, len(s.items)+1)
	items = append(items, s.items[:i]...)
	items = append(items, n)
	items = append(items, s.items[i:]...)
	if len(items) > s.capacity {
		items = items[:s.capacity]
	}
	s.items = items
	s.publishLocked()
	return true
}

// Load replaces the contents with items, e.g. when hydrating from history.
// Items are ordered newest first and truncated to capacity.
func (s *NotificationStore) Load(items []model.Notification) {
	sorted := make([]model.Notification, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > s.capacity {
		sorted = sorted[:s.capacity]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = sorted
	s.publishLocked()
}

// Get returns the notification with the given ID.
func (s *NotificationStore) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return model.Notification{}, false
}

// List returns a copy of the stored notifications, newest first.
func (s *NotificationStore) List() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks a notification as read. It returns the updated notification
// and true only when the read state actually changed.
func (s *NotificationStore) MarkRead(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 || s.items[i].Read {
		return model.Notification{}, false
	}
	s.items[i].Read = true
	s.publishLocked()
	return s.items[i], true
}

// MarkAllRead marks every notification as read and returns the ones that
// changed.
func (s *NotificationStore) MarkAllRead() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []model.Notification
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			changed = append(changed, s.items[i])
		}
	}
	if len(changed) > 0 {
		s.publishLocked()
	}
	return changed
}

// Delete removes a notification by ID and reports whether it existed.
func (s *NotificationStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.publishLocked()
	return true
}

// Clear removes every notification.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.publishLocked()
}

// Subscribe returns a channel receiving the full list after every change,
// starting with the current contents. Slow subscribers only see the latest
// list. The returned function unsubscribes and closes the channel.
func (s *NotificationStore) Subscribe() (<-chan []model.Notification, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []model.Notification, 1)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *NotificationStore) indexLocked(id string) int {
	for i, n := range s.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s *NotificationStore) snapshotLocked() []model.Notification {
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// publishLocked offers the current list to every subscriber without
// blocking, replacing any list the subscriber has not consumed yet.
func (s *NotificationStore) publishLocked() {
	for _, ch := range s.subs {
		list := s.snapshotLocked()
		select {
		case ch <- list:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- list:
		default:
		}
	}
}
