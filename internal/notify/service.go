package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/classify"
	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/store"
)

// backendTimeout bounds each fire-and-forget backend call and history write.
const backendTimeout = 10 * time.Second

// NotificationAPI is the notification REST surface.
type NotificationAPI interface {
	GetNotifications(ctx context.Context) ([]model.RawEvent, error)
	MarkAsRead(ctx context.Context, notificationID int) error
}

// Submitter accepts detected confirmation requests.
type Submitter interface {
	Submit(req model.ConfirmationRequest, src confirm.Source) bool
}

// Options configures a Service.
type Options struct {
	API         NotificationAPI
	Store       *store.NotificationStore
	History     store.History
	Classifier  *classify.Classifier
	Coordinator Submitter
	Bus         *events.Bus
	Logger      *zap.Logger

	// OnToast receives notifications that deserve a transient toast.
	OnToast func(model.Notification)
	// OnReviewPrompt fires at most once per notification ID.
	OnReviewPrompt func(model.Notification)

	// Capacity bounds the persisted history.
	Capacity int
}

// Service routes raw events from the push channel and the REST catch-up
// through classification into the store, the confirmation coordinator and
// the event bus, and reconciles read state with the backend.
type Service struct {
	opts Options

	mu       sync.Mutex
	prompted map[string]struct{}

	pending sync.WaitGroup
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = store.DefaultCapacity
	}
	return &Service{
		opts:     opts,
		prompted: make(map[string]struct{}),
	}
}

// Hydrate fills the store from local history so the panel has content
// before the first fetch.
func (s *Service) Hydrate(ctx context.Context) error {
	if s.opts.History == nil {
		return nil
	}
	items, err := s.opts.History.RecentNotifications(ctx, s.opts.Capacity)
	if err != nil {
		return fmt.Errorf("loading notification history: %w", err)
	}
	s.opts.Store.Load(items)
	return nil
}

// Handle processes one event delivered by the push channel.
func (s *Service) Handle(ev model.RawEvent) {
	s.process(ev, confirm.SourcePush)
}

// CatchUp fetches the user's notifications after a (re)connect. Unread ones
// go through the same path as pushed events; read ones are only recorded.
func (s *Service) CatchUp(ctx context.Context) error {
	raw, err := s.opts.API.GetNotifications(ctx)
	if err != nil {
		s.opts.Logger.Warn("notification catch-up failed", zap.Error(err))
		return fmt.Errorf("fetching notifications: %w", err)
	}

	// Oldest first, so that the newest notifications are the ones kept.
	ordered := make([]model.RawEvent, len(raw))
	copy(ordered, raw)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	unread := 0
	for _, ev := range ordered {
		if ev.IsRead {
			s.record(ev)
			continue
		}
		unread++
		s.process(ev, confirm.SourceCatchUp)
	}

	s.opts.Logger.Info("notification catch-up complete",
		zap.Int("fetched", len(raw)), zap.Int("unread", unread))
	return nil
}

// MarkRead marks a notification read locally at once and tells the backend
// in the background. Backend failures are logged, local state stays read.
func (s *Service) MarkRead(id string) {
	n, changed := s.opts.Store.MarkRead(id)
	if !changed {
		return
	}
	s.persistRead(n.ID)
	s.reconcile(n)
}

// MarkAllRead marks every notification read, locally and on the backend.
func (s *Service) MarkAllRead() {
	changed := s.opts.Store.MarkAllRead()
	if len(changed) == 0 {
		return
	}
	if s.opts.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		if err := s.opts.History.MarkAllNotificationsRead(ctx); err != nil {
			s.opts.Logger.Warn("persisting read state failed", zap.Error(err))
		}
		cancel()
	}
	for _, n := range changed {
		s.reconcile(n)
	}
}

// Delete removes a notification from the panel and the local history.
func (s *Service) Delete(id string) {
	if !s.opts.Store.Delete(id) || s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.opts.History.DeleteNotification(ctx, id); err != nil {
		s.opts.Logger.Warn("deleting notification from history failed", zap.String("id", id), zap.Error(err))
	}
}

// Clear empties the panel and the local history.
func (s *Service) Clear() {
	s.opts.Store.Clear()
	if s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.opts.History.ClearNotifications(ctx); err != nil {
		s.opts.Logger.Warn("clearing notification history failed", zap.Error(err))
	}
}

// Flush waits for background backend calls to finish.
func (s *Service) Flush() {
	s.pending.Wait()
}

// process classifies ev and applies its side effects. A failure while
// handling one event is logged and does not affect the next.
func (s *Service) process(ev model.RawEvent, src confirm.Source) {
	defer func() {
		if r := recover(); r != nil {
			s.opts.Logger.Error("notification handling panicked",
				zap.Int("id", ev.ID), zap.Stringer("source", src), zap.Any("panic", r))
		}
	}()

	result := s.opts.Classifier.Classify(ev)
	added := s.add(result.Notification)

	// Requests hydrated from history still reach the coordinator, which
	// keeps its own per-booking dedup.
	if result.ConfirmationRequired {
		req, ok := classify.ConfirmationRequest(ev, result)
		if !ok {
			s.opts.Logger.Warn("confirmation request without booking or deadline", zap.Int("id", ev.ID))
			return
		}
		s.opts.Coordinator.Submit(req, src)
		return
	}
	if !added {
		return
	}

	if result.Status != "" && result.Notification.Data.BookingID != nil && s.opts.Bus != nil {
		s.opts.Bus.Publish(events.StatusChanged{
			BookingID: *result.Notification.Data.BookingID,
			Status:    result.Status,
		})
	}

	if result.Toast && s.opts.OnToast != nil {
		s.opts.OnToast(result.Notification)
	}

	if result.ReviewPrompt {
		s.promptReview(result.Notification)
	}
}

// record stores an already-read notification without side effects. A
// notification that is already stored takes on the backend's read state.
func (s *Service) record(ev model.RawEvent) {
	n := s.opts.Classifier.Classify(ev).Notification
	n.Read = true
	if s.add(n) {
		return
	}
	if _, changed := s.opts.Store.MarkRead(n.ID); changed {
		s.persistRead(n.ID)
	}
}

// add stores n and persists it. It reports false for a notification that is
// already stored.
func (s *Service) add(n model.Notification) bool {
	if !s.opts.Store.Add(n) {
		return false
	}
	if s.opts.History == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.opts.History.SaveNotification(ctx, n); err != nil {
		s.opts.Logger.Warn("persisting notification failed", zap.String("id", n.ID), zap.Error(err))
		return true
	}
	if err := s.opts.History.PruneNotifications(ctx, s.opts.Capacity); err != nil {
		s.opts.Logger.Warn("pruning notification history failed", zap.Error(err))
	}
	return true
}

func (s *Service) promptReview(n model.Notification) {
	s.mu.Lock()
	if _, done := s.prompted[n.ID]; done {
		s.mu.Unlock()
		return
	}
	s.prompted[n.ID] = struct{}{}
	s.mu.Unlock()

	if s.opts.OnReviewPrompt != nil {
		s.opts.OnReviewPrompt(n)
	}
}

func (s *Service) persistRead(id string) {
	if s.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := s.opts.History.MarkNotificationRead(ctx, id); err != nil {
		s.opts.Logger.Warn("persisting read state failed", zap.String("id", id), zap.Error(err))
	}
}

// reconcile sends the read state of a backend notification in the
// background.
func (s *Service) reconcile(n model.Notification) {
	id := n.Data.NotificationID
	if id == 0 {
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		if err := s.opts.API.MarkAsRead(ctx, id); err != nil {
			s.opts.Logger.Warn("marking notification read on backend failed",
				zap.Int("notification", id), zap.Error(err))
		}
	}()
}
