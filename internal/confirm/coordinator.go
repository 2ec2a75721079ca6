package confirm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/api"
	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/store"
)

// historyTimeout bounds each outcome log write.
const historyTimeout = 5 * time.Second

// Confirmer submits the viewer's answer to the backend.
type Confirmer interface {
	ConfirmAppointment(ctx context.Context, bookingID int, confirmed bool) error
}

// OutcomeLog records terminal outcomes.
type OutcomeLog interface {
	LogConfirmation(ctx context.Context, rec store.ConfirmationRecord) error
}

// Snapshot is what the dialog renders. Request and Phase are nil when no
// request is visible.
type Snapshot struct {
	Request *model.ConfirmationRequest
	Phase   Phase
	Queued  int
}

// Options configures a Coordinator.
type Options struct {
	API     Confirmer
	Bus     *events.Bus
	History OutcomeLog
	Logger  *zap.Logger

	// TickInterval is the countdown refresh period.
	TickInterval time.Duration
	// OutcomeDelay is how long a success message stays before the next
	// request is shown.
	OutcomeDelay time.Duration

	Now func() time.Time
}

type slot struct {
	req   model.ConfirmationRequest
	phase Phase
}

// Coordinator surfaces appointment confirmation requests one at a time, in
// detection order, and at most once per booking for the session.
type Coordinator struct {
	opts Options

	mu           sync.Mutex
	shown        map[int]struct{}
	queue        []model.ConfirmationRequest
	visible      *slot
	seq          int
	outcomeTimer *time.Timer
	subs         map[int]chan Snapshot
	nextSub      int

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a Coordinator. Call Start to run the countdown.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.OutcomeDelay <= 0 {
		opts.OutcomeDelay = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		opts:   opts,
		shown:  make(map[int]struct{}),
		subs:   make(map[int]chan Snapshot),
		stopCh: make(chan struct{}),
	}
}

// Start runs the countdown ticker until ctx is done or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ticker := time.NewTicker(c.opts.TickInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-c.stopCh:
					return
				case <-ticker.C:
					c.tick()
				}
			}
		}()
	})
}

// Stop halts the countdown and any pending advance, waiting for the ticker
// goroutine to exit.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.mu.Lock()
		if c.outcomeTimer != nil {
			c.outcomeTimer.Stop()
			c.outcomeTimer = nil
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// Submit offers a detected request. It reports whether the request was
// accepted; requests for a booking already surfaced this session, or whose
// deadline has passed, are dropped.
func (c *Coordinator) Submit(req model.ConfirmationRequest, src Source) bool {
	now := c.opts.Now()

	c.mu.Lock()
	if _, seen := c.shown[req.BookingID]; seen {
		c.mu.Unlock()
		c.opts.Logger.Debug("confirmation already surfaced",
			zap.Int("booking", req.BookingID), zap.Stringer("source", src))
		return false
	}
	if !req.ConfirmationDeadline.After(now) {
		c.mu.Unlock()
		c.opts.Logger.Info("dropping expired confirmation request",
			zap.Int("booking", req.BookingID), zap.Stringer("source", src))
		return false
	}

	c.shown[req.BookingID] = struct{}{}
	c.queue = append(c.queue, req)
	var shownEv *events.StatusChanged
	if c.visible == nil {
		shownEv = c.showNextLocked(now)
	}
	c.emitLocked()
	c.mu.Unlock()

	c.opts.Logger.Info("confirmation request queued",
		zap.Int("booking", req.BookingID), zap.Stringer("source", src))
	c.publish(shownEv)
	return true
}

// Confirm answers the visible request positively.
func (c *Coordinator) Confirm(ctx context.Context) error {
	return c.respond(ctx, true)
}

// Decline answers the visible request negatively.
func (c *Coordinator) Decline(ctx context.Context) error {
	return c.respond(ctx, false)
}

// Close dismisses the visible request and shows the next one.
func (c *Coordinator) Close() {
	c.mu.Lock()
	v := c.visible
	if v == nil {
		c.mu.Unlock()
		return
	}

	var rec *store.ConfirmationRecord
	if _, unanswered := v.phase.(Visible); unanswered {
		rec = record(v.req, Closed{}, "dismissed without an answer")
	}
	c.clearVisibleLocked()
	shownEv := c.showNextLocked(c.opts.Now())
	c.emitLocked()
	c.mu.Unlock()

	c.logOutcome(rec)
	c.publish(shownEv)
}

// Current returns the latest snapshot.
func (c *Coordinator) Current() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Lookup returns the phase of the request for bookingID while it is queued
// or visible.
func (c *Coordinator) Lookup(bookingID int) (Phase, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible != nil && c.visible.req.BookingID == bookingID {
		return c.visible.phase, true
	}
	for i, req := range c.queue {
		if req.BookingID == bookingID {
			return Pending{Position: i + 1}, true
		}
	}
	return nil, false
}

// Subscribe returns a channel of dialog snapshots, starting with the current
// one. Slow subscribers only see the latest snapshot. The returned function
// unsubscribes and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Coordinator) respond(ctx context.Context, confirmed bool) error {
	c.mu.Lock()
	v := c.visible
	if v == nil {
		c.mu.Unlock()
		return nil
	}
	vis, ok := v.phase.(Visible)
	if !ok || !vis.Actionable() {
		c.mu.Unlock()
		return nil
	}
	vis.InFlight = true
	vis.Error = ""
	v.phase = vis
	seq := c.seq
	req := v.req
	c.emitLocked()
	c.mu.Unlock()

	err := c.opts.API.ConfirmAppointment(ctx, req.BookingID, confirmed)

	c.mu.Lock()
	if c.seq != seq || c.visible == nil {
		c.mu.Unlock()
		return err
	}

	if err != nil {
		c.visible.phase = Visible{
			Remaining: req.Remaining(c.opts.Now()),
			Error:     errorMessage(err),
		}
		c.emitLocked()
		c.mu.Unlock()
		c.opts.Logger.Warn("confirmation answer failed",
			zap.Int("booking", req.BookingID), zap.Bool("confirmed", confirmed), zap.Error(err))
		return err
	}

	msg := "Appointment confirmed. The workshop has been notified."
	var outcome Phase = Confirmed{Message: msg}
	if !confirmed {
		msg = "Appointment declined. The booking has been cancelled."
		outcome = Declined{Message: msg}
	}
	c.visible.phase = outcome
	c.outcomeTimer = time.AfterFunc(c.opts.OutcomeDelay, func() { c.advance(seq) })
	c.emitLocked()
	c.mu.Unlock()

	c.opts.Logger.Info("confirmation answered",
		zap.Int("booking", req.BookingID), zap.Bool("confirmed", confirmed))
	c.logOutcome(record(req, outcome, msg))
	if !confirmed {
		c.publish(&events.StatusChanged{BookingID: req.BookingID, Status: events.StatusCancelled})
	}
	return nil
}

// advance replaces a resolved request with the next one, unless the slot has
// changed since the outcome was scheduled.
func (c *Coordinator) advance(seq int) {
	c.mu.Lock()
	if c.seq != seq || c.visible == nil {
		c.mu.Unlock()
		return
	}
	c.clearVisibleLocked()
	shownEv := c.showNextLocked(c.opts.Now())
	c.emitLocked()
	c.mu.Unlock()

	c.publish(shownEv)
}

// tick refreshes the countdown and expires the visible request when its
// deadline has passed. An answer in flight is left to resolve.
func (c *Coordinator) tick() {
	c.mu.Lock()
	v := c.visible
	if v == nil {
		c.mu.Unlock()
		return
	}
	vis, ok := v.phase.(Visible)
	if !ok {
		c.mu.Unlock()
		return
	}

	var rec *store.ConfirmationRecord
	vis.Remaining = v.req.Remaining(c.opts.Now())
	if vis.Remaining <= 0 && !vis.InFlight {
		v.phase = Expired{}
		rec = record(v.req, Expired{}, "deadline passed")
	} else {
		v.phase = vis
	}
	c.emitLocked()
	c.mu.Unlock()

	if rec != nil {
		c.opts.Logger.Info("confirmation request expired", zap.Int("booking", v.req.BookingID))
	}
	c.logOutcome(rec)
}

func (c *Coordinator) clearVisibleLocked() {
	c.visible = nil
	c.seq++
	if c.outcomeTimer != nil {
		c.outcomeTimer.Stop()
		c.outcomeTimer = nil
	}
}

// showNextLocked makes the oldest live queued request visible and returns
// the bus event announcing it. Requests that expired while queued are
// dropped.
func (c *Coordinator) showNextLocked(now time.Time) *events.StatusChanged {
	for len(c.queue) > 0 {
		req := c.queue[0]
		c.queue = c.queue[1:]

		remaining := req.Remaining(now)
		if remaining <= 0 {
			c.opts.Logger.Info("dropping confirmation request expired in queue",
				zap.Int("booking", req.BookingID))
			continue
		}

		c.seq++
		c.visible = &slot{req: req, phase: Visible{Remaining: remaining}}
		return &events.StatusChanged{BookingID: req.BookingID, Status: events.StatusConfirmationRequired}
	}
	return nil
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{Queued: len(c.queue)}
	if c.visible != nil {
		req := c.visible.req
		snap.Request = &req
		snap.Phase = c.visible.phase
	}
	return snap
}

// emitLocked offers the current snapshot to every subscriber without
// blocking, replacing any snapshot not consumed yet.
func (c *Coordinator) emitLocked() {
	for _, ch := range c.subs {
		snap := c.snapshotLocked()
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Coordinator) publish(ev *events.StatusChanged) {
	if ev == nil || c.opts.Bus == nil {
		return
	}
	c.opts.Bus.Publish(*ev)
}

func (c *Coordinator) logOutcome(rec *store.ConfirmationRecord) {
	if rec == nil || c.opts.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := c.opts.History.LogConfirmation(ctx, *rec); err != nil {
		c.opts.Logger.Warn("recording confirmation outcome failed",
			zap.Int("booking", rec.BookingID), zap.Error(err))
	}
}

func record(req model.ConfirmationRequest, outcome Phase, detail string) *store.ConfirmationRecord {
	return &store.ConfirmationRecord{
		BookingID:      req.BookingID,
		NotificationID: req.NotificationID,
		Outcome:        outcome.String(),
		Detail:         detail,
	}
}

// errorMessage maps a failed answer to the inline dialog message.
func errorMessage(err error) string {
	switch api.KindOf(err) {
	case api.KindAuth:
		return "You are not authorized to respond to this appointment."
	case api.KindNotFound:
		return "Booking not found. It may have been removed."
	case api.KindValidation:
		return "This appointment has already been processed."
	case api.KindConnectivity:
		return "Unable to reach the server. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
