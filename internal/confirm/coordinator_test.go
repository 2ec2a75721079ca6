package confirm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nhle/autohub/internal/api"
	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type answer struct {
	bookingID int
	confirmed bool
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []answer
	err   error
	gate  chan struct{}
}

func (f *fakeAPI) ConfirmAppointment(ctx context.Context, bookingID int, confirmed bool) error {
	f.mu.Lock()
	f.calls = append(f.calls, answer{bookingID, confirmed})
	gate, err := f.gate, f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []store.ConfirmationRecord
}

func (h *fakeHistory) LogConfirmation(ctx context.Context, rec store.ConfirmationRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) outcomes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range h.records {
		out = append(out, r.Outcome)
	}
	return out
}

type harness struct {
	c       *Coordinator
	clock   *clock
	api     *fakeAPI
	history *fakeHistory
	bus     *events.Bus

	mu     sync.Mutex
	events []events.StatusChanged
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
		api:     &fakeAPI{},
		history: &fakeHistory{},
		bus:     events.New(),
	}
	h.bus.Subscribe(func(ev events.StatusChanged) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	})
	h.c = New(Options{
		API:          h.api,
		Bus:          h.bus,
		History:      h.history,
		OutcomeDelay: 50 * time.Millisecond,
		Now:          h.clock.Now,
	})
	t.Cleanup(h.c.Stop)
	return h
}

func (h *harness) request(bookingID int, in time.Duration) model.ConfirmationRequest {
	return model.ConfirmationRequest{
		NotificationID:       bookingID * 10,
		BookingID:            bookingID,
		Title:                "Confirm your appointment",
		Message:              "Please confirm",
		ConfirmationDeadline: h.clock.Now().Add(in),
		CreatedAt:            h.clock.Now(),
	}
}

func (h *harness) busEvents() []events.StatusChanged {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.StatusChanged, len(h.events))
	copy(out, h.events)
	return out
}

func visibleBooking(t *testing.T, c *Coordinator) int {
	t.Helper()
	snap := c.Current()
	if snap.Request == nil {
		t.Fatal("Expected a visible request")
	}
	return snap.Request.BookingID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{3 * time.Minute, "3m 00s"},
		{125*time.Second + 900*time.Millisecond, "2m 05s"},
		{59 * time.Second, "0m 59s"},
		{-time.Second, "0m 00s"},
		{15 * time.Minute, "15m 00s"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.d); got != tt.want {
			t.Errorf("FormatCountdown(%v) = %q, expected %q", tt.d, got, tt.want)
		}
	}
}

func TestSubmitShowsRequestWithCountdown(t *testing.T) {
	h := newHarness(t)

	if !h.c.Submit(h.request(42, 3*time.Minute), SourcePoll) {
		t.Fatal("Expected request to be accepted")
	}

	snap := h.c.Current()
	vis, ok := snap.Phase.(Visible)
	if !ok {
		t.Fatalf("Expected visible phase, got %v", snap.Phase)
	}
	if vis.Countdown() != "3m 00s" {
		t.Errorf("Expected 3m 00s, got %s", vis.Countdown())
	}

	h.clock.Advance(5 * time.Second)
	h.c.tick()
	vis = h.c.Current().Phase.(Visible)
	if vis.Countdown() != "2m 55s" {
		t.Errorf("Expected 2m 55s, got %s", vis.Countdown())
	}

	evs := h.busEvents()
	if len(evs) != 1 || evs[0] != (events.StatusChanged{BookingID: 42, Status: events.StatusConfirmationRequired}) {
		t.Errorf("Expected confirmation-required event, got %+v", evs)
	}
}

func TestSameBookingSurfacedOnce(t *testing.T) {
	h := newHarness(t)

	if !h.c.Submit(h.request(42, time.Minute), SourcePush) {
		t.Fatal("Expected push request to be accepted")
	}
	if h.c.Submit(h.request(42, time.Minute), SourcePoll) {
		t.Error("Expected poll duplicate to be dropped")
	}
	if h.c.Submit(h.request(42, time.Minute), SourceCatchUp) {
		t.Error("Expected catch-up duplicate to be dropped")
	}

	h.c.Close()
	if h.c.Submit(h.request(42, time.Minute), SourcePoll) {
		t.Error("Expected dedup to outlive the dialog")
	}
	if h.c.Current().Request != nil {
		t.Error("Expected nothing visible")
	}
}

func TestDuplicateWhileQueuedIsDropped(t *testing.T) {
	h := newHarness(t)
	h.c.Submit(h.request(1, time.Minute), SourcePush)
	h.c.Submit(h.request(2, time.Minute), SourcePush)

	if h.c.Submit(h.request(2, time.Minute), SourcePoll) {
		t.Error("Expected queued duplicate to be dropped")
	}
	if h.c.Current().Queued != 1 {
		t.Errorf("Expected 1 queued, got %d", h.c.Current().Queued)
	}
}

func TestPastDeadlineIsDropped(t *testing.T) {
	h := newHarness(t)

	if h.c.Submit(h.request(7, 0), SourcePush) {
		t.Error("Expected request at deadline to be dropped")
	}
	if h.c.Submit(h.request(8, -time.Minute), SourceCatchUp) {
		t.Error("Expected past request to be dropped")
	}
	if h.c.Current().Request != nil {
		t.Error("Expected nothing visible")
	}
	if len(h.busEvents()) != 0 {
		t.Error("Expected no bus events")
	}
}

func TestQueueIsFIFO(t *testing.T) {
	h := newHarness(t)
	for _, id := range []int{1, 2, 3} {
		h.c.Submit(h.request(id, time.Minute), SourcePush)
	}

	if got := visibleBooking(t, h.c); got != 1 {
		t.Fatalf("Expected booking 1 visible, got %d", got)
	}
	if h.c.Current().Queued != 2 {
		t.Errorf("Expected 2 queued, got %d", h.c.Current().Queued)
	}
	if phase, _ := h.c.Lookup(3); phase != (Pending{Position: 2}) {
		t.Errorf("Expected booking 3 at position 2, got %v", phase)
	}

	h.c.Close()
	if got := visibleBooking(t, h.c); got != 2 {
		t.Errorf("Expected booking 2 visible, got %d", got)
	}
	h.c.Close()
	if got := visibleBooking(t, h.c); got != 3 {
		t.Errorf("Expected booking 3 visible, got %d", got)
	}
	h.c.Close()
	if h.c.Current().Request != nil {
		t.Error("Expected queue drained")
	}

	var shown []int
	for _, ev := range h.busEvents() {
		shown = append(shown, ev.BookingID)
	}
	if len(shown) != 3 || shown[0] != 1 || shown[1] != 2 || shown[2] != 3 {
		t.Errorf("Expected announcements in order 1,2,3, got %v", shown)
	}
}

func TestExpiryDisablesActions(t *testing.T) {
	h := newHarness(t)
	h.c.Submit(h.request(5, 2*time.Second), SourcePush)
	h.c.Submit(h.request(6, time.Hour), SourcePush)

	h.clock.Advance(2 * time.Second)
	h.c.tick()

	if _, ok := h.c.Current().Phase.(Expired); !ok {
		t.Fatalf("Expected expired, got %v", h.c.Current().Phase)
	}
	if err := h.c.Confirm(context.Background()); err != nil {
		t.Errorf("Expected no-op confirm, got %v", err)
	}
	if h.api.callCount() != 0 {
		t.Error("Expected no backend call after expiry")
	}
	if visibleBooking(t, h.c) != 5 {
		t.Error("Expected expired dialog to stay until closed")
	}

	h.c.Close()
	if visibleBooking(t, h.c) != 6 {
		t.Error("Expected next request after closing expired one")
	}
	if got := h.history.outcomes(); len(got) != 1 || got[0] != "expired" {
		t.Errorf("Expected a single expired record, got %v", got)
	}
}

func TestSecondActionWhileInFlightIsNoop(t *testing.T) {
	h := newHarness(t)
	h.api.gate = make(chan struct{})
	h.c.Submit(h.request(42, time.Minute), SourcePush)

	done := make(chan error, 1)
	go func() { done <- h.c.Confirm(context.Background()) }()

	waitFor(t, "answer in flight", func() bool {
		vis, ok := h.c.Current().Phase.(Visible)
		return ok && vis.InFlight
	})

	if err := h.c.Decline(context.Background()); err != nil {
		t.Errorf("Expected no-op decline, got %v", err)
	}
	if err := h.c.Confirm(context.Background()); err != nil {
		t.Errorf("Expected no-op confirm, got %v", err)
	}

	close(h.api.gate)
	if err := <-done; err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if h.api.callCount() != 1 {
		t.Errorf("Expected exactly one backend call, got %d", h.api.callCount())
	}
	if _, ok := h.c.Current().Phase.(Confirmed); !ok {
		t.Errorf("Expected confirmed outcome, got %v", h.c.Current().Phase)
	}
}

func TestConfirmShowsOutcomeThenAdvances(t *testing.T) {
	h := newHarness(t)
	h.c.Submit(h.request(1, time.Minute), SourcePush)
	h.c.Submit(h.request(2, time.Minute), SourcePush)

	if err := h.c.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if visibleBooking(t, h.c) != 1 {
		t.Error("Expected outcome shown on the answered request")
	}

	waitFor(t, "advance to next", func() bool {
		snap := h.c.Current()
		return snap.Request != nil && snap.Request.BookingID == 2
	})

	for _, ev := range h.busEvents() {
		if ev.BookingID == 1 && ev.Status != events.StatusConfirmationRequired {
			t.Errorf("Expected confirm to publish nothing, got %+v", ev)
		}
	}
	if got := h.history.outcomes(); len(got) != 1 || got[0] != "confirmed" {
		t.Errorf("Expected confirmed record, got %v", got)
	}
}

func TestDeclinePublishesCancelled(t *testing.T) {
	h := newHarness(t)
	h.c.Submit(h.request(9, time.Minute), SourcePush)

	if err := h.c.Decline(context.Background()); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}

	evs := h.busEvents()
	if len(evs) != 2 || evs[1] != (events.StatusChanged{BookingID: 9, Status: events.StatusCancelled}) {
		t.Errorf("Expected cancelled after decline, got %+v", evs)
	}
	if h.api.calls[0] != (answer{9, false}) {
		t.Errorf("Expected decline call, got %+v", h.api.calls[0])
	}

	waitFor(t, "dialog cleared", func() bool { return h.c.Current().Request == nil })
}

func TestFailedAnswerKeepsRequestActionable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &api.StatusError{Status: http.StatusUnauthorized}, "You are not authorized to respond to this appointment."},
		{"not found", &api.StatusError{Status: http.StatusNotFound}, "Booking not found. It may have been removed."},
		{"already processed", &api.StatusError{Status: http.StatusBadRequest}, "This appointment has already been processed."},
		{"offline", &api.StatusError{Status: 0, Err: errors.New("dial tcp: refused")}, "Unable to reach the server. Check your connection and try again."},
		{"server error", &api.StatusError{Status: http.StatusInternalServerError}, "Something went wrong. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.api.err = tt.err
			h.c.Submit(h.request(3, time.Minute), SourcePush)

			if err := h.c.Confirm(context.Background()); err == nil {
				t.Fatal("Expected error")
			}

			vis, ok := h.c.Current().Phase.(Visible)
			if !ok {
				t.Fatalf("Expected request to stay visible, got %v", h.c.Current().Phase)
			}
			if vis.Error != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, vis.Error)
			}
			if !vis.Actionable() {
				t.Error("Expected request to stay actionable")
			}
			if len(h.history.outcomes()) != 0 {
				t.Error("Expected no outcome recorded")
			}
		})
	}
}

func TestCloseWhileInFlightIgnoresLateResponse(t *testing.T) {
	h := newHarness(t)
	h.api.gate = make(chan struct{})
	h.c.Submit(h.request(1, time.Minute), SourcePush)
	h.c.Submit(h.request(2, time.Minute), SourcePush)

	done := make(chan error, 1)
	go func() { done <- h.c.Confirm(context.Background()) }()
	waitFor(t, "answer in flight", func() bool {
		vis, ok := h.c.Current().Phase.(Visible)
		return ok && vis.InFlight
	})

	h.c.Close()
	close(h.api.gate)
	<-done

	if visibleBooking(t, h.c) != 2 {
		t.Error("Expected booking 2 to stay visible")
	}
	if _, ok := h.c.Current().Phase.(Visible); !ok {
		t.Errorf("Expected booking 2 untouched, got %v", h.c.Current().Phase)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	h := newHarness(t)
	ch, unsubscribe := h.c.Subscribe()
	defer unsubscribe()

	if snap := <-ch; snap.Request != nil {
		t.Fatal("Expected empty initial snapshot")
	}

	h.c.Submit(h.request(1, time.Minute), SourcePush)
	h.c.Submit(h.request(2, time.Minute), SourcePush)

	snap := <-ch
	if snap.Request == nil || snap.Request.BookingID != 1 || snap.Queued != 1 {
		t.Errorf("Expected latest snapshot with 1 queued, got %+v", snap)
	}
}

func TestStartAndStop(t *testing.T) {
	h := newHarness(t)
	h.c.opts.TickInterval = time.Millisecond
	h.c.Submit(h.request(1, time.Second), SourcePush)

	h.c.Start(context.Background())
	h.clock.Advance(time.Second)
	waitFor(t, "ticker expiry", func() bool {
		_, ok := h.c.Current().Phase.(Expired)
		return ok
	})

	h.c.Stop()
	h.c.Stop()
}
