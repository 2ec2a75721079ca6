package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/api"
	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/model"
)

// SyncState represents the current state of the due-booking check.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the state of the last due-booking check.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// PollResultMsg is a tea.Msg sent when a due-booking check completes.
type PollResultMsg struct {
	Checked   int
	Submitted int
	Error     error
	AuthError bool
}

// fetchTimeout is the maximum time allowed for a single check.
const fetchTimeout = 30 * time.Second

// BookingSource lists the bookings relevant to the signed-in user.
type BookingSource interface {
	GetWorkshopBookings(ctx context.Context, workshopID int) ([]model.Booking, error)
	GetMyCars(ctx context.Context) ([]model.Car, error)
	GetCarBookings(ctx context.Context, carID int) ([]model.Booking, error)
}

// Submitter accepts detected confirmation requests.
type Submitter interface {
	Submit(req model.ConfirmationRequest, src confirm.Source) bool
}

// Options configures a Poller.
type Options struct {
	Bookings    BookingSource
	Coordinator Submitter
	Session     func(ctx context.Context) *model.Session

	InitialDelay time.Duration
	Interval     time.Duration

	// WindowBefore and WindowAfter bound how far an appointment may lie
	// before or after now to count as due.
	WindowBefore time.Duration
	WindowAfter  time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

// Poller periodically checks the user's bookings for appointments that are
// due and need confirmation. It is the fallback for missed push events.
type Poller struct {
	opts      Options
	status    SyncStatus
	resultCh  chan PollResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	mu        gosync.Mutex
	running   bool
	wg        gosync.WaitGroup
}

// New creates a Poller. Zero durations fall back to a 2 second initial
// delay, a 30 second interval and a [-5m, +15m] window.
func New(opts Options) *Poller {
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 2 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.WindowBefore <= 0 {
		opts.WindowBefore = 5 * time.Minute
	}
	if opts.WindowAfter <= 0 {
		opts.WindowAfter = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Poller{
		opts:      opts,
		resultCh:  make(chan PollResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
	}
}

// Start returns a tea.Cmd that starts the polling goroutine and waits for
// the first result. It returns nil if the poller is already running.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(stopCh)

	return p.waitForResult()
}

// Stop halts the polling goroutine and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Refresh triggers an immediate check.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// Status returns the state of the last check.
func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// WaitForNextResult returns a tea.Cmd that waits for the next check result.
// Call it after handling a PollResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}

func (p *Poller) loop(stopCh <-chan struct{}) {
	defer p.wg.Done()

	initial := time.NewTimer(p.opts.InitialDelay)
	defer initial.Stop()

	select {
	case <-stopCh:
		return
	case <-initial.C:
	case <-p.triggerCh:
	}
	p.checkAndSubmit()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.checkAndSubmit()
		case <-p.triggerCh:
			p.checkAndSubmit()
		}
	}
}

// checkAndSubmit runs one check and publishes its result.
func (p *Poller) checkAndSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	p.setStatus(SyncRunning, nil)
	result := p.check(ctx)
	if result.Error != nil {
		p.setStatus(SyncError, result.Error)
		p.opts.Logger.Warn("due booking check failed", zap.Error(result.Error))
	} else {
		p.setStatus(SyncIdle, nil)
	}
	p.sendResult(result)
}

// check fetches the user's bookings and submits every due one.
func (p *Poller) check(ctx context.Context) PollResultMsg {
	session := p.opts.Session(ctx)
	if !session.Authenticated(p.opts.Now()) {
		return PollResultMsg{}
	}

	bookings, err := p.fetchBookings(ctx, session)
	result := PollResultMsg{Checked: len(bookings), Error: err, AuthError: api.IsAuthError(err)}

	now := p.opts.Now()
	for _, b := range DueBookings(bookings, now, p.opts.WindowBefore, p.opts.WindowAfter) {
		if p.opts.Coordinator.Submit(requestFor(b, now), confirm.SourcePoll) {
			result.Submitted++
		}
	}
	return result
}

// fetchBookings returns the workshop's bookings for workshop users and the
// bookings of every owned car for car owners. Bookings fetched before a
// per-car failure are still returned.
func (p *Poller) fetchBookings(ctx context.Context, session *model.Session) ([]model.Booking, error) {
	if session.Role == model.RoleWorkshop {
		if session.WorkshopID == nil {
			return nil, errors.New("workshop session without workshop id")
		}
		bookings, err := p.opts.Bookings.GetWorkshopBookings(ctx, *session.WorkshopID)
		if err != nil {
			return nil, fmt.Errorf("fetching workshop bookings: %w", err)
		}
		return bookings, nil
	}

	cars, err := p.opts.Bookings.GetMyCars(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching cars: %w", err)
	}

	var (
		all      []model.Booking
		firstErr error
	)
	for _, car := range cars {
		bookings, err := p.opts.Bookings.GetCarBookings(ctx, car.ID)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetching bookings for car %d: %w", car.ID, err)
			}
			continue
		}
		all = append(all, bookings...)
	}
	return all, firstErr
}

// DueBookings returns the confirmed bookings whose appointment lies within
// [now-before, now+after].
func DueBookings(bookings []model.Booking, now time.Time, before, after time.Duration) []model.Booking {
	from, to := now.Add(-before), now.Add(after)

	var due []model.Booking
	for _, b := range bookings {
		if b.Status != model.BookingConfirmed {
			continue
		}
		if b.AppointmentDate.Before(from) || b.AppointmentDate.After(to) {
			continue
		}
		due = append(due, b)
	}
	return due
}

// requestFor builds the confirmation request for a due booking. The
// appointment time is the deadline.
func requestFor(b model.Booking, now time.Time) model.ConfirmationRequest {
	what := b.ServiceName
	if what == "" {
		what = fmt.Sprintf("booking #%d", b.ID)
	}
	return model.ConfirmationRequest{
		BookingID:            b.ID,
		Title:                "Appointment Confirmation",
		Message:              fmt.Sprintf("Your appointment for %s is about to start. Please confirm you will attend.", what),
		ConfirmationDeadline: b.AppointmentDate,
		CreatedAt:            now,
	}
}

// setStatus updates the check status.
func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state == SyncIdle && err == nil {
		p.status.LastSync = p.opts.Now()
	}
}

// sendResult sends a PollResultMsg on the result channel without blocking.
func (p *Poller) sendResult(msg PollResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the poller
	}
}

// waitForResult returns a tea.Cmd that waits for the next result from the
// result channel.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}
