package app

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/model"
	"github.com/nhle/autohub/internal/ui/jobboard"
)

// inboxSize bounds the callbacks waiting for the UI loop.
const inboxSize = 64

// toastMsg carries a notification that deserves a transient toast.
type toastMsg struct {
	notification model.Notification
}

// reviewPromptMsg asks the car owner to review a completed booking.
type reviewPromptMsg struct {
	notification model.Notification
}

// connectionMsg carries a push channel state change.
type connectionMsg struct {
	state model.ConnectionState
}

// Inbox turns callbacks fired on background goroutines into bubbletea
// messages. Sends never block; when the UI falls behind, the newest
// callbacks are dropped and logged. Connection states are kept apart and
// only the latest one is delivered.
type Inbox struct {
	ch     chan tea.Msg
	conn   chan model.ConnectionState
	logger *zap.Logger
}

// NewInbox creates an Inbox.
func NewInbox(logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{
		ch:     make(chan tea.Msg, inboxSize),
		conn:   make(chan model.ConnectionState, 1),
		logger: logger,
	}
}

// Toast is a notify.Options.OnToast callback.
func (in *Inbox) Toast(n model.Notification) {
	in.send(toastMsg{notification: n})
}

// ReviewPrompt is a notify.Options.OnReviewPrompt callback.
func (in *Inbox) ReviewPrompt(n model.Notification) {
	in.send(reviewPromptMsg{notification: n})
}

// ConnectionChanged is a push.Manager state listener.
func (in *Inbox) ConnectionChanged(s model.ConnectionState) {
	for {
		select {
		case in.conn <- s:
			return
		default:
		}
		select {
		case <-in.conn:
		default:
		}
	}
}

// StatusChanged is an events.Bus listener.
func (in *Inbox) StatusChanged(ev events.StatusChanged) {
	in.send(jobboard.StatusMsg(ev))
}

func (in *Inbox) send(msg tea.Msg) {
	select {
	case in.ch <- msg:
	default:
		in.logger.Warn("ui inbox full, dropping message")
	}
}

// Wait returns a tea.Cmd that waits for the next callback. Call it again
// after handling each message to keep listening.
func (in *Inbox) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-in.conn:
			return connectionMsg{state: s}
		case msg := <-in.ch:
			return msg
		}
	}
}
