package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/confirm"
	"github.com/nhle/autohub/internal/events"
	"github.com/nhle/autohub/internal/keys"
	"github.com/nhle/autohub/internal/model"
	appsync "github.com/nhle/autohub/internal/sync"
	"github.com/nhle/autohub/internal/theme"
	"github.com/nhle/autohub/internal/ui"
	"github.com/nhle/autohub/internal/ui/command"
	"github.com/nhle/autohub/internal/ui/dialog"
	helpview "github.com/nhle/autohub/internal/ui/help"
	"github.com/nhle/autohub/internal/ui/jobboard"
	"github.com/nhle/autohub/internal/ui/panel"
)

const (
	// toastDuration is how long a toast or review prompt stays visible.
	toastDuration = 6 * time.Second
	// answerTimeout bounds a confirm or decline call.
	answerTimeout = 30 * time.Second
)

// Commands lists the names accepted by the command palette.
var Commands = []string{
	"refresh",
	"mark all read",
	"clear",
	"unread",
	"reconnect",
	"disconnect",
	"help",
	"quit",
}

// jobVerbs are the workshop palette verbs, in the order they are offered.
var jobVerbs = []string{"start", "ready", "complete"}

// jobCommands maps workshop palette verbs to booking statuses.
var jobCommands = map[string]string{
	"start":    model.BookingInProgress,
	"ready":    model.BookingReady,
	"complete": model.BookingCompleted,
}

// Confirmations is the confirmation workflow as seen by the UI.
type Confirmations interface {
	Confirm(ctx context.Context) error
	Decline(ctx context.Context) error
	Close()
	Subscribe() (<-chan confirm.Snapshot, func())
}

// Notifications are the panel's mutating operations.
type Notifications interface {
	MarkRead(id string)
	MarkAllRead()
	Delete(id string)
	Clear()
}

// Feed streams the notification store contents.
type Feed interface {
	Subscribe() (<-chan []model.Notification, func())
}

// Poller is the due-booking poller.
type Poller interface {
	Start() tea.Cmd
	Stop()
	Refresh()
	WaitForNextResult() tea.Cmd
}

// Channel is the push channel.
type Channel interface {
	StartConnection(ctx context.Context)
	StopConnection()
	State() model.ConnectionState
}

// Bookings moves workshop jobs through their lifecycle.
type Bookings interface {
	UpdateBookingStatus(ctx context.Context, bookingID int, status string) error
}

// Deps are the services the root model drives.
type Deps struct {
	Session       *model.Session
	Confirmations Confirmations
	Notifications Notifications
	Feed          Feed
	Poller        Poller
	Channel       Channel
	Bookings      Bookings
	Inbox         *Inbox
	Logger        *zap.Logger
}

// snapshotMsg carries a coordinator snapshot.
type snapshotMsg confirm.Snapshot

// answerDoneMsg reports a finished confirm or decline call. The outcome
// itself arrives as a snapshot.
type answerDoneMsg struct {
	bookingID int
	err       error
}

// bookingUpdatedMsg reports a finished job status change.
type bookingUpdatedMsg struct {
	bookingID int
	status    string
	err       error
}

// noticeExpiredMsg hides the notice line unless a newer one replaced it.
type noticeExpiredMsg struct {
	seq int
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewPanel ViewState = iota
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that manages view routing, layout
// and the streams coming from the background services.
type Model struct {
	deps Deps

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	panel        panel.Model
	dialog       dialog.Model
	jobBoard     jobboard.Model
	helpView     helpview.Model
	commandView  command.Model

	snapshots         <-chan confirm.Snapshot
	stopSnapshots     func()
	notifications     <-chan []model.Notification
	stopNotifications func()

	connection    model.ConnectionState
	notice        string
	noticeSeq     int
	statusMessage string
	ready         bool
}

// New creates the root model and subscribes to the coordinator and the
// notification store.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	k := keys.DefaultKeyMap()
	role := model.RoleCarOwner
	if deps.Session != nil {
		role = deps.Session.Role
	}

	m := Model{
		deps:        deps,
		currentView: ViewPanel,
		keys:        k,
		panel:       panel.New(k, 80, 20),
		dialog:      dialog.New(k, 80),
		jobBoard:    jobboard.New(role),
		helpView:    helpview.New(k, append(Commands, "start <id>", "ready <id>", "complete <id>"), 80, 24),
	}
	var verbs []string
	if role == model.RoleWorkshop {
		verbs = jobVerbs
	}
	m.commandView = command.New(Commands, verbs, 80, 24)
	if deps.Channel != nil {
		m.connection = deps.Channel.State()
	}
	m.snapshots, m.stopSnapshots = deps.Confirmations.Subscribe()
	m.notifications, m.stopNotifications = deps.Feed.Subscribe()
	return m
}

// Init starts listening to every stream, opens the push channel and starts
// the due-booking poller.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForSnapshot(m.snapshots),
		waitForNotifications(m.notifications),
	}
	if m.deps.Inbox != nil {
		cmds = append(cmds, m.deps.Inbox.Wait())
	}
	if m.deps.Poller != nil {
		cmds = append(cmds, m.deps.Poller.Start())
	}
	if ch := m.deps.Channel; ch != nil {
		cmds = append(cmds, func() tea.Msg {
			ch.StartConnection(context.Background())
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.panel.SetSize(contentWidth, contentHeight)
		m.dialog.SetWidth(contentWidth)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		return m, nil

	case snapshotMsg:
		m.dialog.SetSnapshot(confirm.Snapshot(msg))
		return m, waitForSnapshot(m.snapshots)

	case panel.NotificationsLoadedMsg:
		var cmd tea.Cmd
		m.panel, cmd = m.panel.Update(msg)
		return m, tea.Batch(cmd, waitForNotifications(m.notifications))

	case toastMsg:
		cmd := m.showNotice(theme.ToastStyle.Render(msg.notification.Title) + " " + msg.notification.Message)
		return m, tea.Batch(cmd, m.deps.Inbox.Wait())

	case reviewPromptMsg:
		text := "How was your service? Leave a review for your completed booking."
		if id := msg.notification.Data.BookingID; id != nil {
			text = fmt.Sprintf("How was your service? Leave a review for booking #%d.", *id)
		}
		cmd := m.showNotice(theme.SuccessStyle.Render(text))
		return m, tea.Batch(cmd, m.deps.Inbox.Wait())

	case connectionMsg:
		m.connection = msg.state
		return m, m.deps.Inbox.Wait()

	case jobboard.StatusMsg:
		m.jobBoard.Apply(events.StatusChanged(msg))
		return m, m.deps.Inbox.Wait()

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case appsync.PollResultMsg:
		switch {
		case msg.AuthError:
			m.statusMessage = "Session expired. Sign in again to receive confirmations."
		case msg.Error != nil:
			m.statusMessage = "Booking check failed. Retrying shortly."
		default:
			m.statusMessage = ""
		}
		return m, m.deps.Poller.WaitForNextResult()

	case dialog.AnswerMsg:
		return m, m.answer(msg)

	case dialog.CloseMsg:
		c := m.deps.Confirmations
		return m, func() tea.Msg {
			c.Close()
			return nil
		}

	case answerDoneMsg:
		if msg.err != nil {
			m.deps.Logger.Debug("appointment answer failed",
				zap.Int("booking", msg.bookingID), zap.Error(msg.err))
		}
		return m, nil

	case bookingUpdatedMsg:
		if msg.err != nil {
			m.deps.Logger.Warn("booking status update failed",
				zap.Int("booking", msg.bookingID), zap.String("status", msg.status), zap.Error(msg.err))
			return m, m.showNotice(theme.ErrorStyle.Render(
				fmt.Sprintf("Could not update booking #%d: %v", msg.bookingID, msg.err)))
		}
		return m, m.showNotice(theme.SuccessStyle.Render(
			fmt.Sprintf("Booking #%d is now %s", msg.bookingID, msg.status)))

	case panel.MarkReadMsg:
		return m, m.mutate(func(n Notifications) { n.MarkRead(msg.ID) })

	case panel.MarkAllReadMsg:
		return m, m.mutate(Notifications.MarkAllRead)

	case panel.DeleteMsg:
		return m, m.mutate(func(n Notifications) { n.Delete(msg.ID) })

	case panel.ClearMsg:
		return m, m.mutate(Notifications.Clear)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case command.JobMsg:
		m.currentView = m.previousView
		return m, m.updateBooking(msg.BookingID, jobCommands[msg.Verb])

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}

		// The confirmation dialog is modal.
		if m.dialog.Active() && m.currentView == ViewPanel {
			var cmd tea.Cmd
			m.dialog, cmd = m.dialog.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q":
			if m.currentView == ViewPanel {
				return m, m.quit()
			}

		case "?":
			if m.currentView == ViewCommand {
				break
			}
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case ":":
			if m.currentView == ViewCommand {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case "esc":
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}

		case "r":
			if m.currentView == ViewPanel && m.deps.Poller != nil {
				m.deps.Poller.Refresh()
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewPanel:
		m.panel, cmd = m.panel.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("AutoHub", m.panel.UnreadCount(), m.connection)
	content := m.renderContent()
	info := []string{m.jobBoard.View(), m.notice}
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, info, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	}

	if m.dialog.Active() {
		return lipgloss.Place(
			m.layout.ContentWidth(),
			m.layout.ContentHeight(),
			lipgloss.Center,
			lipgloss.Center,
			m.dialog.View(),
		)
	}
	return m.panel.View()
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.statusMessage != "" && m.currentView == ViewPanel {
		return m.statusMessage
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	}

	if m.dialog.Active() {
		if vis, ok := m.dialog.Snapshot().Phase.(confirm.Visible); ok && vis.Actionable() {
			return "y confirm | n decline | esc close"
		}
		return "esc close"
	}
	return "q quit | ? help | : command | enter read | A read all | d delete | r check bookings"
}

// showNotice replaces the notice line and schedules its removal.
func (m *Model) showNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// answer returns a command that submits the viewer's answer.
func (m Model) answer(msg dialog.AnswerMsg) tea.Cmd {
	c := m.deps.Confirmations
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
		defer cancel()

		var err error
		if msg.Confirmed {
			err = c.Confirm(ctx)
		} else {
			err = c.Decline(ctx)
		}
		return answerDoneMsg{bookingID: msg.BookingID, err: err}
	}
}

// mutate runs a notification change off the UI loop. The result arrives
// through the store subscription.
func (m Model) mutate(fn func(Notifications)) tea.Cmd {
	n := m.deps.Notifications
	return func() tea.Msg {
		fn(n)
		return nil
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "refresh", "check":
		if m.deps.Poller != nil {
			m.deps.Poller.Refresh()
		}
		return nil
	case "mark all read", "read all":
		return m.mutate(Notifications.MarkAllRead)
	case "clear":
		return m.mutate(Notifications.Clear)
	case "unread":
		return m.panel.ToggleUnreadOnly()
	case "reconnect":
		ch := m.deps.Channel
		if ch == nil {
			return nil
		}
		return func() tea.Msg {
			ch.StopConnection()
			ch.StartConnection(context.Background())
			return nil
		}
	case "disconnect":
		ch := m.deps.Channel
		if ch == nil {
			return nil
		}
		return func() tea.Msg {
			ch.StopConnection()
			return nil
		}
	case "help":
		m.previousView = ViewPanel
		m.currentView = ViewHelp
		return nil
	case "quit", "q":
		return m.quit()
	}

	if fields := strings.Fields(cmd); len(fields) == 2 {
		if _, ok := jobCommands[fields[0]]; ok {
			m.statusMessage = "Only workshop users can update jobs."
			return nil
		}
	}
	m.statusMessage = fmt.Sprintf("Unknown command: %s", cmd)
	return nil
}

// updateBooking returns a command that moves a workshop job to status.
func (m *Model) updateBooking(id int, status string) tea.Cmd {
	if status == "" || m.deps.Bookings == nil || m.deps.Session == nil || m.deps.Session.Role != model.RoleWorkshop {
		m.statusMessage = "Only workshop users can update jobs."
		return nil
	}

	b := m.deps.Bookings
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
		defer cancel()
		return bookingUpdatedMsg{
			bookingID: id,
			status:    status,
			err:       b.UpdateBookingStatus(ctx, id, status),
		}
	}
}

// quit stops the background work owned by the UI and exits. The services
// themselves are shut down by the caller once the program returns.
func (m *Model) quit() tea.Cmd {
	if m.deps.Poller != nil {
		m.deps.Poller.Stop()
	}
	if m.deps.Channel != nil {
		m.deps.Channel.StopConnection()
	}
	m.stopSnapshots()
	m.stopNotifications()
	return tea.Quit
}
