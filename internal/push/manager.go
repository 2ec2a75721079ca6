package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/model"
)

// Hub method names.
const (
	MethodReceiveNotification = "ReceiveNotification"
	MethodJoinUserGroup       = "JoinUserGroup"
	MethodJoinWorkshopGroup   = "JoinWorkshopGroup"
)

// joinTimeout bounds each group join invocation.
const joinTimeout = 10 * time.Second

// SessionFunc returns the signed-in session, or nil when unauthenticated.
type SessionFunc func(ctx context.Context) *model.Session

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Session SessionFunc

	// NewConn builds a fresh hub connection for every start attempt.
	NewConn func() Conn

	// MaxRetries and RetryBase control the outer retry loop entered when a
	// start attempt fails or the transport gives up: attempt n waits
	// RetryBase * n.
	MaxRetries int
	RetryBase  time.Duration

	Logger *zap.Logger
}

// Manager owns the push channel: connection state, group membership and
// the retry loop layered over the transport's own reconnects.
type Manager struct {
	opts ManagerOptions

	mu          sync.Mutex
	state       model.ConnectionState
	conn        Conn
	gen         int
	session     *model.Session
	intentional bool
	attempts    int
	retryTimer  *time.Timer

	onNotification func(model.RawEvent)
	onConnected    func()
	stateListeners []func(model.ConnectionState)
}

// NewManager creates a disconnected Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 5 * time.Second
	}
	return &Manager{opts: opts}
}

// OnNotification registers the receiver of decoded hub notifications.
func (m *Manager) OnNotification(fn func(model.RawEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onNotification = fn
}

// OnConnected registers the catch-up callback run after every successful
// connect or reconnect.
func (m *Manager) OnConnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnected = fn
}

// OnStateChange registers a listener for connection state transitions.
func (m *Manager) OnStateChange(fn func(model.ConnectionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateListeners = append(m.stateListeners, fn)
}

// State returns the current connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartConnection opens the push channel. It does nothing when the user is
// not authenticated or a connection is already open or opening. Failures are
// logged and handed to the retry loop.
func (m *Manager) StartConnection(ctx context.Context) {
	m.start(ctx, nil)
}

// start opens the push channel. A retry passes the generation it was
// scheduled in and is abandoned if the channel was stopped or restarted
// since.
func (m *Manager) start(ctx context.Context, retryGen *int) {
	session := m.opts.Session(ctx)
	if !session.Authenticated(time.Now()) {
		m.opts.Logger.Debug("not starting push channel: unauthenticated")
		return
	}

	m.mu.Lock()
	if retryGen != nil && (m.intentional || m.gen != *retryGen) {
		m.mu.Unlock()
		m.opts.Logger.Debug("dropping superseded push channel retry")
		return
	}
	if m.state == model.Connected || m.state == model.Connecting {
		m.mu.Unlock()
		return
	}
	stale := m.conn
	m.gen++
	gen := m.gen
	m.intentional = false
	m.session = session
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.opts.NewConn()
	m.conn = conn
	notify := m.setStateLocked(model.Connecting)
	m.mu.Unlock()
	notify()

	if stale != nil {
		stale.Stop()
	}

	m.wire(conn, gen)

	if err := conn.Start(ctx); err != nil {
		m.opts.Logger.Warn("push channel connect failed", zap.Error(err))
		conn.Stop()

		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		notify := m.setStateLocked(model.Disconnected)
		m.scheduleRetryLocked()
		m.mu.Unlock()
		notify()
		return
	}

	m.opts.Logger.Info("push channel connected", zap.String("user", session.UserID))
	m.connected(gen)
}

// StopConnection closes the push channel and cancels any pending retry. It
// is idempotent.
func (m *Manager) StopConnection() {
	m.mu.Lock()
	m.intentional = true
	m.gen++
	m.attempts = 0
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	conn := m.conn
	m.conn = nil
	notify := m.setStateLocked(model.Disconnected)
	m.mu.Unlock()
	notify()

	if conn != nil {
		conn.Stop()
	}
}

// wire registers the hub handlers and transport callbacks on conn. Callbacks
// from a connection that has since been replaced or stopped are ignored.
func (m *Manager) wire(conn Conn, gen int) {
	conn.On(MethodReceiveNotification, func(args []json.RawMessage) {
		m.receive(gen, args)
	})

	conn.OnReconnecting(func(err error) {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		notify := m.setStateLocked(model.Reconnecting)
		m.mu.Unlock()
		notify()
		m.opts.Logger.Warn("push channel reconnecting", zap.Error(err))
	})

	conn.OnReconnected(func() {
		m.opts.Logger.Info("push channel reconnected")
		m.connected(gen)
	})

	conn.OnClose(func(err error) {
		m.mu.Lock()
		if m.gen != gen {
			m.mu.Unlock()
			return
		}
		m.conn = nil
		notify := m.setStateLocked(model.Disconnected)
		if !m.intentional {
			m.opts.Logger.Warn("push channel closed", zap.Error(err))
			m.scheduleRetryLocked()
		}
		m.mu.Unlock()
		notify()
	})
}

// connected marks the connection open, joins the user's groups and runs the
// catch-up callback.
func (m *Manager) connected(gen int) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.attempts = 0
	conn := m.conn
	session := m.session
	onConnected := m.onConnected
	notify := m.setStateLocked(model.Connected)
	m.mu.Unlock()
	notify()

	m.joinGroups(conn, session)

	if onConnected != nil {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					m.opts.Logger.Error("catch-up panicked", zap.Any("panic", r))
				}
			}()
			onConnected()
		}()
	}
}

func (m *Manager) joinGroups(conn Conn, session *model.Session) {
	if conn == nil || session == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	if err := conn.Invoke(ctx, MethodJoinUserGroup, session.UserID); err != nil {
		m.opts.Logger.Warn("joining user group failed", zap.String("user", session.UserID), zap.Error(err))
	}

	if session.Role == model.RoleWorkshop && session.WorkshopID != nil {
		id := strconv.Itoa(*session.WorkshopID)
		if err := conn.Invoke(ctx, MethodJoinWorkshopGroup, id); err != nil {
			m.opts.Logger.Warn("joining workshop group failed", zap.String("workshop", id), zap.Error(err))
		}
	}
}

// receive decodes a ReceiveNotification invocation and hands the event on.
func (m *Manager) receive(gen int, args []json.RawMessage) {
	m.mu.Lock()
	current := m.gen == gen
	fn := m.onNotification
	m.mu.Unlock()
	if !current || fn == nil {
		return
	}

	if len(args) == 0 {
		m.opts.Logger.Warn("notification invocation without arguments")
		return
	}

	var ev model.RawEvent
	if err := json.Unmarshal(args[0], &ev); err != nil {
		m.opts.Logger.Warn("dropping undecodable notification", zap.Error(err))
		return
	}
	fn(ev)
}

// scheduleRetryLocked arms the next manual retry, or gives up once the
// attempt budget is spent.
func (m *Manager) scheduleRetryLocked() {
	if m.intentional {
		return
	}
	if m.attempts >= m.opts.MaxRetries {
		m.opts.Logger.Error("push channel giving up",
			zap.Int("attempts", m.attempts),
			zap.Error(fmt.Errorf("no connection after %d retries", m.attempts)),
		)
		return
	}

	m.attempts++
	delay := m.opts.RetryBase * time.Duration(m.attempts)
	m.opts.Logger.Info("push channel retry scheduled",
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay),
	)
	gen := m.gen
	m.retryTimer = time.AfterFunc(delay, func() {
		m.mu.Lock()
		if m.gen != gen || m.intentional {
			m.mu.Unlock()
			return
		}
		m.retryTimer = nil
		m.mu.Unlock()
		m.start(context.Background(), &gen)
	})
}

// setStateLocked records the new state and returns a function that
// notifies listeners. Call the returned function after releasing the lock.
func (m *Manager) setStateLocked(s model.ConnectionState) func() {
	if m.state == s {
		return func() {}
	}
	m.state = s
	listeners := make([]func(model.ConnectionState), len(m.stateListeners))
	copy(listeners, m.stateListeners)
	return func() {
		for _, l := range listeners {
			l(s)
		}
	}
}
