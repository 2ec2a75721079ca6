package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nhle/autohub/internal/credential"
)

const (
	frameInvocation = "invocation"
	framePing       = "ping"

	// Time allowed to write a frame to the hub.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the hub.
	maxFrameSize = 64 * 1024
)

// ErrNotConnected is returned by Invoke while no hub connection is open.
var ErrNotConnected = errors.New("hub not connected")

// Frame is the JSON envelope exchanged with the hub.
type Frame struct {
	Type      string            `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// Handler receives the arguments of a hub invocation.
type Handler func(args []json.RawMessage)

// Conn is a hub connection with its own reconnect policy. Transport is the
// websocket implementation.
type Conn interface {
	Start(ctx context.Context) error
	Stop()
	Invoke(ctx context.Context, target string, args ...any) error
	On(target string, h Handler)
	OnReconnecting(fn func(error))
	OnReconnected(fn func())
	OnClose(fn func(error))
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	URL string

	// Token is called on every dial, including automatic reconnects.
	Token credential.TokenFactory

	// RetryDelays is the wait before each automatic reconnect attempt after
	// an unexpected drop. When every attempt fails OnClose fires.
	RetryDelays []time.Duration

	// PingInterval is the keepalive period; ReadTimeout is how long the
	// connection may stay silent before it counts as dropped.
	PingInterval time.Duration
	ReadTimeout  time.Duration

	Dialer *websocket.Dialer
	Logger *zap.Logger
}

// Transport is a websocket hub connection with a built-in reconnect
// schedule.
type Transport struct {
	opts TransportOptions

	mu             sync.Mutex
	conn           *websocket.Conn
	handlers       map[string]Handler
	onReconnecting func(error)
	onReconnected  func()
	onClose        func(error)
	started        bool
	stopped        bool
	done           chan struct{}

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex
}

var _ Conn = (*Transport)(nil)

// NewTransport creates an unstarted Transport.
func NewTransport(opts TransportOptions) *Transport {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 2 * opts.PingInterval
	}
	return &Transport{
		opts:     opts,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
}

// On registers the handler for invocations of target. Register handlers
// before Start.
func (t *Transport) On(target string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[target] = h
}

// OnReconnecting registers the callback fired when an open connection drops
// unexpectedly and automatic reconnection begins.
func (t *Transport) OnReconnecting(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnecting = fn
}

// OnReconnected registers the callback fired after each successful
// automatic reconnect.
func (t *Transport) OnReconnected(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReconnected = fn
}

// OnClose registers the callback fired when the reconnect schedule is
// exhausted. It is not fired by Stop.
func (t *Transport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

// Start dials the hub once and begins serving frames. A Transport can be
// started only once.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return errors.New("transport already started")
	}
	t.started = true
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	if !t.attach(conn) {
		return errors.New("transport stopped while connecting")
	}

	go t.run(conn)
	return nil
}

// Stop closes the connection and cancels any pending reconnect. It is
// idempotent.
func (t *Transport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.done)
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		t.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.writeMu.Unlock()
		conn.Close()
	}
}

// Invoke sends an invocation of target with args to the hub.
func (t *Transport) Invoke(ctx context.Context, target string, args ...any) error {
	frame := Frame{Type: frameInvocation, Target: target}
	for _, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("encoding %s argument: %w", target, err)
		}
		frame.Arguments = append(frame.Arguments, raw)
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return t.write(conn, frame, deadline)
}

func (t *Transport) write(conn *websocket.Conn, frame Frame, deadline time.Time) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("writing %s frame: %w", frame.Type, err)
	}
	return nil
}

// dial opens a websocket to the hub with a freshly obtained token.
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := t.opts.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting hub token: %w", err)
	}

	u, err := url.Parse(t.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing hub url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := t.opts.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing hub: HTTP %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing hub: %w", err)
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// attach makes conn the current connection unless the transport has been
// stopped, in which case conn is closed.
func (t *Transport) attach(conn *websocket.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		conn.Close()
		return false
	}
	t.conn = conn
	return true
}

func (t *Transport) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// run serves conn and reconnects after unexpected drops until Stop or until
// the retry schedule is exhausted.
func (t *Transport) run(conn *websocket.Conn) {
	for {
		err := t.serve(conn)
		if t.isStopped() {
			return
		}

		t.opts.Logger.Warn("hub connection lost", zap.Error(err))
		t.mu.Lock()
		t.conn = nil
		onReconnecting := t.onReconnecting
		t.mu.Unlock()
		if onReconnecting != nil {
			onReconnecting(err)
		}

		conn = t.reconnect()
		if conn == nil {
			return
		}

		t.mu.Lock()
		onReconnected := t.onReconnected
		t.mu.Unlock()
		if onReconnected != nil {
			onReconnected()
		}
	}
}

// reconnect walks the retry schedule. It returns nil when stopped or when
// every attempt failed, firing OnClose in the latter case.
func (t *Transport) reconnect() *websocket.Conn {
	var lastErr error
	for i, delay := range t.opts.RetryDelays {
		timer := time.NewTimer(delay)
		select {
		case <-t.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		conn, err := t.dial(ctx)
		cancel()
		if err != nil {
			lastErr = err
			t.opts.Logger.Warn("hub reconnect attempt failed",
				zap.Int("attempt", i+1),
				zap.Int("budget", len(t.opts.RetryDelays)),
				zap.Error(err),
			)
			continue
		}
		if !t.attach(conn) {
			return nil
		}
		return conn
	}

	if t.isStopped() {
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("hub reconnect budget exhausted")
	}
	t.mu.Lock()
	onClose := t.onClose
	t.mu.Unlock()
	if onClose != nil {
		onClose(lastErr)
	}
	return nil
}

// serve reads frames from conn until it fails, keeping it alive with pings.
func (t *Transport) serve(conn *websocket.Conn) error {
	quit := make(chan struct{})
	defer func() {
		close(quit)
		conn.Close()
	}()
	go t.keepalive(conn, quit)

	for {
		conn.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		t.dispatch(data)
	}
}

func (t *Transport) keepalive(conn *websocket.Conn, quit <-chan struct{}) {
	ticker := time.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if err := t.write(conn, Frame{Type: framePing}, time.Now().Add(writeWait)); err != nil {
				t.opts.Logger.Debug("hub ping failed", zap.Error(err))
				return
			}
		}
	}
}

// dispatch decodes one frame and runs its handler. A bad frame or a
// panicking handler is logged and does not affect later frames.
func (t *Transport) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.opts.Logger.Warn("dropping undecodable hub frame", zap.Error(err))
		return
	}
	if frame.Type != frameInvocation {
		return
	}

	t.mu.Lock()
	h := t.handlers[frame.Target]
	t.mu.Unlock()
	if h == nil {
		t.opts.Logger.Debug("no handler for hub invocation", zap.String("target", frame.Target))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.opts.Logger.Error("hub handler panicked",
				zap.String("target", frame.Target),
				zap.Any("panic", r),
			)
		}
	}()
	h(frame.Arguments)
}
