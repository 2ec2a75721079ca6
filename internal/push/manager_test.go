package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nhle/autohub/internal/model"
)

type invocation struct {
	target string
	args   []any
}

type fakeConn struct {
	mu             sync.Mutex
	startErr       error
	stopped        bool
	handlers       map[string]Handler
	invocations    []invocation
	onReconnecting func(error)
	onReconnected  func()
	onClose        func(error)
}

func (c *fakeConn) Start(ctx context.Context) error { return c.startErr }

func (c *fakeConn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

func (c *fakeConn) Invoke(ctx context.Context, target string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocations = append(c.invocations, invocation{target: target, args: args})
	return nil
}

func (c *fakeConn) On(target string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]Handler)
	}
	c.handlers[target] = h
}

func (c *fakeConn) OnReconnecting(fn func(error)) { c.onReconnecting = fn }
func (c *fakeConn) OnReconnected(fn func())       { c.onReconnected = fn }
func (c *fakeConn) OnClose(fn func(error))        { c.onClose = fn }

func (c *fakeConn) targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, inv := range c.invocations {
		out = append(out, inv.target)
	}
	return out
}

// connFactory hands out fakeConns and remembers them.
type connFactory struct {
	mu       sync.Mutex
	startErr error
	conns    []*fakeConn
}

func (f *connFactory) New() Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{startErr: f.startErr}
	f.conns = append(f.conns, c)
	return c
}

func (f *connFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *connFactory) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *connFactory) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func workshopSession(context.Context) *model.Session {
	id := 3
	return &model.Session{UserID: "u1", Role: model.RoleWorkshop, WorkshopID: &id}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestManager(f *connFactory, logger *zap.Logger, base time.Duration) *Manager {
	return NewManager(ManagerOptions{
		Session:    workshopSession,
		NewConn:    f.New,
		MaxRetries: 5,
		RetryBase:  base,
		Logger:     logger,
	})
}

func TestStartConnectionJoinsGroupsAndCatchesUp(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)
	caughtUp := make(chan struct{}, 1)
	m.OnConnected(func() { caughtUp <- struct{}{} })

	var states []model.ConnectionState
	var statesMu sync.Mutex
	m.OnStateChange(func(s model.ConnectionState) {
		statesMu.Lock()
		states = append(states, s)
		statesMu.Unlock()
	})

	m.StartConnection(context.Background())

	if m.State() != model.Connected {
		t.Fatalf("Expected connected, got %s", m.State())
	}
	targets := f.last().targets()
	if len(targets) != 2 || targets[0] != MethodJoinUserGroup || targets[1] != MethodJoinWorkshopGroup {
		t.Errorf("Expected user and workshop joins, got %v", targets)
	}
	if got := f.last().invocations[1].args[0]; got != "3" {
		t.Errorf("Expected workshop id argument \"3\", got %v", got)
	}

	select {
	case <-caughtUp:
	case <-time.After(time.Second):
		t.Fatal("Expected catch-up after connect")
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	if len(states) != 2 || states[0] != model.Connecting || states[1] != model.Connected {
		t.Errorf("Expected connecting then connected, got %v", states)
	}
}

func TestCarOwnerJoinsOnlyUserGroup(t *testing.T) {
	f := &connFactory{}
	m := NewManager(ManagerOptions{
		Session: func(context.Context) *model.Session {
			return &model.Session{UserID: "owner", Role: model.RoleCarOwner}
		},
		NewConn: f.New,
	})

	m.StartConnection(context.Background())

	targets := f.last().targets()
	if len(targets) != 1 || targets[0] != MethodJoinUserGroup {
		t.Errorf("Expected only user group join, got %v", targets)
	}
}

func TestStartConnectionRequiresSession(t *testing.T) {
	f := &connFactory{}
	m := NewManager(ManagerOptions{
		Session: func(context.Context) *model.Session { return nil },
		NewConn: f.New,
	})

	m.StartConnection(context.Background())

	if f.count() != 0 {
		t.Errorf("Expected no connection attempt, got %d", f.count())
	}
	if m.State() != model.Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestStartConnectionIsNoopWhenConnected(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)

	m.StartConnection(context.Background())
	m.StartConnection(context.Background())

	if f.count() != 1 {
		t.Errorf("Expected a single connection, got %d", f.count())
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := &connFactory{startErr: errors.New("refused")}
	m := newTestManager(f, zap.New(core), time.Millisecond)

	m.StartConnection(context.Background())

	waitFor(t, "give-up log", func() bool {
		return logs.FilterMessage("push channel giving up").Len() == 1
	})

	// The initial attempt plus five retries.
	if f.count() != 6 {
		t.Errorf("Expected 6 connection attempts, got %d", f.count())
	}

	time.Sleep(50 * time.Millisecond)
	if f.count() != 6 {
		t.Errorf("Expected no further attempts, got %d", f.count())
	}
	entry := logs.FilterMessage("push channel giving up").All()[0]
	if entry.Level != zap.ErrorLevel {
		t.Errorf("Expected error level, got %s", entry.Level)
	}
	if m.State() != model.Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestStopConnectionCancelsPendingRetry(t *testing.T) {
	f := &connFactory{startErr: errors.New("refused")}
	m := newTestManager(f, nil, 30*time.Millisecond)

	m.StartConnection(context.Background())
	m.StopConnection()
	m.StopConnection()

	time.Sleep(120 * time.Millisecond)
	if f.count() != 1 {
		t.Errorf("Expected no retry after stop, got %d attempts", f.count())
	}
}

func TestUnexpectedCloseRetriesUntilConnected(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)
	m.StartConnection(context.Background())
	first := f.last()

	first.onClose(errors.New("budget exhausted"))

	waitFor(t, "retry connection", func() bool {
		return f.count() == 2 && m.State() == model.Connected
	})
}

func TestCloseAfterStopDoesNotReconnect(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)
	m.StartConnection(context.Background())
	first := f.last()

	m.StopConnection()
	if !first.stopped {
		t.Error("Expected transport to be stopped")
	}

	first.onClose(errors.New("late close"))
	first.onReconnected()
	time.Sleep(30 * time.Millisecond)

	if f.count() != 1 {
		t.Errorf("Expected no reconnect after stop, got %d", f.count())
	}
	if m.State() != model.Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}

func TestReconnectedRejoinsGroups(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)
	caughtUp := make(chan struct{}, 2)
	m.OnConnected(func() { caughtUp <- struct{}{} })
	m.StartConnection(context.Background())
	conn := f.last()

	conn.onReconnecting(errors.New("dropped"))
	if m.State() != model.Reconnecting {
		t.Fatalf("Expected reconnecting, got %s", m.State())
	}

	conn.onReconnected()
	if m.State() != model.Connected {
		t.Fatalf("Expected connected, got %s", m.State())
	}
	if len(conn.targets()) != 4 {
		t.Errorf("Expected groups joined twice, got %v", conn.targets())
	}

	for i := 0; i < 2; i++ {
		select {
		case <-caughtUp:
		case <-time.After(time.Second):
			t.Fatalf("Expected catch-up %d", i+1)
		}
	}
}

func TestReceiveNotificationDecodesEvent(t *testing.T) {
	f := &connFactory{}
	m := newTestManager(f, nil, time.Millisecond)
	var got []model.RawEvent
	m.OnNotification(func(ev model.RawEvent) { got = append(got, ev) })
	m.StartConnection(context.Background())

	h := f.last().handlers[MethodReceiveNotification]
	h([]json.RawMessage{json.RawMessage(`{"id":12,"message":"Service completed","type":2,"bookingId":4}`)})
	h([]json.RawMessage{json.RawMessage(`{"id":"bad"`)})
	h(nil)

	if len(got) != 1 {
		t.Fatalf("Expected 1 decoded event, got %d", len(got))
	}
	if got[0].ID != 12 || got[0].BookingID == nil || *got[0].BookingID != 4 {
		t.Errorf("Unexpected event %+v", got[0])
	}
}

func TestStopDuringRetryPreventsReconnect(t *testing.T) {
	f := &connFactory{}
	core, logs := observer.New(zap.DebugLevel)

	var calls int
	var callsMu sync.Mutex
	entered := make(chan struct{})
	release := make(chan struct{})
	m := NewManager(ManagerOptions{
		Session: func(ctx context.Context) *model.Session {
			callsMu.Lock()
			calls++
			n := calls
			callsMu.Unlock()
			if n == 2 {
				close(entered)
				<-release
			}
			return workshopSession(ctx)
		},
		NewConn:    f.New,
		MaxRetries: 5,
		RetryBase:  time.Millisecond,
		Logger:     zap.New(core),
	})

	m.StartConnection(context.Background())
	if m.State() != model.Connected {
		t.Fatalf("Expected connected, got %s", m.State())
	}

	f.last().onClose(errors.New("server went away"))
	<-entered

	m.StopConnection()
	close(release)

	waitFor(t, "retry to be dropped", func() bool {
		return logs.FilterMessage("dropping superseded push channel retry").Len() == 1
	})
	if f.count() != 1 {
		t.Errorf("Expected no reconnection after StopConnection, got %d conns", f.count())
	}
	if m.State() != model.Disconnected {
		t.Errorf("Expected disconnected, got %s", m.State())
	}
}
