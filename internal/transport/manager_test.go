package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"serenade/internal/domain"
	"serenade/internal/ports"
)

func TestOpenForwardsFramesInOrder(t *testing.T) {
	t.Parallel()

	sock := newScriptSocket()
	dialer := &scriptDialer{outcomes: []dialOutcome{{sock: sock}}}
	sink := &stubSink{}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), sink)

	frames := make(chan string, 8)
	manager.Route(func(frame string) { frames <- frame })
	manager.Open(context.Background())
	waitState(t, manager, domain.ConnOpen)

	sock.frames <- "one"
	sock.frames <- "two"
	sock.frames <- "three"

	for _, want := range []string{"one", "two", "three"} {
		select {
		case got := <-frames:
			if got != want {
				t.Fatalf("frame out of order: got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for frame %q", want)
		}
	}

	manager.Close()
}

func TestSendRequiresOpenChannel(t *testing.T) {
	t.Parallel()

	dialer := &scriptDialer{}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), &stubSink{})

	if err := manager.Send("hello"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendWritesThroughSocket(t *testing.T) {
	t.Parallel()

	sock := newScriptSocket()
	dialer := &scriptDialer{outcomes: []dialOutcome{{sock: sock}}}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), &stubSink{})
	manager.Route(func(string) {})

	manager.Open(context.Background())
	waitState(t, manager, domain.ConnOpen)

	if err := manager.Send("start_camera"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := sock.written(); len(got) != 1 || got[0] != "start_camera" {
		t.Fatalf("unexpected writes: %v", got)
	}

	manager.Close()
	if err := manager.Send("late"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestReconnectAfterUnexpectedDrop(t *testing.T) {
	t.Parallel()

	first := newScriptSocket()
	second := newScriptSocket()
	dialer := &scriptDialer{outcomes: []dialOutcome{{sock: first}, {sock: second}}}
	sink := &stubSink{}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), sink)
	manager.Route(func(string) {})

	manager.Open(context.Background())
	waitState(t, manager, domain.ConnOpen)

	first.fail(errors.New("peer went away"))
	waitFor(t, func() bool {
		return dialer.callCount() == 2 && manager.State() == domain.ConnOpen
	})

	reconnects := sink.reconnectEvents()
	if len(reconnects) != 1 {
		t.Fatalf("expected one reconnect announcement, got %d", len(reconnects))
	}
	if reconnects[0].attempt != 1 || reconnects[0].max != testPolicy().MaxAttempts {
		t.Fatalf("unexpected reconnect event: %+v", reconnects[0])
	}
	if reconnects[0].delay != testPolicy().BaseDelay {
		t.Fatalf("first retry delay = %s, want %s", reconnects[0].delay, testPolicy().BaseDelay)
	}

	manager.Close()
}

func TestAttemptCounterResetsOnSuccessfulOpen(t *testing.T) {
	t.Parallel()

	first := newScriptSocket()
	second := newScriptSocket()
	dialer := &scriptDialer{outcomes: []dialOutcome{
		{err: errors.New("refused")},
		{sock: first},
		{sock: second},
	}}
	sink := &stubSink{}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), sink)
	manager.Route(func(string) {})

	manager.Open(context.Background())
	waitState(t, manager, domain.ConnOpen)

	first.fail(errors.New("peer went away"))
	waitFor(t, func() bool { return dialer.callCount() == 3 && manager.State() == domain.ConnOpen })

	reconnects := sink.reconnectEvents()
	if len(reconnects) != 2 {
		t.Fatalf("expected two reconnect announcements, got %d", len(reconnects))
	}
	for _, event := range reconnects {
		if event.attempt != 1 {
			t.Fatalf("attempt counter did not reset: %+v", reconnects)
		}
	}

	manager.Close()
}

func TestConnectionLostAfterExhaustedAttempts(t *testing.T) {
	t.Parallel()

	dialer := &scriptDialer{alwaysErr: errors.New("refused")}
	sink := &stubSink{}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), sink)
	manager.Route(func(string) {})

	manager.Open(context.Background())
	waitFor(t, func() bool { return sink.lostCount() == 1 })

	if got := dialer.callCount(); got != testPolicy().MaxAttempts+1 {
		t.Fatalf("expected %d dial attempts, got %d", testPolicy().MaxAttempts+1, got)
	}
	if got := len(sink.reconnectEvents()); got != testPolicy().MaxAttempts {
		t.Fatalf("expected %d reconnect announcements, got %d", testPolicy().MaxAttempts, got)
	}

	time.Sleep(50 * time.Millisecond)
	if sink.lostCount() != 1 {
		t.Fatalf("ConnectionLost fired more than once")
	}
	if manager.State() != domain.ConnDisconnected {
		t.Fatalf("expected disconnected terminal state, got %s", manager.State())
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	dialer := &scriptDialer{alwaysErr: errors.New("refused")}
	sink := &stubSink{}
	policy := Policy{BaseDelay: 200 * time.Millisecond, MaxDelay: time.Second, MaxAttempts: 5}
	manager := NewManager(dialer, "ws://svc/ws", policy, sink)
	manager.Route(func(string) {})

	manager.Open(context.Background())
	waitFor(t, func() bool { return len(sink.reconnectEvents()) == 1 })

	manager.Close()
	calls := dialer.callCount()
	time.Sleep(400 * time.Millisecond)

	if got := dialer.callCount(); got != calls {
		t.Fatalf("reconnect fired after Close: %d -> %d dials", calls, got)
	}
	if manager.State() != domain.ConnDisconnected {
		t.Fatalf("expected disconnected after close, got %s", manager.State())
	}
	if sink.lostCount() != 0 {
		t.Fatalf("deliberate close must not report ConnectionLost")
	}
}

func TestOpenWhileConnectingIsNoOp(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	sock := newScriptSocket()
	dialer := &scriptDialer{gate: gate, outcomes: []dialOutcome{{sock: sock}}}
	manager := NewManager(dialer, "ws://svc/ws", testPolicy(), &stubSink{})
	manager.Route(func(string) {})

	manager.Open(context.Background())
	manager.Open(context.Background())
	close(gate)

	waitState(t, manager, domain.ConnOpen)
	if got := dialer.callCount(); got != 1 {
		t.Fatalf("expected a single dial, got %d", got)
	}

	manager.Close()
}

func testPolicy() Policy {
	return Policy{BaseDelay: 2 * time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxAttempts: 3}
}

func waitState(t *testing.T, manager *Manager, want domain.ConnectionState) {
	t.Helper()
	waitFor(t, func() bool { return manager.State() == want })
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// --- fakes ---

type dialOutcome struct {
	sock ports.Socket
	err  error
}

type scriptDialer struct {
	mu        sync.Mutex
	outcomes  []dialOutcome
	alwaysErr error
	gate      chan struct{}
	calls     int
}

func (d *scriptDialer) Dial(_ context.Context, _ string) (ports.Socket, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if len(d.outcomes) > 0 {
		next := d.outcomes[0]
		d.outcomes = d.outcomes[1:]
		return next.sock, next.err
	}
	if d.alwaysErr != nil {
		return nil, d.alwaysErr
	}
	return nil, errors.New("no scripted outcome")
}

func (d *scriptDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type scriptSocket struct {
	frames chan string
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes []string
}

func newScriptSocket() *scriptSocket {
	return &scriptSocket{
		frames: make(chan string, 8),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *scriptSocket) ReadFrame() (string, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case err := <-s.errs:
		return "", err
	case <-s.closed:
		return "", errors.New("socket closed")
	}
}

func (s *scriptSocket) WriteText(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, frame)
	return nil
}

func (s *scriptSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *scriptSocket) fail(err error) {
	s.errs <- err
}

func (s *scriptSocket) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

type reconnectEvent struct {
	attempt int
	max     int
	delay   time.Duration
}

type stubSink struct {
	mu         sync.Mutex
	states     []domain.ConnectionState
	reconnects []reconnectEvent
	lost       int
}

func (s *stubSink) ConnectionStateChanged(state domain.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stubSink) Reconnecting(attempt, maxAttempts int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects = append(s.reconnects, reconnectEvent{attempt: attempt, max: maxAttempts, delay: delay})
}

func (s *stubSink) ConnectionLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost++
}

func (s *stubSink) PhaseChanged(domain.Phase)                  {}
func (s *stubSink) PromptChanged(string)                       {}
func (s *stubSink) AnswerChanged(string)                       {}
func (s *stubSink) SetupInstruction(string)                    {}
func (s *stubSink) GenerationProgress(domain.GenerationStatus) {}
func (s *stubSink) GenerationComplete(domain.GenerationResult) {}
func (s *stubSink) Notify(domain.Severity, string)             {}
func (s *stubSink) SessionError(domain.ErrorCode, string)      {}

func (s *stubSink) reconnectEvents() []reconnectEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reconnectEvent(nil), s.reconnects...)
}

func (s *stubSink) lostCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}
