package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"serenade/internal/domain"
	"serenade/internal/ports"
)

var log = logging.Logger("transport")

// ErrNotConnected is returned by Send when the channel is not open.
// Callers must surface it to the user; frames are never queued.
var ErrNotConnected = errors.New("not connected to the service")

// FrameHandler receives inbound frames verbatim, in arrival order.
type FrameHandler func(frame string)

// Manager owns the duplex channel to the service and its
// reconnect-with-backoff lifecycle. It performs no interpretation of
// inbound payloads; every frame is forwarded to the routed handler.
type Manager struct {
	dialer ports.SocketDialer
	url    string
	policy Policy
	events ports.EventSink

	onFrame FrameHandler

	mu      sync.Mutex
	state   domain.ConnectionState
	sock    ports.Socket
	attempt int
	epoch   uint64
	retry   *time.Timer
	lost    bool

	sendMu sync.Mutex
}

func NewManager(dialer ports.SocketDialer, url string, policy Policy, events ports.EventSink) *Manager {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultPolicy().BaseDelay
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = DefaultPolicy().MaxDelay
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	return &Manager{
		dialer: dialer,
		url:    url,
		policy: policy,
		events: events,
		state:  domain.ConnDisconnected,
	}
}

// Route binds the inbound frame handler. It must be called once,
// before Open; the binding is never reassigned afterwards.
func (m *Manager) Route(handler FrameHandler) {
	if m.onFrame == nil {
		m.onFrame = handler
	}
}

// State reports the current connection state.
func (m *Manager) State() domain.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Open establishes the channel. Calling it while already open or
// connecting is a no-op.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	if m.state == domain.ConnOpen || m.state == domain.ConnConnecting {
		m.mu.Unlock()
		return
	}
	m.state = domain.ConnConnecting
	m.lost = false
	m.epoch++
	epoch := m.epoch
	m.mu.Unlock()

	m.events.ConnectionStateChanged(domain.ConnConnecting)
	go m.dial(ctx, epoch)
}

// Send writes one text frame. It fails with ErrNotConnected unless the
// channel is open.
func (m *Manager) Send(frame string) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	sock := m.sock
	open := m.state == domain.ConnOpen
	m.mu.Unlock()

	if !open || sock == nil {
		return ErrNotConnected
	}
	return sock.WriteText(frame)
}

// Close tears the channel down and cancels any pending reconnect timer.
// An in-flight dial completing afterwards is a no-op.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == domain.ConnDisconnected && m.sock == nil && m.retry == nil {
		m.mu.Unlock()
		return
	}
	m.epoch++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	sock := m.sock
	m.sock = nil
	m.state = domain.ConnClosing
	m.mu.Unlock()

	m.events.ConnectionStateChanged(domain.ConnClosing)
	if sock != nil {
		_ = sock.Close()
	}

	m.mu.Lock()
	m.state = domain.ConnDisconnected
	m.mu.Unlock()
	m.events.ConnectionStateChanged(domain.ConnDisconnected)
}

func (m *Manager) dial(ctx context.Context, epoch uint64) {
	sock, err := m.dialer.Dial(ctx, m.url)

	m.mu.Lock()
	if epoch != m.epoch || m.state != domain.ConnConnecting {
		m.mu.Unlock()
		if sock != nil {
			_ = sock.Close()
		}
		return
	}
	m.mu.Unlock()

	if err != nil {
		log.Warnw("dial failed", "url", m.url, "error", err)
		m.handleDown(ctx, epoch)
		return
	}

	m.mu.Lock()
	if epoch != m.epoch || m.state != domain.ConnConnecting {
		m.mu.Unlock()
		_ = sock.Close()
		return
	}
	m.sock = sock
	m.state = domain.ConnOpen
	m.attempt = 0
	m.lost = false
	m.mu.Unlock()

	log.Infow("connected", "url", m.url)
	m.events.ConnectionStateChanged(domain.ConnOpen)
	go m.readLoop(ctx, sock, epoch)
}

func (m *Manager) readLoop(ctx context.Context, sock ports.Socket, epoch uint64) {
	for {
		frame, err := sock.ReadFrame()
		if err != nil {
			log.Warnw("read failed", "error", err)
			m.handleDown(ctx, epoch)
			return
		}
		if m.onFrame != nil {
			m.onFrame(frame)
		}
	}
}

// handleDown reacts to a dial failure or an unexpected close. A stale
// epoch means a newer attempt or an explicit Close superseded this
// connection, in which case nothing happens.
func (m *Manager) handleDown(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.state = domain.ConnDisconnected
	m.sock = nil

	if m.attempt >= m.policy.MaxAttempts {
		terminal := !m.lost
		m.lost = true
		m.mu.Unlock()
		m.events.ConnectionStateChanged(domain.ConnDisconnected)
		if terminal {
			log.Errorw("reconnect attempts exhausted", "attempts", m.policy.MaxAttempts)
			m.events.ConnectionLost()
		}
		return
	}

	delay := m.policy.Delay(m.attempt)
	m.attempt++
	attempt := m.attempt
	m.retry = time.AfterFunc(delay, func() { m.reconnect(ctx, epoch) })
	m.mu.Unlock()

	m.events.ConnectionStateChanged(domain.ConnDisconnected)
	m.events.Reconnecting(attempt, m.policy.MaxAttempts, delay)
}

func (m *Manager) reconnect(ctx context.Context, epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != domain.ConnDisconnected {
		m.mu.Unlock()
		return
	}
	m.retry = nil
	m.state = domain.ConnConnecting
	m.epoch++
	next := m.epoch
	m.mu.Unlock()

	m.events.ConnectionStateChanged(domain.ConnConnecting)
	m.dial(ctx, next)
}
