package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Lifecycle errors (§7 Lifecycle category).
var (
	ErrAlreadyConnected  = errors.New("connection: already connected")
	ErrNotConnected      = errors.New("connection: not connected")
	ErrClosingInProgress = errors.New("connection: closing in progress")
	ErrClosed            = errors.New("connection: closed")
)

// ConnectFunc performs the work of connecting: discovery, session
// socket binding, and subscription replay. It is supplied by the
// Controller Facade, which owns the components this package's Manager
// only sequences.
type ConnectFunc func(ctx context.Context) error

// Manager drives the Controller Facade's connection state machine
// (§4.7): Disconnected -> Connecting -> Connected -> Degraded ->
// (reconnect) -> Connected, with Closing -> Closed reachable from either
// Connected or Degraded. It does not know how to connect; ConnectFunc
// supplies that.
type Manager struct {
	mu        sync.Mutex
	connectMu sync.Mutex
	state     ConnectionState

	connectFn     ConnectFunc
	backoff       *Backoff
	maxBackoffCap time.Duration

	onStateChange func(Event)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reconnectCh chan struct{}
}

// NewManager returns a Manager in StateDisconnected. maxBackoffCap bounds
// the reconnection backoff (the caller-configurable cap from §4.6); zero
// selects MaxBackoff.
func NewManager(connectFn ConnectFunc, maxBackoffCap time.Duration) *Manager {
	if maxBackoffCap <= 0 {
		maxBackoffCap = MaxBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		state:         StateDisconnected,
		connectFn:     connectFn,
		backoff:       NewBackoffWithConfig(BackoffConfig{Initial: InitialBackoff, Max: maxBackoffCap, Multiplier: BackoffMultiplier, Jitter: JitterFactor}),
		maxBackoffCap: maxBackoffCap,
		ctx:           ctx,
		cancel:        cancel,
		reconnectCh:   make(chan struct{}, 1),
	}
}

// OnStateChange registers the callback invoked on every transition.
func (m *Manager) OnStateChange(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// State returns the current state.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) transition(newState ConnectionState, reason string) {
	m.mu.Lock()
	old := m.state
	m.state = newState
	cb := m.onStateChange
	m.mu.Unlock()
	if cb != nil && old != newState {
		cb(Event{State: newState, Reason: reason})
	}
}

// Connect runs ConnectFunc, guarded so only one caller runs it at a time
// and a second call while Connected is a no-op. Callers that waited on a
// successful attempt return nil without running ConnectFunc (P1: one
// discovery exchange for N concurrent connect() callers). A failed
// attempt's error is not shared: each waiting caller then runs its own
// ConnectFunc attempt in turn.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateClosing, StateClosed:
		m.mu.Unlock()
		return ErrClosingInProgress
	case StateConnecting:
		// Another caller is already connecting. Fall through rather than
		// returning here: connectMu below is what actually serializes
		// concurrent callers onto one connectFn invocation, so this
		// caller blocks there instead of busy-waiting on state.
	}
	m.mu.Unlock()

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	if m.State() == StateConnected {
		return nil
	}

	m.transition(StateConnecting, "connect requested")
	err := m.connectFn(ctx)
	if err != nil {
		m.transition(StateDisconnected, err.Error())
		return err
	}
	m.backoff.Reset()
	m.transition(StateConnected, "connected")
	return nil
}

// NotifyDegraded transitions Connected -> Degraded and starts the
// reconnection loop. Called by the Keepalive Monitor on timeout or
// goodbye.
func (m *Manager) NotifyDegraded(reason string) {
	m.mu.Lock()
	if m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.transition(StateDegraded, reason)
	m.triggerReconnect()
}

// StartReconnectLoop starts the background goroutine that services
// reconnection requests. Call once after construction.
func (m *Manager) StartReconnectLoop() {
	m.wg.Add(1)
	go m.reconnectLoop()
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

func (m *Manager) attemptReconnect() {
	for {
		if m.State() != StateDegraded {
			return
		}

		delay := m.backoff.Next()
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(delay):
		}

		if m.State() != StateDegraded {
			return
		}

		// connectMu is the same lock Connect uses around connectFn, so a
		// caller-initiated Connect while Degraded cannot race this
		// attempt; whichever acquires it first runs connectFn alone. A
		// winner on the Connect side may already have reached Connected
		// by the time this goroutine gets the lock, so recheck before
		// calling connectFn again.
		m.connectMu.Lock()
		if m.State() != StateDegraded {
			m.connectMu.Unlock()
			return
		}
		ctx, cancel := context.WithTimeout(m.ctx, 30*time.Second)
		err := m.connectFn(ctx)
		cancel()
		m.connectMu.Unlock()

		if err == nil {
			m.backoff.Reset()
			m.transition(StateConnected, "reconnected")
			return
		}
	}
}

// Close transitions to Closing then Closed and stops the reconnect
// loop. Idempotent: concurrent/repeated calls merge into the same
// outcome.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateClosing {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.transition(StateClosing, "close requested")
	m.cancel()
	m.wg.Wait()
	m.transition(StateClosed, "closed")
}
