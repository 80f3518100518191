package connection

import (
	"sync"
	"time"
)

// Monitor implements the Keepalive/Liveness Monitor (§4.6). It arms a
// timer for the device's advertised keepalive interval plus a grace
// period; every call to Reset (driven by a received keepAlive
// notification) restarts the timer. Expiry, or an explicit Goodbye call,
// fires the registered timeout callback exactly once per Start.
type Monitor struct {
	deadline time.Duration

	mu        sync.Mutex
	onTimeout func(reason string)

	resetCh  chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor returns a Monitor armed for deadline (typically
// keepalive_interval_ms + keepalive_grace_ms).
func NewMonitor(deadline time.Duration) *Monitor {
	return &Monitor{
		deadline: deadline,
		resetCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// OnTimeout registers the callback fired on expiry or Goodbye. Must be
// called before Start.
func (m *Monitor) OnTimeout(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = fn
}

// Start arms the timer and begins watching for expiry.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	timer := time.NewTimer(m.deadline)
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-m.resetCh:
			timer.Stop()
			timer = time.NewTimer(m.deadline)
		case <-timer.C:
			m.fire("keepalive timeout after " + m.deadline.String())
			return
		}
	}
}

func (m *Monitor) fire(reason string) {
	m.mu.Lock()
	cb := m.onTimeout
	m.onTimeout = nil
	m.mu.Unlock()
	if cb != nil {
		cb(reason)
	}
}

// Reset restarts the timer, called whenever a keepAlive notification
// arrives on the notify endpoint.
func (m *Monitor) Reset() {
	select {
	case m.resetCh <- struct{}{}:
	default:
	}
}

// Goodbye fires the timeout callback immediately with a goodbye reason
// and stops the monitor, modelling the device's explicit farewell
// notification.
func (m *Monitor) Goodbye() {
	m.fire("received goodbye")
	m.Stop()
}

// Stop halts the monitor without firing the timeout callback. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}
