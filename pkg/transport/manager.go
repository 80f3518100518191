package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/emotiva/xmc-engine/pkg/log"
)

// Datagram is one received UDP packet, tagged with its source address
// so callers can apply discovery's source-filtering rule and the
// dispatcher's source-address hardening.
type Datagram struct {
	Role Role
	Data []byte
	From *net.UDPAddr
}

type endpoint struct {
	conn   *net.UDPConn
	peer   *net.UDPAddr // logical destination for control/notify; nil for discover_req/resp
	queue  chan Datagram
	cancel context.CancelFunc
	done   chan struct{}
	dropped atomic.Uint64
}

// Manager owns the four UDP endpoints and multiplexes access to them.
// Start/Stop are serialised by mu; each endpoint's receive loop runs in
// its own goroutine and publishes onto a bounded per-role queue.
type Manager struct {
	mu        sync.Mutex
	endpoints map[Role]*endpoint
	logger    log.Logger
	running   bool
}

// NewManager returns a Manager that logs via logger (log.NoopLogger{} if
// nil).
func NewManager(logger log.Logger) *Manager {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Manager{endpoints: make(map[Role]*endpoint), logger: logger}
}

// StartDiscovery binds the discover_req and discover_resp endpoints.
// Idempotent: a second call while already running is a no-op.
func (m *Manager) StartDiscovery(discoverReqPort, discoverRespPort uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.endpoints[RoleDiscoverReq]; ok {
		return nil
	}

	reqConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return &PortBindError{Role: RoleDiscoverReq, Port: discoverReqPort, Cause: err}
	}
	if err := enableBroadcast(reqConn); err != nil {
		reqConn.Close()
		return &PortBindError{Role: RoleDiscoverReq, Port: discoverReqPort, Cause: err}
	}
	m.addEndpoint(RoleDiscoverReq, reqConn, nil)

	respConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(discoverRespPort)})
	if err != nil {
		m.removeLocked(RoleDiscoverReq)
		return &PortBindError{Role: RoleDiscoverResp, Port: discoverRespPort, Cause: err}
	}
	m.addEndpoint(RoleDiscoverResp, respConn, nil)

	m.running = true
	return nil
}

// StartSession binds the control and notify endpoints against the
// device's advertised ports, once discovery has completed. Unlike
// StartDiscovery, a second call always rebinds fresh sockets: a
// reconnect's ports can differ from the previous session's, and the
// caller is responsible for having stopped whatever was still reading
// from the old control/notify queues first.
func (m *Manager) StartSession(host string, controlPort, notifyPort uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(RoleControl)
	m.removeLocked(RoleNotify)

	controlConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return &PortBindError{Role: RoleControl, Port: controlPort, Cause: err}
	}
	controlPeer := &net.UDPAddr{IP: net.ParseIP(host), Port: int(controlPort)}
	m.addEndpoint(RoleControl, controlConn, controlPeer)

	notifyConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		m.removeLocked(RoleControl)
		return &PortBindError{Role: RoleNotify, Port: notifyPort, Cause: err}
	}
	notifyPeer := &net.UDPAddr{IP: net.ParseIP(host), Port: int(notifyPort)}
	m.addEndpoint(RoleNotify, notifyConn, notifyPeer)

	m.running = true
	return nil
}

func (m *Manager) addEndpoint(role Role, conn *net.UDPConn, peer *net.UDPAddr) {
	ctx, cancel := context.WithCancel(context.Background())
	ep := &endpoint{
		conn:   conn,
		peer:   peer,
		queue:  make(chan Datagram, recvQueueCapacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.endpoints[role] = ep
	go m.readLoop(ctx, role, ep)
}

func (m *Manager) readLoop(ctx context.Context, role Role, ep *endpoint) {
	defer close(ep.done)
	buf := make([]byte, 65536)
	for {
		if ctx.Err() != nil {
			return
		}
		ep.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, from, err := ep.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue // read timeout or transient error; loop and re-check ctx
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		dg := Datagram{Role: role, Data: frame, From: from}
		select {
		case ep.queue <- dg:
		default:
			// Queue full: drop oldest, then enqueue the new frame.
			select {
			case <-ep.queue:
			default:
			}
			select {
			case ep.queue <- dg:
			default:
			}
			n := ep.dropped.Add(1)
			m.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerTransport,
				Category:  log.CategoryError,
				Error: &log.ErrorEventData{
					Layer:   log.LayerTransport,
					Message: fmt.Sprintf("%s queue overflow, dropped %d frames total", role, n),
				},
			})
		}
	}
}

// Send writes one datagram on role's socket. destOverride replaces the
// endpoint's logical peer when set (used by discovery to broadcast).
func (m *Manager) Send(role Role, data []byte, destOverride *net.UDPAddr) error {
	m.mu.Lock()
	ep, ok := m.endpoints[role]
	m.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	dest := destOverride
	if dest == nil {
		dest = ep.peer
	}
	if dest == nil {
		return &SendError{Role: role, Cause: fmt.Errorf("no destination for %s", role)}
	}

	if _, err := ep.conn.WriteToUDP(data, dest); err != nil {
		return &SendError{Role: role, Cause: err}
	}
	return nil
}

// Recv returns the next datagram queued for role, or *RecvTimeoutError
// once timeout elapses, or ctx.Err() if ctx is cancelled first.
func (m *Manager) Recv(ctx context.Context, role Role, timeout time.Duration) (Datagram, error) {
	m.mu.Lock()
	ep, ok := m.endpoints[role]
	m.mu.Unlock()
	if !ok {
		return Datagram{}, ErrNotRunning
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case dg := <-ep.queue:
		return dg, nil
	case <-timer.C:
		return Datagram{}, &RecvTimeoutError{Role: role}
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

// LocalAddr returns the local address bound for role, if running.
func (m *Manager) LocalAddr(role Role) (*net.UDPAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[role]
	if !ok {
		return nil, false
	}
	return ep.conn.LocalAddr().(*net.UDPAddr), true
}

// Stop closes every bound endpoint and cancels pending reads. Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	for role := range m.endpoints {
		m.removeLocked(role)
	}
	m.running = false
	return nil
}

func (m *Manager) removeLocked(role Role) {
	ep, ok := m.endpoints[role]
	if !ok {
		return
	}
	ep.cancel()
	ep.conn.Close()
	<-ep.done
	delete(m.endpoints, role)
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file descriptor.
// net.UDPConn exposes no direct API for this, so the syscall option is
// set through SyscallConn.
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
