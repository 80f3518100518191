package connection

// ConnectionState is the Controller Facade's lifecycle state (§4.7).
type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
	StateClosing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDegraded:
		return "DEGRADED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to on_connection observers on every state
// transition. Reason carries a human-readable diagnostic (e.g.
// "keepalive timeout after 15s", "received goodbye"), following the
// same diagnostic-context convention the reference implementation
// threads through its own state transitions.
type Event struct {
	State  ConnectionState
	Reason string
}
