// Package protocol implements the command/ack/subscription exchange over
// the control endpoint: serialising commands, awaiting and correlating
// responses, retrying on timeout, and bounding the number of outstanding
// requests.
//
// A single reader goroutine owns the control endpoint's receive side.
// Callers never read the socket directly; SendCommand, Subscribe,
// Unsubscribe and RequestUpdate register a pending request, send the
// frame, and block on a per-request channel that the reader goroutine
// closes once a matching response arrives (or the request times out and
// is retried).
package protocol
