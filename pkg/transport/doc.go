// Package transport owns the four UDP endpoints the Emotiva LAN control
// protocol uses and multiplexes access to them.
//
//	discover_req   outbound, broadcast-enabled, ephemeral local port
//	discover_resp  inbound, bound to a fixed local port
//	control        bidirectional, ephemeral local port, logical peer is
//	               the device's advertised control port
//	notify         inbound, ephemeral local port, logical peer is the
//	               device's advertised notify port
//
// Start and Stop are serialised by an internal mutex. StartDiscovery and
// Stop are idempotent; StartSession rebinds the control and notify
// endpoints on every call. Every bound endpoint has exactly one reader goroutine
// publishing received datagrams onto a bounded, per-role queue; overflow
// drops the oldest queued frame and increments a counter rather than
// blocking the socket read loop.
package transport
