// Package log provides structured protocol logging for the Emotiva LAN
// engine.
//
// This package defines the Logger interface and Event types for
// capturing protocol-level events at multiple layers (transport, wire,
// service). It is separate from operational logging (slog) - protocol
// capture gives a structured event trace for debugging a session against
// a real device.
//
// # Basic usage
//
// The logger is passed to the engine constructor:
//
//	engine, err := xmcengine.New(cfg, log.NewSlogAdapter(slog.Default()))
//
//	// Combine console output with an in-memory sink for test assertions:
//	sink := testsink.New()
//	engine, err := xmcengine.New(cfg, log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), sink))
//
// # Event types
//
// Event payload types are defined for multiple layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded messages (MessageEvent)
//   - Service: connection state changes (StateChangeEvent)
//
// Liveness signals (keepalive/goodbye) and errors have dedicated event
// types. The engine's own packages log only error-category events; the
// frame, message, state-change and liveness payloads are not produced by
// the engine.
package log
