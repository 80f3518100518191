// Package connection tracks the controller's connection lifecycle against
// an XMC device: the state machine (Disconnected, Connecting, Connected,
// Degraded, Closing, Closed), the keepalive/liveness monitor that detects
// a silent device, and the backoff used both for reconnection and by
// other packages' own retry loops (discovery, command retry).
//
// # Reconnection strategy
//
// When the liveness monitor times out or a goodbye notification arrives,
// Manager moves Connected -> Degraded and starts retrying the supplied
// ConnectFunc with exponential backoff:
//
//  1. Initial delay: InitialBackoff
//  2. Exponential increase, capped at the configured maximum
//  3. Jitter of up to ±JitterFactor to avoid retry synchronisation across
//     multiple controller instances on the same network
//  4. Reset to the initial delay on successful reconnection
//
// # Success criteria
//
// A reconnection is successful when ConnectFunc returns nil, which for
// the Controller Facade means: discovery succeeded (a configured host only
// filters which reply is accepted), the control and notify sockets are bound, and
// any prior subscriptions have been replayed.
package connection
