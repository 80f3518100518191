// Package dispatch implements the Notification Listener & Dispatcher
// (§4.5): it continuously reads the notify endpoint, classifies frames
// into property, menu, bar, or liveness events, and fans property events
// out to callbacks registered by name or as wildcards.
//
// Every callback invocation is tracked and watched by a per-call
// deadline; a callback that overruns it is logged, not cancelled, and
// keeps running. Close waits for outstanding callback tasks to drain up
// to a bounded timeout; it does not cancel them.
package dispatch
