package xmcengine

import (
	"fmt"

	"github.com/emotiva/xmc-engine/pkg/dispatch"
)

// NakError reports that the device rejected a command or property name.
type NakError struct {
	Name string
}

func (e *NakError) Error() string {
	return fmt.Sprintf("xmcengine: %q nak'd by device", e.Name)
}

// CallbackPanickedError wraps a recovered panic from a user callback. Both
// the Dispatcher and the on_connection registry isolate callback panics
// this way so one misbehaving callback never crashes the engine's
// background goroutines.
type CallbackPanickedError = dispatch.CallbackPanickedError
