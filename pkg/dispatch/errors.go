package dispatch

import "fmt"

// CallbackPanickedError wraps a recovered panic from a registered
// callback. The dispatcher isolates callback panics so one misbehaving
// callback never brings down the notification loop; instances are
// logged, never returned, since OnProperty/OnMenu/OnBar/OnAny callbacks
// have no return path to a caller.
type CallbackPanickedError struct {
	Recovered string
}

func (e *CallbackPanickedError) Error() string {
	return fmt.Sprintf("dispatch: callback panicked: %s", e.Recovered)
}
