package dispatch

import "github.com/emotiva/xmc-engine/pkg/wire"

// PropertyEvent is delivered to on_property callbacks for one changed
// property.
type PropertyEvent struct {
	Name    string
	Value   string
	Visible bool
	Seq     uint32
	HasSeq  bool
}

// MenuEvent wraps a parsed emotivaMenuNotify frame.
type MenuEvent struct {
	Notification wire.MenuNotification
}

// BarEvent wraps a parsed emotivaBarNotify frame.
type BarEvent struct {
	Notification wire.BarNotification
}

// SequenceGapEvent is emitted when a notify sequence number skips ahead
// by more than one, modulo 2^32. It does not halt processing.
type SequenceGapEvent struct {
	Expected uint32
	Got      uint32
}

// DroppedEvent describes an overflow of the bounded internal queue, in
// which a non-coalescing event (menu/bar) is dropped. The Dispatcher does
// not construct or deliver it; overflow is reported only as an error log
// event carrying the running drop total.
type DroppedEvent struct {
	Total uint64
}
