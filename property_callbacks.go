package xmcengine

import (
	"sync"

	"github.com/emotiva/xmc-engine/pkg/dispatch"
)

// propertyCallback is one on_property/on_any registration. live/hasLive
// track its registration on the currently active Dispatcher, if any, so
// Unregister can stop it firing immediately rather than waiting for the
// next reconnect to drop it.
type propertyCallback struct {
	name    string // "*" for OnAny
	fn      func(dispatch.PropertyEvent)
	live    dispatch.Registration
	hasLive bool
}

// propertyCallbacks holds on_property/on_any registrations at the engine
// level, independent of any one Dispatcher instance. connectOnce replaces
// the Dispatcher wholesale on every (re)connect; without this, a
// reconnect would silently drop every caller's callback even though
// subscriptions are replayed and traffic resumes.
type propertyCallbacks struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]propertyCallback
}

func newPropertyCallbacks() *propertyCallbacks {
	return &propertyCallbacks{byID: make(map[uint64]propertyCallback)}
}

// add records a callback in the engine-level registry. It does not touch
// any Dispatcher; call applyTo (or replay) to make it live.
func (p *propertyCallbacks) add(name string, fn func(dispatch.PropertyEvent)) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.byID[id] = propertyCallback{name: name, fn: fn}
	return id
}

// applyTo registers id's callback against d immediately, used when
// OnProperty is called while a Dispatcher is already active.
func (p *propertyCallbacks) applyTo(id uint64, d *dispatch.Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.byID[id]
	if !ok {
		return
	}
	cb.live, cb.hasLive = register(d, cb), true
	p.byID[id] = cb
}

// replay re-registers every tracked callback against a freshly
// constructed Dispatcher, restoring delivery after a reconnect swaps it
// in. The previous live dispatch.Registration, if any, belonged to a
// Dispatcher that is already closed and need not be unregistered.
func (p *propertyCallbacks) replay(d *dispatch.Dispatcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cb := range p.byID {
		cb.live, cb.hasLive = register(d, cb), true
		p.byID[id] = cb
	}
}

// remove drops id from the registry and, if it is currently live on
// live, unregisters it there too.
func (p *propertyCallbacks) remove(id uint64, live *dispatch.Dispatcher) {
	p.mu.Lock()
	cb, ok := p.byID[id]
	delete(p.byID, id)
	p.mu.Unlock()
	if ok && cb.hasLive && live != nil {
		live.Unregister(cb.live)
	}
}

func register(d *dispatch.Dispatcher, cb propertyCallback) dispatch.Registration {
	if cb.name == "*" {
		return d.OnAny(cb.fn)
	}
	return d.OnProperty(cb.name, cb.fn)
}
