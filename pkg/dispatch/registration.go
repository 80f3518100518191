package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// Registration is an opaque handle returned by OnProperty/OnAny/OnMenu/
// OnBar, used to unregister a callback. It is never a closure retaining
// the Dispatcher, matching the data model's "owned handle with explicit
// unregister" rule.
type Registration struct {
	id uuid.UUID
}

func newRegistration() Registration {
	return Registration{id: uuid.New()}
}

type propertyCallback struct {
	reg Registration
	fn  func(PropertyEvent)
}

type menuCallback struct {
	reg Registration
	fn  func(MenuEvent)
}

type barCallback struct {
	reg Registration
	fn  func(BarEvent)
}

// registry holds callback registrations. Reads (fan-out) and writes
// (register/unregister) are both infrequent relative to dispatch volume,
// so a single RWMutex is sufficient.
type registry struct {
	mu        sync.RWMutex
	byName    map[string][]propertyCallback
	wildcard  []propertyCallback
	menu      []menuCallback
	bar       []barCallback
}

func newRegistry() *registry {
	return &registry{byName: make(map[string][]propertyCallback)}
}

func (r *registry) onProperty(name string, fn func(PropertyEvent)) Registration {
	reg := newRegistration()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = append(r.byName[name], propertyCallback{reg: reg, fn: fn})
	return reg
}

func (r *registry) onAny(fn func(PropertyEvent)) Registration {
	reg := newRegistration()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wildcard = append(r.wildcard, propertyCallback{reg: reg, fn: fn})
	return reg
}

func (r *registry) onMenu(fn func(MenuEvent)) Registration {
	reg := newRegistration()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menu = append(r.menu, menuCallback{reg: reg, fn: fn})
	return reg
}

func (r *registry) onBar(fn func(BarEvent)) Registration {
	reg := newRegistration()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar = append(r.bar, barCallback{reg: reg, fn: fn})
	return reg
}

func (r *registry) unregister(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cbs := range r.byName {
		r.byName[name] = removeProperty(cbs, reg)
	}
	r.wildcard = removeProperty(r.wildcard, reg)
	for i, c := range r.menu {
		if c.reg == reg {
			r.menu = append(r.menu[:i], r.menu[i+1:]...)
			break
		}
	}
	for i, c := range r.bar {
		if c.reg == reg {
			r.bar = append(r.bar[:i], r.bar[i+1:]...)
			break
		}
	}
}

func removeProperty(cbs []propertyCallback, reg Registration) []propertyCallback {
	for i, c := range cbs {
		if c.reg == reg {
			return append(cbs[:i], cbs[i+1:]...)
		}
	}
	return cbs
}

func (r *registry) propertyCallbacks(name string) []propertyCallback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]propertyCallback, 0, len(r.byName[name])+len(r.wildcard))
	out = append(out, r.byName[name]...)
	out = append(out, r.wildcard...)
	return out
}

func (r *registry) menuCallbacks() []menuCallback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]menuCallback, len(r.menu))
	copy(out, r.menu)
	return out
}

func (r *registry) barCallbacks() []barCallback {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]barCallback, len(r.bar))
	copy(out, r.bar)
	return out
}
