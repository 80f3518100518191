package xmcengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/emotiva/xmc-engine/pkg/connection"
	"github.com/emotiva/xmc-engine/pkg/log"
)

// connCallbacks tracks on_connection subscribers. It is intentionally
// separate from the Dispatcher's registry: connection events are rare
// state transitions, not high-volume property traffic, and have no
// wildcard/coalescing concerns.
type connCallbacks struct {
	mu      sync.RWMutex
	nextID  uint64
	byID    map[uint64]func(connection.Event)
	logger  log.Logger
}

func newConnCallbacks(logger log.Logger) *connCallbacks {
	return &connCallbacks{byID: make(map[uint64]func(connection.Event)), logger: logger}
}

func (c *connCallbacks) add(fn func(connection.Event)) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.byID[id] = fn
	return id
}

func (c *connCallbacks) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}

func (c *connCallbacks) fire(ev connection.Event) {
	c.mu.RLock()
	fns := make([]func(connection.Event), 0, len(c.byID))
	for _, fn := range c.byID {
		fns = append(fns, fn)
	}
	c.mu.RUnlock()
	for _, fn := range fns {
		c.runSafely(fn, ev)
	}
}

// runSafely isolates a panicking on_connection callback so it never
// crashes the reconnect goroutine driving state transitions.
func (c *connCallbacks) runSafely(fn func(connection.Event), ev connection.Event) {
	defer func() {
		if r := recover(); r != nil {
			err := &CallbackPanickedError{Recovered: fmt.Sprint(r)}
			c.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerService,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Layer: log.LayerService, Message: err.Error()},
			})
		}
	}()
	fn(ev)
}
