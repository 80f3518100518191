package dispatch

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/emotiva/xmc-engine/pkg/log"
	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

const defaultQueueCapacity = 256

// drainTimeout bounds how long Close waits for in-flight callback tasks
// before giving up (§4.5 "awaits drain with a bounded timeout (2s)").
const drainTimeout = 2 * time.Second

// activeTaskSoftCap is the warn threshold for inbound callback tasks
// queued or running at once (§5).
const activeTaskSoftCap = 256

// Config carries the subset of EngineConfig the Dispatcher needs.
type Config struct {
	CallbackTimeout time.Duration
	QueueCapacity   int

	// Host, if set, is the connected device's resolved address. Notify
	// datagrams from any other source are dropped before decoding
	// (§12 notification filtering hardening against spoofed or stray
	// broadcast replies on a shared LAN segment).
	Host string
}

// Dispatcher is the Notification Listener & Dispatcher (§4.5).
type Dispatcher struct {
	transport *transport.Manager
	codec     *wire.Codec
	cfg       Config
	logger    log.Logger

	registry     *registry
	queue        *boundedQueue
	pool         *pool.Pool
	propertyRuns *keyedRunner

	activeTasks   atomic.Int64
	sourceDropped atomic.Uint64

	onKeepAlive func()
	onGoodbye   func()

	lastSeq    uint32
	hasLastSeq bool
	seqMu      sync.Mutex

	cancel context.CancelFunc
	readerDone  chan struct{}
	drainerDone chan struct{}
}

// New returns a Dispatcher bound to mgr's notify endpoint.
func New(mgr *transport.Manager, codec *wire.Codec, cfg Config, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defaultQueueCapacity
	}
	if cfg.CallbackTimeout <= 0 {
		cfg.CallbackTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		transport: mgr,
		codec:     codec,
		cfg:       cfg,
		logger:    logger,
		registry:  newRegistry(),
	}
	d.queue = newBoundedQueue(cfg.QueueCapacity, d.logDropped)
	d.pool = pool.New().WithMaxGoroutines(16)
	d.propertyRuns = newKeyedRunner(d.pool)
	return d
}

// OnKeepAlive registers the callback invoked whenever a keepAlive
// notification arrives, used by the Controller to reset the liveness
// monitor.
func (d *Dispatcher) OnKeepAlive(fn func()) { d.onKeepAlive = fn }

// OnGoodbye registers the callback invoked on a goodbye notification.
func (d *Dispatcher) OnGoodbye(fn func()) { d.onGoodbye = fn }

// OnProperty registers fn to be called for every PropertyEvent named name.
func (d *Dispatcher) OnProperty(name string, fn func(PropertyEvent)) Registration {
	return d.registry.onProperty(name, fn)
}

// OnAny registers fn as a wildcard subscriber receiving every PropertyEvent.
func (d *Dispatcher) OnAny(fn func(PropertyEvent)) Registration {
	return d.registry.onAny(fn)
}

// OnMenu registers fn to be called for every MenuEvent.
func (d *Dispatcher) OnMenu(fn func(MenuEvent)) Registration {
	return d.registry.onMenu(fn)
}

// OnBar registers fn to be called for every BarEvent.
func (d *Dispatcher) OnBar(fn func(BarEvent)) Registration {
	return d.registry.onBar(fn)
}

// Unregister removes a previously registered callback.
func (d *Dispatcher) Unregister(reg Registration) { d.registry.unregister(reg) }

// Start launches the notify-endpoint reader and the queue drainer.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.readerDone = make(chan struct{})
	d.drainerDone = make(chan struct{})
	go d.readLoop(ctx)
	go d.drainLoop()
}

// Close stops the reader, closes the queue, and waits for queued and
// in-flight callback tasks to drain, up to drainTimeout.
func (d *Dispatcher) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.readerDone != nil {
		<-d.readerDone
	}
	d.queue.close()
	if d.drainerDone != nil {
		<-d.drainerDone
	}

	done := make(chan struct{})
	go func() {
		d.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		d.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerService,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerService, Message: "dispatcher close: callback drain deadline exceeded"},
		})
	}
}

func (d *Dispatcher) readLoop(ctx context.Context) {
	defer close(d.readerDone)
	for {
		dg, err := d.transport.Recv(ctx, transport.RoleNotify, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !d.fromExpectedSource(dg.From) {
			n := d.sourceDropped.Add(1)
			d.logger.Log(log.Event{
				Timestamp:  time.Now(),
				Layer:      log.LayerWire,
				Category:   log.CategoryError,
				RemoteAddr: addrString(dg.From),
				Error:      &log.ErrorEventData{Layer: log.LayerWire, Message: "notification source address mismatch", Context: fmt.Sprintf("%d dropped total", n)},
			})
			continue
		}
		parsed, err := d.codec.Decode(dg.Data)
		if err != nil {
			d.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerWire,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "notify frame decode"},
			})
			continue
		}
		d.classify(parsed)
	}
}

// fromExpectedSource reports whether a notify datagram came from the
// connected device, per cfg.Host. With no host configured (or no source
// address attached, as in tests that synthesize datagrams) everything
// passes.
func (d *Dispatcher) fromExpectedSource(from *net.UDPAddr) bool {
	if d.cfg.Host == "" || from == nil {
		return true
	}
	return from.IP.String() == d.cfg.Host
}

func addrString(a *net.UDPAddr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func (d *Dispatcher) classify(parsed any) {
	switch v := parsed.(type) {
	case *wire.Notify:
		switch v.Kind {
		case wire.NotificationKeepAlive:
			if d.onKeepAlive != nil {
				d.onKeepAlive()
			}
		case wire.NotificationGoodbye:
			if d.onGoodbye != nil {
				d.onGoodbye()
			}
		default:
			d.checkSequence(v)
			for _, p := range v.Properties {
				d.queue.push(item{kind: kindProperty, property: PropertyEvent{
					Name: p.Name, Value: p.Value, Visible: p.Visible,
					Seq: v.Sequence, HasSeq: v.HasSeq,
				}})
			}
		}
	case *wire.MenuNotification:
		d.queue.push(item{kind: kindMenu, menu: MenuEvent{Notification: *v}})
	case *wire.BarNotification:
		d.queue.push(item{kind: kindBar, bar: BarEvent{Notification: *v}})
	}
}

// checkSequence detects gaps in the monotonically increasing notify
// sequence number, wrapping modulo 2^32 (§4.5).
func (d *Dispatcher) checkSequence(n *wire.Notify) {
	if !n.HasSeq {
		return
	}
	d.seqMu.Lock()
	defer d.seqMu.Unlock()

	if d.hasLastSeq {
		diff := n.Sequence - d.lastSeq // uint32 wraparound is well-defined
		if diff > 1 {
			d.queue.push(item{kind: kindSequenceGap, gap: SequenceGapEvent{Expected: d.lastSeq + 1, Got: n.Sequence}})
		}
	}
	d.lastSeq = n.Sequence
	d.hasLastSeq = true
}

func (d *Dispatcher) drainLoop() {
	defer close(d.drainerDone)
	for {
		it, ok := d.queue.pop()
		if !ok {
			return
		}
		d.fanOut(it)
	}
}

func (d *Dispatcher) fanOut(it item) {
	switch it.kind {
	case kindProperty:
		// Same-property notifications must reach a given callback in
		// arrival order (§5), so each callback's invocations for this
		// name are chained through propertyRuns rather than handed to
		// the pool independently; different names still run concurrently.
		for _, cb := range d.registry.propertyCallbacks(it.property.Name) {
			ev, fn := it.property, cb.fn
			d.scheduleTask(func() {
				d.propertyRuns.submit(ev.Name, func() { d.runWithDeadline(func() { fn(ev) }) })
			})
		}
	case kindMenu:
		for _, cb := range d.registry.menuCallbacks() {
			ev, fn := it.menu, cb.fn
			d.scheduleTask(func() { d.pool.Go(func() { d.runWithDeadline(func() { fn(ev) }) }) })
		}
	case kindBar:
		for _, cb := range d.registry.barCallbacks() {
			ev, fn := it.bar, cb.fn
			d.scheduleTask(func() { d.pool.Go(func() { d.runWithDeadline(func() { fn(ev) }) }) })
		}
	case kindSequenceGap:
		d.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerService,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerService,
				Message: "notify sequence gap",
			},
		})
	}
}

// scheduleTask tracks one inbound callback task from the moment it is
// handed off for eventual execution (queued on propertyRuns or the
// pool) until runWithDeadline finishes it, warning once activeTasks
// crosses the soft cap (§5).
func (d *Dispatcher) scheduleTask(dispatch func()) {
	n := d.activeTasks.Add(1)
	if n > activeTaskSoftCap {
		d.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerService,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerService, Message: fmt.Sprintf("inbound callback tasks exceeded soft cap of %d (%d active)", activeTaskSoftCap, n)},
		})
	}
	dispatch()
}

// runWithDeadline runs fn, tracked in activeTasks until it returns, and
// logs if it outruns the configured callback timeout. A misbehaving
// callback never blocks dispatch of the next event because it is the
// pool (or propertyRuns, for property events) that bounds concurrency,
// not this call.
func (d *Dispatcher) runWithDeadline(fn func()) {
	defer d.activeTasks.Add(-1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				err := &CallbackPanickedError{Recovered: fmt.Sprint(r)}
				d.logger.Log(log.Event{
					Timestamp: time.Now(),
					Layer:     log.LayerService,
					Category:  log.CategoryError,
					Error:     &log.ErrorEventData{Layer: log.LayerService, Message: err.Error()},
				})
			}
		}()
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.CallbackTimeout):
		d.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerService,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerService, Message: "callback exceeded timeout"},
		})
	}
}

func (d *Dispatcher) logDropped(total uint64) {
	d.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerService,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: log.LayerService, Message: fmt.Sprintf("notifications_dropped: %d total", total)},
	})
}
