// Package xmcengine is the Controller Facade (§4.7): it binds Discovery,
// the Socket Manager, the Protocol Engine, the Notification Dispatcher,
// and the Keepalive Monitor into a single lifecycle — connect, send,
// subscribe, close — and surfaces typed connection events to the caller.
package xmcengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emotiva/xmc-engine/pkg/connection"
	"github.com/emotiva/xmc-engine/pkg/dispatch"
	"github.com/emotiva/xmc-engine/pkg/discovery"
	"github.com/emotiva/xmc-engine/pkg/log"
	"github.com/emotiva/xmc-engine/pkg/protocol"
	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

// regKind distinguishes what a Registration refers to, so Unregister can
// route to the right registry without the caller needing to know.
type regKind uint8

const (
	regKindProperty regKind = iota
	regKindConnection
)

// Registration is an opaque handle returned by OnProperty/OnConnection,
// used to unregister a callback. It never retains the Engine itself.
type Registration struct {
	kind         regKind
	propertyID   uint64
	connectionID uint64
}

// Engine is the Controller Facade. The zero value is not usable; obtain
// one with New.
type Engine struct {
	cfg    EngineConfig
	logger log.Logger

	transport *transport.Manager
	codec     *wire.Codec
	manager   *connection.Manager

	// mu guards the subsystem handles below, which are replaced on every
	// (re)connect by connectOnce and read concurrently by the public API.
	mu         sync.RWMutex
	proto      *protocol.Engine
	dispatcher *dispatch.Dispatcher
	liveness   *connection.Monitor
	descriptor *discovery.DeviceDescriptor

	subs *subscriptionSet

	connCallbacks *connCallbacks
	propCallbacks *propertyCallbacks
}

// snapshot returns the currently active subsystem handles, or
// connection.ErrNotConnected if the engine has never completed a connect
// or is not currently Connected (e.g. Degraded after a keepalive
// timeout: proto/dispatcher are still non-nil there, pointed at a dead
// socket, so callers must fail fast rather than block on AckTimeout).
func (e *Engine) snapshot() (*protocol.Engine, *dispatch.Dispatcher, error) {
	if e.manager.State() != connection.StateConnected {
		return nil, nil, connection.ErrNotConnected
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.proto == nil {
		return nil, nil, connection.ErrNotConnected
	}
	return e.proto, e.dispatcher, nil
}

// currentDispatcher returns the active Dispatcher regardless of
// connection state, or nil if none has been built yet. Unlike snapshot,
// OnProperty/Unregister need this even while Degraded so a registration
// made mid-outage still lands on whatever Dispatcher is live.
func (e *Engine) currentDispatcher() *dispatch.Dispatcher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dispatcher
}

// activeProto returns the Protocol Engine connectOnce most recently
// installed, without consulting connection.Manager's state. It exists
// for replaySubscriptions, which connectOnce calls on its own goroutine
// before the state machine has transitioned out of Connecting; snapshot
// would reject it there.
func (e *Engine) activeProto() (*protocol.Engine, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.proto == nil {
		return nil, connection.ErrNotConnected
	}
	return e.proto, nil
}

// New constructs an Engine from cfg. Call Connect to bind sockets and
// perform discovery.
func New(cfg EngineConfig, logger log.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xmcengine: invalid config: %w", err)
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	e := &Engine{
		cfg:           cfg,
		logger:        logger,
		transport:     transport.NewManager(logger),
		codec:         wire.NewCodec(cfg.MaxXMLBytes),
		subs:          newSubscriptionSet(cfg.DefaultSubscriptions),
		connCallbacks: newConnCallbacks(logger),
		propCallbacks: newPropertyCallbacks(),
	}
	e.manager = connection.NewManager(e.connectOnce, 0)
	e.manager.OnStateChange(e.connCallbacks.fire)
	e.manager.StartReconnectLoop()
	return e, nil
}

// Connect performs discovery (a configured Host only filters which reply
// is accepted), binds the control/notify sockets, starts the Protocol
// Engine, Dispatcher, and Keepalive Monitor, and replays
// default_subscriptions best-effort. Concurrent callers are serialised:
// those that waited on a successful attempt share its result, while after
// a failed attempt each waiting caller runs its own attempt. Calling
// Connect while already Connected is a no-op (P1).
func (e *Engine) Connect(ctx context.Context) (*discovery.DeviceDescriptor, error) {
	if err := e.manager.Connect(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.descriptor, nil
}

// connectOnce is the connection.ConnectFunc driving Manager. It performs
// the actual discovery/bind/start sequence and is only ever run by one
// caller at a time (Manager.Connect serialises it).
func (e *Engine) connectOnce(ctx context.Context) error {
	if err := e.transport.StartDiscovery(e.cfg.DiscoverRequestPort, e.cfg.DiscoverResponsePort); err != nil {
		return err
	}

	desc, err := discovery.Discover(ctx, e.transport, e.codec, discovery.Config{
		Host:                e.cfg.Host,
		ProtocolPref:        e.cfg.ProtocolPref,
		DiscoverRequestPort: e.cfg.DiscoverRequestPort,
		MaxRetries:          e.cfg.MaxRetries,
		RetryBaseMs:         e.cfg.RetryBaseMs,
		RetryMaxMs:          e.cfg.RetryMaxMs,
	}, e.logger)
	if err != nil {
		return err
	}

	// Stop whatever the previous connect cycle left running before
	// StartSession rebinds the control/notify sockets: otherwise the old
	// Protocol Engine and Dispatcher readLoops keep calling
	// transport.Recv for roles that now belong to the new instances,
	// splitting acks/notifications nondeterministically between a dead
	// and a live correlator (§4.2 single-reader-per-role).
	e.stopActive()

	if err := e.transport.StartSession(e.cfg.Host, desc.ControlPort, desc.NotifyPort); err != nil {
		return err
	}

	proto := protocol.New(e.transport, e.codec, protocol.Config{
		ProtocolVersion:       desc.ProtocolVersion,
		AckTimeout:            e.cfg.AckTimeout,
		MaxRetries:            e.cfg.MaxRetries,
		RetryBaseMs:           e.cfg.RetryBaseMs,
		RetryMaxMs:            e.cfg.RetryMaxMs,
		MaxConcurrentCommands: e.cfg.MaxConcurrentCommands,
	}, e.logger)
	proto.Start()

	liveness := connection.NewMonitor(time.Duration(desc.KeepAliveIntervalMs)*time.Millisecond + e.cfg.KeepAliveGrace)
	liveness.OnTimeout(func(reason string) {
		e.manager.NotifyDegraded(reason)
	})

	dispatcher := dispatch.New(e.transport, e.codec, dispatch.Config{
		CallbackTimeout: e.cfg.CallbackTimeout,
		Host:            e.cfg.Host,
	}, e.logger)
	dispatcher.OnKeepAlive(liveness.Reset)
	dispatcher.OnGoodbye(liveness.Goodbye)
	e.propCallbacks.replay(dispatcher)
	dispatcher.Start()
	liveness.Start()

	e.mu.Lock()
	e.descriptor = desc
	e.proto = proto
	e.dispatcher = dispatcher
	e.liveness = liveness
	e.mu.Unlock()

	e.replaySubscriptions(ctx)
	return nil
}

// stopActive tears down whichever Keepalive Monitor, Dispatcher, and
// Protocol Engine are currently installed, waiting for their read loops
// to exit before returning. Safe to call when none are installed yet
// (first connect) or repeatedly (Close after connectOnce already ran
// it on this cycle).
func (e *Engine) stopActive() {
	e.mu.RLock()
	liveness, dispatcher, proto := e.liveness, e.dispatcher, e.proto
	e.mu.RUnlock()
	if liveness != nil {
		liveness.Stop()
	}
	if dispatcher != nil {
		dispatcher.Close()
	}
	if proto != nil {
		proto.Stop()
	}
}

// replaySubscriptions resends the authoritative Subscription Set after a
// fresh connect or reconnect. Failures are non-fatal and only logged
// (§4.7 "best effort").
func (e *Engine) replaySubscriptions(ctx context.Context) {
	names := e.subs.snapshot()
	if len(names) == 0 {
		return
	}
	proto, err := e.activeProto()
	if err != nil {
		return
	}
	if _, err := proto.Subscribe(ctx, e.cfg.ProtocolPref, names); err != nil {
		e.logger.Log(log.Event{
			Timestamp: time.Now(),
			Layer:     log.LayerService,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Layer: log.LayerService, Message: "subscription replay failed: " + err.Error()},
		})
	}
}

// SendCommand serialises and sends a single command. If the device naks
// it, the returned error is a *NakError.
func (e *Engine) SendCommand(ctx context.Context, name, value string, ackRequired bool) (wire.AckResult, error) {
	proto, _, err := e.snapshot()
	if err != nil {
		return wire.AckResult{}, err
	}
	result, err := proto.SendCommand(ctx, wire.CommandFrame{Name: name, Value: value, AckRequired: ackRequired})
	if err != nil {
		return result, err
	}
	if ackRequired && result.Status == wire.StatusNak {
		return result, &NakError{Name: name}
	}
	return result, nil
}

// SendCommands batches multiple commands into one control frame.
func (e *Engine) SendCommands(ctx context.Context, cmds []wire.CommandFrame) ([]wire.AckResult, error) {
	proto, _, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return proto.SendCommands(ctx, cmds)
}

// Subscribe subscribes to names not already tracked in the Subscription
// Set and merges acked names into it (P6: de-duplicated on the wire).
func (e *Engine) Subscribe(ctx context.Context, names []string) (map[string]protocol.SubscriptionOutcome, error) {
	proto, _, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	fresh := e.subs.notYetSubscribed(names)
	if len(fresh) == 0 {
		return map[string]protocol.SubscriptionOutcome{}, nil
	}
	outcomes, err := proto.Subscribe(ctx, e.cfg.ProtocolPref, fresh)
	if err != nil {
		return nil, err
	}
	for name, o := range outcomes {
		if o.Status == wire.StatusAck {
			e.subs.add(name)
		}
	}
	return outcomes, nil
}

// Unsubscribe is symmetric to Subscribe.
func (e *Engine) Unsubscribe(ctx context.Context, names []string) (map[string]protocol.SubscriptionOutcome, error) {
	proto, _, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	outcomes, err := proto.Unsubscribe(ctx, e.cfg.ProtocolPref, names)
	if err != nil {
		return nil, err
	}
	for name, o := range outcomes {
		if o.Status == wire.StatusAck {
			e.subs.remove(name)
		}
	}
	return outcomes, nil
}

// RequestUpdate requests current values for names, regardless of
// subscription state.
func (e *Engine) RequestUpdate(ctx context.Context, names []string) (map[string]string, error) {
	proto, _, err := e.snapshot()
	if err != nil {
		return nil, err
	}
	return proto.RequestUpdate(ctx, e.cfg.ProtocolPref, names)
}

// OnProperty registers fn for property events named name, or every event
// when name is "*". The registration lives at the engine level and is
// replayed onto each Dispatcher a (re)connect installs, so it keeps
// firing across reconnects rather than being silently dropped with the
// Dispatcher that was active when it was made.
func (e *Engine) OnProperty(name string, fn func(dispatch.PropertyEvent)) Registration {
	id := e.propCallbacks.add(name, fn)
	if d := e.currentDispatcher(); d != nil {
		e.propCallbacks.applyTo(id, d)
	}
	return Registration{kind: regKindProperty, propertyID: id}
}

// OnConnection registers fn to be called on every connection state
// transition.
func (e *Engine) OnConnection(fn func(connection.Event)) Registration {
	id := e.connCallbacks.add(fn)
	return Registration{kind: regKindConnection, connectionID: id}
}

// Unregister removes a previously registered OnProperty or OnConnection
// callback.
func (e *Engine) Unregister(reg Registration) {
	switch reg.kind {
	case regKindProperty:
		e.propCallbacks.remove(reg.propertyID, e.currentDispatcher())
	case regKindConnection:
		e.connCallbacks.remove(reg.connectionID)
	}
}

// Close idempotently tears down the engine: marks the state machine
// Closed, then stops the Keepalive Monitor, the Dispatcher (draining
// in-flight callbacks), the Protocol Engine, and the Socket Manager (P5).
func (e *Engine) Close() error {
	e.manager.Close()
	e.stopActive()
	return e.transport.Stop()
}
