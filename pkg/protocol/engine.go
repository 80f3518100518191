package protocol

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/emotiva/xmc-engine/pkg/connection"
	"github.com/emotiva/xmc-engine/pkg/log"
	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

// SubscriptionOutcome is one name's result from a subscribe/unsubscribe
// round-trip: the ack/nak status and, on a fresh subscribe, the
// property's current value.
type SubscriptionOutcome struct {
	Status       wire.AckStatus
	InitialValue string
	HasValue     bool
}

// Engine is the Protocol Engine (§4.4): it owns the control endpoint's
// receive side, correlates responses to outstanding requests, retries on
// timeout, and bounds concurrency with a semaphore.
type Engine struct {
	transport *transport.Manager
	codec     *wire.Codec
	cfg       Config
	logger    log.Logger

	sem *semaphore.Weighted

	ackCorrelator   *correlator
	subCorrelator   *correlator
	unsubCorrelator *correlator
	updateCorrelator *correlator

	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Engine bound to mgr's control endpoint. Call Start
// before issuing any command.
func New(mgr *transport.Manager, codec *wire.Codec, cfg Config, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if cfg.MaxConcurrentCommands <= 0 {
		cfg.MaxConcurrentCommands = 5
	}
	return &Engine{
		transport:        mgr,
		codec:            codec,
		cfg:              cfg,
		logger:           logger,
		sem:              semaphore.NewWeighted(int64(cfg.MaxConcurrentCommands)),
		ackCorrelator:    newCorrelator(),
		subCorrelator:    newCorrelator(),
		unsubCorrelator:  newCorrelator(),
		updateCorrelator: newCorrelator(),
	}
}

// Start launches the control-endpoint reader goroutine.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.readLoop(ctx)
}

// Stop cancels the reader goroutine and waits for it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.done != nil {
		<-e.done
	}
}

func (e *Engine) readLoop(ctx context.Context) {
	defer close(e.done)
	for {
		dg, err := e.transport.Recv(ctx, transport.RoleControl, 500*time.Millisecond)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		parsed, err := e.codec.Decode(dg.Data)
		if err != nil {
			e.logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerWire,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "control response decode"},
			})
			continue
		}
		e.dispatch(parsed)
	}
}

func (e *Engine) dispatch(parsed any) {
	switch v := parsed.(type) {
	case *wire.Ack:
		outs := make([]outcome, 0, len(v.Results))
		for _, r := range v.Results {
			outs = append(outs, outcome{name: r.Name, status: r.Status})
		}
		e.ackCorrelator.deliver(outs)
	case *wire.SubscriptionResponse:
		e.subCorrelator.deliver(propertiesToOutcomes(v.Properties))
	case *wire.UnsubscribeResponse:
		e.unsubCorrelator.deliver(propertiesToOutcomes(v.Properties))
	case *wire.UpdateResponse:
		e.updateCorrelator.deliver(propertiesToOutcomes(v.Properties))
	}
}

func propertiesToOutcomes(props []wire.Property) []outcome {
	outs := make([]outcome, 0, len(props))
	for _, p := range props {
		outs = append(outs, outcome{name: p.Name, status: p.Status, value: p.Value, hasVal: true})
	}
	return outs
}

// SendCommand serialises and sends a single command, awaiting its ack if
// AckRequired is set.
func (e *Engine) SendCommand(ctx context.Context, cmd wire.CommandFrame) (wire.AckResult, error) {
	results, err := e.SendCommands(ctx, []wire.CommandFrame{cmd})
	if err != nil {
		return wire.AckResult{}, err
	}
	return results[0], nil
}

// SendCommands batches commands into a single control frame and awaits a
// single emotivaAck naming all of them.
func (e *Engine) SendCommands(ctx context.Context, cmds []wire.CommandFrame) ([]wire.AckResult, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	names := make([]string, len(cmds))
	anyAckRequired := false
	for i, c := range cmds {
		names[i] = c.Name
		anyAckRequired = anyAckRequired || c.AckRequired
	}

	frame, err := e.codec.EncodeControl(cmds)
	if err != nil {
		return nil, err
	}

	if !anyAckRequired {
		if err := e.transport.Send(transport.RoleControl, frame, nil); err != nil {
			return nil, &CommandFailedError{Name: names[0], Cause: err}
		}
		results := make([]wire.AckResult, len(cmds))
		for i, n := range names {
			results[i] = wire.AckResult{Name: n, Status: wire.StatusAck}
		}
		return results, nil
	}

	pr := newPendingRequest(names)
	e.ackCorrelator.register(pr)

	attempts := e.cfg.MaxRetries + 1
	backoff := connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial:    time.Duration(e.cfg.RetryBaseMs) * time.Millisecond,
		Max:        time.Duration(e.cfg.RetryMaxMs) * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.transport.Send(transport.RoleControl, frame, nil); err != nil {
			e.ackCorrelator.forget(pr)
			return nil, &CommandFailedError{Name: names[0], Cause: err}
		}

		select {
		case <-pr.done:
			return outcomesToAckResults(names, pr.results), nil
		case <-ctx.Done():
			e.ackCorrelator.forget(pr)
			return nil, ctx.Err()
		case <-time.After(e.ackTimeout()):
			if attempt == attempts-1 {
				break
			}
			time.Sleep(backoff.Next())
		}
	}

	e.ackCorrelator.forget(pr)
	return nil, &AckTimeoutError{Name: names[0], Attempts: attempts}
}

func (e *Engine) ackTimeout() time.Duration {
	if e.cfg.AckTimeout <= 0 {
		return 2 * time.Second
	}
	return e.cfg.AckTimeout
}

func outcomesToAckResults(names []string, results map[string]outcome) []wire.AckResult {
	out := make([]wire.AckResult, len(names))
	for i, n := range names {
		if o, ok := results[n]; ok {
			out[i] = wire.AckResult{Name: n, Status: o.status}
		} else {
			out[i] = wire.AckResult{Name: n, Status: wire.StatusNak}
		}
	}
	return out
}

// Subscribe requests names not already tracked by the caller's
// Subscription Set, matching §4.4's "only names not already in the
// Subscription Set are sent" by relying on the caller to pre-filter;
// Subscribe itself always sends exactly the names it is given.
func (e *Engine) Subscribe(ctx context.Context, version wire.ProtocolVersion, names []string) (map[string]SubscriptionOutcome, error) {
	return e.roundTrip(ctx, e.subCorrelator, names, func(n []string) ([]byte, error) {
		return e.codec.EncodeSubscription(version, n)
	})
}

// Unsubscribe is symmetric to Subscribe.
func (e *Engine) Unsubscribe(ctx context.Context, version wire.ProtocolVersion, names []string) (map[string]SubscriptionOutcome, error) {
	return e.roundTrip(ctx, e.unsubCorrelator, names, func(n []string) ([]byte, error) {
		return e.codec.EncodeUnsubscribe(version, n)
	})
}

// RequestUpdate sends emotivaUpdate and returns current values; names
// that nak are omitted from the result.
func (e *Engine) RequestUpdate(ctx context.Context, version wire.ProtocolVersion, names []string) (map[string]string, error) {
	outs, err := e.roundTrip(ctx, e.updateCorrelator, names, func(n []string) ([]byte, error) {
		return e.codec.EncodeUpdate(version, n)
	})
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(outs))
	for name, o := range outs {
		if o.Status == wire.StatusAck && o.HasValue {
			values[name] = o.InitialValue
		}
	}
	return values, nil
}

func (e *Engine) roundTrip(ctx context.Context, corr *correlator, names []string, encode func([]string) ([]byte, error)) (map[string]SubscriptionOutcome, error) {
	if len(names) == 0 {
		return map[string]SubscriptionOutcome{}, nil
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	frame, err := encode(names)
	if err != nil {
		return nil, err
	}

	pr := newPendingRequest(names)
	corr.register(pr)

	attempts := e.cfg.MaxRetries + 1
	backoff := connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial:    time.Duration(e.cfg.RetryBaseMs) * time.Millisecond,
		Max:        time.Duration(e.cfg.RetryMaxMs) * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	for attempt := 0; attempt < attempts; attempt++ {
		if err := e.transport.Send(transport.RoleControl, frame, nil); err != nil {
			corr.forget(pr)
			return nil, &CommandFailedError{Name: names[0], Cause: err}
		}

		select {
		case <-pr.done:
			return outcomesToSubscriptionMap(names, pr.results), nil
		case <-ctx.Done():
			corr.forget(pr)
			return nil, ctx.Err()
		case <-time.After(e.ackTimeout()):
			if attempt == attempts-1 {
				break
			}
			time.Sleep(backoff.Next())
		}
	}

	corr.forget(pr)
	return nil, &AckTimeoutError{Name: names[0], Attempts: attempts}
}

func outcomesToSubscriptionMap(names []string, results map[string]outcome) map[string]SubscriptionOutcome {
	out := make(map[string]SubscriptionOutcome, len(names))
	for _, n := range names {
		if o, ok := results[n]; ok {
			out[n] = SubscriptionOutcome{Status: o.status, InitialValue: o.value, HasValue: o.hasVal}
		} else {
			out[n] = SubscriptionOutcome{Status: wire.StatusNak}
		}
	}
	return out
}
