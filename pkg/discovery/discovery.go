package discovery

import (
	"context"
	"net"
	"time"

	"github.com/emotiva/xmc-engine/pkg/connection"
	"github.com/emotiva/xmc-engine/pkg/log"
	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

// Config carries the subset of EngineConfig that governs discovery.
type Config struct {
	Host                string // optional; filters replies by source address
	ProtocolPref        wire.ProtocolVersion
	DiscoverRequestPort uint16
	MaxRetries          int
	RetryBaseMs         int
	RetryMaxMs          int
}

// Discover broadcasts emotivaPing on the discover-request port and
// returns the first matching emotivaTransponder reply, retrying with
// exponential backoff up to cfg.MaxRetries additional times.
func Discover(ctx context.Context, mgr *transport.Manager, codec *wire.Codec, cfg Config, logger log.Logger) (*DeviceDescriptor, error) {
	if logger == nil {
		logger = log.NoopLogger{}
	}

	backoff := connection.NewBackoffWithConfig(connection.BackoffConfig{
		Initial:    time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		Max:        time.Duration(cfg.RetryMaxMs) * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     0.25,
	})

	ping, err := codec.EncodePing(cfg.ProtocolPref)
	if err != nil {
		return nil, err
	}
	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: int(cfg.DiscoverRequestPort)}

	attempts := cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := mgr.Send(transport.RoleDiscoverReq, ping, broadcastAddr); err != nil {
			logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerTransport,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Layer: log.LayerTransport, Message: err.Error(), Context: "discovery ping send"},
			})
			continue
		}

		window := backoff.Next()
		deadline := time.Now().Add(window)

		desc, ok := waitForTransponder(ctx, mgr, codec, cfg, logger, deadline)
		if ok {
			return desc, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	return nil, &TimeoutError{Attempts: attempts}
}

func waitForTransponder(ctx context.Context, mgr *transport.Manager, codec *wire.Codec, cfg Config, logger log.Logger, deadline time.Time) (*DeviceDescriptor, bool) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		dg, err := mgr.Recv(ctx, transport.RoleDiscoverResp, remaining)
		if err != nil {
			return nil, false
		}

		if cfg.Host != "" && dg.From != nil && dg.From.IP.String() != cfg.Host {
			logger.Log(log.Event{
				Timestamp:  time.Now(),
				Layer:      log.LayerWire,
				Category:   log.CategoryError,
				RemoteAddr: dg.From.String(),
				Error:      &log.ErrorEventData{Layer: log.LayerWire, Message: "transponder reply from unexpected host", Context: cfg.Host},
			})
			continue
		}

		parsed, err := codec.Decode(dg.Data)
		if err != nil {
			logger.Log(log.Event{
				Timestamp: time.Now(),
				Layer:     log.LayerWire,
				Category:  log.CategoryError,
				Error:     &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: "discovery reply decode"},
			})
			continue
		}

		tr, ok := parsed.(*wire.Transponder)
		if !ok {
			continue
		}
		desc := fromTransponder(tr)
		return &desc, true
	}
}
