package xmcengine

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

// EngineConfig is the caller-provided configuration for an Engine (§3/§6).
type EngineConfig struct {
	Host         string
	ProtocolPref wire.ProtocolVersion

	DiscoverRequestPort  uint16
	DiscoverResponsePort uint16

	AckTimeout time.Duration
	MaxRetries int

	RetryBaseMs int
	RetryMaxMs  int

	MaxConcurrentCommands int
	CallbackTimeout       time.Duration
	KeepAliveGrace        time.Duration
	MaxXMLBytes           int

	DefaultSubscriptions []string
}

// DefaultEngineConfig returns an EngineConfig with every field set to its
// documented default (§6), for the given device host.
func DefaultEngineConfig(host string) EngineConfig {
	return EngineConfig{
		Host:                  host,
		ProtocolPref:          wire.ProtocolV31,
		DiscoverRequestPort:   7000,
		DiscoverResponsePort:  7001,
		AckTimeout:            2000 * time.Millisecond,
		MaxRetries:            3,
		RetryBaseMs:           100,
		RetryMaxMs:            2000,
		MaxConcurrentCommands: 5,
		CallbackTimeout:       5000 * time.Millisecond,
		KeepAliveGrace:        5000 * time.Millisecond,
		MaxXMLBytes:           wire.DefaultMaxXMLBytes,
	}
}

// Validate reports every configuration violation at once, joined with
// multierr, rather than stopping at the first.
func (c EngineConfig) Validate() error {
	var errs error

	if c.Host == "" {
		errs = multierr.Append(errs, fmt.Errorf("host must not be empty"))
	} else if net.ParseIP(c.Host) == nil {
		errs = multierr.Append(errs, fmt.Errorf("host %q is not a valid IP literal", c.Host))
	}

	switch c.ProtocolPref {
	case wire.ProtocolV2, wire.ProtocolV3, wire.ProtocolV31:
	default:
		errs = multierr.Append(errs, fmt.Errorf("protocol_pref %q is not one of 2.0, 3.0, 3.1", c.ProtocolPref))
	}

	if c.DiscoverRequestPort == 0 {
		errs = multierr.Append(errs, fmt.Errorf("discover_request_port must be nonzero"))
	}
	if c.DiscoverResponsePort == 0 {
		errs = multierr.Append(errs, fmt.Errorf("discover_response_port must be nonzero"))
	}
	if c.AckTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ack_timeout_ms must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_retries must not be negative"))
	}
	if c.RetryBaseMs <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("retry_base_ms must be positive"))
	}
	if c.RetryMaxMs < c.RetryBaseMs {
		errs = multierr.Append(errs, fmt.Errorf("retry_max_ms must be >= retry_base_ms"))
	}
	if c.MaxConcurrentCommands <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_concurrent_commands must be positive"))
	}
	if c.CallbackTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("callback_timeout_ms must be positive"))
	}
	if c.KeepAliveGrace <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("keepalive_grace_ms must be positive"))
	}
	if c.MaxXMLBytes <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_xml_bytes must be positive"))
	}

	return errs
}
