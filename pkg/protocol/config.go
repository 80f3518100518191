package protocol

import (
	"time"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

// Config carries the subset of EngineConfig the Protocol Engine needs.
type Config struct {
	ProtocolVersion       wire.ProtocolVersion
	AckTimeout            time.Duration
	MaxRetries            int
	RetryBaseMs           int
	RetryMaxMs            int
	MaxConcurrentCommands int
}

// orphanTTL is how long an unmatched response is held in case a request
// that names it registers shortly after (§4.4 "buffered for up to 200ms").
const orphanTTL = 200 * time.Millisecond
