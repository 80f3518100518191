package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

func TestFromTransponder(t *testing.T) {
	tr := &wire.Transponder{
		Model:               "XMC-2",
		Revision:            "3.1",
		Name:                "LR",
		ProtocolVersion:     wire.ProtocolV31,
		ControlPort:         7002,
		NotifyPort:          7003,
		KeepAliveIntervalMs: 10000,
	}
	desc := fromTransponder(tr)
	assert.Equal(t, "XMC-2", desc.Model)
	assert.Equal(t, wire.ProtocolV31, desc.ProtocolVersion)
	assert.EqualValues(t, 7002, desc.ControlPort)
}

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{Attempts: 4}
	assert.Contains(t, err.Error(), "4 attempts")
}
