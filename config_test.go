package xmcengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineConfigIsValid(t *testing.T) {
	cfg := DefaultEngineConfig("192.168.1.50")
	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, 7000, cfg.DiscoverRequestPort)
	assert.EqualValues(t, 7001, cfg.DiscoverResponsePort)
	assert.Equal(t, 5, cfg.MaxConcurrentCommands)
}

func TestEngineConfigValidateReportsEveryViolation(t *testing.T) {
	cfg := EngineConfig{}
	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "host")
	assert.Contains(t, msg, "ack_timeout_ms")
	assert.Contains(t, msg, "max_concurrent_commands")
}

func TestEngineConfigValidateRejectsBadHost(t *testing.T) {
	cfg := DefaultEngineConfig("not-an-ip")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid IP literal")
}
