package connection

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorFiresOnTimeout(t *testing.T) {
	var fired atomic.Bool
	var reason string
	m := NewMonitor(20 * time.Millisecond)
	m.OnTimeout(func(r string) {
		fired.Store(true)
		reason = r
	})
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return fired.Load() }, time.Second, 5*time.Millisecond)
	assert.Contains(t, reason, "keepalive timeout")
}

func TestMonitorResetPreventsTimeout(t *testing.T) {
	var fired atomic.Bool
	m := NewMonitor(40 * time.Millisecond)
	m.OnTimeout(func(string) { fired.Store(true) })
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.Reset()
		time.Sleep(10 * time.Millisecond)
	}

	assert.False(t, fired.Load())
}

func TestMonitorGoodbyeFiresImmediately(t *testing.T) {
	var fired atomic.Bool
	var reason string
	m := NewMonitor(time.Hour)
	m.OnTimeout(func(r string) {
		fired.Store(true)
		reason = r
	})
	m.Start()

	m.Goodbye()

	assert.True(t, fired.Load())
	assert.Equal(t, "received goodbye", reason)
}

func TestMonitorStopDoesNotFire(t *testing.T) {
	var fired atomic.Bool
	m := NewMonitor(20 * time.Millisecond)
	m.OnTimeout(func(string) { fired.Store(true) })
	m.Start()
	m.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}
