package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

func TestCorrelatorSimpleMatch(t *testing.T) {
	c := newCorrelator()
	pr := newPendingRequest([]string{"power_on"})
	c.register(pr)

	c.deliver([]outcome{{name: "power_on", status: wire.StatusAck}})

	select {
	case <-pr.done:
	default:
		t.Fatal("expected request to be satisfied")
	}
	assert.Equal(t, wire.StatusAck, pr.results["power_on"].status)
}

func TestCorrelatorFIFOSplitAcrossRequests(t *testing.T) {
	c := newCorrelator()
	prA := newPendingRequest([]string{"power_on", "volume"})
	prB := newPendingRequest([]string{"mute"})
	c.register(prA)
	c.register(prB)

	// A response naming all three names: power_on/volume go to the older
	// request, mute is charged to the next oldest.
	c.deliver([]outcome{
		{name: "power_on", status: wire.StatusAck},
		{name: "volume", status: wire.StatusAck},
		{name: "mute", status: wire.StatusAck},
	})

	require.True(t, isClosed(prA.done))
	require.True(t, isClosed(prB.done))
}

func TestCorrelatorOrphanThenLateRegister(t *testing.T) {
	c := newCorrelator()
	c.deliver([]outcome{{name: "power_on", status: wire.StatusAck}})

	pr := newPendingRequest([]string{"power_on"})
	c.register(pr)

	require.True(t, isClosed(pr.done))
}

func TestCorrelatorOrphanExpires(t *testing.T) {
	c := newCorrelator()
	c.orphans = []orphan{{outcome: outcome{name: "stale"}, at: time.Now().Add(-time.Second)}}

	pr := newPendingRequest([]string{"stale"})
	c.register(pr)

	assert.False(t, isClosed(pr.done))
}

func TestCorrelatorForget(t *testing.T) {
	c := newCorrelator()
	pr := newPendingRequest([]string{"power_on"})
	c.register(pr)
	c.forget(pr)

	c.deliver([]outcome{{name: "power_on", status: wire.StatusAck}})
	assert.False(t, isClosed(pr.done))
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
