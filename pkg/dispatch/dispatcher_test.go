package dispatch

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *net.UDPConn, *net.UDPAddr, func()) {
	mgr := transport.NewManager(nil)
	require.NoError(t, mgr.StartSession("127.0.0.1", 17002, 17003))

	notifyAddr, ok := mgr.LocalAddr(transport.RoleNotify)
	require.True(t, ok)

	// A loopback socket standing in for the device, used to write
	// notify frames directly at the dispatcher's bound notify port.
	deviceConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	d := New(mgr, wire.NewCodec(0), Config{CallbackTimeout: 200 * time.Millisecond}, nil)
	d.Start()

	cleanup := func() {
		d.Close()
		mgr.Stop()
		deviceConn.Close()
	}
	return d, deviceConn, notifyAddr, cleanup
}

func TestDispatcherPropertyFanOut(t *testing.T) {
	d, deviceConn, notifyAddr, cleanup := newTestDispatcher(t)
	defer cleanup()

	var mu sync.Mutex
	var got PropertyEvent
	done := make(chan struct{})
	d.OnProperty("power", func(e PropertyEvent) {
		mu.Lock()
		got = e
		mu.Unlock()
		close(done)
	})

	frame := []byte(`<?xml version="1.0" encoding="utf-8"?><emotivaNotify sequence="1"><property name="power" value="On" visible="true"/></emotivaNotify>`)
	_, err := deviceConn.WriteToUDP(frame, notifyAddr)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "On", got.Value)
}

func TestDispatcherKeepAliveCallback(t *testing.T) {
	d, deviceConn, notifyAddr, cleanup := newTestDispatcher(t)
	defer cleanup()

	done := make(chan struct{})
	d.OnKeepAlive(func() { close(done) })

	frame := []byte(`<?xml version="1.0" encoding="utf-8"?><emotivaNotify><keepAlive/></emotivaNotify>`)
	_, err := deviceConn.WriteToUDP(frame, notifyAddr)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepalive callback never invoked")
	}
}

func TestDispatcherCallbackPanicIsolated(t *testing.T) {
	d, deviceConn, notifyAddr, cleanup := newTestDispatcher(t)
	defer cleanup()

	done := make(chan struct{})
	d.OnProperty("power", func(PropertyEvent) { panic("boom") })
	d.OnProperty("power", func(PropertyEvent) { close(done) })

	frame := []byte(`<?xml version="1.0" encoding="utf-8"?><emotivaNotify sequence="1"><property name="power" value="On"/></emotivaNotify>`)
	_, err := deviceConn.WriteToUDP(frame, notifyAddr)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second callback never ran after the first panicked")
	}
}

func TestDispatcherSequenceGap(t *testing.T) {
	d, deviceConn, notifyAddr, cleanup := newTestDispatcher(t)
	defer cleanup()

	frame1 := []byte(`<?xml version="1.0" encoding="utf-8"?><emotivaNotify sequence="1"><property name="power" value="On"/></emotivaNotify>`)
	frame2 := []byte(`<?xml version="1.0" encoding="utf-8"?><emotivaNotify sequence="5"><property name="power" value="Off"/></emotivaNotify>`)

	done := make(chan struct{})
	d.OnProperty("power", func(e PropertyEvent) {
		if e.Value == "Off" {
			close(done)
		}
	})

	_, err := deviceConn.WriteToUDP(frame1, notifyAddr)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = deviceConn.WriteToUDP(frame2, notifyAddr)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second property event never arrived")
	}
}
