package protocol

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emotiva/xmc-engine/pkg/transport"
	"github.com/emotiva/xmc-engine/pkg/wire"
)

// fakeDevice is a minimal loopback UDP responder standing in for an XMC
// device's control endpoint, used to exercise the Protocol Engine's
// send/ack round trip without a real receiver.
type fakeDevice struct {
	conn    *net.UDPConn
	codec   *wire.Codec
	respond func(remote *net.UDPAddr, frame []byte)
}

func newFakeDevice(t *testing.T, respond func(remote *net.UDPAddr, frame []byte)) *fakeDevice {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	d := &fakeDevice{conn: conn, codec: wire.NewCodec(0), respond: respond}
	go d.serve()
	return d
}

func (d *fakeDevice) serve() {
	buf := make([]byte, 65536)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		go d.respond(from, frame)
	}
}

func (d *fakeDevice) port() int {
	return d.conn.LocalAddr().(*net.UDPAddr).Port
}

func (d *fakeDevice) close() { d.conn.Close() }

func newTestEngine(t *testing.T, respond func(remote *net.UDPAddr, frame []byte)) (*Engine, *fakeDevice, func()) {
	device := newFakeDevice(t, respond)
	mgr := transport.NewManager(nil)
	require.NoError(t, mgr.StartSession("127.0.0.1", uint16(device.port()), 17003))

	codec := wire.NewCodec(0)
	cfg := Config{
		ProtocolVersion:       wire.ProtocolV31,
		AckTimeout:            300 * time.Millisecond,
		MaxRetries:            2,
		RetryBaseMs:           20,
		RetryMaxMs:            100,
		MaxConcurrentCommands: 5,
	}
	eng := New(mgr, codec, cfg, nil)
	eng.Start()

	cleanup := func() {
		eng.Stop()
		mgr.Stop()
		device.close()
	}
	return eng, device, cleanup
}

func TestEngineSendCommandAck(t *testing.T) {
	var device *fakeDevice
	eng, device, cleanup := newTestEngine(t, func(remote *net.UDPAddr, frame []byte) {
		// The codec decodes inbound roots only; check the outbound frame's shape directly.
		require.Contains(t, string(frame), "<"+wire.RootControl+"><power_on ")
		ackFrame := buildAckFrame([]wire.AckResult{{Name: "power_on", Status: wire.StatusAck}})
		device.conn.WriteToUDP(ackFrame, remote)
	})
	defer cleanup()

	result, err := eng.SendCommand(context.Background(), wire.CommandFrame{Name: "power_on", Value: "", AckRequired: true})
	require.NoError(t, err)
	require.Equal(t, "power_on", result.Name)
	require.Equal(t, wire.StatusAck, result.Status)
}

func TestEngineSendCommandNoAckRequired(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, func(remote *net.UDPAddr, frame []byte) {})
	defer cleanup()

	result, err := eng.SendCommand(context.Background(), wire.CommandFrame{Name: "volume", Value: "10", AckRequired: false})
	require.NoError(t, err)
	require.Equal(t, wire.StatusAck, result.Status)
}

func TestEngineSendCommandTimesOutAfterRetries(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, func(remote *net.UDPAddr, frame []byte) {
		// never respond
	})
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := eng.SendCommand(ctx, wire.CommandFrame{Name: "power_on", AckRequired: true})
	require.Error(t, err)
	var timeoutErr *AckTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestEngineSubscribe(t *testing.T) {
	eng, _, cleanup := newTestEngine(t, func(remote *net.UDPAddr, frame []byte) {
		resp := buildSubscriptionFrame([]wire.Property{
			{Name: "power", Value: "On", Visible: true, Status: wire.StatusAck},
			{Name: "volume", Value: "-20.0", Visible: true, Status: wire.StatusAck},
		})
		conn, _ := net.DialUDP("udp4", nil, remote)
		conn.Write(resp)
		conn.Close()
	})
	defer cleanup()

	outcomes, err := eng.Subscribe(context.Background(), wire.ProtocolV31, []string{"power", "volume"})
	require.NoError(t, err)
	require.Equal(t, wire.StatusAck, outcomes["power"].Status)
	require.Equal(t, "On", outcomes["power"].InitialValue)
	require.Equal(t, "-20.0", outcomes["volume"].InitialValue)
}

// buildAckFrame and buildSubscriptionFrame hand-roll the wire format the
// device side would produce, independent of the Codec's own encoder, so
// the test exercises the decoder the Engine actually relies on.
func buildAckFrame(results []wire.AckResult) []byte {
	out := `<?xml version="1.0" encoding="utf-8"?><emotivaAck>`
	for _, r := range results {
		out += `<` + r.Name + ` status="` + string(r.Status) + `"/>`
	}
	out += `</emotivaAck>`
	return []byte(out)
}

func buildSubscriptionFrame(props []wire.Property) []byte {
	out := `<?xml version="1.0" encoding="utf-8"?><emotivaSubscription>`
	for _, p := range props {
		out += `<property name="` + p.Name + `" value="` + p.Value + `" status="` + string(p.Status) + `"/>`
	}
	out += `</emotivaSubscription>`
	return []byte(out)
}
