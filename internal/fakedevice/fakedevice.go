// Package fakedevice provides a scripted, loopback UDP stand-in for an
// XMC device, for exercising discovery, command acknowledgement,
// subscription, and notification flows end to end without a real
// receiver (§8 Scenarios A-F). No test in this module imports it.
package fakedevice

import (
	"net"
	"strconv"
	"sync"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

// Device is a fake XMC device. It listens on its own discover_resp,
// control, and notify sockets and responds to pings/commands according
// to the scripted behaviour the test installs via the On* callbacks.
type Device struct {
	discoverConn *net.UDPConn
	controlConn  *net.UDPConn
	notifyConn   *net.UDPConn

	codec *wire.Codec

	mu          sync.Mutex
	onPing      func(remote *net.UDPAddr)
	onControl   func(remote *net.UDPAddr, frame []byte)
	onSubscribe func(remote *net.UDPAddr, frame []byte)
	onUpdate    func(remote *net.UDPAddr, frame []byte)

	closeOnce sync.Once
	stopCh    chan struct{}
}

// New binds three loopback sockets (discover_resp, control, notify) on
// ephemeral ports and starts serving. Callers read DiscoverPort/
// ControlPort/NotifyPort to tell the Engine under test where to find it.
func New() (*Device, error) {
	discoverConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, err
	}
	controlConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		discoverConn.Close()
		return nil, err
	}
	notifyConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		discoverConn.Close()
		controlConn.Close()
		return nil, err
	}

	d := &Device{
		discoverConn: discoverConn,
		controlConn:  controlConn,
		notifyConn:   notifyConn,
		codec:        wire.NewCodec(0),
		stopCh:       make(chan struct{}),
	}
	go d.serve(discoverConn, d.handlePing)
	go d.serve(controlConn, d.handleControl)
	return d, nil
}

func (d *Device) serve(conn *net.UDPConn, handle func(*net.UDPAddr, []byte)) {
	buf := make([]byte, 65536)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		go handle(from, frame)
	}
}

func (d *Device) handlePing(from *net.UDPAddr, frame []byte) {
	d.mu.Lock()
	cb := d.onPing
	d.mu.Unlock()
	if cb != nil {
		cb(from)
	}
}

func (d *Device) handleControl(from *net.UDPAddr, frame []byte) {
	d.mu.Lock()
	onControl, onSubscribe, onUpdate := d.onControl, d.onSubscribe, d.onUpdate
	d.mu.Unlock()

	parsed, err := d.codec.Decode(frame)
	if err != nil {
		// The codec decodes inbound roots only, so an emotivaControl
		// request surfaces as an UnknownRootError naming that root.
		if unknown, ok := err.(*wire.UnknownRootError); ok && unknown.Root == wire.RootControl && onControl != nil {
			onControl(from, frame)
		}
		return
	}
	switch parsed.(type) {
	case *wire.SubscriptionResponse:
		if onSubscribe != nil {
			onSubscribe(from, frame)
		}
	case *wire.UpdateResponse:
		if onUpdate != nil {
			onUpdate(from, frame)
		}
	default:
		if onControl != nil {
			onControl(from, frame)
		}
	}
}

// OnPing installs the callback invoked whenever an emotivaPing arrives.
func (d *Device) OnPing(fn func(remote *net.UDPAddr)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onPing = fn
}

// OnControl installs the callback invoked for emotivaControl frames and
// for any other decodable control frame that is not a subscription or
// update request (such as emotivaUnsubscribe).
func (d *Device) OnControl(fn func(remote *net.UDPAddr, frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onControl = fn
}

// OnSubscribe installs the callback invoked for emotivaSubscription
// requests.
func (d *Device) OnSubscribe(fn func(remote *net.UDPAddr, frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onSubscribe = fn
}

// OnUpdate installs the callback invoked for emotivaUpdate requests.
func (d *Device) OnUpdate(fn func(remote *net.UDPAddr, frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUpdate = fn
}

// ReplyTransponder sends an emotivaTransponder to remote from the
// discover_resp socket, advertising this device's control/notify ports.
func (d *Device) ReplyTransponder(remote *net.UDPAddr, model string, version wire.ProtocolVersion, keepAliveMs uint32) error {
	body := `<?xml version="1.0" encoding="utf-8"?><emotivaTransponder>` +
		`<model>` + model + `</model><revision>` + string(version) + `</revision><name>LR</name>` +
		`<control><version>` + string(version) + `</version>` +
		`<controlPort>` + portString(d.ControlPort()) + `</controlPort>` +
		`<notifyPort>` + portString(d.NotifyPort()) + `</notifyPort>` +
		`<keepAlive>` + uint32String(keepAliveMs) + `</keepAlive></control></emotivaTransponder>`
	_, err := d.discoverConn.WriteToUDP([]byte(body), remote)
	return err
}

// ReplyAck sends an emotivaAck naming results to remote on the control
// socket.
func (d *Device) ReplyAck(remote *net.UDPAddr, results []wire.AckResult) error {
	body := `<?xml version="1.0" encoding="utf-8"?><emotivaAck>`
	for _, r := range results {
		body += `<` + r.Name + ` status="` + string(r.Status) + `"/>`
	}
	body += `</emotivaAck>`
	_, err := d.controlConn.WriteToUDP([]byte(body), remote)
	return err
}

// ReplySubscription sends an emotivaSubscription reply to remote.
func (d *Device) ReplySubscription(remote *net.UDPAddr, props []wire.Property) error {
	body := `<?xml version="1.0" encoding="utf-8"?><emotivaSubscription>`
	for _, p := range props {
		body += `<property name="` + p.Name + `" value="` + p.Value + `" status="` + string(p.Status) + `"/>`
	}
	body += `</emotivaSubscription>`
	_, err := d.controlConn.WriteToUDP([]byte(body), remote)
	return err
}

// SendNotify emits an emotivaNotify with the given sequence number and
// properties from the notify socket to dest.
func (d *Device) SendNotify(dest *net.UDPAddr, seq uint32, props []wire.Property) error {
	body := `<?xml version="1.0" encoding="utf-8"?><emotivaNotify sequence="` + uint32String(seq) + `">`
	for _, p := range props {
		body += `<property name="` + p.Name + `" value="` + p.Value + `"/>`
	}
	body += `</emotivaNotify>`
	_, err := d.notifyConn.WriteToUDP([]byte(body), dest)
	return err
}

// SendKeepAlive emits a keepAlive frame from the notify socket to dest.
func (d *Device) SendKeepAlive(dest *net.UDPAddr) error {
	body := `<?xml version="1.0" encoding="utf-8"?><emotivaNotify><keepAlive/></emotivaNotify>`
	_, err := d.notifyConn.WriteToUDP([]byte(body), dest)
	return err
}

// DiscoverPort, ControlPort, NotifyPort report this device's bound local
// ports.
func (d *Device) DiscoverPort() int { return d.discoverConn.LocalAddr().(*net.UDPAddr).Port }
func (d *Device) ControlPort() int  { return d.controlConn.LocalAddr().(*net.UDPAddr).Port }
func (d *Device) NotifyPort() int   { return d.notifyConn.LocalAddr().(*net.UDPAddr).Port }

// Close shuts down every socket. Idempotent.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		close(d.stopCh)
		d.discoverConn.Close()
		d.controlConn.Close()
		d.notifyConn.Close()
	})
}

func portString(p int) string       { return strconv.Itoa(p) }
func uint32String(v uint32) string  { return strconv.FormatUint(uint64(v), 10) }
