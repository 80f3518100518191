package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTransponder(t *testing.T) {
	data := []byte(`<emotivaTransponder><model>XMC-2</model><revision>3.1</revision><name>LR</name>` +
		`<control><version>3.1</version><controlPort>7002</controlPort><notifyPort>7003</notifyPort><keepAlive>10000</keepAlive></control>` +
		`</emotivaTransponder>`)

	c := NewCodec(0)
	got, err := c.Decode(data)
	require.NoError(t, err)

	tr, ok := got.(*Transponder)
	require.True(t, ok)
	assert.Equal(t, "XMC-2", tr.Model)
	assert.Equal(t, ProtocolV31, tr.ProtocolVersion)
	assert.EqualValues(t, 7002, tr.ControlPort)
	assert.EqualValues(t, 7003, tr.NotifyPort)
	assert.EqualValues(t, 10000, tr.KeepAliveIntervalMs)
}

func TestDecodeAck(t *testing.T) {
	data := []byte(`<emotivaAck><power_on status="ack"/></emotivaAck>`)
	c := NewCodec(0)
	got, err := c.Decode(data)
	require.NoError(t, err)

	ack, ok := got.(*Ack)
	require.True(t, ok)
	require.Len(t, ack.Results, 1)
	assert.Equal(t, "power_on", ack.Results[0].Name)
	assert.Equal(t, StatusAck, ack.Results[0].Status)
}

func TestDecodeNotifyV3(t *testing.T) {
	data := []byte(`<emotivaNotify sequence="1"><property name="volume" value="-39.0" visible="true"/></emotivaNotify>`)
	c := NewCodec(0)
	got, err := c.Decode(data)
	require.NoError(t, err)

	n, ok := got.(*Notify)
	require.True(t, ok)
	assert.Equal(t, NotificationStandard, n.Kind)
	assert.True(t, n.HasSeq)
	assert.EqualValues(t, 1, n.Sequence)
	require.Len(t, n.Properties, 1)
	assert.Equal(t, "volume", n.Properties[0].Name)
	assert.Equal(t, "-39.0", n.Properties[0].Value)
	assert.True(t, n.Properties[0].Visible)
}

func TestDecodeNotifyLegacyV2(t *testing.T) {
	data := []byte(`<emotivaNotify><volume value="-39.0" visible="true"/></emotivaNotify>`)
	c := NewCodec(0)
	got, err := c.Decode(data)
	require.NoError(t, err)

	n := got.(*Notify)
	require.Len(t, n.Properties, 1)
	assert.Equal(t, "volume", n.Properties[0].Name)
	assert.False(t, n.HasSeq)
}

func TestDecodeNotifyKeepAliveAndGoodbye(t *testing.T) {
	c := NewCodec(0)

	got, err := c.Decode([]byte(`<emotivaNotify><keepalive/></emotivaNotify>`))
	require.NoError(t, err)
	assert.Equal(t, NotificationKeepAlive, got.(*Notify).Kind)

	got, err = c.Decode([]byte(`<emotivaNotify><property name="goodbye" value=""/></emotivaNotify>`))
	require.NoError(t, err)
	assert.Equal(t, NotificationGoodbye, got.(*Notify).Kind)
}

func TestDecodeSubscriptionResponse(t *testing.T) {
	data := []byte(`<emotivaSubscription protocol="3.1"><property name="volume" value="-40.0" visible="true" status="ack"/></emotivaSubscription>`)
	c := NewCodec(0)
	got, err := c.Decode(data)
	require.NoError(t, err)

	resp := got.(*SubscriptionResponse)
	require.Len(t, resp.Properties, 1)
	assert.Equal(t, StatusAck, resp.Properties[0].Status)
}

func TestDecodeUnknownRoot(t *testing.T) {
	c := NewCodec(0)
	_, err := c.Decode([]byte(`<somethingElse/>`))
	require.Error(t, err)
	var unknown *UnknownRootError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "somethingElse", unknown.Root)
}

func TestDecodeTooLarge(t *testing.T) {
	c := NewCodec(16)
	_, err := c.Decode([]byte(`<emotivaAck><power_on status="ack"/></emotivaAck>`))
	require.Error(t, err)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestDecodeMalformed(t *testing.T) {
	c := NewCodec(0)
	_, err := c.Decode([]byte(`<emotivaAck><unterminated`))
	require.Error(t, err)
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestEncodePing(t *testing.T) {
	c := NewCodec(0)
	data, err := c.EncodePing(ProtocolV31)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xmlDeclaration))
	assert.Contains(t, string(data), `<emotivaPing protocol="3.1"></emotivaPing>`)
}

func TestEncodeControl(t *testing.T) {
	c := NewCodec(0)
	data, err := c.EncodeControl([]CommandFrame{{Name: "power_on", Value: "0", AckRequired: true}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `<power_on value="0" ack="yes">`)
}

func TestEncodeDecodeRoundTripSubscription(t *testing.T) {
	c := NewCodec(0)
	data, err := c.EncodeSubscription(ProtocolV31, []string{"volume", "power"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "<volume>")
	assert.Contains(t, string(data), "<power>")

	got, err := c.Decode(data)
	require.NoError(t, err)
	resp, ok := got.(*SubscriptionResponse)
	require.True(t, ok)
	require.Len(t, resp.Properties, 2)
	assert.Equal(t, "volume", resp.Properties[0].Name)
	assert.Equal(t, "power", resp.Properties[1].Name)
}

func TestProtocolVersionCompatible(t *testing.T) {
	assert.True(t, ProtocolV31.Compatible(ProtocolV2))
	assert.True(t, ProtocolV31.Compatible(ProtocolV3))
	assert.True(t, ProtocolV31.Compatible(ProtocolV31))
	assert.False(t, ProtocolV2.Compatible(ProtocolV31))
}
