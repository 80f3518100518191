package wire

import (
	"bytes"
	"encoding/xml"
	"strconv"
	"strings"
)

// DefaultMaxXMLBytes is the default packet size bound (§4.1).
const DefaultMaxXMLBytes = 65536

// Codec parses and serialises Emotiva LAN protocol packets. It is
// stateless and safe for concurrent use.
type Codec struct {
	maxBytes int
}

// NewCodec returns a Codec that rejects packets larger than maxBytes on
// decode. A maxBytes of 0 selects DefaultMaxXMLBytes.
func NewCodec(maxBytes int) *Codec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxXMLBytes
	}
	return &Codec{maxBytes: maxBytes}
}

// node is a generic XML element used to decode the dynamic, device-
// dependent tag names the legacy v2.0 wire format uses (the property
// name is the tag itself rather than a fixed "property" element).
type node struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Chardata string     `xml:",chardata"`
	Nodes    []node     `xml:",any"`
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (n *node) child(name string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) text() string {
	return strings.TrimSpace(n.Chardata)
}

func parseBoolAttr(n *node, name string, def bool) bool {
	v, ok := n.attr(name)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

// Decode parses a raw packet into one of *Transponder, *Ack, *Notify,
// *MenuNotification, *BarNotification, *SubscriptionResponse,
// *UnsubscribeResponse, *UpdateResponse. It returns *TooLargeError,
// *MalformedError, or *UnknownRootError on failure.
func (c *Codec) Decode(data []byte) (any, error) {
	if len(data) > c.maxBytes {
		return nil, &TooLargeError{Size: len(data), MaxSize: c.maxBytes}
	}

	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, newMalformedError(err, data)
	}

	switch root.XMLName.Local {
	case RootTransponder:
		return decodeTransponder(&root), nil
	case RootAck:
		return decodeAck(&root), nil
	case RootNotify:
		return decodeNotify(&root), nil
	case RootMenuNotify:
		return decodeMenuNotify(&root), nil
	case RootBarNotify:
		return decodeBarNotify(&root), nil
	case RootSubscription:
		return &SubscriptionResponse{Properties: decodeProperties(&root)}, nil
	case RootUnsubscribe:
		return &UnsubscribeResponse{Properties: decodeProperties(&root)}, nil
	case RootUpdate:
		return &UpdateResponse{Properties: decodeProperties(&root)}, nil
	default:
		return nil, &UnknownRootError{Root: root.XMLName.Local}
	}
}

func decodeTransponder(root *node) *Transponder {
	t := &Transponder{ProtocolVersion: ProtocolV2, KeepAliveIntervalMs: 10000}
	if m := root.child("model"); m != nil {
		t.Model = m.text()
	}
	if r := root.child("revision"); r != nil {
		t.Revision = r.text()
	}
	if nm := root.child("name"); nm != nil {
		t.Name = nm.text()
	}
	if ctrl := root.child("control"); ctrl != nil {
		if v := ctrl.child("version"); v != nil && v.text() != "" {
			t.ProtocolVersion = ParseProtocolVersion(v.text())
		}
		if p := ctrl.child("controlPort"); p != nil {
			if n, err := strconv.ParseUint(p.text(), 10, 16); err == nil {
				t.ControlPort = uint16(n)
			}
		}
		if p := ctrl.child("notifyPort"); p != nil {
			if n, err := strconv.ParseUint(p.text(), 10, 16); err == nil {
				t.NotifyPort = uint16(n)
			}
		}
		if k := ctrl.child("keepAlive"); k != nil {
			if n, err := strconv.ParseUint(k.text(), 10, 32); err == nil {
				t.KeepAliveIntervalMs = uint32(n)
			}
		}
	}
	return t
}

func decodeAck(root *node) *Ack {
	ack := &Ack{}
	for _, c := range root.Nodes {
		status, _ := c.attr("status")
		ack.Results = append(ack.Results, AckResult{
			Name:   c.XMLName.Local,
			Status: AckStatus(status),
		})
	}
	return ack
}

// decodeProperties normalises a control-channel response's children to
// the v3 Property shape, accepting both <property name=.../> entries and
// the legacy shape where the child tag is the property name itself.
func decodeProperties(root *node) []Property {
	var props []Property
	for _, c := range root.Nodes {
		props = append(props, decodeOneProperty(&c))
	}
	return props
}

func decodeOneProperty(c *node) Property {
	name := c.XMLName.Local
	if c.XMLName.Local == "property" {
		if n, ok := c.attr("name"); ok {
			name = n
		}
	}
	value, _ := c.attr("value")
	status, _ := c.attr("status")
	return Property{
		Name:    name,
		Value:   value,
		Visible: parseBoolAttr(c, "visible", true),
		Status:  AckStatus(status),
	}
}

// isLivenessTag reports whether a child tag or property name names one
// of the two liveness signals the legacy format can carry inline.
func isLivenessTag(name string) (NotificationKind, bool) {
	switch name {
	case "keepalive", "keepAlive":
		return NotificationKeepAlive, true
	case "goodbye":
		return NotificationGoodbye, true
	default:
		return NotificationStandard, false
	}
}

func decodeNotify(root *node) *Notify {
	n := &Notify{Kind: NotificationStandard}
	if seq, ok := root.attr("sequence"); ok {
		if v, err := strconv.ParseUint(seq, 10, 32); err == nil {
			n.Sequence = uint32(v)
			n.HasSeq = true
		}
	}
	for _, c := range root.Nodes {
		name := c.XMLName.Local
		if name == "property" {
			if pn, ok := c.attr("name"); ok {
				name = pn
			}
		}
		if kind, ok := isLivenessTag(name); ok {
			n.Kind = kind
			continue
		}
		n.Properties = append(n.Properties, decodeOneProperty(&c))
	}
	return n
}

func decodeMenuNotify(root *node) *MenuNotification {
	m := &MenuNotification{}
	if r, ok := root.attr("rows"); ok {
		m.Rows, _ = strconv.Atoi(r)
	}
	if cols, ok := root.attr("cols"); ok {
		m.Cols, _ = strconv.Atoi(cols)
	}
	for _, rowNode := range root.Nodes {
		if rowNode.XMLName.Local != "row" {
			continue
		}
		var row MenuRow
		for _, cell := range rowNode.Nodes {
			if cell.XMLName.Local != "col" {
				continue
			}
			text, _ := cell.attr("text")
			row.Cells = append(row.Cells, text)
		}
		m.Grid = append(m.Grid, row)
	}
	return m
}

func decodeBarNotify(root *node) *BarNotification {
	b := &BarNotification{}
	if t, ok := root.attr("type"); ok {
		b.Type = t
	}
	if txt, ok := root.attr("text"); ok {
		b.Text = txt
	}
	if lvl, ok := root.attr("level"); ok {
		if v, err := strconv.Atoi(lvl); err == nil {
			b.Level = v
			b.HasLevel = true
		}
	}
	return b
}

// --- Serialisation ---

const xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`

func encodeElement(buf *bytes.Buffer, enc *xml.Encoder, name string, attrs []xml.Attr, children func() error) error {
	start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if children != nil {
		if err := children(); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// EncodePing serialises <emotivaPing protocol="…"/>.
func (c *Codec) EncodePing(version ProtocolVersion) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	enc := xml.NewEncoder(&buf)
	err := encodeElement(&buf, enc, RootPing, []xml.Attr{attr("protocol", string(version))}, nil)
	if err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeControl serialises <emotivaControl><NAME value="V" ack="yes|no"/>…</emotivaControl>.
func (c *Codec) EncodeControl(commands []CommandFrame) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	enc := xml.NewEncoder(&buf)
	err := encodeElement(&buf, enc, RootControl, nil, func() error {
		for _, cmd := range commands {
			ack := "no"
			if cmd.AckRequired {
				ack = "yes"
			}
			attrs := []xml.Attr{attr("value", cmd.Value), attr("ack", ack)}
			if err := encodeElement(&buf, enc, cmd.Name, attrs, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeNameList(buf *bytes.Buffer, enc *xml.Encoder, root string, version ProtocolVersion, names []string) ([]byte, error) {
	buf.WriteString(xmlDeclaration)
	err := encodeElement(buf, enc, root, []xml.Attr{attr("protocol", string(version))}, func() error {
		for _, name := range names {
			if err := encodeElement(buf, enc, name, nil, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeSubscription serialises <emotivaSubscription protocol="…"><NAME/>…</emotivaSubscription>.
func (c *Codec) EncodeSubscription(version ProtocolVersion, names []string) ([]byte, error) {
	var buf bytes.Buffer
	return encodeNameList(&buf, xml.NewEncoder(&buf), RootSubscription, version, names)
}

// EncodeUnsubscribe serialises <emotivaUnsubscribe protocol="…"><NAME/>…</emotivaUnsubscribe>.
func (c *Codec) EncodeUnsubscribe(version ProtocolVersion, names []string) ([]byte, error) {
	var buf bytes.Buffer
	return encodeNameList(&buf, xml.NewEncoder(&buf), RootUnsubscribe, version, names)
}

// EncodeUpdate serialises <emotivaUpdate protocol="…"><NAME/>…</emotivaUpdate>.
func (c *Codec) EncodeUpdate(version ProtocolVersion, names []string) ([]byte, error) {
	var buf bytes.Buffer
	return encodeNameList(&buf, xml.NewEncoder(&buf), RootUpdate, version, names)
}
