package wire

// ProtocolVersion is one of the three Emotiva LAN protocol revisions.
type ProtocolVersion string

const (
	ProtocolV2 ProtocolVersion = "2.0"
	ProtocolV3 ProtocolVersion = "3.0"
	ProtocolV31 ProtocolVersion = "3.1"
)

// ParseProtocolVersion maps a transponder/ping version attribute to a
// ProtocolVersion, defaulting to v2.0 when absent or unrecognised per
// the discovery edge case.
func ParseProtocolVersion(s string) ProtocolVersion {
	switch ProtocolVersion(s) {
	case ProtocolV3, ProtocolV31:
		return ProtocolVersion(s)
	default:
		return ProtocolV2
	}
}

// Compatible reports whether a client speaking v is able to talk to a
// device advertising other. A client is compatible with any device
// advertising an equal or lower protocol version; the reverse is not
// guaranteed (a v2.0 device cannot be addressed with v3.1-only framing).
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	rank := map[ProtocolVersion]int{ProtocolV2: 0, ProtocolV3: 1, ProtocolV31: 2}
	return rank[other] <= rank[v]
}

// AckStatus is the outcome of a single command or property in an ack,
// subscription, unsubscribe, or update response.
type AckStatus string

const (
	StatusAck AckStatus = "ack"
	StatusNak AckStatus = "nak"
)

// Property is the normalised shape of one property entry, regardless of
// whether the source frame used v3 <property name=.../> children or the
// legacy v2.0 shape where the property name is the tag itself.
type Property struct {
	Name    string
	Value   string
	Visible bool
	Status  AckStatus // empty when the frame carries no per-property status
}

// Transponder is a parsed emotivaTransponder discovery reply.
type Transponder struct {
	Model               string
	Revision            string
	Name                string
	ProtocolVersion     ProtocolVersion
	ControlPort         uint16
	NotifyPort          uint16
	KeepAliveIntervalMs uint32
}

// AckResult pairs a command name with its ack/nak outcome, one per
// command named in an emotivaAck frame.
type AckResult struct {
	Name   string
	Status AckStatus
}

// Ack is a parsed emotivaAck frame.
type Ack struct {
	Results []AckResult
}

// SubscriptionResponse is a parsed emotivaSubscription reply.
type SubscriptionResponse struct {
	Properties []Property
}

// UnsubscribeResponse is a parsed emotivaUnsubscribe reply.
type UnsubscribeResponse struct {
	Properties []Property
}

// UpdateResponse is a parsed emotivaUpdate reply.
type UpdateResponse struct {
	Properties []Property
}

// NotificationKind classifies notify-endpoint traffic, following the
// distinction the reference implementation draws between ordinary
// property notifications and liveness signalling.
type NotificationKind uint8

const (
	NotificationStandard NotificationKind = iota
	NotificationKeepAlive
	NotificationGoodbye
)

func (k NotificationKind) String() string {
	switch k {
	case NotificationStandard:
		return "STANDARD"
	case NotificationKeepAlive:
		return "KEEPALIVE"
	case NotificationGoodbye:
		return "GOODBYE"
	default:
		return "UNKNOWN"
	}
}

// Notify is a parsed emotivaNotify frame, classified and normalised.
// Properties named "keepalive" or "goodbye" (as a tag or as a
// name="keepalive"/"goodbye" property, per the legacy format) are
// classified into Kind and never appear in Properties.
type Notify struct {
	Kind       NotificationKind
	Sequence   uint32
	HasSeq     bool
	Properties []Property
}

// MenuRow is one row of a menu notification's text grid.
type MenuRow struct {
	Cells []string
}

// MenuNotification is a parsed emotivaMenuNotify frame.
type MenuNotification struct {
	Rows int
	Cols int
	Grid []MenuRow
}

// BarNotification is a parsed emotivaBarNotify frame. Exactly one of
// Text or Level is meaningful, depending on Type.
type BarNotification struct {
	Type  string
	Text  string
	Level int
	HasLevel bool
}

// CommandFrame is one command to be serialised into an emotivaControl
// packet's child element.
type CommandFrame struct {
	Name        string
	Value       string
	AckRequired bool
}

// Root element names, recognised on parse and/or used on serialise.
const (
	RootPing                = "emotivaPing"
	RootTransponder         = "emotivaTransponder"
	RootControl             = "emotivaControl"
	RootAck                 = "emotivaAck"
	RootNotify              = "emotivaNotify"
	RootMenuNotify          = "emotivaMenuNotify"
	RootBarNotify           = "emotivaBarNotify"
	RootSubscription        = "emotivaSubscription"
	RootUnsubscribe         = "emotivaUnsubscribe"
	RootUpdate              = "emotivaUpdate"
)
