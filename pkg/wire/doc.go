// Package wire defines the XML wire format for the Emotiva LAN control
// protocol and the codec that translates between Go values and packets.
//
// Packets are single-root XML documents, UTF-8 encoded, each no larger
// than a caller-configured byte bound. The codec normalises both the v3
// property-tagged shape (<property name="…" value="…"/>) and the legacy
// v2.0 shape (the property name is itself the XML tag) to the same Go
// representation, so callers above this package never see the wire
// version.
//
// # Recognised roots
//
//   - emotivaTransponder: discovery reply.
//   - emotivaAck: command acknowledgement.
//   - emotivaNotify, emotivaMenuNotify, emotivaBarNotify: notify-endpoint
//     traffic.
//   - emotivaSubscription, emotivaUnsubscribe, emotivaUpdate: control-
//     endpoint round-trip responses.
//
// # Produced roots
//
//   - emotivaPing, emotivaControl, emotivaSubscription, emotivaUnsubscribe,
//     emotivaUpdate.
package wire
