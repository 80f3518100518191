package discovery

import "github.com/emotiva/xmc-engine/pkg/wire"

// DeviceDescriptor is the immutable result of a successful discovery
// exchange.
type DeviceDescriptor struct {
	Model               string
	Revision            string
	Name                string
	ProtocolVersion     wire.ProtocolVersion
	ControlPort         uint16
	NotifyPort          uint16
	KeepAliveIntervalMs uint32
}

func fromTransponder(t *wire.Transponder) DeviceDescriptor {
	return DeviceDescriptor{
		Model:               t.Model,
		Revision:            t.Revision,
		Name:                t.Name,
		ProtocolVersion:     t.ProtocolVersion,
		ControlPort:         t.ControlPort,
		NotifyPort:          t.NotifyPort,
		KeepAliveIntervalMs: t.KeepAliveIntervalMs,
	}
}
