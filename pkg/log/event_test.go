package log

import "testing"

func TestEnumStrings(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"direction in", DirectionIn.String(), "IN"},
		{"direction out", DirectionOut.String(), "OUT"},
		{"layer wire", LayerWire.String(), "WIRE"},
		{"category error", CategoryError.String(), "ERROR"},
		{"role device", RoleDevice.String(), "DEVICE"},
		{"message type notification", MessageTypeNotification.String(), "NOTIFICATION"},
		{"state entity connection", StateEntityConnection.String(), "CONNECTION"},
		{"liveness goodbye", LivenessGoodbye.String(), "GOODBYE"},
		{"unknown direction", Direction(99).String(), "UNKNOWN"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("got %q, want %q", c.got, c.want)
			}
		})
	}
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{}) // must not panic
}
