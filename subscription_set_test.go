package xmcengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionSetNotYetSubscribed(t *testing.T) {
	s := newSubscriptionSet([]string{"power"})
	fresh := s.notYetSubscribed([]string{"power", "volume"})
	assert.Equal(t, []string{"volume"}, fresh)
}

func TestSubscriptionSetAddRemoveSnapshot(t *testing.T) {
	s := newSubscriptionSet(nil)
	s.add("power")
	s.add("volume")
	assert.ElementsMatch(t, []string{"power", "volume"}, s.snapshot())

	s.remove("power")
	assert.ElementsMatch(t, []string{"volume"}, s.snapshot())
}

func TestSubscriptionSetDeduplicatesRepeatSubscribe(t *testing.T) {
	s := newSubscriptionSet(nil)
	for i := 0; i < 3; i++ {
		fresh := s.notYetSubscribed([]string{"power"})
		if len(fresh) > 0 {
			s.add("power")
		}
	}
	assert.Equal(t, []string{"power"}, s.snapshot())
}
