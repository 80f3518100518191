package protocol

import (
	"sync"
	"time"

	"github.com/emotiva/xmc-engine/pkg/wire"
)

// outcome is one named result charged against a pending request: an
// AckResult's status, or a Property from a subscription/unsubscribe/
// update response.
type outcome struct {
	name   string
	status wire.AckStatus
	value  string
	hasVal bool
}

// pendingRequest is one outstanding control-channel exchange awaiting a
// response. remaining shrinks as outcomes are charged to it; once empty
// the request is complete and done is closed.
type pendingRequest struct {
	remaining map[string]bool
	results   map[string]outcome
	done      chan struct{}
	closeOnce sync.Once
}

func newPendingRequest(names []string) *pendingRequest {
	remaining := make(map[string]bool, len(names))
	for _, n := range names {
		remaining[n] = true
	}
	return &pendingRequest{
		remaining: remaining,
		results:   make(map[string]outcome),
		done:      make(chan struct{}),
	}
}

func (p *pendingRequest) charge(o outcome) bool {
	if !p.remaining[o.name] {
		return false
	}
	delete(p.remaining, o.name)
	p.results[o.name] = o
	if len(p.remaining) == 0 {
		p.closeOnce.Do(func() { close(p.done) })
	}
	return true
}

type orphan struct {
	outcome outcome
	at      time.Time
}

// correlator matches a FIFO queue of pending requests against a stream of
// named outcomes, per §4.4: responses are matched to the oldest request
// that expects at least one of the returned names, with leftover names
// charged to the next oldest. Unmatched outcomes are held briefly in case
// a request naming them registers shortly after.
type correlator struct {
	mu      sync.Mutex
	queue   []*pendingRequest
	orphans []orphan
}

func newCorrelator() *correlator {
	return &correlator{}
}

func (c *correlator) register(pr *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneOrphans()
	for i := 0; i < len(c.orphans); {
		o := c.orphans[i]
		if pr.charge(o.outcome) {
			c.orphans = append(c.orphans[:i], c.orphans[i+1:]...)
			continue
		}
		i++
	}
	c.queue = append(c.queue, pr)
}

func (c *correlator) forget(pr *pendingRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.queue {
		if q == pr {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}

// deliver charges each outcome to the oldest request that wants it,
// removing fully-satisfied requests from the queue. Outcomes matching no
// request become orphans.
func (c *correlator) deliver(outcomes []outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneOrphans()

	for _, o := range outcomes {
		matched := false
		for i := 0; i < len(c.queue); i++ {
			if c.queue[i].charge(o) {
				matched = true
				if len(c.queue[i].remaining) == 0 {
					c.queue = append(c.queue[:i], c.queue[i+1:]...)
				}
				break
			}
		}
		if !matched {
			c.orphans = append(c.orphans, orphan{outcome: o, at: time.Now()})
		}
	}
}

func (c *correlator) pruneOrphans() {
	cutoff := time.Now().Add(-orphanTTL)
	kept := c.orphans[:0]
	for _, o := range c.orphans {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	c.orphans = kept
}
