package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedQueuePushPop(t *testing.T) {
	q := newBoundedQueue(4, nil)
	q.push(item{kind: kindProperty, property: PropertyEvent{Name: "power"}})

	it, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "power", it.property.Name)
}

func TestBoundedQueueCoalescesSameProperty(t *testing.T) {
	q := newBoundedQueue(1, nil)
	q.push(item{kind: kindProperty, property: PropertyEvent{Name: "volume", Value: "-30"}})
	q.push(item{kind: kindProperty, property: PropertyEvent{Name: "volume", Value: "-20"}})

	it, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "-20", it.property.Value)

	assert.Empty(t, q.items) // coalesced in place; pop would block on the empty queue, so it is not called again
}

func TestBoundedQueueDropsOldestNonCoalescing(t *testing.T) {
	var dropped uint64
	q := newBoundedQueue(1, func(n uint64) { dropped = n })
	q.push(item{kind: kindMenu})
	q.push(item{kind: kindBar})

	it, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, kindBar, it.kind)
	assert.Equal(t, uint64(1), dropped)
}

func TestBoundedQueueCloseUnblocksPop(t *testing.T) {
	q := newBoundedQueue(4, nil)
	q.close()

	_, ok := q.pop()
	assert.False(t, ok)
}
