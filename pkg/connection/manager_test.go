package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerConnectSucceeds(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, 100*time.Millisecond)

	err := m.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, m.State())
	assert.EqualValues(t, 1, calls.Load())
}

func TestManagerConnectConcurrentCallersShareOneAttempt(t *testing.T) {
	var calls atomic.Int32
	block := make(chan struct{})
	m := NewManager(func(ctx context.Context) error {
		calls.Add(1)
		<-block
		return nil
	}, 100*time.Millisecond)

	var wg sync.WaitGroup
	const n = 8
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = m.Connect(context.Background())
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerConnectFailurePropagates(t *testing.T) {
	wantErr := errors.New("dial failed")
	m := NewManager(func(ctx context.Context) error {
		return wantErr
	}, 100*time.Millisecond)

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManagerNotifyDegradedReconnects(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, 50*time.Millisecond)
	m.StartReconnectLoop()

	require.NoError(t, m.Connect(context.Background()))
	assert.EqualValues(t, 1, calls.Load())

	var events []Event
	var mu sync.Mutex
	m.OnStateChange(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	m.NotifyDegraded("keepalive timeout after 15s")
	assert.Equal(t, StateDegraded, m.State())

	require.Eventually(t, func() bool {
		return m.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, calls.Load(), int32(2))

	m.Close()
	assert.Equal(t, StateClosed, m.State())
}

func TestManagerConnectDuringReconnectSharesOneAttempt(t *testing.T) {
	var calls atomic.Int32
	enteredSecondCall := make(chan struct{})
	block := make(chan struct{})
	m := NewManager(func(ctx context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return nil
		}
		close(enteredSecondCall)
		<-block
		return nil
	}, 20*time.Millisecond)
	m.StartReconnectLoop()

	require.NoError(t, m.Connect(context.Background()))
	m.NotifyDegraded("keepalive timeout")
	assert.Equal(t, StateDegraded, m.State())

	// attemptReconnect's first backoff delay is always ~1s regardless of
	// maxBackoffCap (only Max is configurable), so wait generously for it
	// to reach connectFn and block there before racing a Connect call.
	select {
	case <-enteredSecondCall:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect attempt never entered connectFn")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Connect(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("Connect returned while the reconnect attempt was still blocked in connectFn")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
	assert.Equal(t, StateConnected, m.State())
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil }, 0)
	m.StartReconnectLoop()

	m.Close()
	m.Close()
	assert.Equal(t, StateClosed, m.State())
}

func TestManagerConnectAfterCloseFails(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil }, 0)
	m.Close()

	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrClosingInProgress)
}
