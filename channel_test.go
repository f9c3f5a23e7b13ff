package mpscring

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSendRecv(t *testing.T) {
	tx, rx := New[string](8)

	require.NoError(t, tx.TrySend("a"))
	require.NoError(t, tx.TrySend("b"))

	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestChannelSnapshots(t *testing.T) {
	tx, rx := New[int](4)

	assert.True(t, rx.IsEmpty())
	assert.False(t, rx.IsFull())
	assert.EqualValues(t, 4, rx.Cap())

	for i := 0; i < 4; i++ {
		require.NoError(t, tx.TrySend(i))
	}
	assert.Equal(t, 4, rx.Len())
	assert.True(t, rx.IsFull())
	assert.ErrorIs(t, tx.TrySend(4), ErrFull)
}

func TestChannelCloseStopsProducers(t *testing.T) {
	tx, rx := New[int](8)

	require.NoError(t, tx.TrySend(1))
	require.NoError(t, tx.TrySend(2))

	tx.CloseChannel()

	// No further sends on any path.
	assert.ErrorIs(t, tx.TrySend(3), ErrClosed)
	_, err := tx.TryReserve()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tx.Send(context.Background(), 3), ErrClosed)

	// Items published before close stay claimable.
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// Drained is terminal, for blocking receives too.
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrDrained)
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrDrained)

	// CloseChannel is idempotent.
	tx.CloseChannel()
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrDrained)
}

func TestChannelLastSenderCloses(t *testing.T) {
	tx, rx := New[int](8)
	tx2 := tx.Clone()

	require.NoError(t, tx.TrySend(1))
	tx.Close()

	// One sender left, channel still open.
	require.NoError(t, tx2.TrySend(2))
	_, err := rx.TryRecv()
	require.NoError(t, err)

	tx2.Close()

	// Last sender gone: drain, then drained.
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrDrained)

	// Close is idempotent per handle: a second Close must not matter.
	tx.Close()
	tx2.Close()
}

// A retired handle must refuse to send even while other handles keep
// the channel open.
func TestSenderClosedHandleCannotSend(t *testing.T) {
	tx, rx := New[int](8)
	tx2 := tx.Clone()
	tx2.Close()

	assert.ErrorIs(t, tx2.TrySend(1), ErrClosed)
	_, err := tx2.TryReserve()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, tx2.Send(context.Background(), 1), ErrClosed)

	// The surviving handle is unaffected.
	require.NoError(t, tx.TrySend(2))
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// Once the Receiver has observed the terminal drained state, no send
// may succeed and strand an item in the ring.
func TestSendAfterDrainedObserved(t *testing.T) {
	tx, rx := New[int](8)

	tx.CloseChannel()
	_, err := rx.TryRecv()
	assert.ErrorIs(t, err, ErrDrained)

	assert.ErrorIs(t, tx.TrySend(7), ErrClosed)
	assert.Equal(t, 0, rx.Len(), "no item may sit in the ring after drained was reported")
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrDrained)
}

// Close racing live TrySend traffic: every send that reported success
// must be delivered before the Receiver reports drained.
func TestCloseChannelRaceNoLostSends(t *testing.T) {
	const (
		iterations = 50
		producers  = 4
	)

	for iter := 0; iter < iterations; iter++ {
		tx, rx := New[int](64)

		var sent atomic.Int64
		var pg sync.WaitGroup
		pg.Add(producers)
		for p := 0; p < producers; p++ {
			go func(tx *Sender[int]) {
				defer pg.Done()
				for i := 0; ; i++ {
					err := tx.TrySend(i)
					if errors.Is(err, ErrClosed) {
						return
					}
					if err == nil {
						sent.Add(1)
					}
					runtime.Gosched()
				}
			}(tx.Clone())
		}

		go func() {
			runtime.Gosched()
			tx.CloseChannel()
		}()

		received := 0
		for {
			_, err := rx.TryRecv()
			if err == nil {
				received++
				continue
			}
			if errors.Is(err, ErrDrained) {
				break
			}
			runtime.Gosched()
		}
		pg.Wait()

		require.Equal(t, int(sent.Load()), received,
			"iteration %d: successful sends lost across close", iter)
	}
}

func TestSenderCloneAfterClosePanics(t *testing.T) {
	tx, _ := New[int](8)
	tx.Close()
	assert.Panics(t, func() { tx.Clone() })
}

// Capacity-1 channel, one producer fills it, consumer never claims: a
// second send with a 50ms deadline must return ErrTimeout promptly.
func TestChannelSendTimeout(t *testing.T) {
	tx, _ := New[int](1)
	require.NoError(t, tx.TrySend(1))

	start := time.Now()
	err := tx.SendTimeout(2, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second, "timeout must be honored with a bounded margin")
}

func TestChannelSendCanceled(t *testing.T) {
	tx, _ := New[int](1)
	require.NoError(t, tx.TrySend(1))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := tx.Send(ctx, 2)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestChannelRecvTimeout(t *testing.T) {
	_, rx := New[int](8)

	start := time.Now()
	_, err := rx.RecvTimeout(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestChannelDefaultTimeout(t *testing.T) {
	tx, rx := New[int](1, WithDefaultTimeout(50*time.Millisecond))
	require.NoError(t, tx.TrySend(1))

	// No deadline on the context: the constructed default applies.
	assert.ErrorIs(t, tx.Send(context.Background(), 2), ErrTimeout)

	_, err := rx.TryRecv()
	require.NoError(t, err)
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestChannelRecvBlocksUntilPublish(t *testing.T) {
	tx, rx := New[int](8)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = tx.TrySend(99)
	}()

	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestChannelRecvReleasedByClose(t *testing.T) {
	tx, rx := New[int](8)

	go func() {
		time.Sleep(20 * time.Millisecond)
		tx.Close()
	}()

	// Must not block forever once the channel closes empty.
	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrDrained)
}

func TestChannelReserveBlockedThenFreed(t *testing.T) {
	tx, rx := New[int](1)
	require.NoError(t, tx.TrySend(1))

	done := make(chan error, 1)
	go func() {
		done <- tx.Send(context.Background(), 2)
	}()

	time.Sleep(10 * time.Millisecond)
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, <-done)
	v, err = rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

// Blocking send/recv end to end under every wait strategy.
func TestChannelWaitStrategies(t *testing.T) {
	for _, tc := range []struct {
		name     string
		strategy WaitStrategy
	}{
		{"spin", WaitSpin},
		{"yield", WaitYield},
		{"sleep", WaitSleep},
	} {
		t.Run(tc.name, func(t *testing.T) {
			const (
				producers   = 4
				perProducer = 5_000
			)

			tx, rx := New[int](64, WithWaitStrategy(tc.strategy))

			var pg sync.WaitGroup
			pg.Add(producers)
			for p := 0; p < producers; p++ {
				go func(tx *Sender[int]) {
					defer pg.Done()
					defer tx.Close()
					for i := 0; i < perProducer; i++ {
						if err := tx.Send(context.Background(), i); err != nil {
							t.Errorf("send failed: %v", err)
							return
						}
					}
				}(tx.Clone())
			}
			tx.Close()

			received := 0
			for {
				_, err := rx.Recv(context.Background())
				if err == nil {
					received++
					continue
				}
				assert.ErrorIs(t, err, ErrDrained)
				break
			}
			pg.Wait()
			assert.Equal(t, producers*perProducer, received)
		})
	}
}

func TestChannelGuardThroughSender(t *testing.T) {
	tx, rx := New[int](4)

	g, err := tx.Reserve(context.Background())
	require.NoError(t, err)

	// Mid-write slot is invisible: the consumer does not deliver it and
	// does not skip past it.
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)

	g.Publish(5)
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	// Abort through the sender path recycles the slot.
	g, err = tx.Reserve(context.Background())
	require.NoError(t, err)
	g.Abort()
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestChannelStats(t *testing.T) {
	tx, rx := New[int](4)

	require.NoError(t, tx.TrySend(1))
	require.NoError(t, tx.TrySend(2))
	_, err := rx.TryRecv()
	require.NoError(t, err)

	st := rx.Stats()
	assert.EqualValues(t, 2, st.Published)
	assert.EqualValues(t, 1, st.Consumed)
	assert.EqualValues(t, 2, st.EnqueueAttempts)
}

// A drain that races the close: all items sent before the last Close
// must still be delivered exactly once.
func TestChannelCloseRace(t *testing.T) {
	const (
		producers   = 4
		perProducer = 2_000
	)

	tx, rx := New[int](64)

	var pg sync.WaitGroup
	pg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(tx *Sender[int]) {
			defer pg.Done()
			defer tx.Close()
			for i := 0; i < perProducer; i++ {
				for tx.TrySend(i) != nil {
					runtime.Gosched()
				}
			}
		}(tx.Clone())
	}
	tx.Close()

	received := 0
	for {
		_, err := rx.TryRecv()
		if err == nil {
			received++
			continue
		}
		if errors.Is(err, ErrDrained) {
			break
		}
		runtime.Gosched()
	}
	pg.Wait()
	assert.Equal(t, producers*perProducer, received)
}
