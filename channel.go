package mpscring

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Option configures a channel at construction time.
type Option func(*config)

type config struct {
	wait           WaitStrategy
	defaultTimeout time.Duration // applied to blocking calls without a deadline; 0 = none
}

// WithWaitStrategy selects the backoff behavior of blocking calls.
// The default is WaitYield.
func WithWaitStrategy(s WaitStrategy) Option {
	return func(c *config) { c.wait = s }
}

// WithDefaultTimeout bounds blocking calls whose context carries no
// deadline of its own. Zero disables the bound.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *config) { c.defaultTimeout = d }
}

// channel is the shared state behind every Sender and the Receiver.
type channel[T any] struct {
	ring    *Ring[T]
	cfg     config
	closed  atomic.Bool
	senders atomic.Int64
}

// New creates a bounded MPSC channel of the given capacity (a power of
// two) and returns its first Sender plus the single Receiver. Additional
// producers get their handle via Sender.Clone. The Receiver must only
// ever be used from one goroutine at a time; sharing it concurrently is
// undefined behavior, not a detected error.
func New[T any](capacity uint64, opts ...Option) (*Sender[T], *Receiver[T]) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	ch := &channel[T]{
		ring: NewRing[T](capacity),
		cfg:  cfg,
	}
	ch.senders.Store(1)
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// Sender is a producer handle. Handles are cheap: clone one per
// goroutine rather than sharing a handle's Close state.
type Sender[T any] struct {
	ch     *channel[T]
	closed atomic.Bool // this handle only
}

// Clone returns a new independent Sender for the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	if s.closed.Load() {
		panic("mpscring: Clone on closed Sender")
	}
	s.ch.senders.Add(1)
	return &Sender[T]{ch: s.ch}
}

// Close retires this handle. When the last live Sender closes, the
// channel closes: the Receiver drains what was published and then gets
// ErrDrained. Idempotent per handle.
func (s *Sender[T]) Close() {
	if s.closed.CompareAndSwap(false, true) {
		if s.ch.senders.Add(-1) == 0 {
			s.ch.closed.Store(true)
		}
	}
}

// CloseChannel closes the whole channel regardless of other live
// Senders. Subsequent sends on any handle fail with ErrClosed; items
// already published stay claimable. Idempotent.
func (s *Sender[T]) CloseChannel() {
	s.ch.closed.Store(true)
}

// TrySend publishes v without blocking.
// Returns ErrFull when no slot is available, ErrClosed after close or
// on a retired handle.
func (s *Sender[T]) TrySend(v T) error {
	g, err := s.TryReserve()
	if err != nil {
		return err
	}
	g.Publish(v)
	return nil
}

// TryReserve claims a slot without blocking; see Ring.TryReserve.
// Returns ErrClosed after close or on a retired handle.
func (s *Sender[T]) TryReserve() (SlotGuard[T], error) {
	if s.closed.Load() || s.ch.closed.Load() {
		return SlotGuard[T]{}, ErrClosed
	}
	g, err := s.ch.ring.TryReserve()
	if err != nil {
		return SlotGuard[T]{}, err
	}
	// A close may have landed between the check above and the cursor
	// CAS. The ticket is already taken, so it must be rolled back: a
	// Receiver that has seen the close would otherwise never observe
	// this slot once it reported the channel drained.
	if s.ch.closed.Load() {
		g.Abort()
		return SlotGuard[T]{}, ErrClosed
	}
	return g, nil
}

// Reserve claims a slot, blocking under the configured wait strategy
// while the ring is full. The context is checked on every backoff
// iteration: deadline exhaustion returns ErrTimeout, cancellation
// ErrCanceled. A close observed while waiting returns ErrClosed.
func (s *Sender[T]) Reserve(ctx context.Context) (SlotGuard[T], error) {
	ctx, cancel := s.ch.withDefaultTimeout(ctx)
	defer cancel()

	w := waiter{strategy: s.ch.cfg.wait}
	for {
		g, err := s.TryReserve()
		if !errors.Is(err, ErrFull) {
			return g, err
		}
		select {
		case <-ctx.Done():
			return SlotGuard[T]{}, ctxErr(ctx)
		default:
		}
		w.wait()
	}
}

// Send publishes v, blocking while the ring is full. Error semantics
// match Reserve.
func (s *Sender[T]) Send(ctx context.Context, v T) error {
	g, err := s.Reserve(ctx)
	if err != nil {
		return err
	}
	g.Publish(v)
	return nil
}

// SendTimeout is Send bounded by d instead of a caller context.
func (s *Sender[T]) SendTimeout(v T, d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return s.Send(ctx, v)
}

// Len reports the number of unconsumed items. Best-effort snapshot.
func (s *Sender[T]) Len() int { return s.ch.ring.Len() }

// IsFull reports whether the channel is at capacity. Best-effort snapshot.
func (s *Sender[T]) IsFull() bool { return s.ch.ring.IsFull() }

// Cap returns the fixed channel capacity.
func (s *Sender[T]) Cap() uint64 { return s.ch.ring.Capacity() }

// Receiver is the single consumer handle.
type Receiver[T any] struct {
	ch *channel[T]
}

// TryRecv claims the next item without blocking. Returns ErrEmpty when
// nothing is ready, or ErrDrained once the channel is closed and every
// published item has been consumed.
func (r *Receiver[T]) TryRecv() (T, error) {
	v, err := r.ch.ring.TryDequeue()
	if err == nil {
		return v, nil
	}
	// Re-check after the failed dequeue so a concurrent publish+close
	// cannot be mistaken for a drained channel.
	if r.ch.closed.Load() && r.ch.ring.drained() {
		return v, ErrDrained
	}
	return v, err
}

// Recv claims the next item, blocking under the configured wait
// strategy while the ring is empty. Returns ErrDrained once the channel
// is closed and fully drained; never blocks forever after a close.
// Deadline exhaustion returns ErrTimeout, cancellation ErrCanceled.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	ctx, cancel := r.ch.withDefaultTimeout(ctx)
	defer cancel()

	w := waiter{strategy: r.ch.cfg.wait}
	for {
		v, err := r.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return v, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctxErr(ctx)
		default:
		}
		w.wait()
	}
}

// RecvTimeout is Recv bounded by d instead of a caller context.
func (r *Receiver[T]) RecvTimeout(d time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return r.Recv(ctx)
}

// Len reports the number of unconsumed items. Best-effort snapshot.
func (r *Receiver[T]) Len() int { return r.ch.ring.Len() }

// IsEmpty reports whether the channel holds no items. Best-effort snapshot.
func (r *Receiver[T]) IsEmpty() bool { return r.ch.ring.IsEmpty() }

// IsFull reports whether the channel is at capacity. Best-effort snapshot.
func (r *Receiver[T]) IsFull() bool { return r.ch.ring.IsFull() }

// Cap returns the fixed channel capacity.
func (r *Receiver[T]) Cap() uint64 { return r.ch.ring.Capacity() }

// Stats returns a snapshot of the ring's operation counters.
func (r *Receiver[T]) Stats() RingStats { return r.ch.ring.Stats() }

func (ch *channel[T]) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := ch.cfg.defaultTimeout; d > 0 {
		if _, ok := ctx.Deadline(); !ok {
			return context.WithTimeout(ctx, d)
		}
	}
	return ctx, func() {}
}

func ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrCanceled
}
