package mpscring

import (
	"runtime"
	"sync/atomic"
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops

// Ring is the bounded MPSC ring buffer underneath Sender and Receiver.
// It can be used directly when close/backpressure semantics are not
// needed: Enqueue-side methods are safe from any number of goroutines,
// Dequeue-side methods from exactly one.
type Ring[T any] struct {
	// Optional padding to avoid false sharing between frequently accessed fields
	_        [64]byte
	mask     uint64
	capacity uint64
	slots    []slot[T]
	_        [64]byte
	enqueue  atomic.Uint64 // logical "tail", advanced by producers via CAS
	_        [64]byte
	dequeue  atomic.Uint64 // logical "head", stored only by the single consumer
	_        [64]byte

	enqueueAttempts uint64
	enqueueFull     uint64
	enqueueRetries  uint64
	published       uint64
	aborted         uint64

	dequeueAttempts uint64
	dequeueEmpty    uint64
	dequeueNotReady uint64
	consumed        uint64
}

// NewRing creates a bounded MPSC ring.
// Capacity must be a power of two (1<<k).
func NewRing[T any](capacity uint64) *Ring[T] {
	if capacity == 0 || (capacity&(capacity-1)) != 0 {
		panic("mpscring: capacity must be power of 2 and > 0")
	}

	slots := make([]slot[T], capacity)
	for i := uint64(0); i < capacity; i++ {
		// initial sequence value per slot
		slots[i].seq.Store(i)
	}

	return &Ring[T]{
		mask:     capacity - 1,
		capacity: capacity,
		slots:    slots,
	}
}

// SlotGuard is exclusive ownership of one WRITING slot, handed out by
// TryReserve. It must end in exactly one Publish or Abort call; using
// it twice panics. Copying a guard is a misuse: pass it along, never
// duplicate it. A guard that is dropped without either call leaves its
// slot WRITING forever and parks the consumer behind it once the ring
// wraps — the channel permanently loses that slot's capacity.
type SlotGuard[T any] struct {
	ring *Ring[T]
	slot *slot[T]
	pos  uint64
}

// Publish writes v into the reserved slot and makes it visible to the
// consumer. The caller must not touch the slot afterwards.
func (g *SlotGuard[T]) Publish(v T) {
	if g.ring == nil {
		panic("mpscring: slot guard used twice")
	}
	g.slot.val = v
	// publish the value: seq = pos+1
	g.slot.seq.Store(g.pos + 1)
	atomic.AddUint64(&g.ring.published, 1)
	g.ring, g.slot = nil, nil
}

// Abort rolls the reservation back by publishing a tombstone that the
// consumer recycles without delivering. One slot cycle is spent on it.
func (g *SlotGuard[T]) Abort() {
	if g.ring == nil {
		panic("mpscring: slot guard used twice")
	}
	g.slot.skip = true
	g.slot.seq.Store(g.pos + 1)
	atomic.AddUint64(&g.ring.aborted, 1)
	g.ring, g.slot = nil, nil
}

// TryReserve claims the next free slot for the calling producer.
// Returns ErrFull without blocking when capacity items are unclaimed.
// May be called concurrently from many goroutines (producers).
//
// The fullness check happens before the cursor CAS, so a ticket is only
// taken once room is confirmed; a producer is never granted a slot it
// cannot fill.
func (q *Ring[T]) TryReserve() (SlotGuard[T], error) {
	atomic.AddUint64(&q.enqueueAttempts, 1)
	var spins uint32
	for {
		pos := q.enqueue.Load()
		s := &q.slots[pos&q.mask]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos)

		if diff == 0 {
			// slot is free for this position, try to reserve it
			if q.enqueue.CompareAndSwap(pos, pos+1) {
				return SlotGuard[T]{ring: q, slot: s, pos: pos}, nil
			}
			// contention, retry
		} else if diff < 0 {
			// slot has not been freed by the consumer yet
			// => ring is full
			atomic.AddUint64(&q.enqueueFull, 1)
			return SlotGuard[T]{}, ErrFull
		}
		// lost the CAS race, or the slot still belongs to a previous
		// cycle (diff > 0); retry with a fresh pos
		atomic.AddUint64(&q.enqueueRetries, 1)
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// TryEnqueue reserves a slot and publishes v in one step.
// Returns ErrFull if the ring is full.
// May be called concurrently from many goroutines (producers).
func (q *Ring[T]) TryEnqueue(v T) error {
	g, err := q.TryReserve()
	if err != nil {
		return err
	}
	g.Publish(v)
	return nil
}

// TryDequeue claims the next published item and frees its slot.
// Returns ErrEmpty if no slot is READY at the read cursor.
// IMPORTANT: must be called from a single consumer goroutine.
func (q *Ring[T]) TryDequeue() (T, error) {
	var zero T
	atomic.AddUint64(&q.dequeueAttempts, 1)
	for {
		pos := q.dequeue.Load()
		s := &q.slots[pos&q.mask]

		seq := s.seq.Load()
		diff := int64(seq) - int64(pos+1)

		if diff == 0 {
			// element ready; the store is contention-free, only the
			// consumer advances the read cursor
			q.dequeue.Store(pos + 1)

			if s.skip {
				// tombstone from an aborted reservation
				s.skip = false
				s.seq.Store(pos + q.capacity)
				continue
			}

			v := s.val
			s.val = zero
			// free the slot for the next cycle:
			// next time this physical slot is used at pos+capacity
			s.seq.Store(pos + q.capacity)
			atomic.AddUint64(&q.consumed, 1)

			return v, nil
		}

		if diff < 0 {
			// ring is logically empty (consumer is ahead of producers)
			atomic.AddUint64(&q.dequeueEmpty, 1)
			return zero, ErrEmpty
		}

		// diff > 0 => producer reserved the slot but has not published yet
		atomic.AddUint64(&q.dequeueNotReady, 1)
		return zero, ErrEmpty
	}
}

// Len returns the number of reserved-but-unconsumed slots. Best-effort:
// producers and the consumer run concurrently with the query.
func (q *Ring[T]) Len() int {
	enq := q.enqueue.Load()
	deq := q.dequeue.Load()
	n := int64(enq) - int64(deq)
	if n < 0 {
		n = 0
	}
	if uint64(n) > q.capacity {
		n = int64(q.capacity)
	}
	return int(n)
}

// IsEmpty reports whether the ring holds no items. Best-effort snapshot.
func (q *Ring[T]) IsEmpty() bool { return q.Len() == 0 }

// IsFull reports whether the ring holds capacity items. Best-effort snapshot.
func (q *Ring[T]) IsFull() bool { return uint64(q.Len()) == q.capacity }

// Capacity returns the fixed ring capacity.
func (q *Ring[T]) Capacity() uint64 {
	return q.capacity
}

// drained reports that every taken ticket has been consumed or recycled.
func (q *Ring[T]) drained() bool {
	return q.dequeue.Load() == q.enqueue.Load()
}
