package mpscring

import "sync/atomic"

// RingStats is a point-in-time snapshot of the ring's operation
// counters. Counters are cumulative since construction.
type RingStats struct {
	EnqueueAttempts uint64 // TryReserve/TryEnqueue calls
	EnqueueFull     uint64 // reservations refused because the ring was full
	EnqueueRetries  uint64 // CAS losses and previous-cycle slot collisions
	Published       uint64 // slots published with an item
	Aborted         uint64 // reservations rolled back via SlotGuard.Abort

	DequeueAttempts uint64 // TryDequeue calls
	DequeueEmpty    uint64 // claims that found the ring empty
	DequeueNotReady uint64 // claims that hit a reserved-but-unpublished slot
	Consumed        uint64 // items delivered to the consumer
}

// Stats retrieves the current ring statistics.
func (q *Ring[T]) Stats() RingStats {
	return RingStats{
		EnqueueAttempts: atomic.LoadUint64(&q.enqueueAttempts),
		EnqueueFull:     atomic.LoadUint64(&q.enqueueFull),
		EnqueueRetries:  atomic.LoadUint64(&q.enqueueRetries),
		Published:       atomic.LoadUint64(&q.published),
		Aborted:         atomic.LoadUint64(&q.aborted),
		DequeueAttempts: atomic.LoadUint64(&q.dequeueAttempts),
		DequeueEmpty:    atomic.LoadUint64(&q.dequeueEmpty),
		DequeueNotReady: atomic.LoadUint64(&q.dequeueNotReady),
		Consumed:        atomic.LoadUint64(&q.consumed),
	}
}
