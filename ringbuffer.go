// Package mpscring implements a bounded, lock-free ring channel for
// multiple producers and a single consumer (MPSC).
//
// Producers reserve a slot by advancing a shared write cursor, write
// their item, then publish it with a release store of the slot sequence.
// The single consumer claims the next published slot with an acquire
// load, reads the item, and recycles the slot for the next lap. The
// write-cursor update is the only point of inter-producer contention.
//
// Slot states are encoded in the per-slot sequence number, after
// Dmitry Vyukov's bounded queue:
// https://www.1024cores.net/home/lock-free-algorithms/queues/bounded-mpmc-queue
package mpscring

import "sync/atomic"

// slot is one buffer cell. Its sequence number encodes the state:
//
//	seq == pos           EMPTY, free for the producer holding ticket pos
//	seq == pos+1         READY, visible to the consumer
//	seq == pos+capacity  EMPTY again, recycled for the next lap
//
// WRITING is the window between the reservation CAS and the publish
// store; READING is the window between the consumer's acquire load and
// its recycle store. val and skip are only ever touched by the party
// that currently owns the slot under this protocol, so they need no
// atomics of their own.
type slot[T any] struct {
	seq  atomic.Uint64
	skip bool // aborted reservation; consumer recycles without delivering
	val  T
}
