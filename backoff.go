package mpscring

import (
	"runtime"
	"time"
)

// WaitStrategy selects how blocking calls behave while the ring is full
// (producers) or empty (the consumer).
type WaitStrategy uint8

const (
	// WaitYield yields the processor on every failed poll.
	WaitYield WaitStrategy = iota
	// WaitSpin busy-spins. An occasional yield is still taken: pure
	// spinning can starve the peer goroutine when GOMAXPROCS=1.
	WaitSpin
	// WaitSleep spins briefly, then yields, then parks in short naps.
	WaitSleep
)

const sleepNap = 50 * time.Microsecond

// waiter tracks backoff state across one blocking call.
type waiter struct {
	strategy WaitStrategy
	spins    uint32
}

func (w *waiter) wait() {
	w.spins++
	switch w.strategy {
	case WaitSpin:
		if w.spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	case WaitSleep:
		switch {
		case w.spins < goschedEvery:
			// burn the iteration
		case w.spins < goschedEvery*16:
			runtime.Gosched()
		default:
			time.Sleep(sleepNap)
		}
	default: // WaitYield
		runtime.Gosched()
	}
}
