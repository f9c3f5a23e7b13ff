package mpscring

import "fmt"

var (
	// ErrFull is returned by non-blocking sends when capacity items are
	// published or reserved and not yet consumed.
	ErrFull = fmt.Errorf("mpscring: channel is full")
	// ErrEmpty is returned by non-blocking receives when no item is ready.
	ErrEmpty = fmt.Errorf("mpscring: channel is empty")
	// ErrClosed is returned by sends after the channel has been closed.
	ErrClosed = fmt.Errorf("mpscring: channel is closed")
	// ErrDrained is returned by receives once the channel is closed and
	// every item published before the close has been consumed.
	ErrDrained = fmt.Errorf("mpscring: channel is closed and drained")
	// ErrTimeout is returned by blocking calls whose deadline elapsed.
	ErrTimeout = fmt.Errorf("mpscring: timeout")
	// ErrCanceled is returned by blocking calls released via context
	// cancellation.
	ErrCanceled = fmt.Errorf("mpscring: canceled")
)
