// Package bargein implements C9, the one-shot cross-thread signal from the
// wake-word detection pipeline to the producer server's read loop. It
// mirrors the detection-to-consumer non-blocking single/small-capacity
// channel idiom the project already uses for its wake/notify signaling.
package bargein

// busCapacity allows a small number of outstanding signals to queue
// without blocking the detection thread, per spec §4.9.
const busCapacity = 4

// Bus is a small-capacity, non-blocking signal channel. The detection
// thread calls Fire on every wake event; the producer server's read loop
// receives from C in its select loop (Poll is the equivalent one-shot,
// non-blocking receive).
type Bus struct {
	ch chan struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{ch: make(chan struct{}, busCapacity)}
}

// Fire performs a non-blocking send. If the bus is already full, the
// signal is dropped — a pending signal is sufficient since the producer
// server only needs to know a barge-in occurred at least once.
func (b *Bus) Fire() {
	select {
	case b.ch <- struct{}{}:
	default:
	}
}

// Poll performs a non-blocking receive, reporting whether a barge-in
// signal was pending.
func (b *Bus) Poll() bool {
	select {
	case <-b.ch:
		return true
	default:
		return false
	}
}

// C returns the underlying signal channel so a read loop can select on it
// directly rather than only polling between inbound messages — needed so a
// barge-in fired while the loop is blocked on one large Play frame is
// observed immediately instead of on the next inbound frame.
func (b *Bus) C() <-chan struct{} {
	return b.ch
}
