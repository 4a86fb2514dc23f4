// Package legbuffer implements the bounded single-producer/single-consumer
// FIFO byte queue each upload leg owns (spec §3, Leg state / buffer).
//
// Write never blocks and never rejects a chunk: it reports whether the
// queue's occupancy is still within capacity after the write, which the
// Leg uses as a pause/resume signal rather than as back-pressure on the
// write call itself. Capacity is therefore a soft watermark, not a hard
// limit — draining happens strictly in FIFO order on the Read side.
package legbuffer

import (
	"io"
	"sync"
)

// Buffer is a bounded FIFO byte queue. The zero value is not usable; use New.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	chunks   [][]byte
	occupied int
	capacity int
	closed   bool
	closeErr error
	onDrain  func()
}

// New creates a Buffer with the given soft capacity in bytes.
func New(capacity int) *Buffer {
	b := &Buffer{capacity: capacity}
	b.notEmpty = sync.NewCond(&b.mu)
	return b
}

// SetOnDrain registers the callback fired when occupancy transitions from a
// non-zero value back to zero. Only one callback is kept; call before the
// first Write.
func (b *Buffer) SetOnDrain(fn func()) {
	b.mu.Lock()
	b.onDrain = fn
	b.mu.Unlock()
}

// Write enqueues chunk and reports whether occupancy is still at or below
// capacity afterwards. A chunk that pushes occupancy over capacity is still
// enqueued in full; accepted only flips the caller's pause/resume signal.
func (b *Buffer) Write(chunk []byte) (accepted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(chunk) > 0 {
		cp := make([]byte, len(chunk))
		copy(cp, chunk)
		b.chunks = append(b.chunks, cp)
		b.occupied += len(cp)
		b.notEmpty.Signal()
	}

	return b.occupied <= b.capacity
}

// Occupancy returns the current queued byte count.
func (b *Buffer) Occupancy() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.occupied
}

// CloseClean marks the end of the stream. Data already queued still drains
// through Read in order; once drained, Read returns io.EOF.
func (b *Buffer) CloseClean() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.notEmpty.Broadcast()
}

// Abort destroys the buffer with err: queued-but-undrained data is
// discarded and every blocked or future Read observes err immediately. This
// also applies after CloseClean; only a second Abort is a no-op.
func (b *Buffer) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return
	}
	b.closed = true
	b.closeErr = err
	b.chunks = nil
	b.occupied = 0
	b.notEmpty.Broadcast()
}

// Read implements io.Reader, draining the queue strictly in FIFO order.
func (b *Buffer) Read(p []byte) (int, error) {
	b.mu.Lock()

	for len(b.chunks) == 0 {
		if b.closed {
			err := b.closeErr
			b.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		b.notEmpty.Wait()
	}

	n := copy(p, b.chunks[0])
	if n == len(b.chunks[0]) {
		b.chunks = b.chunks[1:]
	} else {
		b.chunks[0] = b.chunks[0][n:]
	}
	b.occupied -= n

	drainedNow := b.occupied == 0 && len(b.chunks) == 0
	onDrain := b.onDrain
	b.mu.Unlock()

	if drainedNow && onDrain != nil {
		onDrain()
	}

	return n, nil
}
