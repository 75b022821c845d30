package audio

import "sync"

// PlaybackBuffer is the byte ring between the event receive path (producer,
// appends at the back) and the hardware output callback (consumer, reads from
// the front). Its length never exceeds the configured capacity: when an
// append would overflow, the oldest bytes are discarded first (drop-oldest).
//
// All operations hold a single mutex for a strictly bounded critical section
// — pure memory copies, no I/O — so the real-time consumer is never stalled
// for longer than one block's worth of work.
type PlaybackBuffer struct {
	mu   sync.Mutex
	buf  []byte // buf[head:] is the live window
	head int

	capacity  int
	warnArmed bool
	logf      Logf
}

// NewPlaybackBuffer creates a buffer bounded at capacity bytes. The overflow
// warning starts armed: the first trimming append logs once, then stays
// silent until [PlaybackBuffer.Clear] re-arms it. logf may be nil to use the
// default slog-backed logger.
func NewPlaybackBuffer(capacity int, logf Logf) *PlaybackBuffer {
	if logf == nil {
		logf = slogf
	}
	return &PlaybackBuffer{
		buf:       make([]byte, 0, capacity),
		capacity:  capacity,
		warnArmed: true,
		logf:      logf,
	}
}

// Append adds p at the back of the buffer, discarding exactly as many of the
// oldest bytes as needed to stay within capacity. The discard is logged at
// most once per armed cycle to avoid log storms while the agent keeps
// streaming into a full buffer.
func (b *PlaybackBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	warnBytes := 0

	b.mu.Lock()
	over := b.lengthLocked() + len(p) - b.capacity
	if over > 0 {
		if b.warnArmed {
			warnBytes = over
			b.warnArmed = false
		}
		if over >= b.lengthLocked() {
			// Everything buffered is stale; the new chunk may itself need a trim.
			b.buf = b.buf[:0]
			b.head = 0
			if len(p) > b.capacity {
				p = p[len(p)-b.capacity:]
			}
		} else {
			b.head += over
		}
	}

	// Compact before appending so the backing array never grows past capacity.
	if b.head > 0 {
		n := copy(b.buf, b.buf[b.head:])
		b.buf = b.buf[:n]
		b.head = 0
	}
	b.buf = append(b.buf, p...)
	b.mu.Unlock()

	// Log outside the lock: the critical section stays a pure memory copy.
	if warnBytes > 0 {
		b.logf("⚠️ Buffer near limit, removed %d bytes", warnBytes)
	}
}

// Consume removes and returns up to n bytes from the front of the buffer.
// Each buffered byte is returned exactly once. The caller pads any shortfall
// with silence.
func (b *PlaybackBuffer) Consume(n int) []byte {
	out := make([]byte, n)
	m := b.ConsumeInto(out)
	return out[:m]
}

// ConsumeInto fills dst from the front of the buffer and returns the number
// of bytes written. Unlike [PlaybackBuffer.Consume] it performs no
// allocation, making it safe for the real-time output callback.
func (b *PlaybackBuffer) ConsumeInto(dst []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := copy(dst, b.buf[b.head:])
	b.head += m
	if b.head == len(b.buf) {
		b.buf = b.buf[:0]
		b.head = 0
	}
	return m
}

// Clear empties the buffer, logs the number of bytes discarded if non-zero,
// and re-arms the overflow warning. Called on barge-in to cancel stale
// queued playback.
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	n := b.lengthLocked()
	b.buf = b.buf[:0]
	b.head = 0
	b.warnArmed = true
	b.mu.Unlock()

	if n > 0 {
		b.logf("🗑️ Cleared %d bytes from audio buffer", n)
	}
}

// Preempt atomically replaces the buffer contents with p. It is equivalent to
// Clear followed by Append, except no consumer read can interleave between the
// two: the first turn of a new response never plays behind leftover bytes
// from the interrupted one. The overflow warning is re-armed like Clear does.
func (b *PlaybackBuffer) Preempt(p []byte) {
	b.mu.Lock()
	n := b.lengthLocked()
	b.buf = b.buf[:0]
	b.head = 0
	b.warnArmed = true
	if len(p) > b.capacity {
		p = p[len(p)-b.capacity:]
	}
	b.buf = append(b.buf, p...)
	b.mu.Unlock()

	if n > 0 {
		b.logf("🗑️ Cleared %d bytes from audio buffer", n)
	}
}

// Status returns the current buffered length and the capacity, in bytes.
func (b *PlaybackBuffer) Status() (length, capacity int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lengthLocked(), b.capacity
}

func (b *PlaybackBuffer) lengthLocked() int { return len(b.buf) - b.head }
