package audio

import (
	"sync/atomic"
	"time"
)

// DefaultQueueDepth is the capture queue depth used when NewCaptureQueue is
// given a non-positive value. At 960-frame blocks and 24 kHz this holds
// roughly 10 seconds of microphone audio.
const DefaultQueueDepth = 256

// CaptureQueue is a bounded single-producer single-consumer FIFO of PCM16
// frames. The producer is the hardware input callback, which must never
// block: [CaptureQueue.Put] drops the frame when the queue is full instead of
// stalling the real-time thread. The consumer is the session send loop, which
// may block briefly via [CaptureQueue.Get].
type CaptureQueue struct {
	ch chan []byte

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// NewCaptureQueue creates a queue holding at most depth frames.
func NewCaptureQueue(depth int) *CaptureQueue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &CaptureQueue{ch: make(chan []byte, depth)}
}

// Put enqueues a frame without blocking. When the queue is full the frame is
// silently discarded (drop-newest) and Put reports false. Safe to call from
// the hardware callback thread.
func (q *CaptureQueue) Put(frame []byte) bool {
	select {
	case q.ch <- frame:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Get returns the next frame, waiting up to timeout for one to arrive.
// Returns (nil, false) on timeout. A timeout is "no data right now", not an
// error. Must only be called off the hardware thread.
func (q *CaptureQueue) Get(timeout time.Duration) ([]byte, bool) {
	if timeout <= 0 {
		select {
		case frame := <-q.ch:
			return frame, true
		default:
			return nil, false
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case frame := <-q.ch:
		return frame, true
	case <-t.C:
		return nil, false
	}
}

// Len reports the number of frames currently queued.
func (q *CaptureQueue) Len() int { return len(q.ch) }

// Stats returns the lifetime counts of frames enqueued and frames dropped
// because the queue was full.
func (q *CaptureQueue) Stats() (enqueued, dropped uint64) {
	return q.enqueued.Load(), q.dropped.Load()
}
