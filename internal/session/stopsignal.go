package session

import "sync"

// StopSignal is a set-once stop flag shared between the controller and the
// session's loops. Set may be called any number of times from any goroutine;
// only the first call has an effect. Loops observe it either by polling
// [StopSignal.Stopped] at iteration boundaries or by selecting on
// [StopSignal.Done].
type StopSignal struct {
	once sync.Once
	done chan struct{}
}

// NewStopSignal returns a fresh, unset stop signal. Each session run gets its
// own instance.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Set marks the signal as stopped. Safe to call concurrently and repeatedly.
func (s *StopSignal) Set() {
	s.once.Do(func() { close(s.done) })
}

// Stopped reports whether Set has been called. Never blocks.
func (s *StopSignal) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once Set has been called.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}
