// Package mock provides test doubles for the s2s package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the inbound event stream and inspect the audio the
// session loop sent upward.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(s2s.Event{Type: s2s.EventTurnStart})
//	sess.End(nil)
package mock

import (
	"context"
	"sync"

	"github.com/voxline/voxline/pkg/provider/s2s"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg s2s.SessionConfig
}

// Provider is a mock implementation of s2s.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by Connect. If nil, Connect
	// returns a fresh default Session.
	Session s2s.SessionHandle

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// Ensure Provider implements s2s.Provider at compile time.
var _ s2s.Provider = (*Provider)(nil)

// Session is a mock implementation of s2s.SessionHandle. Drive the inbound
// stream with [Session.Emit] and terminate it with [Session.End].
type Session struct {
	mu sync.Mutex

	// SendAudioErr, if non-nil, is returned from every SendAudio call.
	SendAudioErr error

	// Sent accumulates copies of every chunk passed to SendAudio.
	Sent [][]byte

	// CloseCalls counts invocations of Close.
	CloseCalls int

	events  chan s2s.Event
	errVal  error
	ended   bool
	endOnce sync.Once
}

// NewSession creates a Session with a buffered event channel.
func NewSession() *Session {
	return &Session{events: make(chan s2s.Event, 64)}
}

// Emit places an event on the session's event channel. Panics if called
// after End.
func (s *Session) Emit(evt s2s.Event) { s.events <- evt }

// End closes the event channel, recording err as the terminal error (nil for
// a clean stream closure). Idempotent.
func (s *Session) End(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.errVal = err
		s.ended = true
		s.mu.Unlock()
		close(s.events)
	})
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.Sent = append(s.Sent, c)
	return nil
}

// SentCount reports the number of recorded SendAudio calls. Thread-safe.
func (s *Session) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// Events returns the mock event channel.
func (s *Session) Events() <-chan s2s.Event { return s.events }

// Err returns the error recorded by End.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close records the call and ends the event stream.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()
	s.End(nil)
	return nil
}

// Ensure Session implements s2s.SessionHandle at compile time.
var _ s2s.SessionHandle = (*Session)(nil)
