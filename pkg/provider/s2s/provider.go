// Package s2s defines the Provider interface for speech-to-speech agent
// backends.
//
// An S2S provider wraps a real-time voice AI service that accepts raw PCM16
// audio and returns synthesised speech in a single, stateful session. The
// central abstraction is [SessionHandle]: a bidirectional stream carrying
// caller audio upward and a typed event sequence — turn boundaries, audio
// chunks, interruptions, errors — downward.
//
// All implementations must be safe for concurrent use.
package s2s

import "context"

// EventType classifies the events a session emits on its event stream.
type EventType int

const (
	// EventTurnStart marks the beginning of an agent turn. The agent has
	// started formulating a response; audio chunks may follow.
	EventTurnStart EventType = iota

	// EventTurnEnd marks the end of an agent turn.
	EventTurnEnd

	// EventAudioChunk carries a chunk of synthesised PCM16 audio in
	// [Event.Audio].
	EventAudioChunk

	// EventAudioEnd signals that the current response's audio is complete.
	EventAudioEnd

	// EventInterrupted signals that the caller started speaking while the
	// agent was responding (barge-in). Consumers should discard any queued
	// playback immediately.
	EventInterrupted

	// EventError carries a non-fatal protocol error in [Event.Message]. The
	// session remains usable; fatal errors close the event stream instead
	// and are reported via [SessionHandle.Err].
	EventError
)

// String returns the wire-style name of the event type.
func (e EventType) String() string {
	switch e {
	case EventTurnStart:
		return "turn-start"
	case EventTurnEnd:
		return "turn-end"
	case EventAudioChunk:
		return "audio-chunk"
	case EventAudioEnd:
		return "audio-end"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a single typed event from the agent's inbound stream.
type Event struct {
	// Type discriminates the event.
	Type EventType

	// Audio holds the PCM16 payload for EventAudioChunk; nil otherwise.
	Audio []byte

	// Message holds the error text for EventError; empty otherwise.
	Message string
}

// SessionConfig is the initial configuration for a new agent session.
type SessionConfig struct {
	// Voice selects the synthesised voice (e.g. "alloy").
	Voice string

	// Instructions is the system-level prompt defining the agent's persona
	// and behavioural constraints.
	Instructions string

	// InterruptResponse enables server-side barge-in: the agent cancels its
	// in-flight response when the caller starts speaking over it.
	InterruptResponse bool
}

// SessionHandle represents an open agent session.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Events are channel-based so the consumer controls its own
// scheduling. Callers must call Close when the session is no longer needed;
// Close releases the underlying stream even if event iteration was abandoned
// early.
type SessionHandle interface {
	// SendAudio delivers a raw PCM16 chunk of caller audio to the agent.
	// Returns an error if the session is closed or the transport rejects the
	// chunk.
	SendAudio(chunk []byte) error

	// Events returns a read-only channel emitting the session's typed
	// events. The channel is closed when the session ends — on Close, on
	// clean stream shutdown, or on a fatal transport error. After it closes,
	// call [SessionHandle.Err] to distinguish the error case.
	Events() <-chan Event

	// Err returns the error that closed the Events channel prematurely, or
	// nil if the session ended cleanly.
	Err() error

	// Close terminates the session and releases all resources. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any speech-to-speech agent backend.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned SessionHandle is ready to accept audio immediately. The
	// caller owns the handle and is responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
