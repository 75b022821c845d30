// Package session bridges the local audio device and the remote
// speech-to-speech agent stream.
//
// A Session composes a capture queue, a playback buffer, and an agent
// session handle into three cooperatively cancelled loops: a send loop
// forwarding microphone frames upstream, a receive loop applying agent
// events to the playback buffer, and a monitor loop logging buffer
// occupancy. The loops share a [StopSignal] and terminate together on
// operator stop, stream closure, or a fatal stream error.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/pkg/audio"
	"github.com/voxline/voxline/pkg/provider/s2s"
)

const (
	// captureGetTimeout bounds each capture queue read so the send loop can
	// observe the stop signal between blocks.
	captureGetTimeout = 100 * time.Millisecond

	// monitorInterval is the period of the playback buffer occupancy check.
	monitorInterval = 5 * time.Second

	// monitorThresholdPct is the occupancy above which the monitor logs.
	monitorThresholdPct = 50.0
)

// Device abstracts the audio hardware lifecycle. Implemented by
// [audio.DeviceIO] in production and by mocks in tests.
type Device interface {
	Start() error
	Stop()
}

// Config holds the collaborators of a [Session]. All fields except Metrics
// and Logf are required.
type Config struct {
	// Device owns the hardware input/output streams.
	Device Device

	// Queue carries PCM16 frames from the input callback to the send loop.
	Queue *audio.CaptureQueue

	// Playback is the buffer drained by the output callback.
	Playback *audio.PlaybackBuffer

	// Provider opens the agent stream.
	Provider s2s.Provider

	// Agent configures the remote session (voice, instructions, barge-in).
	Agent s2s.SessionConfig

	// Stop is the shared stop signal for this run.
	Stop *StopSignal

	// Logf receives human-readable progress lines. Defaults to slog.
	Logf audio.Logf

	// Metrics receives telemetry. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session runs one voice conversation to completion.
type Session struct {
	cfg     Config
	logf    audio.Logf
	metrics *observe.Metrics

	// receiving is true while agent audio chunks are arriving. The send
	// loop suppresses upstream frames during this window to avoid the agent
	// hearing (and interrupting itself over) its own playback.
	receiving atomic.Bool

	// connected is closed once the first agent event arrives.
	connected chan struct{}
}

// New creates a Session from cfg.
func New(cfg Config) *Session {
	s := &Session{
		cfg:       cfg,
		logf:      cfg.Logf,
		metrics:   cfg.Metrics,
		connected: make(chan struct{}),
	}
	if s.logf == nil {
		s.logf = func(format string, args ...any) {
			observe.Logger(context.Background()).Info(fmt.Sprintf(format, args...))
		}
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Run executes the session until the stop signal is set, the agent stream
// closes, or a fatal error occurs. It returns nil on operator stop and on
// clean stream closure; the caller distinguishes the two via the stop
// signal. Errors from the loops never escape as panics.
func (s *Session) Run(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "session.run")
	defer span.End()

	s.logf("🔄 Connecting to OpenAI Realtime API...")
	handle, err := s.cfg.Provider.Connect(ctx, s.cfg.Agent)
	if err != nil {
		return fmt.Errorf("connect agent stream: %w", err)
	}
	defer handle.Close()

	if err := s.cfg.Device.Start(); err != nil {
		return fmt.Errorf("start audio device: %w", err)
	}
	defer s.cfg.Device.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sendLoop(gctx, handle) })
	g.Go(func() error { return s.monitorLoop(gctx) })

	recvErr := s.receiveLoop(ctx, handle)

	// Teardown: release the send and monitor loops, then the device (via
	// the deferred Stop). The connected gate must open so the loops are not
	// stuck waiting on a session that never produced an event.
	s.signalConnected()
	cancel()
	if err := g.Wait(); err != nil {
		s.logf("Error in audio loops: %v", err)
	}

	if recvErr != nil {
		return recvErr
	}
	if !s.cfg.Stop.Stopped() {
		s.logf("Session ended")
	}
	return nil
}

// Connected returns a channel closed once the first agent event has been
// received, i.e. the conversation is live.
func (s *Session) Connected() <-chan struct{} {
	return s.connected
}

// signalConnected opens the connected gate exactly once.
func (s *Session) signalConnected() {
	select {
	case <-s.connected:
	default:
		close(s.connected)
	}
}

// sendLoop forwards captured microphone frames to the agent stream. It
// starts only after the first agent event confirms the session is live, and
// it never sends while agent audio is being received.
func (s *Session) sendLoop(ctx context.Context, handle s2s.SessionHandle) error {
	select {
	case <-s.connected:
	case <-ctx.Done():
		return nil
	}
	s.logf("🎤 Audio transmission started")

	for {
		if s.cfg.Stop.Stopped() || ctx.Err() != nil {
			return nil
		}

		frame, ok := s.cfg.Queue.Get(captureGetTimeout)
		if !ok {
			continue
		}

		if s.receiving.Load() {
			continue
		}
		if err := handle.SendAudio(frame); err != nil {
			// The receive loop surfaces the stream's fatal error; here it
			// only means there is nothing left to send to.
			s.logf("Error sending audio: %v", err)
			return nil
		}
	}
}

// monitorLoop periodically logs playback buffer occupancy above the
// threshold and publishes queue and buffer telemetry.
func (s *Session) monitorLoop(ctx context.Context) error {
	select {
	case <-s.connected:
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	var lastEnqueued, lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.cfg.Stop.Done():
			return nil
		case <-ticker.C:
		}

		length, capacity := s.cfg.Playback.Status()
		s.metrics.PlaybackBufferBytes.Record(ctx, int64(length))

		enqueued, dropped := s.cfg.Queue.Stats()
		if d := enqueued - lastEnqueued; d > 0 {
			s.metrics.FramesCaptured.Add(ctx, int64(d))
		}
		if d := dropped - lastDropped; d > 0 {
			s.metrics.FramesDropped.Add(ctx, int64(d))
		}
		lastEnqueued, lastDropped = enqueued, dropped

		if length > 0 {
			pct := float64(length) / float64(capacity) * 100
			if pct > monitorThresholdPct {
				s.logf("📊 Buffer usage: %.1f%% (%d/%d bytes)", pct, length, capacity)
			}
		}
	}
}

// receiveLoop applies agent events to the playback buffer until the stream
// closes or the stop signal is set. It returns the stream's fatal error, if
// any.
func (s *Session) receiveLoop(ctx context.Context, handle s2s.SessionHandle) error {
	firstEvent := true
	turnChunks := 0
	turnBytes := 0

	for {
		select {
		case <-s.cfg.Stop.Done():
			s.logf("🛑 Stop requested. Closing session...")
			return nil
		case <-ctx.Done():
			return nil
		case ev, ok := <-handle.Events():
			if !ok {
				return handle.Err()
			}

			if firstEvent {
				firstEvent = false
				s.signalConnected()
				s.logf("==================================================")
				s.logf("🎙️ Voice Assistant Ready!")
				s.logf("💬 Speak clearly into your microphone")
				s.logf("⏸️  Press Stop to end")
				s.logf("==================================================")
			}

			switch ev.Type {
			case s2s.EventTurnStart:
				s.logf("👂 Listening...")
				s.receiving.Store(false)
				turnChunks = 0
				turnBytes = 0

			case s2s.EventTurnEnd:
				if turnChunks > 0 {
					s.logf("✅ Response completed (%d chunks, %.1fKB)",
						turnChunks, float64(turnBytes)/1024)
				}
				s.receiving.Store(false)

			case s2s.EventAudioChunk:
				if len(ev.Audio) == 0 {
					continue
				}
				if !s.receiving.Load() {
					s.receiving.Store(true)
					s.logf("🔊 Speaking...")
					// Replace any stale queued playback with the new turn's
					// first chunk in one step, so the output callback never
					// plays leftovers from the interrupted response.
					s.cfg.Playback.Preempt(ev.Audio)
				} else {
					s.cfg.Playback.Append(ev.Audio)
				}
				turnChunks++
				turnBytes += len(ev.Audio)
				s.metrics.AudioChunksReceived.Add(ctx, 1)
				s.metrics.AudioBytesReceived.Add(ctx, int64(len(ev.Audio)))

			case s2s.EventAudioEnd:
				s.receiving.Store(false)

			case s2s.EventInterrupted:
				s.logf("⚠️ Interrupted")
				s.cfg.Playback.Clear()
				s.receiving.Store(false)

			case s2s.EventError:
				s.logf("❌ Error: %s", ev.Message)
			}
		}
	}
}
