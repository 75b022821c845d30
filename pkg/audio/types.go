// Package audio implements the realtime audio I/O pipeline for Voxline:
// microphone capture, speaker playback, and the two buffers that bridge the
// hardware callback threads to the session's network loops.
//
// The three building blocks are:
//
//   - [CaptureQueue] — a bounded FIFO of PCM16 frames carrying microphone
//     blocks from the input callback to the asynchronous sender.
//   - [PlaybackBuffer] — a mutex-guarded byte ring filled by the event
//     receive path and drained by the output callback.
//   - [DeviceIO] — thin ownership of the PortAudio input and output streams,
//     converting between the hardware float32 sample format and the PCM16
//     wire format used everywhere else.
//
// The hardware callbacks never block and never raise: a full capture queue
// silently drops the newest frame, and an under-filled playback buffer is
// padded with silence. Both degradations are documented behaviour, not errors.
package audio

import (
	"fmt"
	"log/slog"
)

// Logf is the logging callback threaded through the audio pipeline. Messages
// written here end up in the session controller's log history, where the
// dashboard polls them. Implementations must be safe for concurrent use and
// must not block.
type Logf func(format string, args ...any)

// slogf is the default Logf, forwarding to the process-wide slog logger.
func slogf(format string, args ...any) {
	slog.Info(fmt.Sprintf(format, args...))
}
