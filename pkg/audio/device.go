package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceUnavailable is returned by [DeviceIO.Start] when no input or
// output device satisfies the configured channel requirement.
var ErrDeviceUnavailable = errors.New("audio: no suitable device")

// DeviceConfig describes the fixed audio format and device selection for a
// [DeviceIO]. Values come pre-validated from the application config.
type DeviceConfig struct {
	// SampleRate in Hz for both streams (e.g. 24000).
	SampleRate int

	// BlockSize is the number of frames delivered per hardware callback.
	BlockSize int

	// InputChannels is the capture channel count (normally 1).
	InputChannels int

	// OutputChannels is the playback channel count (normally 2; the mono
	// agent signal is written identically to every channel).
	OutputChannels int

	// InputDevice selects the capture device: a numeric device index, a
	// case-insensitive name substring, or ""/"default" for the platform
	// default.
	InputDevice string

	// OutputDevice selects the playback device, same syntax as InputDevice.
	OutputDevice string
}

// DeviceIO owns the PortAudio input and output streams. The input callback
// converts each float32 block to PCM16 and enqueues it on the capture queue;
// the output callback drains the playback buffer and zero-fills any
// shortfall. Neither callback ever blocks on more than the playback buffer's
// bounded mutex.
type DeviceIO struct {
	cfg      DeviceConfig
	queue    *CaptureQueue
	playback *PlaybackBuffer
	logf     Logf

	mu        sync.Mutex
	inStream  *portaudio.Stream
	outStream *portaudio.Stream
	running   bool

	// scratch is the output callback's drain buffer, sized once in Start so
	// the hot path never allocates.
	scratch []byte

	// carry holds the low byte of a sample when the playback buffer drained
	// to an odd length mid-sample; the next callback re-joins it with its
	// high byte. Only the output callback touches these.
	carry    byte
	hasCarry bool
}

// NewDeviceIO creates a DeviceIO feeding queue from the microphone and
// playing playback through the speakers. logf may be nil.
func NewDeviceIO(cfg DeviceConfig, queue *CaptureQueue, playback *PlaybackBuffer, logf Logf) *DeviceIO {
	if logf == nil {
		logf = slogf
	}
	return &DeviceIO{
		cfg:      cfg,
		queue:    queue,
		playback: playback,
		logf:     logf,
		scratch:  make([]byte, cfg.BlockSize*2),
	}
}

// Start initialises PortAudio, resolves the input and output devices, opens
// both streams at the configured format, and begins delivering blocks.
// Returns an error wrapping [ErrDeviceUnavailable] when no device satisfies
// the channel requirement.
func (d *DeviceIO) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audio: initialize portaudio: %w", err)
	}

	in, out, err := d.resolveDevices()
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	d.logf("📥 Using input device: %s", in.Name)
	d.logf("📤 Using output device: %s", out.Name)

	inParams := portaudio.LowLatencyParameters(in, nil)
	inParams.Input.Channels = d.cfg.InputChannels
	inParams.SampleRate = float64(d.cfg.SampleRate)
	inParams.FramesPerBuffer = d.cfg.BlockSize

	inStream, err := portaudio.OpenStream(inParams, d.handleInput)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: open input stream: %w", err)
	}

	outParams := portaudio.LowLatencyParameters(nil, out)
	outParams.Output.Channels = d.cfg.OutputChannels
	outParams.SampleRate = float64(d.cfg.SampleRate)
	outParams.FramesPerBuffer = d.cfg.BlockSize

	outStream, err := portaudio.OpenStream(outParams, d.handleOutput)
	if err != nil {
		_ = inStream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: open output stream: %w", err)
	}

	if err := inStream.Start(); err != nil {
		_ = inStream.Close()
		_ = outStream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: start input stream: %w", err)
	}
	if err := outStream.Start(); err != nil {
		_ = inStream.Stop()
		_ = inStream.Close()
		_ = outStream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("audio: start output stream: %w", err)
	}

	d.inStream = inStream
	d.outStream = outStream
	d.running = true
	d.logf("✅ Audio streams started (Sample rate: %dHz, Block size: %d)", d.cfg.SampleRate, d.cfg.BlockSize)
	return nil
}

// Stop stops and releases both streams. Idempotent: calling it twice, or
// before Start, is a no-op.
func (d *DeviceIO) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	d.running = false

	if d.inStream != nil {
		_ = d.inStream.Stop()
		_ = d.inStream.Close()
		d.inStream = nil
	}
	if d.outStream != nil {
		_ = d.outStream.Stop()
		_ = d.outStream.Close()
		d.outStream = nil
	}
	_ = portaudio.Terminate()
	d.logf("Audio streams stopped")
}

// handleInput runs on the hardware capture thread once per block. It must
// complete within one block duration: PCM16 conversion plus a non-blocking
// enqueue. A full queue drops the frame silently.
func (d *DeviceIO) handleInput(in []float32) {
	d.queue.Put(Float32ToPCM16(in))
}

// handleOutput runs on the hardware playback thread once per block. It
// drains up to frames×2 bytes of mono PCM16 from the playback buffer, writes
// the decoded signal identically to every output channel, and zero-fills the
// shortfall. Underflow is a normal condition: silence, never a stall.
func (d *DeviceIO) handleOutput(out []float32) {
	channels := d.cfg.OutputChannels
	frames := len(out) / channels
	need := frames * 2
	if need > len(d.scratch) {
		// Host requested more frames than the configured block size.
		need = len(d.scratch)
	}

	off := 0
	if d.hasCarry && need > 0 {
		d.scratch[0] = d.carry
		d.hasCarry = false
		off = 1
	}
	n := off + d.playback.ConsumeInto(d.scratch[off:need])
	if n%2 == 1 {
		// Odd drain: the sample's high byte has not been appended yet. Hold
		// the dangling low byte for the next callback instead of losing it.
		d.carry = d.scratch[n-1]
		d.hasCarry = true
		n--
	}
	got := n / 2

	for i := 0; i < frames; i++ {
		var v float32
		if i < got {
			s := int16(d.scratch[i*2]) | int16(d.scratch[i*2+1])<<8
			v = float32(s) / 32767.0
		}
		base := i * channels
		for c := 0; c < channels; c++ {
			out[base+c] = v
		}
	}
}

// resolveDevices picks the concrete input and output devices per the
// configured selection policy.
func (d *DeviceIO) resolveDevices() (in, out *portaudio.DeviceInfo, err error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	defIn, _ := portaudio.DefaultInputDevice()
	defOut, _ := portaudio.DefaultOutputDevice()

	in, err = resolveDevice(devices, d.cfg.InputDevice, defIn, d.cfg.InputChannels, true)
	if err != nil {
		return nil, nil, fmt.Errorf("input device %q: %w", d.cfg.InputDevice, err)
	}
	out, err = resolveDevice(devices, d.cfg.OutputDevice, defOut, d.cfg.OutputChannels, false)
	if err != nil {
		return nil, nil, fmt.Errorf("output device %q: %w", d.cfg.OutputDevice, err)
	}
	return in, out, nil
}

// resolveDevice implements the selection policy: explicit override (numeric
// index or name substring), else the platform default, else the first device
// meeting the required channel count. Returns [ErrDeviceUnavailable] when
// nothing qualifies.
func resolveDevice(devices []*portaudio.DeviceInfo, selector string, def *portaudio.DeviceInfo, minChannels int, input bool) (*portaudio.DeviceInfo, error) {
	channelsOf := func(dev *portaudio.DeviceInfo) int {
		if input {
			return dev.MaxInputChannels
		}
		return dev.MaxOutputChannels
	}

	if selector != "" && !strings.EqualFold(selector, "default") {
		if idx, err := strconv.Atoi(selector); err == nil {
			if idx < 0 || idx >= len(devices) || channelsOf(devices[idx]) < minChannels {
				return nil, ErrDeviceUnavailable
			}
			return devices[idx], nil
		}
		want := strings.ToLower(selector)
		for _, dev := range devices {
			if strings.Contains(strings.ToLower(dev.Name), want) && channelsOf(dev) >= minChannels {
				return dev, nil
			}
		}
		return nil, ErrDeviceUnavailable
	}

	if def != nil && channelsOf(def) >= minChannels {
		return def, nil
	}
	for _, dev := range devices {
		if channelsOf(dev) >= minChannels {
			return dev, nil
		}
	}
	return nil, ErrDeviceUnavailable
}
