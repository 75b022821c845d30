package audio

import (
	"errors"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func newTestDeviceIO(t *testing.T, outputChannels int) (*DeviceIO, *CaptureQueue, *PlaybackBuffer) {
	t.Helper()
	q := NewCaptureQueue(8)
	pb := NewPlaybackBuffer(8000*2*2, (&logCollector{}).logf)
	d := NewDeviceIO(DeviceConfig{
		SampleRate:     8000,
		BlockSize:      320,
		InputChannels:  1,
		OutputChannels: outputChannels,
	}, q, pb, (&logCollector{}).logf)
	return d, q, pb
}

func TestHandleInput_EnqueuesPCM16(t *testing.T) {
	t.Parallel()

	d, q, _ := newTestDeviceIO(t, 2)

	samples := []float32{0, 0.5, -0.5}
	d.handleInput(samples)

	frame, ok := q.Get(time.Second)
	if !ok {
		t.Fatal("input callback did not enqueue a frame")
	}
	if len(frame) != len(samples)*2 {
		t.Errorf("frame length = %d, want %d", len(frame), len(samples)*2)
	}
	if got := int16(frame[2]) | int16(frame[3])<<8; got != 16384 {
		t.Errorf("second sample = %d, want 16384", got)
	}
}

func TestHandleInput_FullQueueDropsSilently(t *testing.T) {
	t.Parallel()

	d, q, _ := newTestDeviceIO(t, 2)
	for i := 0; i < 12; i++ {
		d.handleInput([]float32{0.1})
	}
	if _, dropped := q.Stats(); dropped != 4 {
		t.Errorf("dropped frames = %d, want 4", dropped)
	}
}

func TestHandleOutput_DrainsBufferToBothChannels(t *testing.T) {
	t.Parallel()

	d, _, pb := newTestDeviceIO(t, 2)

	// Four PCM16 samples: 0, 8192, -8192, 16384.
	pcm := make([]byte, 0, 8)
	for _, s := range []int16{0, 8192, -8192, 16384} {
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	pb.Append(pcm)

	out := make([]float32, 4*2)
	d.handleOutput(out)

	want := []float32{0, 8192.0 / 32767.0, -8192.0 / 32767.0, 16384.0 / 32767.0}
	for i, w := range want {
		if out[i*2] != w {
			t.Errorf("left frame %d = %v, want %v", i, out[i*2], w)
		}
		if out[i*2+1] != w {
			t.Errorf("right frame %d = %v, want %v", i, out[i*2+1], w)
		}
	}

	if length, _ := pb.Status(); length != 0 {
		t.Errorf("buffer length after playback = %d, want 0", length)
	}
}

func TestHandleOutput_UnderflowPadsSilence(t *testing.T) {
	t.Parallel()

	d, _, pb := newTestDeviceIO(t, 2)

	pb.Append([]byte{0x00, 0x20}) // one sample: 8192
	out := make([]float32, 4*2)
	for i := range out {
		out[i] = 99 // stale data the callback must overwrite
	}
	d.handleOutput(out)

	if want := float32(8192.0 / 32767.0); out[0] != want || out[1] != want {
		t.Errorf("first frame = (%v, %v), want (%v, %v)", out[0], out[1], want, want)
	}
	for i := 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Errorf("out[%d] = %v, want silence", i, out[i])
		}
	}
}

func TestHandleOutput_OddDrainCarriesHalfSample(t *testing.T) {
	t.Parallel()

	d, _, pb := newTestDeviceIO(t, 2)

	// One complete sample (8192) plus the low byte of 16384; the high byte
	// arrives with the next agent chunk.
	pb.Append([]byte{0x00, 0x20, 0x00})
	out := make([]float32, 2*2)
	d.handleOutput(out)

	if want := float32(8192.0 / 32767.0); out[0] != want {
		t.Errorf("first frame = %v, want %v", out[0], want)
	}
	if out[2] != 0 {
		t.Errorf("incomplete sample played as %v, want silence", out[2])
	}
	if length, _ := pb.Status(); length != 0 {
		t.Fatalf("buffer length = %d, want 0", length)
	}

	// The rest of the split sample arrives; the held byte must complete it.
	pb.Append([]byte{0x40})
	for i := range out {
		out[i] = 99
	}
	d.handleOutput(out)

	if want := float32(16384.0 / 32767.0); out[0] != want || out[1] != want {
		t.Errorf("rejoined sample = (%v, %v), want (%v, %v)", out[0], out[1], want, want)
	}
	for i := 2; i < len(out); i++ {
		if out[i] != 0 {
			t.Errorf("out[%d] = %v, want silence", i, out[i])
		}
	}
}

func TestResolveDevice(t *testing.T) {
	t.Parallel()

	devices := []*portaudio.DeviceInfo{
		{Name: "Null Sink", MaxInputChannels: 0, MaxOutputChannels: 0},
		{Name: "Built-in Microphone", MaxInputChannels: 1, MaxOutputChannels: 0},
		{Name: "USB Headset", MaxInputChannels: 2, MaxOutputChannels: 2},
	}

	tests := []struct {
		name        string
		selector    string
		def         *portaudio.DeviceInfo
		minChannels int
		input       bool
		want        string
		wantErr     bool
	}{
		{name: "explicit index", selector: "2", minChannels: 2, input: true, want: "USB Headset"},
		{name: "explicit index out of range", selector: "9", minChannels: 1, input: true, wantErr: true},
		{name: "name substring", selector: "headset", minChannels: 2, input: false, want: "USB Headset"},
		{name: "name not found", selector: "bluetooth", minChannels: 1, input: true, wantErr: true},
		{name: "default preferred", selector: "", def: devices[1], minChannels: 1, input: true, want: "Built-in Microphone"},
		{name: "default keyword", selector: "default", def: devices[1], minChannels: 1, input: true, want: "Built-in Microphone"},
		{name: "default lacks channels, falls back to first match", selector: "", def: devices[1], minChannels: 2, input: true, want: "USB Headset"},
		{name: "no device meets channels", selector: "", minChannels: 4, input: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveDevice(devices, tt.selector, tt.def, tt.minChannels, tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrDeviceUnavailable) {
					t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("resolved %q, want %q", got.Name, tt.want)
			}
		})
	}
}
