package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: "0.0.0.0:9000"
  log_level: debug
audio:
  sample_rate: 24000
  blocksize: 960
  input_channels: 1
  output_channels: 2
  max_buffer_seconds: 15
voice:
  instructions: "You are a courteous support specialist."
  voice: alloy
  interrupt_response: true
provider:
  api_key: sk-test
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if !cfg.Voice.Interrupt() {
		t.Error("interrupt_response = false, want true")
	}
	if got := cfg.Audio.PlaybackCapacity(); got != 24000*2*2*15 {
		t.Errorf("PlaybackCapacity = %d, want %d", got, 24000*2*2*15)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
voice:
  instructions: "Be helpful."
provider:
  api_key: sk-test
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("default sample_rate = %d, want 24000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Blocksize != 960 {
		t.Errorf("default blocksize = %d, want 960", cfg.Audio.Blocksize)
	}
	if cfg.Audio.InputChannels != 1 || cfg.Audio.OutputChannels != 2 {
		t.Errorf("default channels = %d/%d, want 1/2", cfg.Audio.InputChannels, cfg.Audio.OutputChannels)
	}
	if cfg.Audio.MaxBufferSeconds != 15 {
		t.Errorf("default max_buffer_seconds = %d, want 15", cfg.Audio.MaxBufferSeconds)
	}
	if cfg.Voice.Voice != "alloy" {
		t.Errorf("default voice = %q, want alloy", cfg.Voice.Voice)
	}
	if !cfg.Voice.Interrupt() {
		t.Error("default interrupt_response = false, want true")
	}
	if cfg.Server.ListenAddr != "127.0.0.1:8000" {
		t.Errorf("default listen_addr = %q", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_APIKeyFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := LoadFromReader(strings.NewReader(`
voice:
  instructions: "Be helpful."
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Provider.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want value from OPENAI_API_KEY", cfg.Provider.APIKey)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
voice:
  instructions: "Be helpful."
  pitch: high
provider:
  api_key: sk-test
`))
	if err == nil {
		t.Fatal("unknown field was accepted")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "sample rate too low",
			yaml: `
audio:
  sample_rate: 4000
voice:
  instructions: ok
provider:
  api_key: sk
`,
			want: []string{"audio.sample_rate"},
		},
		{
			name: "blocksize too small",
			yaml: `
audio:
  blocksize: 60
voice:
  instructions: ok
provider:
  api_key: sk
`,
			want: []string{"audio.blocksize"},
		},
		{
			name: "channel counts out of range",
			yaml: `
audio:
  input_channels: 3
  output_channels: 4
voice:
  instructions: ok
provider:
  api_key: sk
`,
			want: []string{"audio.input_channels", "audio.output_channels"},
		},
		{
			name: "buffer seconds out of range",
			yaml: `
audio:
  max_buffer_seconds: 90
voice:
  instructions: ok
provider:
  api_key: sk
`,
			want: []string{"audio.max_buffer_seconds"},
		},
		{
			name: "missing instructions and invalid level",
			yaml: `
server:
  log_level: verbose
provider:
  api_key: sk
`,
			want: []string{"voice.instructions", "server.log_level"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("invalid config was accepted")
			}
			for _, want := range tc.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLogLevel_Slog(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LogDebug, "DEBUG"},
		{LogInfo, "INFO"},
		{LogWarn, "WARN"},
		{LogError, "ERROR"},
		{"", "INFO"},
	}
	for _, tc := range tests {
		if got := tc.level.Slog().String(); got != tc.want {
			t.Errorf("LogLevel(%q).Slog() = %s, want %s", tc.level, got, tc.want)
		}
	}
}
