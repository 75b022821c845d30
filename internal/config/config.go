// Package config provides the configuration schema and loader for the
// Voxline voice assistant.
package config

import "log/slog"

// LogLevel controls log verbosity for the Voxline server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding [slog.Level]. Unset or unknown levels
// map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for Voxline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    AudioConfig    `yaml:"audio"`
	Voice    VoiceConfig    `yaml:"voice"`
	Provider ProviderConfig `yaml:"provider"`
}

// ServerConfig holds network and logging settings for the dashboard server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds the fixed audio format of the pipeline.
type AudioConfig struct {
	// SampleRate is the capture and playback rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Blocksize is the number of frames delivered per hardware callback.
	Blocksize int `yaml:"blocksize"`

	// InputChannels is the microphone channel count (1 or 2).
	InputChannels int `yaml:"input_channels"`

	// OutputChannels is the playback channel count (1 or 2).
	OutputChannels int `yaml:"output_channels"`

	// InputDevice selects the capture device by numeric index or name
	// substring. Empty selects the platform default.
	InputDevice string `yaml:"input_device"`

	// OutputDevice selects the playback device like InputDevice.
	OutputDevice string `yaml:"output_device"`

	// MaxBufferSeconds bounds the playback buffer in seconds of audio.
	MaxBufferSeconds int `yaml:"max_buffer_seconds"`
}

// PlaybackCapacity returns the playback buffer capacity in bytes:
// sample rate × output channels × 2 (PCM16) × the buffered seconds.
func (a AudioConfig) PlaybackCapacity() int {
	return a.SampleRate * a.OutputChannels * 2 * a.MaxBufferSeconds
}

// VoiceConfig configures the agent's persona and voice.
type VoiceConfig struct {
	// Instructions is the system prompt defining the agent's behaviour.
	Instructions string `yaml:"instructions"`

	// Voice selects the synthesised voice.
	Voice string `yaml:"voice"`

	// InterruptResponse enables server-side barge-in handling.
	InterruptResponse *bool `yaml:"interrupt_response"`
}

// ProviderConfig holds the agent backend credentials and endpoint.
type ProviderConfig struct {
	// APIKey authenticates against the realtime API. Falls back to the
	// OPENAI_API_KEY environment variable when empty.
	APIKey string `yaml:"api_key"`

	// Model overrides the default realtime model.
	Model string `yaml:"model"`

	// BaseURL overrides the default realtime endpoint.
	BaseURL string `yaml:"base_url"`
}

// Interrupt reports whether barge-in is enabled, defaulting to true.
func (v VoiceConfig) Interrupt() bool {
	return v.InterruptResponse == nil || *v.InterruptResponse
}

// applyDefaults fills unset fields with their default values.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:8000"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 24000
	}
	if c.Audio.Blocksize == 0 {
		c.Audio.Blocksize = 960
	}
	if c.Audio.InputChannels == 0 {
		c.Audio.InputChannels = 1
	}
	if c.Audio.OutputChannels == 0 {
		c.Audio.OutputChannels = 2
	}
	if c.Audio.MaxBufferSeconds == 0 {
		c.Audio.MaxBufferSeconds = 15
	}
	if c.Voice.Voice == "" {
		c.Voice.Voice = "alloy"
	}
}
