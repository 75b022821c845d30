package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, resolves
// the API key from the environment, and validates the result. Useful in
// tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is below the minimum of 8000", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Blocksize < 120 {
		errs = append(errs, fmt.Errorf("audio.blocksize %d is below the minimum of 120", cfg.Audio.Blocksize))
	}
	if cfg.Audio.InputChannels < 1 || cfg.Audio.InputChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.input_channels must be 1 or 2, got %d", cfg.Audio.InputChannels))
	}
	if cfg.Audio.OutputChannels < 1 || cfg.Audio.OutputChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.output_channels must be 1 or 2, got %d", cfg.Audio.OutputChannels))
	}
	if cfg.Audio.MaxBufferSeconds < 1 || cfg.Audio.MaxBufferSeconds > 60 {
		errs = append(errs, fmt.Errorf("audio.max_buffer_seconds must be between 1 and 60, got %d", cfg.Audio.MaxBufferSeconds))
	}

	if cfg.Voice.Instructions == "" {
		errs = append(errs, errors.New("voice.instructions must not be empty"))
	}

	if cfg.Provider.APIKey == "" {
		errs = append(errs, errors.New("provider.api_key is not set and OPENAI_API_KEY is empty"))
	}

	return errors.Join(errs...)
}
