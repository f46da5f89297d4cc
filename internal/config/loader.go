package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidVoices lists the prebuilt voice names known to ship with the live
// service. Used by [Validate] to warn about likely typos; unknown names are
// not an error since the service adds voices without notice.
var ValidVoices = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
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

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Live transport
	if cfg.Live.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("live.api_key is empty and GEMINI_API_KEY is not set; connecting will fail")
	}

	// Session
	if cfg.Session.Voice != "" && !slices.Contains(ValidVoices, cfg.Session.Voice) {
		slog.Warn("unknown voice name, may be a typo or a newly added voice",
			"voice", cfg.Session.Voice,
			"known", ValidVoices,
		)
	}
	if cfg.Session.SampleInterval < 0 {
		errs = append(errs, fmt.Errorf("session.sample_interval %v is negative", cfg.Session.SampleInterval))
	}
	if cfg.Session.SampleInterval > 0 && cfg.Session.SampleInterval < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("session.sample_interval %v is below the 100ms minimum", cfg.Session.SampleInterval))
	}
	if cfg.Session.OutboundBuffer < 0 {
		errs = append(errs, fmt.Errorf("session.outbound_buffer %d is negative", cfg.Session.OutboundBuffer))
	}

	// Audio devices
	if cfg.Audio.Input.Channels != 0 && cfg.Audio.Input.Channels != 1 && cfg.Audio.Input.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.input.channels %d is invalid; must be 1 or 2", cfg.Audio.Input.Channels))
	}
	if cfg.Audio.Input.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input.sample_rate %d is negative", cfg.Audio.Input.SampleRate))
	}
	if cfg.Audio.Output.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output.sample_rate %d is negative", cfg.Audio.Output.SampleRate))
	}

	// Video is consulted only when sessions request it.
	if cfg.Session.Video && cfg.Video.Device == "" {
		slog.Warn("session.video is enabled but video.device is empty; sessions will run audio-only")
	}
	if cfg.Video.FPS < 0 {
		errs = append(errs, fmt.Errorf("video.fps %d is negative", cfg.Video.FPS))
	}

	return errors.Join(errs...)
}
