// Package config provides the configuration schema, loader, backend
// registry, and file watcher for the Lumastream session engine.
package config

import "time"

// LogLevel controls log verbosity.
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

// Config is the root configuration structure for Lumastream.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Live    LiveConfig    `yaml:"live"`
	Session SessionConfig `yaml:"session"`
	Audio   AudioConfig   `yaml:"audio"`
	Video   VideoConfig   `yaml:"video"`
}

// ServerConfig holds settings for the local HTTP endpoint serving metrics
// and session status.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":9090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LiveConfig selects and configures the streaming transport to the remote
// agent.
type LiveConfig struct {
	// Transport selects the registered transport implementation.
	// Default: "gemini".
	Transport string `yaml:"transport"`

	// APIKey authenticates against the remote service. When empty, the
	// GEMINI_API_KEY environment variable is consulted at startup.
	APIKey string `yaml:"api_key"`

	// Model overrides the transport's default model identifier.
	Model string `yaml:"model"`

	// BaseURL overrides the transport's default endpoint. Leave empty for
	// the service's built-in default.
	BaseURL string `yaml:"base_url"`
}

// SessionConfig describes how individual sessions behave.
type SessionConfig struct {
	// Voice selects the agent's prebuilt voice (e.g., "Puck", "Kore").
	Voice string `yaml:"voice"`

	// SystemInstruction is the agent's system prompt.
	SystemInstruction string `yaml:"system_instruction"`

	// Video requests camera capture. When the camera cannot be acquired,
	// sessions degrade to audio-only instead of failing.
	Video bool `yaml:"video"`

	// SampleInterval is the camera still-frame cadence. Default: 1s.
	SampleInterval time.Duration `yaml:"sample_interval"`

	// OutboundBuffer is the outbound packet queue depth. Default: 64.
	OutboundBuffer int `yaml:"outbound_buffer"`
}

// AudioConfig describes the local audio devices.
type AudioConfig struct {
	// Backend selects the registered device backend. Default: "ffmpeg".
	Backend string `yaml:"backend"`

	Input  AudioInputConfig  `yaml:"input"`
	Output AudioOutputConfig `yaml:"output"`
}

// AudioInputConfig describes the capture device.
type AudioInputConfig struct {
	// Format is the capture input format (e.g., "pulse", "alsa",
	// "avfoundation"). Empty lets the backend guess.
	Format string `yaml:"format"`

	// Device is the input specifier (e.g., "default", "hw:0").
	Device string `yaml:"device"`

	// SampleRate is the device's native capture rate in Hz. Default: 48000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the device's channel count, 1 or 2. Default: 1.
	Channels int `yaml:"channels"`
}

// AudioOutputConfig describes playback.
type AudioOutputConfig struct {
	// SampleRate is the inbound agent audio rate in Hz. Default: 24000.
	SampleRate int `yaml:"sample_rate"`
}

// VideoConfig describes the camera device. Only consulted when
// session.video is true.
type VideoConfig struct {
	// Format is the capture input format (e.g., "v4l2", "avfoundation").
	Format string `yaml:"format"`

	// Device is the camera specifier (e.g., "/dev/video0").
	Device string `yaml:"device"`

	// FPS is how often the backend refreshes the held frame. Default: 2.
	FPS int `yaml:"fps"`
}
