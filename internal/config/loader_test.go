package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/lumastream/lumastream/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
live:
  transport: gemini
  api_key: test-key
  model: custom-live-model
  base_url: wss://example.test/ws
session:
  voice: Puck
  system_instruction: "You are a helpful assistant."
  video: true
  sample_interval: 2s
  outbound_buffer: 128
audio:
  backend: ffmpeg
  input:
    format: pulse
    device: default
    sample_rate: 48000
    channels: 2
  output:
    sample_rate: 24000
video:
  format: v4l2
  device: /dev/video0
  fps: 2
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Live.Model != "custom-live-model" || cfg.Live.APIKey != "test-key" {
		t.Errorf("live = %+v", cfg.Live)
	}
	if cfg.Session.Voice != "Puck" || !cfg.Session.Video {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Session.SampleInterval != 2*time.Second {
		t.Errorf("sample_interval = %v", cfg.Session.SampleInterval)
	}
	if cfg.Audio.Input.SampleRate != 48000 || cfg.Audio.Input.Channels != 2 {
		t.Errorf("audio.input = %+v", cfg.Audio.Input)
	}
	if cfg.Video.Device != "/dev/video0" {
		t.Errorf("video.device = %q", cfg.Video.Device)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: info
  lisen_addr: ":9090"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("misspelled field was accepted")
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: "server.log_level",
		},
		{
			name: "negative sample interval",
			yaml: "session:\n  sample_interval: -1s\n",
			want: "session.sample_interval",
		},
		{
			name: "sample interval below minimum",
			yaml: "session:\n  sample_interval: 10ms\n",
			want: "session.sample_interval",
		},
		{
			name: "negative outbound buffer",
			yaml: "session:\n  outbound_buffer: -1\n",
			want: "session.outbound_buffer",
		},
		{
			name: "invalid channel count",
			yaml: "audio:\n  input:\n    channels: 3\n",
			want: "audio.input.channels",
		},
		{
			name: "negative input rate",
			yaml: "audio:\n  input:\n    sample_rate: -8000\n",
			want: "audio.input.sample_rate",
		},
		{
			name: "negative fps",
			yaml: "video:\n  fps: -1\n",
			want: "video.fps",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("invalid config was accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	t.Parallel()

	yaml := `
server:
  log_level: loud
video:
  fps: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("invalid config was accepted")
	}
	for _, want := range []string{"server.log_level", "video.fps"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q is missing %q", err, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/lumastream.yaml"); err == nil {
		t.Fatal("Load succeeded for missing file")
	}
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()

	// Everything has a default; an empty file only produces warnings.
	if err := config.Validate(&config.Config{}); err != nil {
		t.Fatalf("empty config invalid: %v", err)
	}
}
