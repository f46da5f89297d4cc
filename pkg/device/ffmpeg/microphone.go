// Package ffmpeg provides [device.Provider] adapters backed by the ffmpeg
// and ffplay command-line tools: a microphone that decodes any audio input
// to raw PCM frames, a camera that keeps the most recent MJPEG frame of a
// video input, and a speaker that feeds s16le PCM to ffplay for playback.
//
// The adapters deliberately ask ffmpeg for the device's native sample rate
// and channel count and do format conversion in-process, so the engine's
// conversion path is the single place audio is resampled.
package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/lumastream/lumastream/pkg/audio"
	"github.com/lumastream/lumastream/pkg/device"
)

var _ device.Microphone = (*Microphone)(nil)

// MicrophoneConfig describes the ffmpeg audio input.
type MicrophoneConfig struct {
	// Path is the ffmpeg executable. Default "ffmpeg".
	Path string

	// Format is the ffmpeg input format (e.g. "pulse", "alsa", "avfoundation").
	// Empty lets ffmpeg guess from Input (useful for files in tests).
	Format string

	// Input is the ffmpeg input specifier (e.g. "default", "hw:0", a path).
	Input string

	// SampleRate is the device's native capture rate in Hz. Default 48000.
	SampleRate int

	// Channels is the device's native channel count (1 or 2). Default 1.
	Channels int
}

// Microphone captures audio by running ffmpeg and reading interleaved s16le
// PCM from its stdout, converting it to fixed-size mono float32 frames.
type Microphone struct {
	cfg    MicrophoneConfig
	frames chan []float32

	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewMicrophone starts the ffmpeg capture process and begins delivering
// frames.
func NewMicrophone(cfg MicrophoneConfig) (*Microphone, error) {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Channels != 2 {
		cfg.Channels = 1
	}
	if cfg.Input == "" {
		return nil, fmt.Errorf("ffmpeg: microphone input is required")
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
	}
	args = append(args,
		"-i", cfg.Input,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-ac", fmt.Sprintf("%d", cfg.Channels),
		"-",
	)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cfg.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg: start capture: %w", err)
	}

	m := &Microphone{
		cfg:    cfg,
		frames: make(chan []float32, 16),
		cmd:    cmd,
		stdout: stdout,
		cancel: cancel,
	}
	go m.readLoop()
	return m, nil
}

// readLoop reads interleaved PCM from ffmpeg, downmixes stereo input, and
// emits fixed-size mono float32 frames. It closes the frame channel on exit.
func (m *Microphone) readLoop() {
	defer close(m.frames)
	defer func() { _ = m.cmd.Wait() }()

	chunk := make([]byte, device.FrameSize*2*m.cfg.Channels)
	for {
		if _, err := io.ReadFull(m.stdout, chunk); err != nil {
			return
		}
		pcm := chunk
		if m.cfg.Channels == 2 {
			pcm = audio.StereoToMono(chunk)
		}
		chans, err := audio.PCM16ToFloat(pcm, 1)
		if err != nil {
			continue
		}
		select {
		case m.frames <- chans[0]:
		default:
			// Consumer is behind; dropping beats blocking a live capture.
			slog.Debug("ffmpeg microphone: dropping frame, consumer behind")
		}
	}
}

// Frames implements [device.Microphone].
func (m *Microphone) Frames() <-chan []float32 { return m.frames }

// SampleRate implements [device.Microphone].
func (m *Microphone) SampleRate() int { return m.cfg.SampleRate }

// Close implements [device.Microphone]. Kills the capture process; the read
// loop then closes the frame channel.
func (m *Microphone) Close() error {
	m.closeOnce.Do(m.cancel)
	return nil
}
