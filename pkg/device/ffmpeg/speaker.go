package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// SpeakerConfig describes the ffplay playback process.
type SpeakerConfig struct {
	// Path is the ffplay executable. Default "ffplay".
	Path string

	// SampleRate is the rate of the PCM written to the speaker. Default 24000.
	SampleRate int
}

// Speaker plays s16le mono PCM by piping it to an ffplay process. Flush
// restarts the process, discarding any PCM still buffered inside ffplay,
// which is what an interrupt needs to actually cut audible output.
type Speaker struct {
	cfg SpeakerConfig

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	closed bool
}

// NewSpeaker starts the ffplay process.
func NewSpeaker(cfg SpeakerConfig) (*Speaker, error) {
	if cfg.Path == "" {
		cfg.Path = "ffplay"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	s := &Speaker{cfg: cfg}
	if err := s.start(); err != nil {
		return nil, err
	}
	return s, nil
}

// start launches a fresh ffplay process. Caller must hold s.mu or be the
// constructor.
func (s *Speaker) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.cfg.Path,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", s.cfg.SampleRate),
		"-ch_layout", "mono",
		"-nodisp", "-autoexit", "-i", "-",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffplay: stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("ffplay: start: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.cancel = cancel
	return nil
}

// stop kills the current process. Caller must hold s.mu.
func (s *Speaker) stop() {
	s.stdin.Close()
	s.cancel()
	_ = s.cmd.Wait()
}

// Write sends PCM bytes to the speaker.
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("ffplay: speaker closed")
	}
	if _, err := s.stdin.Write(pcm); err != nil {
		return fmt.Errorf("ffplay: write: %w", err)
	}
	return nil
}

// Flush discards buffered playback by restarting the ffplay process.
func (s *Speaker) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.stop()
	return s.start()
}

// Close terminates the playback process.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}
