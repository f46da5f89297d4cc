package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"

	"github.com/lumastream/lumastream/pkg/device"
)

var _ device.Camera = (*Camera)(nil)

// CameraConfig describes the ffmpeg video input.
type CameraConfig struct {
	// Path is the ffmpeg executable. Default "ffmpeg".
	Path string

	// Format is the ffmpeg input format (e.g. "v4l2", "avfoundation").
	Format string

	// Input is the ffmpeg input specifier (e.g. "/dev/video0").
	Input string

	// FPS is how often ffmpeg refreshes the held frame. Default 2.
	FPS int
}

// Camera keeps the most recent frame of an ffmpeg MJPEG stream. Grab decodes
// and returns that frame; it fails until the first frame has arrived, which
// the sampler treats as a skipped tick.
type Camera struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc

	mu     sync.Mutex
	latest []byte
	closed bool
}

// NewCamera starts the ffmpeg video process.
func NewCamera(cfg CameraConfig) (*Camera, error) {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 2
	}
	if cfg.Input == "" {
		return nil, fmt.Errorf("ffmpeg: camera input is required")
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	if cfg.Format != "" {
		args = append(args, "-f", cfg.Format)
	}
	args = append(args,
		"-i", cfg.Input,
		"-vf", fmt.Sprintf("fps=%d", cfg.FPS),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
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
		return nil, fmt.Errorf("ffmpeg: start camera: %w", err)
	}

	c := &Camera{cmd: cmd, cancel: cancel}
	go c.readLoop(stdout)
	return c, nil
}

// readLoop splits the concatenated MJPEG stream on JPEG end-of-image markers
// and keeps the latest complete image.
func (c *Camera) readLoop(r io.Reader) {
	defer func() { _ = c.cmd.Wait() }()

	br := bufio.NewReaderSize(r, 1<<16)
	var buf bytes.Buffer
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		buf.WriteByte(b)
		// JPEG EOI is 0xFF 0xD9.
		if b == 0xD9 && buf.Len() >= 2 && buf.Bytes()[buf.Len()-2] == 0xFF {
			frame := make([]byte, buf.Len())
			copy(frame, buf.Bytes())
			buf.Reset()
			c.mu.Lock()
			c.latest = frame
			c.mu.Unlock()
		}
	}
}

// Grab implements [device.Camera].
func (c *Camera) Grab() (image.Image, error) {
	c.mu.Lock()
	frame := c.latest
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("ffmpeg: camera closed")
	}
	if frame == nil {
		return nil, fmt.Errorf("ffmpeg: no frame captured yet")
	}
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: decode frame: %w", err)
	}
	return img, nil
}

// Close implements [device.Camera].
func (c *Camera) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}
