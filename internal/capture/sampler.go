package capture

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"golang.org/x/image/draw"

	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/pkg/audio"
	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

// Frame sampling parameters. Stills are deliberately small and low-rate:
// they give the agent visual context, not a video feed.
const (
	defaultSampleInterval = time.Second
	frameWidth            = 320
	frameHeight           = 240
	jpegQuality           = 70
)

// Sampler periodically grabs a camera still, downscales it, and emits it as
// a JPEG packet. A failed grab silently skips that tick.
type Sampler struct {
	cam      device.Camera
	send     SendFunc
	interval time.Duration
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewSampler creates a Sampler for cam. An interval <= 0 selects the default
// of one second.
func NewSampler(cam device.Camera, send SendFunc, interval time.Duration, log *slog.Logger, metrics *observe.Metrics) *Sampler {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Sampler{cam: cam, send: send, interval: interval, log: log, metrics: metrics}
}

// Run samples frames on a fixed cadence until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

// sampleOnce grabs, scales, and emits one frame. Any failure skips the tick.
func (s *Sampler) sampleOnce(ctx context.Context) {
	img, err := s.cam.Grab()
	if err != nil {
		s.log.DebugContext(ctx, "frame sampler: skipping tick", "error", err)
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality}); err != nil {
		s.log.DebugContext(ctx, "frame sampler: encode failed", "error", err)
		return
	}

	s.send(live.ImagePacket(audio.Encode(buf.Bytes())))
	s.metrics.RecordPacketSent(ctx, "image")
}
