// Package capture turns local device media into outbound transport packets.
//
// The [Pipeline] consumes microphone frames and emits encoded audio packets;
// the [Sampler] periodically grabs camera stills and emits JPEG packets.
// Both hand packets to a [SendFunc] that must not block: real-time capture
// cadence is preserved regardless of transport latency, so the send side is
// fire-and-forget.
package capture

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/pkg/audio"
	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

// WireSampleRate is the fixed sample rate of outbound audio in Hz.
const WireSampleRate = 16000

// SendFunc dispatches one outbound packet. Implementations must return
// promptly; queueing and dropping under pressure is the sender's business.
type SendFunc func(live.Packet)

// Pipeline converts microphone frames to outbound audio packets.
//
// While muted, frames are dropped entirely. No silence is synthesised and no
// packet is emitted, so the remote side perceives a gap rather than
// continuous quiet audio.
type Pipeline struct {
	mic     device.Microphone
	send    SendFunc
	log     *slog.Logger
	metrics *observe.Metrics

	muted atomic.Bool
}

// NewPipeline creates a Pipeline reading from mic and dispatching through
// send. A nil logger falls back to [slog.Default]; nil metrics fall back to
// [observe.DefaultMetrics].
func NewPipeline(mic device.Microphone, send SendFunc, log *slog.Logger, metrics *observe.Metrics) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{mic: mic, send: send, log: log, metrics: metrics}
}

// SetMuted toggles the mute flag. Takes effect on the next frame boundary.
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted reports the current mute flag.
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// Run consumes microphone frames until ctx is cancelled or the microphone
// closes its frame channel. Each unmuted frame is resampled to the wire
// rate, PCM-encoded, base64-encoded, and dispatched.
func (p *Pipeline) Run(ctx context.Context) error {
	srcRate := p.mic.SampleRate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-p.mic.Frames():
			if !ok {
				return nil
			}
			if p.muted.Load() {
				p.metrics.RecordPacketDropped(ctx, "muted")
				continue
			}
			pcm := audio.FloatToPCM16(frame)
			if srcRate != WireSampleRate {
				pcm = audio.ResampleMono16(pcm, srcRate, WireSampleRate)
			}
			p.send(live.AudioPacket(audio.Encode(pcm)))
			p.metrics.RecordPacketSent(ctx, "audio")
		}
	}
}
