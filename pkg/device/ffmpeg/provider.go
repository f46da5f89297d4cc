package ffmpeg

import (
	"context"
	"log/slog"

	"github.com/lumastream/lumastream/pkg/device"
)

var _ device.Provider = (*Provider)(nil)

// Provider acquires ffmpeg-backed capture devices.
type Provider struct {
	Microphone MicrophoneConfig
	Camera     CameraConfig
	Logger     *slog.Logger
}

// Acquire implements [device.Provider]. A microphone failure is fatal; a
// camera failure logs a warning and degrades the session to audio-only.
func (p *Provider) Acquire(ctx context.Context, wantVideo bool) (device.Microphone, device.Camera, error) {
	log := p.Logger
	if log == nil {
		log = slog.Default()
	}

	mic, err := NewMicrophone(p.Microphone)
	if err != nil {
		return nil, nil, &device.AcquisitionError{Err: err}
	}

	if !wantVideo {
		return mic, nil, nil
	}

	cam, err := NewCamera(p.Camera)
	if err != nil {
		log.WarnContext(ctx, "camera unavailable, continuing audio-only",
			"input", p.Camera.Input, "error", err)
		return mic, nil, nil
	}
	return mic, cam, nil
}
