package capture_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/lumastream/lumastream/internal/capture"
	"github.com/lumastream/lumastream/pkg/audio"
	"github.com/lumastream/lumastream/pkg/device/mock"
	"github.com/lumastream/lumastream/pkg/live"
)

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := range 480 {
		for x := range 640 {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	return img
}

func startSampler(t *testing.T, cam *mock.Camera) chan live.Packet {
	t.Helper()
	packets := make(chan live.Packet, 32)
	send := func(p live.Packet) { packets <- p }

	sampler := capture.NewSampler(cam, send, 10*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sampler.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return packets
}

func TestSampler_EmitsDownscaledJPEG(t *testing.T) {
	t.Parallel()

	cam := &mock.Camera{}
	cam.SetFrame(testFrame())
	packets := startSampler(t, cam)

	p := recvPacket(t, packets)
	if p.MIMEType != live.MIMEImageJPEG {
		t.Errorf("MIMEType = %q, want %q", p.MIMEType, live.MIMEImageJPEG)
	}

	raw, err := audio.Decode(p.Data)
	if err != nil {
		t.Fatalf("packet data is not valid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("packet data is not valid JPEG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("frame size = %dx%d, want 320x240", b.Dx(), b.Dy())
	}
}

func TestSampler_SkipsTicksWhileCameraNotReady(t *testing.T) {
	t.Parallel()

	cam := &mock.Camera{GrabError: context.DeadlineExceeded}
	packets := startSampler(t, cam)

	// Let several ticks pass with a failing camera.
	time.Sleep(50 * time.Millisecond)
	select {
	case p := <-packets:
		t.Fatalf("unexpected packet while camera failing: %v", p.MIMEType)
	default:
	}

	// Once the camera recovers, sampling resumes on the next tick.
	cam.SetFrame(testFrame())
	recvPacket(t, packets)
}
