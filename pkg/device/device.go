// Package device defines the boundary to local media capture devices.
//
// The engine core consumes two narrow interfaces: a [Microphone] that
// delivers fixed-size frames of mono float32 samples, and an optional
// [Camera] that serves still frames on demand. A [Provider] acquires both,
// degrading to audio-only when no camera is available; the absence of video
// is a valid mode, never an error. Concrete adapters (device/ffmpeg for real
// hardware, device/mock for tests) implement these interfaces.
package device

import (
	"context"
	"fmt"
	"image"
)

// FrameSize is the fixed number of samples per microphone frame.
const FrameSize = 4096

// Microphone is a live mono audio input.
//
// Frames delivers [FrameSize]-sample float32 frames at the device's native
// sample rate until Close is called, after which the channel is closed.
type Microphone interface {
	// Frames returns the frame channel. The same channel is returned on
	// every call.
	Frames() <-chan []float32

	// SampleRate returns the native capture rate in Hz.
	SampleRate() int

	// Close stops capture and closes the frame channel. Idempotent.
	Close() error
}

// Camera is a live video input that serves the most recent frame on demand.
type Camera interface {
	// Grab returns the current camera frame. An error means no frame is
	// available right now (e.g. the device has not produced one yet); the
	// caller should skip and try again later.
	Grab() (image.Image, error)

	// Close releases the device. Idempotent.
	Close() error
}

// AcquisitionError reports that no usable audio input device is available.
// Camera failures never produce this error; video is best-effort.
type AcquisitionError struct {
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("device: acquire audio input: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Provider acquires local capture devices for a session.
type Provider interface {
	// Acquire opens the microphone and, when wantVideo is true, attempts to
	// open the camera as well. The returned Camera is nil when video was not
	// requested or could not be acquired; that is a degraded-but-valid mode.
	// Returns an *AcquisitionError only when audio itself is unavailable.
	Acquire(ctx context.Context, wantVideo bool) (Microphone, Camera, error)
}
