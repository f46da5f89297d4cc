// Package mock provides in-memory mock implementations of the
// [device.Microphone], [device.Camera], and [device.Provider] interfaces for
// use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	mic := mock.NewMicrophone(16000)
//	prov := &mock.Provider{Mic: mic}
//	mic.EmitFrame(make([]float32, device.FrameSize))
package mock

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/lumastream/lumastream/pkg/device"
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [device.Microphone] whose frames are
// pushed by the test via [Microphone.EmitFrame].
type Microphone struct {
	mu sync.Mutex

	rate   int
	frames chan []float32
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewMicrophone creates a mock microphone reporting the given sample rate.
func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{
		rate:   sampleRate,
		frames: make(chan []float32, 16),
	}
}

// Frames implements [device.Microphone].
func (m *Microphone) Frames() <-chan []float32 { return m.frames }

// SampleRate implements [device.Microphone].
func (m *Microphone) SampleRate() int { return m.rate }

// Close implements [device.Microphone]. Closes the frame channel once.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountClose++
	if !m.closed {
		m.closed = true
		close(m.frames)
	}
	return nil
}

// EmitFrame delivers one capture frame to the consumer. Returns false if the
// microphone is closed or the consumer is not keeping up.
func (m *Microphone) EmitFrame(samples []float32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	select {
	case m.frames <- samples:
		return true
	default:
		return false
	}
}

// ─── Camera ───────────────────────────────────────────────────────────────────

// Camera is a mock implementation of [device.Camera].
// Set Frame (and optionally GrabError) before use.
type Camera struct {
	mu sync.Mutex

	// Frame is returned by Grab when GrabError is nil.
	Frame image.Image

	// GrabError, when non-nil, is returned by Grab.
	GrabError error

	// CallCountGrab records how many times Grab was called.
	CallCountGrab int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Grab implements [device.Camera].
func (c *Camera) Grab() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountGrab++
	if c.GrabError != nil {
		return nil, c.GrabError
	}
	if c.Frame == nil {
		return nil, fmt.Errorf("mock camera: no frame set")
	}
	return c.Frame, nil
}

// Close implements [device.Camera].
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	return nil
}

// SetFrame replaces the frame returned by subsequent Grab calls.
func (c *Camera) SetFrame(img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Frame = img
	c.GrabError = nil
}

// ─── Provider ─────────────────────────────────────────────────────────────────

// AcquireCall records the arguments of a single [Provider.Acquire] invocation.
type AcquireCall struct {
	// WantVideo is the wantVideo argument passed to Acquire.
	WantVideo bool
}

// Provider is a mock implementation of [device.Provider].
type Provider struct {
	mu sync.Mutex

	// Mic is the microphone returned by Acquire. When nil and AcquireError
	// is also nil, Acquire fails with a *device.AcquisitionError.
	Mic device.Microphone

	// Cam is the camera returned by Acquire when wantVideo is true.
	// A nil Cam simulates camera acquisition failure (degraded mode).
	Cam device.Camera

	// AcquireError, when non-nil, is returned by Acquire as-is.
	AcquireError error

	// AcquireCalls records all Acquire invocations.
	AcquireCalls []AcquireCall
}

// Acquire implements [device.Provider].
func (p *Provider) Acquire(_ context.Context, wantVideo bool) (device.Microphone, device.Camera, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AcquireCalls = append(p.AcquireCalls, AcquireCall{WantVideo: wantVideo})
	if p.AcquireError != nil {
		return nil, nil, p.AcquireError
	}
	if p.Mic == nil {
		return nil, nil, &device.AcquisitionError{Err: fmt.Errorf("no microphone configured")}
	}
	if !wantVideo {
		return p.Mic, nil, nil
	}
	return p.Mic, p.Cam, nil
}
