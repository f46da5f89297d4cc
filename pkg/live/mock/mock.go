// Package mock provides in-memory mock implementations of [live.Transport]
// and [live.Handle] for use in unit tests.
//
// All mocks are safe for concurrent use. They record calls and arguments for
// assertions, and tests drive the inbound side by pushing events through
// [Handle.EmitEvent].
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumastream/lumastream/pkg/live"
)

// Handle is a mock implementation of [live.Handle].
type Handle struct {
	mu sync.Mutex

	events chan live.Event
	closed bool

	// SendError, when non-nil, is returned by every Send call.
	SendError error

	// SentPackets records every packet passed to Send.
	SentPackets []live.Packet

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewHandle creates a mock handle with an event buffer of the given depth.
func NewHandle(buf int) *Handle {
	return &Handle{events: make(chan live.Event, buf)}
}

// Send implements [live.Handle].
func (h *Handle) Send(p live.Packet) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("mock handle: closed")
	}
	if h.SendError != nil {
		return h.SendError
	}
	h.SentPackets = append(h.SentPackets, p)
	return nil
}

// Events implements [live.Handle].
func (h *Handle) Events() <-chan live.Event { return h.events }

// Close implements [live.Handle]. The first call emits an EventClosed and
// closes the event channel, mirroring real transport behaviour.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountClose++
	if !h.closed {
		h.closed = true
		select {
		case h.events <- live.Event{Kind: live.EventClosed}:
		default:
		}
		close(h.events)
	}
	return nil
}

// EmitEvent delivers one inbound event to the consumer. Returns false if the
// handle is closed or the buffer is full.
func (h *Handle) EmitEvent(ev live.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	select {
	case h.events <- ev:
		return true
	default:
		return false
	}
}

// Sent returns a snapshot copy of the packets sent so far.
func (h *Handle) Sent() []live.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]live.Packet, len(h.SentPackets))
	copy(out, h.SentPackets)
	return out
}

// Transport is a mock implementation of [live.Transport].
type Transport struct {
	mu sync.Mutex

	// Handle is returned by Connect. When nil and ConnectError is also nil,
	// Connect fails.
	Handle *Handle

	// ConnectError, when non-nil, is returned by Connect as-is.
	ConnectError error

	// ConnectCalls records the configs of all Connect invocations.
	ConnectCalls []live.Config
}

// Connect implements [live.Transport].
func (t *Transport) Connect(_ context.Context, cfg live.Config) (live.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConnectCalls = append(t.ConnectCalls, cfg)
	if t.ConnectError != nil {
		return nil, t.ConnectError
	}
	if t.Handle == nil {
		return nil, fmt.Errorf("mock transport: no handle configured")
	}
	return t.Handle, nil
}
