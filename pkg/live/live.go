// Package live defines the transport boundary for a bidirectional streaming
// session with a remote conversational agent.
//
// The central abstraction is [Handle]: an open session that accepts outbound
// media packets and delivers inbound server events on a channel. The engine
// core consumes events strictly in arrival order; that is the only ordering
// guarantee the transport provides. Concrete transports (e.g. live/gemini)
// adapt a vendor wire protocol to this surface; the session lifecycle in
// internal/session depends only on the interfaces here.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"fmt"
)

// MIME descriptors for outbound media packets.
const (
	// MIMEAudioPCM16k tags raw little-endian 16-bit mono PCM at 16 kHz,
	// the fixed capture format.
	MIMEAudioPCM16k = "audio/pcm;rate=16000"

	// MIMEImageJPEG tags compressed still frames from the frame sampler.
	MIMEImageJPEG = "image/jpeg"
)

// Packet is one discrete unit of outbound media: an encoded audio chunk or a
// compressed still frame. Data is base64-encoded; MIMEType describes the
// payload. Packets are sent fire-and-forget; no acknowledgment is modeled.
type Packet struct {
	MIMEType string
	Data     string
}

// AudioPacket wraps base64-encoded 16 kHz mono PCM as an outbound packet.
func AudioPacket(data string) Packet {
	return Packet{MIMEType: MIMEAudioPCM16k, Data: data}
}

// ImagePacket wraps a base64-encoded JPEG frame as an outbound packet.
func ImagePacket(data string) Packet {
	return Packet{MIMEType: MIMEImageJPEG, Data: data}
}

// Config is the initial configuration for a new session.
type Config struct {
	// Voice selects the agent's prebuilt voice for synthesised speech.
	Voice string

	// SystemInstruction is the system-level prompt defining the agent's
	// behaviour for the whole session.
	SystemInstruction string

	// InputTranscription requests text transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests text transcripts of the agent's speech.
	OutputTranscription bool
}

// EventKind classifies inbound server events.
type EventKind int

const (
	// EventOpened signals that the session is established and ready for media.
	EventOpened EventKind = iota

	// EventAudio carries one base64-encoded chunk of the agent's spoken reply.
	EventAudio

	// EventInputTranscript carries a text fragment of the user's recognised speech.
	EventInputTranscript

	// EventOutputTranscript carries a text fragment of the agent's reply.
	EventOutputTranscript

	// EventTurnComplete signals that the agent finished its turn.
	EventTurnComplete

	// EventInterrupted signals barge-in: the user spoke over the agent and
	// any not-yet-played agent audio must be discarded.
	EventInterrupted

	// EventClosed signals that the transport closed; no further events follow.
	EventClosed

	// EventError carries a transport-level error. The session may or may not
	// remain usable; a fatal error is followed by EventClosed.
	EventError
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "OPENED"
	case EventAudio:
		return "AUDIO"
	case EventInputTranscript:
		return "INPUT_TRANSCRIPT"
	case EventOutputTranscript:
		return "OUTPUT_TRANSCRIPT"
	case EventTurnComplete:
		return "TURN_COMPLETE"
	case EventInterrupted:
		return "INTERRUPTED"
	case EventClosed:
		return "CLOSED"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound server event. Exactly the fields relevant to Kind are
// populated: Data for EventAudio, Text for transcript fragments, Err for
// EventError.
type Event struct {
	Kind EventKind

	// Data is the base64-encoded PCM payload of an EventAudio event.
	Data string

	// Text is the transcript fragment of an EventInputTranscript or
	// EventOutputTranscript event.
	Text string

	// Err is the error of an EventError event.
	Err error
}

// TransportError wraps a protocol- or connection-level failure surfaced by a
// transport implementation.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Handle represents an open streaming session.
//
// Events delivers inbound server events in arrival order and is closed by the
// transport after the final EventClosed. Consumers must drain it promptly to
// avoid stalling the transport's receive loop. Callers must call Close when
// the session is no longer needed.
type Handle interface {
	// Send delivers one outbound media packet, fire-and-forget. Returns an
	// error if the session is closed or the write fails.
	Send(p Packet) error

	// Events returns the inbound event channel. The same channel is returned
	// on every call.
	Events() <-chan Event

	// Close terminates the session and closes the event channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Transport is the abstraction over a remote agent backend.
type Transport interface {
	// Connect establishes a new session with the given configuration. The
	// returned Handle emits EventOpened once the remote side confirms the
	// session; media sent before that may be rejected by the backend.
	Connect(ctx context.Context, cfg Config) (Handle, error)
}
