// Package transcript assembles streamed text fragments into turn-bounded
// conversation messages.
//
// The remote agent streams transcription incrementally: a message arrives as
// many small fragments for a role, and the only turn boundary is an explicit
// turn-complete signal. The [Aggregator] merges fragments into the trailing
// message for their role until the turn completes or the other role starts
// emitting, at which point further fragments begin a new message. The
// observable result is an ordered list of [Message] values suitable for
// direct display.
package transcript

import "sync"

// Role identifies the speaker of a transcript message.
type Role string

const (
	// RoleUser is the local human speaker (input transcription).
	RoleUser Role = "user"

	// RoleAgent is the remote conversational agent (output transcription).
	RoleAgent Role = "agent"
)

// Message is one turn-bounded transcript entry.
type Message struct {
	Role Role
	Text string
}

// Aggregator merges streamed transcript fragments into messages.
//
// For each role it tracks the index of the in-progress message, if any. A
// fragment extends the in-progress message only while it is still the last
// message in the list; otherwise it starts a new message. CompleteTurn seals
// both in-progress messages so the next fragment after a turn boundary
// always starts fresh, even when its role matches the trailing message.
//
// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu       sync.Mutex
	messages []Message

	// inProgress maps a role to the index of its open message, or -1.
	inProgress map[Role]int
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		inProgress: map[Role]int{RoleUser: -1, RoleAgent: -1},
	}
}

// AddFragment appends a streamed text fragment for role. It returns the
// number of messages currently in the transcript.
func (a *Aggregator) AddFragment(role Role, text string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.inProgress[role]
	if idx >= 0 && idx == len(a.messages)-1 {
		a.messages[idx].Text += text
		return len(a.messages)
	}

	// The other role emitted in between (or a turn ended): the old open
	// message is final now, start a new one.
	a.messages = append(a.messages, Message{Role: role, Text: text})
	a.inProgress[role] = len(a.messages) - 1
	return len(a.messages)
}

// CompleteTurn seals the in-progress messages of both roles. Already-emitted
// messages stay in the transcript; only the merge window closes.
func (a *Aggregator) CompleteTurn() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inProgress[RoleUser] = -1
	a.inProgress[RoleAgent] = -1
}

// Messages returns a snapshot copy of the transcript in arrival order.
func (a *Aggregator) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Reset clears the transcript and both merge windows.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = nil
	a.inProgress[RoleUser] = -1
	a.inProgress[RoleAgent] = -1
}
