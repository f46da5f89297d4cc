// Package playback schedules inbound audio chunks for gapless output.
//
// The agent's speech arrives as discrete base64-encoded PCM chunks with
// arbitrary spacing: bursts, jitter, or long silences. The [Scheduler] owns
// an output clock and a next-available-start cursor; each chunk is scheduled
// to begin exactly when the previous one ends (or immediately when nothing
// is pending), so back-to-back chunks play with no gap and no overlap as
// long as they arrive in playback order. A barge-in interrupt cancels every
// in-flight unit atomically and resets the cursor so the agent's next
// utterance starts from "now".
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumastream/lumastream/pkg/audio"
)

// Sink receives raw little-endian 16-bit mono PCM for playout. Write is
// called once per scheduled unit, at that unit's start time.
type Sink interface {
	Write(pcm []byte) error
}

// Flusher is an optional Sink extension that discards audio the sink has
// accepted but not yet played. Interrupt calls it when available so barge-in
// cuts audible output, not just pending units.
type Flusher interface {
	Flush() error
}

// CancelFunc cancels a scheduled callback. It reports whether the callback
// was cancelled before running.
type CancelFunc func() bool

// ScheduleFunc runs fn after delay. The default uses [time.AfterFunc]; tests
// substitute a deterministic implementation.
type ScheduleFunc func(delay time.Duration, fn func()) CancelFunc

func stdSchedule(delay time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(delay, fn)
	return t.Stop
}

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithClock replaces the output clock. The clock must be monotonic and
// report elapsed time since an arbitrary epoch.
func WithClock(now func() time.Duration) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithScheduleFunc replaces the timer implementation.
func WithScheduleFunc(f ScheduleFunc) Option {
	return func(s *Scheduler) {
		s.schedule = f
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

// unit is one scheduled chunk from enqueue until its end-of-playout callback.
type unit struct {
	cancel CancelFunc
}

// Scheduler turns discrete audio chunks into continuous playback.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	sink       Sink
	sampleRate int
	log        *slog.Logger

	now      func() time.Duration
	schedule ScheduleFunc

	mu        sync.Mutex
	nextStart time.Duration
	active    map[uint64]*unit
	nextID    uint64
	closed    bool
}

// New creates a Scheduler that plays mono PCM at sampleRate through sink.
func New(sink Sink, sampleRate int, opts ...Option) *Scheduler {
	epoch := time.Now()
	s := &Scheduler{
		sink:       sink,
		sampleRate: sampleRate,
		log:        slog.Default(),
		now:        func() time.Duration { return time.Since(epoch) },
		schedule:   stdSchedule,
		active:     make(map[uint64]*unit),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue decodes one base64-encoded PCM chunk and schedules it to start
// when the previous chunk ends, or immediately if nothing is pending. It
// returns the unit's computed start time on the output clock.
//
// A decode failure drops the chunk without touching the schedule cursor, so
// one malformed chunk never stalls playback of the rest.
func (s *Scheduler) Enqueue(data string) (time.Duration, error) {
	pcm, err := audio.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("playback: decode chunk: %w", err)
	}
	if len(pcm)%2 != 0 {
		return 0, &audio.MalformedAudioError{Bytes: len(pcm), Channels: 1}
	}
	dur := audio.Duration(len(pcm), s.sampleRate, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("playback: scheduler closed")
	}

	start := s.nextStart
	if now := s.now(); now > start {
		start = now
	}
	s.nextStart = start + dur

	id := s.nextID
	s.nextID++
	u := &unit{}
	s.active[id] = u

	delay := start - s.now()
	if delay < 0 {
		delay = 0
	}
	u.cancel = s.schedule(delay, func() {
		if err := s.sink.Write(pcm); err != nil {
			s.log.Warn("playback: sink write failed", "error", err)
			s.release(id)
			return
		}
		// The sink buffers the PCM; the unit stays active until playout ends
		// so an interrupt can still account for it.
		s.mu.Lock()
		if uu, ok := s.active[id]; ok {
			uu.cancel = s.schedule(dur, func() { s.release(id) })
		}
		s.mu.Unlock()
	})
	return start, nil
}

// release removes a finished unit. Idempotent: an interrupt may already have
// cleared it.
func (s *Scheduler) release(id uint64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Interrupt halts every in-flight unit, flushes the sink when it supports
// flushing, and resets the schedule cursor so the next Enqueue starts at the
// current clock time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	n := len(s.active)
	for id, u := range s.active {
		if u.cancel != nil {
			u.cancel()
		}
		delete(s.active, id)
	}
	s.nextStart = 0
	s.mu.Unlock()

	if f, ok := s.sink.(Flusher); ok {
		if err := f.Flush(); err != nil {
			s.log.Warn("playback: sink flush failed", "error", err)
		}
	}
	if n > 0 {
		s.log.Debug("playback: interrupted", "cancelled_units", n)
	}
}

// Close interrupts all playback and rejects further Enqueue calls.
// Idempotent.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.Interrupt()
}

// Active returns the number of scheduled, not-yet-finished units.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the schedule cursor: the output-clock time at which the
// next enqueued chunk would start, were it to arrive before that time.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Clock returns the current output-clock reading.
func (s *Scheduler) Clock() time.Duration {
	return s.now()
}
