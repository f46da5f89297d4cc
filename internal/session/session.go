// Package session coordinates one live streaming conversation.
//
// A [Session] ties the engine's components to a [live.Transport]: it
// acquires local capture devices, opens the transport, runs the capture
// pipeline and frame sampler once the transport confirms the session is
// open, and dispatches inbound events to the transcript aggregator and the
// playback scheduler. The lifecycle is connecting, then open, then closed;
// closed is terminal. The core never reconnects: a retry is a new Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumastream/lumastream/internal/capture"
	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/internal/playback"
	"github.com/lumastream/lumastream/internal/transcript"
	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

// State is the session lifecycle state.
type State int

const (
	// StateConnecting is the initial state: devices acquired, transport
	// dialled, waiting for the opened confirmation.
	StateConnecting State = iota

	// StateOpen means the transport confirmed the session and media is
	// flowing in both directions.
	StateOpen

	// StateClosed is terminal: entered on transport close, fatal error, or
	// Stop.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// defaultOutboundBuf is the depth of the outbound packet queue. When the
	// transport cannot keep up, packets beyond this depth are dropped rather
	// than blocking the capture cadence.
	defaultOutboundBuf = 64

	// defaultPlaybackRate is the sample rate of inbound agent audio in Hz.
	defaultPlaybackRate = 24000
)

// Config carries the per-session parameters.
type Config struct {
	// Voice selects the agent's synthesised voice.
	Voice string

	// SystemInstruction is the agent's system prompt for this session.
	SystemInstruction string

	// Video requests camera capture. Camera acquisition failure degrades the
	// session to audio-only instead of failing the start.
	Video bool

	// SampleInterval is the frame-sampler cadence. Zero selects one second.
	SampleInterval time.Duration

	// PlaybackRate is the inbound audio sample rate in Hz. Zero selects
	// 24000.
	PlaybackRate int

	// OutboundBuffer is the outbound queue depth. Zero selects 64.
	OutboundBuffer int
}

// Snapshot is a read-only view of the observable session state for a host
// UI.
type Snapshot struct {
	State        State
	Muted        bool
	CameraActive bool
	Transcript   []transcript.Message
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithSchedulerOptions forwards options to the playback scheduler, mainly so
// tests can substitute the clock and timers.
func WithSchedulerOptions(opts ...playback.Option) Option {
	return func(s *Session) {
		s.schedOpts = opts
	}
}

// Session is one live streaming conversation from device acquisition to
// teardown.
//
// Session is safe for concurrent use.
type Session struct {
	transport live.Transport
	devices   device.Provider
	sink      playback.Sink
	cfg       Config
	log       *slog.Logger
	metrics   *observe.Metrics
	schedOpts []playback.Option

	aggregator *transcript.Aggregator
	scheduler  *playback.Scheduler
	pipeline   *capture.Pipeline
	sampler    *capture.Sampler

	outbound chan live.Packet
	opened   chan struct{}
	done     chan struct{}

	mu           sync.Mutex
	state        State
	started      bool
	handle       live.Handle
	mic          device.Microphone
	cam          device.Camera
	openedAt     time.Time
	cancel       context.CancelFunc
	openOnce     sync.Once
	stopOnce     sync.Once
	teardownOnce sync.Once
}

// New creates a Session. Nothing is acquired or dialled until Start.
func New(transport live.Transport, devices device.Provider, sink playback.Sink, cfg Config, opts ...Option) *Session {
	if cfg.PlaybackRate <= 0 {
		cfg.PlaybackRate = defaultPlaybackRate
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = defaultOutboundBuf
	}
	s := &Session{
		transport:  transport,
		devices:    devices,
		sink:       sink,
		cfg:        cfg,
		log:        slog.Default(),
		aggregator: transcript.New(),
		outbound:   make(chan live.Packet, cfg.OutboundBuffer),
		opened:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Start acquires devices, dials the transport, and begins the session's
// event loops. Audio device failure aborts with a *device.AcquisitionError;
// camera failure silently degrades to audio-only. Start may be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	s.started = true
	s.mu.Unlock()

	mic, cam, err := s.devices.Acquire(ctx, s.cfg.Video)
	if err != nil {
		s.setState(StateClosed)
		close(s.done)
		return fmt.Errorf("session: acquire devices: %w", err)
	}

	handle, err := s.transport.Connect(ctx, live.Config{
		Voice:               s.cfg.Voice,
		SystemInstruction:   s.cfg.SystemInstruction,
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		mic.Close()
		if cam != nil {
			cam.Close()
		}
		s.setState(StateClosed)
		close(s.done)
		return fmt.Errorf("session: connect transport: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.scheduler = playback.New(s.sink, s.cfg.PlaybackRate, s.schedOpts...)
	s.pipeline = capture.NewPipeline(mic, s.send, s.log, s.metrics)
	if cam != nil {
		s.sampler = capture.NewSampler(cam, s.send, s.cfg.SampleInterval, s.log, s.metrics)
	}
	s.handle = handle
	s.mic = mic
	s.cam = cam
	s.cancel = cancel
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	s.log.InfoContext(ctx, "session starting",
		"voice", s.cfg.Voice, "video", cam != nil)

	go s.run(runCtx)
	return nil
}

// send enqueues one outbound packet without blocking. A full queue drops the
// packet: capture cadence outranks delivery of any single chunk.
func (s *Session) send(p live.Packet) {
	select {
	case s.outbound <- p:
	default:
		s.metrics.RecordPacketDropped(context.Background(), "queue_full")
	}
}

// run owns the session's background goroutines and the final teardown.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dispatch(ctx) })
	g.Go(func() error { return s.sendLoop(ctx) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-s.opened:
		}
		return s.pipeline.Run(ctx)
	})
	if s.sampler != nil {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-s.opened:
			}
			return s.sampler.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("session loop ended", "error", err)
	}
}

// dispatch routes inbound transport events until the event channel closes.
// Event order is arrival order; that is the only ordering this relies on.
func (s *Session) dispatch(ctx context.Context) error {
	defer s.cancelRun()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.handle.Events():
			if !ok {
				return nil
			}
			s.handleEvent(ctx, ev)
			if ev.Kind == live.EventClosed {
				return nil
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev live.Event) {
	switch ev.Kind {
	case live.EventOpened:
		s.openOnce.Do(func() {
			s.mu.Lock()
			s.openedAt = time.Now()
			s.mu.Unlock()
			s.setState(StateOpen)
			close(s.opened)
			s.log.InfoContext(ctx, "session open")
		})

	case live.EventAudio:
		s.metrics.ChunksScheduled.Add(ctx, 1)
		start, err := s.scheduler.Enqueue(ev.Data)
		if err != nil {
			// One bad chunk never stops the playback clock.
			s.metrics.ChunksRejected.Add(ctx, 1)
			s.log.WarnContext(ctx, "dropping undecodable audio chunk", "error", err)
			return
		}
		lead := start - s.scheduler.Clock()
		if lead < 0 {
			lead = 0
		}
		s.metrics.PlaybackLead.Record(ctx, lead.Seconds())

	case live.EventInputTranscript:
		s.aggregator.AddFragment(transcript.RoleUser, ev.Text)
		s.metrics.RecordFragment(ctx, string(transcript.RoleUser))

	case live.EventOutputTranscript:
		s.aggregator.AddFragment(transcript.RoleAgent, ev.Text)
		s.metrics.RecordFragment(ctx, string(transcript.RoleAgent))

	case live.EventTurnComplete:
		s.aggregator.CompleteTurn()
		s.metrics.TurnsCompleted.Add(ctx, 1)

	case live.EventInterrupted:
		s.scheduler.Interrupt()
		s.metrics.Interruptions.Add(ctx, 1)
		s.log.DebugContext(ctx, "barge-in: flushed pending playback")

	case live.EventError:
		s.metrics.TransportErrors.Add(ctx, 1)
		s.log.ErrorContext(ctx, "transport error", "error", ev.Err)

	case live.EventClosed:
		s.log.InfoContext(ctx, "transport closed")
	}
}

// sendLoop drains the outbound queue into the transport. Send failures drop
// the packet; a dead transport surfaces through the event stream, not here.
func (s *Session) sendLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-s.outbound:
			if err := s.handle.Send(p); err != nil {
				s.metrics.RecordPacketDropped(ctx, "send_failed")
				s.log.DebugContext(ctx, "outbound send failed", "error", err)
			}
		}
	}
}

// cancelRun stops all session goroutines.
func (s *Session) cancelRun() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// teardown releases every session resource exactly once and enters the
// terminal state.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		handle := s.handle
		mic := s.mic
		cam := s.cam
		openedAt := s.openedAt
		s.mu.Unlock()

		if handle != nil {
			_ = handle.Close()
		}
		if mic != nil {
			_ = mic.Close()
		}
		if cam != nil {
			_ = cam.Close()
		}
		if s.scheduler != nil {
			s.scheduler.Close()
		}
		s.setState(StateClosed)

		ctx := context.Background()
		s.metrics.ActiveSessions.Add(ctx, -1)
		if !openedAt.IsZero() {
			s.metrics.SessionDuration.Record(ctx, time.Since(openedAt).Seconds())
		}
		s.log.Info("session closed")
	})
}

// Stop terminates the session: closes the transport, stops capture and
// playback, and releases devices. Idempotent; safe to call after the
// transport already closed on its own. Stop blocks until teardown finished.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		handle := s.handle
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}
		if handle != nil {
			_ = handle.Close()
		}
		s.cancelRun()
	})
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// SetMuted toggles microphone capture. While muted, frames are dropped and
// no audio packets are sent.
func (s *Session) SetMuted(muted bool) {
	if s.pipeline != nil {
		s.pipeline.SetMuted(muted)
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	// closed is terminal.
	if s.state != StateClosed {
		s.state = st
	}
	s.mu.Unlock()
}

// Done returns a channel closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the observable session state for a host UI.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	st := s.state
	cam := s.cam != nil
	s.mu.Unlock()

	var muted bool
	if s.pipeline != nil {
		muted = s.pipeline.Muted()
	}
	return Snapshot{
		State:        st,
		Muted:        muted,
		CameraActive: cam,
		Transcript:   s.aggregator.Messages(),
	}
}
