package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumastream/lumastream/internal/config"
	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/internal/playback"
	"github.com/lumastream/lumastream/internal/session"
	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

// SinkFactory produces a fresh playback sink for one session. Each session
// owns its sink; the manager closes it on session end when the sink
// implements io.Closer semantics via a Close method.
type SinkFactory func() (playback.Sink, error)

// SessionInfo holds metadata about the active session.
type SessionInfo struct {
	// SessionID uniquely identifies this session.
	SessionID uuid.UUID

	// StartedAt is when the session was started.
	StartedAt time.Time
}

// Status is the manager's observable state for the HTTP status endpoint.
type Status struct {
	Active       bool                 `json:"active"`
	SessionID    string               `json:"session_id,omitempty"`
	StartedAt    time.Time            `json:"started_at,omitzero"`
	State        string               `json:"state,omitempty"`
	Muted        bool                 `json:"muted"`
	CameraActive bool                 `json:"camera_active"`
	Transcript   []TranscriptMessage  `json:"transcript,omitempty"`
}

// TranscriptMessage is the JSON shape of one transcript entry.
type TranscriptMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// SessionManager owns the lifecycle of streaming sessions. Only one session
// can be active at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	transport live.Transport
	devices   device.Provider
	sinks     SinkFactory
	log       *slog.Logger
	metrics   *observe.Metrics

	mu   sync.Mutex
	cfg  *config.Config
	cur  *session.Session
	sink playback.Sink
	info SessionInfo
}

// NewSessionManager creates a manager using cfg for new sessions.
func NewSessionManager(transport live.Transport, devices device.Provider, sinks SinkFactory, cfg *config.Config, log *slog.Logger, metrics *observe.Metrics) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &SessionManager{
		transport: transport,
		devices:   devices,
		sinks:     sinks,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
	}
}

// SetConfig replaces the configuration used for sessions started after this
// call. The running session, if any, is not touched.
func (m *SessionManager) SetConfig(cfg *config.Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// StartSession starts a new session. Fails when one is already active.
func (m *SessionManager) StartSession(ctx context.Context) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil && m.cur.State() != session.StateClosed {
		return uuid.Nil, fmt.Errorf("app: a session is already active")
	}
	// A previously closed session may still hold its sink.
	m.releaseLocked()

	sink, err := m.sinks()
	if err != nil {
		return uuid.Nil, fmt.Errorf("app: create playback sink: %w", err)
	}

	cfg := m.cfg
	sess := session.New(m.transport, m.devices, sink, session.Config{
		Voice:             cfg.Session.Voice,
		SystemInstruction: cfg.Session.SystemInstruction,
		Video:             cfg.Session.Video,
		SampleInterval:    cfg.Session.SampleInterval,
		PlaybackRate:      cfg.Audio.Output.SampleRate,
		OutboundBuffer:    cfg.Session.OutboundBuffer,
	},
		session.WithLogger(m.log),
		session.WithMetrics(m.metrics),
	)
	if err := sess.Start(ctx); err != nil {
		closeSink(sink)
		return uuid.Nil, err
	}

	m.cur = sess
	m.sink = sink
	m.info = SessionInfo{SessionID: uuid.New(), StartedAt: time.Now()}
	m.log.InfoContext(ctx, "session started", "session_id", m.info.SessionID)
	return m.info.SessionID, nil
}

// StopSession stops the active session. A no-op when none is running.
func (m *SessionManager) StopSession() {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur == nil {
		return
	}
	cur.Stop()

	m.mu.Lock()
	m.releaseLocked()
	m.mu.Unlock()
}

// releaseLocked closes the sink of a finished session. Caller holds m.mu.
func (m *SessionManager) releaseLocked() {
	if m.sink != nil {
		closeSink(m.sink)
		m.sink = nil
	}
}

// closeSink closes sinks that support closing.
func closeSink(s playback.Sink) {
	if c, ok := s.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}

// SetMuted toggles microphone capture on the active session.
func (m *SessionManager) SetMuted(muted bool) error {
	m.mu.Lock()
	cur := m.cur
	m.mu.Unlock()
	if cur == nil || cur.State() == session.StateClosed {
		return fmt.Errorf("app: no active session")
	}
	cur.SetMuted(muted)
	return nil
}

// Status returns the observable manager state.
func (m *SessionManager) Status() Status {
	m.mu.Lock()
	cur := m.cur
	info := m.info
	m.mu.Unlock()

	if cur == nil {
		return Status{}
	}
	snap := cur.Snapshot()
	st := Status{
		Active:       snap.State != session.StateClosed,
		SessionID:    info.SessionID.String(),
		StartedAt:    info.StartedAt,
		State:        snap.State.String(),
		Muted:        snap.Muted,
		CameraActive: snap.CameraActive,
	}
	for _, msg := range snap.Transcript {
		st.Transcript = append(st.Transcript, TranscriptMessage{
			Role: string(msg.Role),
			Text: msg.Text,
		})
	}
	return st
}

// Active reports whether a session is currently running.
func (m *SessionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil && m.cur.State() != session.StateClosed
}
