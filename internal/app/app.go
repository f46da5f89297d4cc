// Package app wires the Lumastream subsystems into a running application.
//
// The [App] owns the full lifecycle: New builds the transport and device
// backend from the config registry and assembles the HTTP control surface,
// Run serves HTTP and starts the initial session, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithTransport, WithDevices, WithSinkFactory). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumastream/lumastream/internal/config"
	"github.com/lumastream/lumastream/internal/health"
	"github.com/lumastream/lumastream/internal/observe"
	"github.com/lumastream/lumastream/pkg/device"
	"github.com/lumastream/lumastream/pkg/live"
)

const httpShutdownTimeout = 5 * time.Second

// Option configures an [App].
type Option func(*App)

// WithTransport overrides the transport built from the registry.
func WithTransport(t live.Transport) Option {
	return func(a *App) {
		a.transport = t
	}
}

// WithDevices overrides the device provider built from the registry.
func WithDevices(d device.Provider) Option {
	return func(a *App) {
		a.devices = d
	}
}

// WithSinkFactory overrides the playback sink factory.
func WithSinkFactory(f SinkFactory) Option {
	return func(a *App) {
		a.sinks = f
	}
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	transport live.Transport
	devices   device.Provider
	sinks     SinkFactory

	manager *SessionManager
	server  *http.Server
}

// New assembles the application from cfg, creating any component not
// injected through an option via the registry.
func New(cfg *config.Config, reg *config.Registry, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	var err error
	if a.transport == nil {
		if a.transport, err = reg.CreateTransport(cfg); err != nil {
			return nil, fmt.Errorf("app: build transport: %w", err)
		}
	}
	if a.devices == nil {
		if a.devices, err = reg.CreateDevices(cfg); err != nil {
			return nil, fmt.Errorf("app: build device backend: %w", err)
		}
	}
	if a.sinks == nil {
		return nil, fmt.Errorf("app: no playback sink factory configured")
	}

	a.manager = NewSessionManager(a.transport, a.devices, a.sinks, cfg, log, a.metrics)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":9090"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(a.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Manager exposes the session manager, mainly for the config watcher and
// tests.
func (a *App) Manager() *SessionManager {
	return a.manager
}

// UpdateConfig applies a reloaded configuration. Only the parts that affect
// future sessions are taken; the running session is never reconfigured.
func (a *App) UpdateConfig(cfg *config.Config) {
	a.manager.SetConfig(cfg)
}

// routes assembles the HTTP control surface: health probes, Prometheus
// metrics, a JSON status snapshot, and session controls.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	h := health.New(health.Checker{
		Name: "session",
		Check: func(context.Context) error {
			if !a.manager.Active() {
				return fmt.Errorf("no active session")
			}
			return nil
		},
	})
	h.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, a.manager.Status())
	})

	mux.HandleFunc("POST /session/start", func(w http.ResponseWriter, r *http.Request) {
		id, err := a.manager.StartSession(r.Context())
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": id.String()})
	})

	mux.HandleFunc("POST /session/stop", func(w http.ResponseWriter, _ *http.Request) {
		a.manager.StopSession()
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
	})

	mux.HandleFunc("POST /session/mute", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Muted bool `json:"muted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
			return
		}
		if err := a.manager.SetMuted(body.Muted); err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"muted": body.Muted})
	})

	return mux
}

// Run serves the HTTP control surface and starts the initial session. It
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.log.InfoContext(ctx, "control surface listening", "addr", a.server.Addr)

	if _, err := a.manager.StartSession(ctx); err != nil {
		a.log.ErrorContext(ctx, "initial session failed", "error", err)
		// The control surface stays up so a session can be retried via
		// POST /session/start.
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	}
}

// Shutdown stops the session and the HTTP server.
func (a *App) Shutdown(ctx context.Context) error {
	a.manager.StopSession()

	shutdownCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("app: http shutdown: %w", err)
	}
	return nil
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
