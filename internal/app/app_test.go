package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lumastream/lumastream/internal/config"
	"github.com/lumastream/lumastream/internal/playback"
	devmock "github.com/lumastream/lumastream/pkg/device/mock"
	"github.com/lumastream/lumastream/pkg/live"
	livemock "github.com/lumastream/lumastream/pkg/live/mock"
)

type nopSink struct{}

func (nopSink) Write([]byte) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Session: config.SessionConfig{Voice: "Puck"},
	}
}

// newTestApp assembles an App over mocks and returns it with its handle.
func newTestApp(t *testing.T) (*App, *livemock.Handle) {
	t.Helper()
	handle := livemock.NewHandle(64)
	a, err := New(testConfig(), config.NewRegistry(), nil,
		WithTransport(&livemock.Transport{Handle: handle}),
		WithDevices(&devmock.Provider{Mic: devmock.NewMicrophone(16000)}),
		WithSinkFactory(func() (playback.Sink, error) { return nopSink{}, nil }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.manager.StopSession)
	return a, handle
}

// openSession starts the managed session and drives it open.
func openSession(t *testing.T, a *App, handle *livemock.Handle) {
	t.Helper()
	if _, err := a.manager.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	handle.EmitEvent(live.Event{Kind: live.EventOpened})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.manager.Status().State == "open" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached open state")
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response %q is not JSON: %v", rec.Body.String(), err)
	}
	return rec, out
}

func TestApp_StatusEndpoint(t *testing.T) {
	a, handle := newTestApp(t)
	openSession(t, a, handle)

	handle.EmitEvent(live.Event{Kind: live.EventInputTranscript, Text: "hello"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(a.manager.Status().Transcript) == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	rec, out := doJSON(t, a.routes(), http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if out["state"] != "open" || out["active"] != true {
		t.Errorf("status = %v", out)
	}
	transcript, ok := out["transcript"].([]any)
	if !ok || len(transcript) != 1 {
		t.Fatalf("transcript = %v", out["transcript"])
	}
}

func TestApp_StartConflictsWithActiveSession(t *testing.T) {
	a, handle := newTestApp(t)
	openSession(t, a, handle)

	rec, out := doJSON(t, a.routes(), http.MethodPost, "/session/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status code = %d, want 409", rec.Code)
	}
	if msg, _ := out["error"].(string); msg == "" {
		t.Error("conflict response has no error message")
	}
}

func TestApp_MuteEndpoint(t *testing.T) {
	a, handle := newTestApp(t)
	openSession(t, a, handle)

	rec, _ := doJSON(t, a.routes(), http.MethodPost, "/session/mute", `{"muted":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !a.manager.Status().Muted {
		t.Error("session not muted after mute request")
	}

	rec, out := doJSON(t, a.routes(), http.MethodPost, "/session/mute", `{bad json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status code = %d, want 400, body %v", rec.Code, out)
	}
}

func TestApp_MuteWithoutSessionFails(t *testing.T) {
	a, _ := newTestApp(t)

	rec, _ := doJSON(t, a.routes(), http.MethodPost, "/session/mute", `{"muted":true}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status code = %d, want 409", rec.Code)
	}
}

func TestApp_StopEndpoint(t *testing.T) {
	a, handle := newTestApp(t)
	openSession(t, a, handle)

	rec, _ := doJSON(t, a.routes(), http.MethodPost, "/session/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if a.manager.Active() {
		t.Error("session still active after stop")
	}
}

func TestApp_ReadyzReflectsSession(t *testing.T) {
	a, handle := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz without session = %d, want 503", rec.Code)
	}

	openSession(t, a, handle)
	rec = httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz with open session = %d, want 200", rec.Code)
	}
}

func TestSessionManager_SetConfigAppliesToNextSession(t *testing.T) {
	a, handle := newTestApp(t)

	next := testConfig()
	next.Session.Voice = "Kore"
	a.UpdateConfig(next)

	openSession(t, a, handle)

	transport := a.transport.(*livemock.Transport)
	if len(transport.ConnectCalls) != 1 {
		t.Fatalf("Connect calls = %d", len(transport.ConnectCalls))
	}
	if got := transport.ConnectCalls[0].Voice; got != "Kore" {
		t.Errorf("voice = %q, want updated %q", got, "Kore")
	}
}
