package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lumastream/lumastream/pkg/live"
	"github.com/lumastream/lumastream/pkg/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGeminiServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startGeminiServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server-side setupComplete ack.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// waitEvent drains events from h until one of kind arrives or the timeout hits.
func waitEvent(t *testing.T, h live.Handle, kind live.EventKind) live.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event %v", kind)
		}
	}
}

// ── Connect / setup ───────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputTranscription  map[string]any `json:"inputAudioTranscription"`
			OutputTranscription map[string]any `json:"outputAudioTranscription"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithModel("custom-model"), gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{
		Voice:               "Aoede",
		SystemInstruction:   "You are a helpful assistant.",
		InputTranscription:  true,
		OutputTranscription: true,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-received:
		if want := "models/custom-model"; msg.Setup.Model != want {
			t.Errorf("model = %q; want %q", msg.Setup.Model, want)
		}
		if got := msg.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
			t.Errorf("responseModalities = %v; want [AUDIO]", got)
		}
		if msg.Setup.GenerationConfig.SpeechConfig == nil {
			t.Fatal("speechConfig is nil")
		}
		if got := msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Aoede" {
			t.Errorf("voice = %q; want Aoede", got)
		}
		if msg.Setup.SystemInstruction == nil || len(msg.Setup.SystemInstruction.Parts) == 0 ||
			msg.Setup.SystemInstruction.Parts[0].Text != "You are a helpful assistant." {
			t.Errorf("unexpected system instruction: %+v", msg.Setup.SystemInstruction)
		}
		if msg.Setup.InputTranscription == nil {
			t.Error("inputAudioTranscription should be present")
		}
		if msg.Setup.OutputTranscription == nil {
			t.Error("outputAudioTranscription should be present")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_TranscriptionFlagsOmittedWhenDisabled(t *testing.T) {
	t.Parallel()

	received := make(chan map[string]any, 1)

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		received <- raw
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case raw := <-received:
		setup, _ := raw["setup"].(map[string]any)
		if setup == nil {
			t.Fatal("no setup object")
		}
		if _, ok := setup["inputAudioTranscription"]; ok {
			t.Error("inputAudioTranscription should be omitted when disabled")
		}
		if _, ok := setup["outputAudioTranscription"]; ok {
			t.Error("outputAudioTranscription should be omitted when disabled")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestConnect_IncludesAPIKeyInURL(t *testing.T) {
	t.Parallel()

	urlQuery := make(chan string, 1)

	srv := startGeminiServer(t, func(conn *websocket.Conn, r *http.Request) {
		urlQuery <- r.URL.RawQuery
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("secret-key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case q := <-urlQuery:
		if !strings.Contains(q, "key=secret-key") {
			t.Errorf("URL query %q should contain key=secret-key", q)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()
	tr := gemini.New("key", gemini.WithBaseURL("ws://127.0.0.1:1"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tr.Connect(ctx, live.Config{}); err == nil {
		t.Fatal("expected dial error")
	}
}

// ── Events ────────────────────────────────────────────────────────────────────

func TestEvents_SetupCompleteEmitsOpened(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	waitEvent(t, handle, live.EventOpened)
}

func TestEvents_ServerContentMapping(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     "AAAA",
						}},
					},
				},
				"outputTranscription": map[string]any{"text": "hello"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "hi there"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"interrupted": true},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if ev := waitEvent(t, handle, live.EventAudio); ev.Data != "AAAA" {
		t.Errorf("audio data = %q; want AAAA", ev.Data)
	}
	if ev := waitEvent(t, handle, live.EventOutputTranscript); ev.Text != "hello" {
		t.Errorf("output transcript = %q; want hello", ev.Text)
	}
	if ev := waitEvent(t, handle, live.EventInputTranscript); ev.Text != "hi there" {
		t.Errorf("input transcript = %q; want %q", ev.Text, "hi there")
	}
	waitEvent(t, handle, live.EventTurnComplete)
	waitEvent(t, handle, live.EventInterrupted)
}

func TestEvents_MalformedFramesSkipped(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)

		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	// The malformed frame must be skipped, not kill the receive loop.
	waitEvent(t, handle, live.EventTurnComplete)
}

func TestEvents_ChannelClosesAfterServerClose(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		// Handler returns; the deferred close tears the connection down.
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-handle.Events():
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("events channel never closed")
		}
	}
}

// ── Send ──────────────────────────────────────────────────────────────────────

func TestSend_PacketPassThrough(t *testing.T) {
	t.Parallel()

	type realtimeMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	got := make(chan realtimeMsg, 1)

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)

		var msg realtimeMsg
		readJSON(t, conn, &msg)
		got <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.Send(live.AudioPacket("cGNtZGF0YQ==")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-got:
		if len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("expected 1 media chunk, got %d", len(msg.RealtimeInput.MediaChunks))
		}
		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MIMEType != live.MIMEAudioPCM16k {
			t.Errorf("mimeType = %q; want %q", chunk.MIMEType, live.MIMEAudioPCM16k)
		}
		if chunk.Data != "cGNtZGF0YQ==" {
			t.Errorf("data = %q; want passthrough of input", chunk.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for realtimeInput message")
	}
}

func TestSend_AfterCloseFails(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	tr := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := tr.Connect(context.Background(), live.Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close should be nil, got %v", err)
	}
	if err := handle.Send(live.AudioPacket("AAAA")); err == nil {
		t.Fatal("Send after Close should fail")
	}
}
