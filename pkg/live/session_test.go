package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// fakeLiveServer runs a handler against an in-process websocket server
// and returns a dialed session.
func fakeLiveServer(t *testing.T, handler func(ws *websocket.Conn)) *Session {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		handler(ws)
	}))
	t.Cleanup(srv.Close)

	sess, err := Dial(context.Background(), Options{
		APIKey:      "test-key",
		Voice:       "Zephyr",
		Instruction: "You are the quiz host.",
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func readJSON(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := ws.ReadJSON(&msg); err != nil {
		t.Errorf("read client message: %v", err)
		return nil
	}
	return msg
}

func audioMessage(t *testing.T, pcm []byte, mimeType string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{{
					"inlineData": map[string]any{
						"mimeType": mimeType,
						"data":     base64.StdEncoding.EncodeToString(pcm),
					},
				}},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func nextEvent(t *testing.T, sess *Session) Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("event stream closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestDialSendsSetupThenStartTurn(t *testing.T) {
	setupSeen := make(chan map[string]any, 1)
	startSeen := make(chan map[string]any, 1)

	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		setupSeen <- readJSON(t, ws)
		startSeen <- readJSON(t, ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer sess.Close()

	setup := <-setupSeen
	payload, ok := setup["setup"].(map[string]any)
	if !ok {
		t.Fatalf("first message is not setup: %v", setup)
	}
	gc := payload["generationConfig"].(map[string]any)
	mods := gc["responseModalities"].([]any)
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("response modalities = %v, want [AUDIO]", mods)
	}
	if _, ok := payload["systemInstruction"]; !ok {
		t.Error("setup missing persona instruction")
	}

	start := <-startSeen
	cc, ok := start["clientContent"].(map[string]any)
	if !ok {
		t.Fatalf("second message is not the start turn: %v", start)
	}
	if cc["turnComplete"] != true {
		t.Error("start turn not marked turnComplete")
	}
	turns := cc["turns"].([]any)
	if role := turns[0].(map[string]any)["role"]; role != "user" {
		t.Errorf("start turn role = %v, want user", role)
	}
}

func TestSendAudioWrapsPCMWithMimeAndBase64(t *testing.T) {
	frames := make(chan map[string]any, 1)

	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		readJSON(t, ws) // setup
		readJSON(t, ws) // start turn
		frames <- readJSON(t, ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer sess.Close()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := sess.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	msg := <-frames
	ri := msg["realtimeInput"].(map[string]any)
	chunks := ri["mediaChunks"].([]any)
	chunk := chunks[0].(map[string]any)
	if chunk["mimeType"] != "audio/pcm;rate=16000" {
		t.Errorf("mimeType = %v, want audio/pcm;rate=16000", chunk["mimeType"])
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk["data"].(string))
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("payload = %v, want %v", decoded, pcm)
	}
}

func TestEventsArriveInReceiptOrder(t *testing.T) {
	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		readJSON(t, ws)
		readJSON(t, ws)

		ws.WriteMessage(websocket.TextMessage, audioMessage(t, make([]byte, 480), "audio/pcm;rate=24000"))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"interrupted":true}}`))
		ws.WriteMessage(websocket.TextMessage, audioMessage(t, make([]byte, 960), "audio/pcm;rate=24000"))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"turnComplete":true}}`))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer sess.Close()

	ev := nextEvent(t, sess)
	if ev.Kind != EventAudioChunk {
		t.Fatalf("event 0 = %v, want audio chunk", ev.Kind)
	}
	if ev.Chunk.SampleRate != 24000 || ev.Chunk.Channels != 1 {
		t.Errorf("chunk format = %d/%d, want 24000/1", ev.Chunk.SampleRate, ev.Chunk.Channels)
	}
	if len(ev.Chunk.Data) != 480 {
		t.Errorf("chunk payload = %d bytes, want 480", len(ev.Chunk.Data))
	}

	if ev := nextEvent(t, sess); ev.Kind != EventInterrupted {
		t.Fatalf("event 1 = %v, want interrupted", ev.Kind)
	}
	ev = nextEvent(t, sess)
	if ev.Kind != EventAudioChunk || len(ev.Chunk.Data) != 960 {
		t.Fatalf("event 2 = %v, want the 960-byte chunk", ev.Kind)
	}
	if ev := nextEvent(t, sess); ev.Kind != EventTurnComplete {
		t.Fatalf("event 3 = %v, want turn complete", ev.Kind)
	}
}

func TestMalformedInboundMessagesAreDropped(t *testing.T) {
	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		readJSON(t, ws)
		readJSON(t, ws)

		// Garbage JSON, bad base64, and a non-PCM part: all dropped.
		ws.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"!!!"}}]}}}`))
		ws.WriteMessage(websocket.TextMessage, audioMessage(t, []byte("x"), "image/png"))

		// The pipeline continues with the next valid chunk.
		ws.WriteMessage(websocket.TextMessage, audioMessage(t, make([]byte, 480), "audio/pcm;rate=24000"))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer sess.Close()

	ev := nextEvent(t, sess)
	if ev.Kind != EventAudioChunk || len(ev.Chunk.Data) != 480 {
		t.Fatalf("got %v, want the valid chunk after malformed ones", ev.Kind)
	}
}

func TestRemoteCloseSurfacesErrorThenClosed(t *testing.T) {
	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		readJSON(t, ws)
		readJSON(t, ws)
		ws.Close()
	})

	sawError := false
	for ev := range sess.Events() {
		switch ev.Kind {
		case EventError:
			sawError = true
			var te *TransportError
			if !errors.As(ev.Err, &te) {
				t.Errorf("error event carries %T, want TransportError", ev.Err)
			}
		case EventClosed:
			if !sawError {
				t.Error("EventClosed before EventError on remote close")
			}
			return
		}
	}
	t.Fatal("event stream ended without EventClosed")
}

func TestCloseIsIdempotent(t *testing.T) {
	sess := fakeLiveServer(t, func(ws *websocket.Conn) {
		readJSON(t, ws)
		readJSON(t, ws)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	})

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := sess.SendAudio([]byte{0, 0}); err != ErrNotConnected {
		t.Errorf("SendAudio after close = %v, want ErrNotConnected", err)
	}

	// Local close ends the stream with EventClosed, no error event.
	for ev := range sess.Events() {
		if ev.Kind == EventError {
			t.Errorf("unexpected error event on local close: %v", ev.Err)
		}
	}
}

func TestParsePCMRate(t *testing.T) {
	tests := []struct {
		mime string
		rate int
		ok   bool
	}{
		{"audio/pcm;rate=24000", 24000, true},
		{"audio/pcm;rate=16000", 16000, true},
		{"audio/pcm", 24000, true},
		{"audio/pcm; rate=48000", 48000, true},
		{"audio/pcm;rate=abc", 0, false},
		{"audio/pcm;rate=0", 0, false},
		{"image/png", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			rate, ok := parsePCMRate(tt.mime)
			if ok != tt.ok || rate != tt.rate {
				t.Errorf("parsePCMRate(%q) = %d,%v want %d,%v", tt.mime, rate, ok, tt.rate, tt.ok)
			}
		})
	}
}
