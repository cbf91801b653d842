package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Live API websocket endpoint.
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	// Default model for live audio conversation.
	defaultModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

	// defaultStartTurn kicks off the host: the remote model does not
	// speak first spontaneously.
	defaultStartTurn = "Start the game now. Greet the players, introduce the topic, and ask the first question."

	handshakeTimeout = 10 * time.Second

	// eventBuffer absorbs bursts of small audio chunks between event
	// loop iterations.
	eventBuffer = 128
)

// EventKind identifies an inbound session event.
type EventKind int

const (
	// EventAudioChunk carries decoded synthesized audio.
	EventAudioChunk EventKind = iota

	// EventInterrupted signals barge-in: the server detected user speech
	// during playback of a response whose audio must cease immediately.
	EventInterrupted

	// EventTurnComplete marks the end of a model response turn.
	EventTurnComplete

	// EventError carries a terminal transport error. EventClosed follows.
	EventError

	// EventClosed is the final event on the stream.
	EventClosed
)

// AudioChunk is an inbound audio payload with its declared format. The
// payload is raw int16 little-endian PCM; chunks are not separately
// sequenced — they arrive strictly in receipt order.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// Event is one entry in the ordered inbound stream.
type Event struct {
	Kind  EventKind
	Chunk *AudioChunk // set for EventAudioChunk
	Err   error       // set for EventError
}

// Options configures a live session.
type Options struct {
	APIKey string

	// Model overrides the default live model.
	Model string

	// Voice selects the prebuilt response voice.
	Voice string

	// Instruction is the one-time persona/system instruction encoding
	// the conversation topic, difficulty, and host personality.
	Instruction string

	// StartTurn overrides the synthetic start turn text.
	StartTurn string

	// InputSampleRate declares the rate of outbound PCM. Default 16000.
	InputSampleRate int

	// Endpoint overrides the websocket endpoint (tests).
	Endpoint string

	// Dialer overrides the websocket dialer (tests).
	Dialer *websocket.Dialer
}

// Session is one duplex connection to the live endpoint. Create with
// Dial; a Session is not reusable after Close.
type Session struct {
	opts Options
	log  *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex // guards writes; gorilla allows one concurrent writer

	events chan Event

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Dial establishes the connection, configures the session, and sends
// the synthetic start turn. On success the read loop is running and
// Events delivers inbound traffic in receipt order.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.StartTurn == "" {
		opts.StartTurn = defaultStartTurn
	}
	if opts.InputSampleRate <= 0 {
		opts.InputSampleRate = 16000
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	ws, resp, err := dialer.DialContext(ctx, endpoint+"?key="+opts.APIKey, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &TransportError{Op: "dial", Err: err}
	}

	s := &Session{
		opts:   opts,
		log:    slog.Default().With("component", "live.session"),
		ws:     ws,
		events: make(chan Event, eventBuffer),
	}

	if err := s.sendSetup(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.sendStartTurn(); err != nil {
		s.Close()
		return nil, err
	}

	go s.readLoop()

	s.log.Info("live session connected", "model", opts.Model, "voice", opts.Voice)
	return s, nil
}

// sendSetup configures the desired response voice, audio-only response
// modality, and the persona instruction.
func (s *Session) sendSetup() error {
	setup := setupMessage{
		Setup: setupPayload{
			Model: s.opts.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}
	if s.opts.Voice != "" {
		setup.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: s.opts.Voice},
			},
		}
	}
	if s.opts.Instruction != "" {
		setup.Setup.SystemInstruction = &content{
			Parts: []part{{Text: s.opts.Instruction}},
		}
	}
	return s.sendJSON(setup)
}

// sendStartTurn sends the synthetic user turn that makes the host speak
// first.
func (s *Session) sendStartTurn() error {
	msg := clientContentMessage{
		ClientContent: clientContent{
			Turns: []content{{
				Role:  "user",
				Parts: []part{{Text: s.opts.StartTurn}},
			}},
			TurnComplete: true,
		},
	}
	return s.sendJSON(msg)
}

// SendAudio transmits one capture frame of int16 little-endian PCM at
// the session's input rate. Best-effort asynchronous enqueue: there is
// no delivery guarantee beyond underlying transport ordering.
func (s *Session) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return ErrNotConnected
	}
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{
				MimeType: pcmMimeType(s.opts.InputSampleRate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
	return s.sendJSON(msg)
}

// Events returns the ordered inbound event stream. The channel closes
// after EventClosed is delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Close tears the connection down. Idempotent: resources are released
// exactly once and repeated calls are safe no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.ws.Close()
		s.log.Info("live session closed")
	})
	return s.closeErr
}

// sendJSON serializes one outbound message. gorilla permits a single
// concurrent writer, so all writes funnel through wsMu.
func (s *Session) sendJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if err := s.ws.WriteJSON(v); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// readLoop delivers inbound messages in receipt order until the
// connection ends, then emits EventClosed and closes the stream.
func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !s.closed.Load() {
				// Remote close or receive failure: surface, then release.
				s.events <- Event{Kind: EventError, Err: &TransportError{Op: "receive", Err: err}}
				s.Close()
			}
			s.events <- Event{Kind: EventClosed}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warn("unparsable server message dropped", "error", err)
			continue
		}
		s.handleMessage(&msg)
	}
}

func (s *Session) handleMessage(msg *serverMessage) {
	switch {
	case msg.SetupComplete != nil:
		s.log.Debug("live session ready")

	case msg.ServerContent != nil:
		sc := msg.ServerContent

		// The interruption signal is processed strictly before any
		// content delivered after it; emitting it first preserves that
		// ordering inside a combined message too.
		if sc.Interrupted {
			s.events <- Event{Kind: EventInterrupted}
		}

		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil {
					continue
				}
				rate, ok := parsePCMRate(p.InlineData.MimeType)
				if !ok {
					s.log.Warn("non-PCM inline data dropped", "mime_type", p.InlineData.MimeType)
					continue
				}
				payload, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil || len(payload) == 0 {
					s.log.Warn("undecodable audio chunk dropped", "error", err)
					continue
				}
				s.events <- Event{Kind: EventAudioChunk, Chunk: &AudioChunk{
					Data:       payload,
					SampleRate: rate,
					Channels:   1,
				}}
			}
		}

		if sc.TurnComplete {
			s.events <- Event{Kind: EventTurnComplete}
		}

	case msg.GoAway != nil:
		s.log.Warn("server going away")
	}
}
