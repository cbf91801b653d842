// Package session orchestrates one live voice trivia conversation: the
// microphone capture pipeline, the duplex transport, and the playback
// scheduler, glued by a single event loop.
//
// The loop is the concurrency model: hardware capture callbacks and
// asynchronous network delivery both funnel into it as typed events
// consumed strictly in arrival order. That ordering is what makes
// barge-in race-free — an interruption always clears the scheduled
// cohort before any chunk delivered after it is scheduled.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/trivialabs/go-trivialive/pkg/audio"
	"github.com/trivialabs/go-trivialive/pkg/live"
)

// State is the lifecycle state of an AudioSession.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosed
	StateErrored
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Transport is the duplex connection the session talks through.
// *live.Session satisfies it.
type Transport interface {
	SendAudio(pcm []byte) error
	Events() <-chan live.Event
	Close() error
}

// Capture is the microphone pipeline. *audio.Capture satisfies it.
type Capture interface {
	Mute() *audio.MuteGate
	Close() error
}

// Config configures a session.
type Config struct {
	APIKey      string
	Topic       string
	Difficulty  string
	Personality string
	Voice       string
	Model       string

	// Instruction overrides the generated host instruction. Leave empty
	// to build one from Topic, Difficulty, and Personality.
	Instruction string

	// Tap receives input and output time-domain samples for
	// visualization. Optional.
	Tap *audio.Tap

	InputSampleRate  int // default 16000
	OutputSampleRate int // default 24000

	// DialFunc overrides transport creation (tests).
	DialFunc func(ctx context.Context) (Transport, error)

	// CaptureFunc overrides microphone acquisition (tests).
	CaptureFunc func(mute *audio.MuteGate, tap *audio.Tap, onFrame func([]byte)) (Capture, error)

	// Scheduler overrides the playback scheduler (tests). When nil, a
	// scheduler over the system clock and a real speaker is built.
	Scheduler *audio.PlaybackScheduler
}

func (c *Config) defaults() {
	if c.InputSampleRate <= 0 {
		c.InputSampleRate = 16000
	}
	if c.OutputSampleRate <= 0 {
		c.OutputSampleRate = 24000
	}
	if c.Difficulty == "" {
		c.Difficulty = "medium"
	}
}

// frameBuffer bounds capture frames in flight between the hardware
// callback and the event loop. The callback never blocks: when the loop
// falls behind, frames are dropped.
const frameBuffer = 64

// AudioSession is one live voice conversation. At most one should be
// active per conversation.
type AudioSession struct {
	ID  string
	cfg Config
	log *slog.Logger

	state atomic.Int32

	transport Transport
	capture   Capture
	sched     *audio.PlaybackScheduler
	mute      *audio.MuteGate

	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once

	errMu sync.Mutex
	err   error

	framesSent      atomic.Int64
	framesDropped   atomic.Int64
	chunksScheduled atomic.Int64
	chunksDropped   atomic.Int64
}

// Start connects the transport, acquires the microphone, and launches
// the event loop. Capture begins immediately after the transport opens.
// Acquisition and connect failures are fatal: the caller is notified and
// nothing retries.
func Start(ctx context.Context, cfg Config) (*AudioSession, error) {
	cfg.defaults()

	s := &AudioSession{
		ID:     uuid.NewString(),
		cfg:    cfg,
		log:    slog.Default().With("component", "session"),
		mute:   &audio.MuteGate{},
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))

	instruction := cfg.Instruction
	if instruction == "" {
		instruction = HostInstruction(cfg.Topic, cfg.Difficulty, cfg.Personality)
	}

	dial := cfg.DialFunc
	if dial == nil {
		dial = func(ctx context.Context) (Transport, error) {
			return live.Dial(ctx, live.Options{
				APIKey:          cfg.APIKey,
				Model:           cfg.Model,
				Voice:           cfg.Voice,
				Instruction:     instruction,
				InputSampleRate: cfg.InputSampleRate,
			})
		}
	}

	transport, err := dial(ctx)
	if err != nil {
		s.state.Store(int32(StateErrored))
		return nil, fmt.Errorf("session: connect: %w", err)
	}
	s.transport = transport

	sched := cfg.Scheduler
	if sched == nil {
		speaker, err := audio.NewSpeaker(cfg.OutputSampleRate, 1, cfg.Tap)
		if err != nil {
			transport.Close()
			s.state.Store(int32(StateErrored))
			return nil, fmt.Errorf("session: open speaker: %w", err)
		}
		sched = audio.NewPlaybackScheduler(audio.SystemClock, speaker)
	}
	s.sched = sched

	openCapture := cfg.CaptureFunc
	if openCapture == nil {
		openCapture = func(mute *audio.MuteGate, tap *audio.Tap, onFrame func([]byte)) (Capture, error) {
			return audio.NewCapture(audio.CaptureConfig{
				SampleRate: cfg.InputSampleRate,
				Channels:   1,
			}, mute, tap, onFrame)
		}
	}

	capture, err := openCapture(s.mute, cfg.Tap, s.enqueueFrame)
	if err != nil {
		transport.Close()
		sched.Close()
		s.state.Store(int32(StateErrored))
		return nil, fmt.Errorf("session: %w", err)
	}
	s.capture = capture

	s.state.Store(int32(StateActive))
	s.log.Info("session active", "id", s.ID, "topic", cfg.Topic, "difficulty", cfg.Difficulty)

	go s.loop()
	return s, nil
}

// enqueueFrame hands a capture frame to the event loop without ever
// blocking the audio callback. Frames the loop cannot keep up with are
// dropped.
func (s *AudioSession) enqueueFrame(pcm []byte) {
	select {
	case s.frames <- pcm:
	default:
		s.framesDropped.Add(1)
	}
}

// loop is the session's single event loop. Every mutation of playback
// state happens here, in event arrival order.
func (s *AudioSession) loop() {
	for {
		select {
		case <-s.done:
			return

		case pcm := <-s.frames:
			if err := s.transport.SendAudio(pcm); err != nil {
				// Transport not open: the frame is dropped. A documented
				// lossy-degradation choice — capture never queues against
				// the network.
				s.framesDropped.Add(1)
				continue
			}
			s.framesSent.Add(1)

		case ev, ok := <-s.transport.Events():
			if !ok {
				s.teardown(StateClosed)
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *AudioSession) handleEvent(ev live.Event) {
	switch ev.Kind {
	case live.EventAudioChunk:
		buf, err := audio.DecodePCM16(ev.Chunk.Data, ev.Chunk.SampleRate, ev.Chunk.Channels)
		if err != nil {
			// That chunk alone is dropped; the pipeline continues.
			s.chunksDropped.Add(1)
			s.log.Warn("malformed chunk dropped", "error", err)
			return
		}
		if _, err := s.sched.Schedule(buf); err != nil {
			s.chunksDropped.Add(1)
			return
		}
		s.chunksScheduled.Add(1)

	case live.EventInterrupted:
		s.interrupt()

	case live.EventTurnComplete:
		s.log.Debug("host turn complete")

	case live.EventError:
		s.fail(ev.Err)

	case live.EventClosed:
		s.teardown(StateClosed)
	}
}

// interrupt is the barge-in transition: a pure state change on playback
// state. It runs on the event loop, strictly before any chunk delivered
// after the interruption signal, so later chunks always schedule under
// the post-reset cursor.
func (s *AudioSession) interrupt() {
	s.sched.Interrupt()
	s.log.Info("barge-in: playback flushed")
}

// fail records the terminal error and tears down as Errored.
func (s *AudioSession) fail(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	s.log.Error("session failed", "error", err)
	s.teardown(StateErrored)
}

// teardown releases everything exactly once: capture stops, the
// transport closes, playback stops. All teardown paths converge here;
// repeated calls are safe no-ops.
func (s *AudioSession) teardown(final State) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(final))
		if s.capture != nil {
			_ = s.capture.Close()
		}
		_ = s.transport.Close()
		_ = s.sched.Close()
		close(s.done)
		s.log.Info("session torn down", "id", s.ID, "state", final.String())
	})
}

// Close ends the session. Idempotent: a second call is a safe no-op and
// the microphone handle is released exactly once.
func (s *AudioSession) Close() error {
	s.teardown(StateClosed)
	return nil
}

// Done is closed when the session has fully torn down.
func (s *AudioSession) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, if the session errored.
func (s *AudioSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *AudioSession) State() State {
	return State(s.state.Load())
}

// SetMuted flips the mute gate. Muting gates transmission only; capture
// and the visualization tap keep running.
func (s *AudioSession) SetMuted(muted bool) {
	s.mute.SetMuted(muted)
}

// Muted reports the mute gate.
func (s *AudioSession) Muted() bool {
	return s.mute.Muted()
}

// Stats is a point-in-time counters snapshot.
type Stats struct {
	FramesSent      int64
	FramesDropped   int64
	ChunksScheduled int64
	ChunksDropped   int64
	LiveBuffers     int
}

// Stats returns current session counters.
func (s *AudioSession) Stats() Stats {
	return Stats{
		FramesSent:      s.framesSent.Load(),
		FramesDropped:   s.framesDropped.Load(),
		ChunksScheduled: s.chunksScheduled.Load(),
		ChunksDropped:   s.chunksDropped.Load(),
		LiveBuffers:     s.sched.Live(),
	}
}
