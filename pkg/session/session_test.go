package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trivialabs/go-trivialive/pkg/audio"
	"github.com/trivialabs/go-trivialive/pkg/live"
)

// fakeClock is fixed at t0 unless advanced.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// recordingSink records scheduled starts and flushes.
type recordingSink struct {
	mu      sync.Mutex
	starts  []time.Time
	flushes int
}

func (s *recordingSink) Play(b *audio.ScheduledBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, b.Start)
}

func (s *recordingSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) Starts() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Time, len(s.starts))
	copy(out, s.starts)
	return out
}

// fakeTransport feeds a scripted event stream and records sent frames.
type fakeTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error
	closed  int
	events  chan live.Event
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan live.Event, 64)}
}

func (f *fakeTransport) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Events() <-chan live.Event { return f.events }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeCapture counts closes.
type fakeCapture struct {
	mute   *audio.MuteGate
	mu     sync.Mutex
	closed int
}

func (f *fakeCapture) Mute() *audio.MuteGate { return f.mute }

func (f *fakeCapture) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeCapture) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type harness struct {
	sess      *AudioSession
	transport *fakeTransport
	capture   *fakeCapture
	sink      *recordingSink
	clock     *fakeClock
	onFrame   func([]byte)
}

func startHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		transport: newFakeTransport(),
		capture:   &fakeCapture{},
		sink:      &recordingSink{},
		clock:     newFakeClock(),
	}

	cfg := Config{
		Topic:     "space exploration",
		Scheduler: audio.NewPlaybackScheduler(h.clock, h.sink),
		DialFunc: func(context.Context) (Transport, error) {
			return h.transport, nil
		},
		CaptureFunc: func(mute *audio.MuteGate, _ *audio.Tap, onFrame func([]byte)) (Capture, error) {
			h.capture.mute = mute
			h.onFrame = onFrame
			return h.capture, nil
		},
	}

	sess, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	h.sess = sess
	return h
}

// chunkEvent builds a chunk of the given duration at 24kHz mono.
func chunkEvent(d time.Duration) live.Event {
	samples := int(24000 * d.Seconds())
	return live.Event{Kind: live.EventAudioChunk, Chunk: &live.AudioChunk{
		Data:       make([]byte, samples*2),
		SampleRate: 24000,
		Channels:   1,
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionSchedulesChunksInArrivalOrder(t *testing.T) {
	h := startHarness(t)
	t0 := h.clock.Now()

	h.transport.events <- chunkEvent(500 * time.Millisecond)
	h.transport.events <- chunkEvent(500 * time.Millisecond)

	waitFor(t, "two scheduled chunks", func() bool {
		return h.sess.Stats().ChunksScheduled == 2
	})

	starts := h.sink.Starts()
	if !starts[0].Equal(t0) || !starts[1].Equal(t0.Add(500*time.Millisecond)) {
		t.Errorf("starts = %v, want [t0 t0+0.5s]", starts)
	}
	if h.sess.State() != StateActive {
		t.Errorf("state = %v, want active", h.sess.State())
	}
}

func TestInterruptionResetsTimelineBeforeLaterChunks(t *testing.T) {
	h := startHarness(t)
	t0 := h.clock.Now()

	// Two chunks push the cursor to t0+1s, then barge-in, then a chunk
	// that was already in flight behind the interruption signal.
	h.transport.events <- chunkEvent(500 * time.Millisecond)
	h.transport.events <- chunkEvent(500 * time.Millisecond)
	h.transport.events <- live.Event{Kind: live.EventInterrupted}
	h.transport.events <- chunkEvent(500 * time.Millisecond)

	waitFor(t, "three scheduled chunks", func() bool {
		return h.sess.Stats().ChunksScheduled == 3
	})

	starts := h.sink.Starts()
	// The post-interrupt chunk starts at "now", not at t0+1s.
	if !starts[2].Equal(t0) {
		t.Errorf("post-interrupt start = %v, want now (%v)", starts[2], t0)
	}
	if h.sink.flushes < 1 {
		t.Error("interruption did not flush the sink")
	}
	if h.sess.Stats().LiveBuffers != 1 {
		t.Errorf("live buffers = %d, want 1", h.sess.Stats().LiveBuffers)
	}
}

func TestMalformedChunkIsDroppedPipelineContinues(t *testing.T) {
	h := startHarness(t)

	h.transport.events <- live.Event{Kind: live.EventAudioChunk, Chunk: &live.AudioChunk{
		Data:       []byte{0x01}, // odd byte count
		SampleRate: 24000,
		Channels:   1,
	}}
	h.transport.events <- chunkEvent(100 * time.Millisecond)

	waitFor(t, "valid chunk scheduled", func() bool {
		return h.sess.Stats().ChunksScheduled == 1
	})
	if dropped := h.sess.Stats().ChunksDropped; dropped != 1 {
		t.Errorf("chunks dropped = %d, want 1", dropped)
	}
}

func TestCaptureFramesReachTransport(t *testing.T) {
	h := startHarness(t)

	h.onFrame([]byte{1, 2, 3, 4})
	waitFor(t, "frame sent", func() bool { return h.transport.sentCount() == 1 })

	// A send failure drops the frame without stopping the loop.
	h.transport.mu.Lock()
	h.transport.sendErr = live.ErrNotConnected
	h.transport.mu.Unlock()

	h.onFrame([]byte{5, 6})
	waitFor(t, "frame dropped", func() bool { return h.sess.Stats().FramesDropped == 1 })

	h.transport.mu.Lock()
	h.transport.sendErr = nil
	h.transport.mu.Unlock()

	h.onFrame([]byte{7, 8})
	waitFor(t, "loop still sending", func() bool { return h.transport.sentCount() == 2 })
}

func TestCloseIsIdempotentAndReleasesOnce(t *testing.T) {
	h := startHarness(t)

	if err := h.sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	<-h.sess.Done()
	if h.sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", h.sess.State())
	}
	if h.capture.closeCount() != 1 {
		t.Errorf("microphone released %d times, want exactly 1", h.capture.closeCount())
	}
}

func TestRemoteCloseTearsDown(t *testing.T) {
	h := startHarness(t)

	h.transport.events <- live.Event{Kind: live.EventClosed}
	close(h.transport.events)

	<-h.sess.Done()
	if h.sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", h.sess.State())
	}
}

func TestTransportErrorMarksSessionErrored(t *testing.T) {
	h := startHarness(t)

	cause := &live.TransportError{Op: "receive", Err: errors.New("connection reset")}
	h.transport.events <- live.Event{Kind: live.EventError, Err: cause}

	<-h.sess.Done()
	if h.sess.State() != StateErrored {
		t.Errorf("state = %v, want errored", h.sess.State())
	}
	if !errors.Is(h.sess.Err(), cause) {
		t.Errorf("Err() = %v, want the transport error", h.sess.Err())
	}
}

func TestMuteControlsGate(t *testing.T) {
	h := startHarness(t)

	if h.sess.Muted() {
		t.Error("session starts muted")
	}
	h.sess.SetMuted(true)
	if !h.capture.mute.Muted() {
		t.Error("mute did not reach the capture gate")
	}
	h.sess.SetMuted(false)
	if h.sess.Muted() {
		t.Error("unmute did not reach the capture gate")
	}
}

func TestDeviceAcquisitionFailureIsFatal(t *testing.T) {
	transport := newFakeTransport()
	cfg := Config{
		Scheduler: audio.NewPlaybackScheduler(newFakeClock(), &recordingSink{}),
		DialFunc: func(context.Context) (Transport, error) {
			return transport, nil
		},
		CaptureFunc: func(*audio.MuteGate, *audio.Tap, func([]byte)) (Capture, error) {
			return nil, audio.ErrDeviceAcquisition
		},
	}

	_, err := Start(context.Background(), cfg)
	if !errors.Is(err, audio.ErrDeviceAcquisition) {
		t.Fatalf("Start = %v, want ErrDeviceAcquisition", err)
	}
	// The transport opened before acquisition failed; it must be released.
	if transport.closed != 1 {
		t.Errorf("transport closed %d times, want 1", transport.closed)
	}
}
