package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// playing tracks how many timeline bytes remain before a scheduled
// buffer has fully left the speaker.
type playing struct {
	sb        *ScheduledBuffer
	remaining int
}

// Speaker is the hardware output sink. It feeds a single pull-based oto
// player from an internal timeline buffer: scheduled buffers are
// contiguous by construction, so appending their bytes in schedule order
// reproduces the scheduler's timeline exactly. When the timeline runs
// dry the player is fed silence, which is the natural underrun gap.
type Speaker struct {
	sampleRate int
	channels   int
	tap        *Tap

	otoCtx *oto.Context

	mu      sync.Mutex
	player  *oto.Player
	pending []byte
	queue   []*playing
	closed  bool
}

// NewSpeaker opens the output device at the given format. tap may be nil.
func NewSpeaker(sampleRate, channels int, tap *Tap) (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms device buffer: low latency without glitching.
		BufferSize: bufferSizeFor(sampleRate, channels),
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open speaker: %w", err)
	}
	<-ready

	return &Speaker{
		sampleRate: sampleRate,
		channels:   channels,
		tap:        tap,
		otoCtx:     otoCtx,
	}, nil
}

func bufferSizeFor(sampleRate, channels int) time.Duration {
	bytesPerSecond := sampleRate * channels * bytesPerSample
	bytes := bytesPerSecond / 10
	return time.Duration(bytes) * time.Second / time.Duration(bytesPerSecond)
}

// Play implements Sink. The buffer's bytes join the timeline; the player
// starts lazily on the first buffer.
func (s *Speaker) Play(b *ScheduledBuffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.pending = append(s.pending, b.Buffer.Data...)
	s.queue = append(s.queue, &playing{sb: b, remaining: len(b.Buffer.Data)})

	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
}

// Flush implements Sink: the timeline is discarded immediately, with no
// fade. Buffers still queued are dropped without completion.
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.pending = nil
	s.queue = nil
	s.mu.Unlock()
}

// Close implements Sink. Idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = nil
	s.queue = nil
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		return player.Close()
	}
	return nil
}

// Read implements io.Reader for the oto player. It never blocks: with no
// timeline bytes available it returns silence, so real time keeps
// flowing through the device during underrun.
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()

	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	// Attribute consumed bytes to queued buffers; a buffer completes when
	// its last byte leaves the timeline.
	var done []*ScheduledBuffer
	consumed := n
	for consumed > 0 && len(s.queue) > 0 {
		head := s.queue[0]
		if consumed < head.remaining {
			head.remaining -= consumed
			consumed = 0
			break
		}
		consumed -= head.remaining
		done = append(done, head.sb)
		s.queue = s.queue[1:]
	}

	for i := n; i < len(p); i++ {
		p[i] = 0
	}
	s.mu.Unlock()

	if s.tap != nil && n > 0 {
		s.tap.PushOutput(PCM16ToInt16(p[:n]))
	}
	for _, sb := range done {
		sb.Complete()
	}
	return len(p), nil
}

// Buffered returns the number of timeline bytes not yet consumed.
func (s *Speaker) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

var _ Sink = (*Speaker)(nil)
