package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Sink receives scheduled buffers for output. Implementations must begin
// output of each buffer at its assigned start time (the scheduler only
// ever assigns starts that are contiguous with, or at, "now"), call
// Complete on the buffer at natural end of play, and discard everything
// queued on Flush without calling Complete.
type Sink interface {
	// Play enqueues a scheduled buffer for output. Must not block.
	Play(b *ScheduledBuffer)

	// Flush hard-stops all queued output immediately. No fade.
	Flush()

	// Close releases the sink. Idempotent.
	Close() error
}

// ScheduledBuffer is a decoded sample buffer with its assigned start
// time. It lives in the scheduler's tracked set from scheduling until
// natural completion or a forced stop.
type ScheduledBuffer struct {
	ID     int64
	Buffer *Buffer
	Start  time.Time

	sched *PlaybackScheduler
}

// End returns the scheduled end time of the buffer.
func (b *ScheduledBuffer) End() time.Time {
	return b.Start.Add(b.Buffer.Duration())
}

// Complete marks the buffer naturally finished and removes it from the
// scheduler's tracked set. Safe to call after an interruption already
// cleared the set; the second removal is a no-op.
func (b *ScheduledBuffer) Complete() {
	if b.sched != nil {
		b.sched.complete(b.ID)
	}
}

// PlaybackScheduler owns the playback timeline: a single cursor marking
// the end of the most recently scheduled buffer, and the set of buffers
// currently in flight. Only the decode/schedule path and the interruption
// path mutate it.
type PlaybackScheduler struct {
	clock Clock
	sink  Sink
	log   *slog.Logger

	mu     sync.Mutex
	cursor time.Time // zero value = unset
	live   map[int64]*ScheduledBuffer
	nextID int64
	closed bool
}

// NewPlaybackScheduler creates a scheduler over the given clock and sink.
func NewPlaybackScheduler(clock Clock, sink Sink) *PlaybackScheduler {
	return &PlaybackScheduler{
		clock: clock,
		sink:  sink,
		log:   slog.Default().With("component", "audio.scheduler"),
		live:  make(map[int64]*ScheduledBuffer),
	}
}

// Schedule assigns the buffer a start time and hands it to the sink.
//
//	start = max(cursor, now)
//	cursor = start + duration
//
// Buffers never overlap and no artificial gap is inserted while chunks
// arrive faster than real time. If delivery stalled past the cursor, the
// buffer starts at "now" and the silence in between reflects true
// underrun.
func (s *PlaybackScheduler) Schedule(buf *Buffer) (*ScheduledBuffer, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}

	now := s.clock.Now()
	start := now
	if s.cursor.After(now) {
		start = s.cursor
	}

	s.nextID++
	sb := &ScheduledBuffer{
		ID:     s.nextID,
		Buffer: buf,
		Start:  start,
		sched:  s,
	}
	s.live[sb.ID] = sb
	s.cursor = start.Add(buf.Duration())
	s.mu.Unlock()

	// Sink call outside the lock: a synchronous sink may call Complete.
	s.sink.Play(sb)
	return sb, nil
}

// Interrupt models barge-in: every in-flight buffer stops immediately,
// the tracked set is cleared, and the cursor resets so the next
// scheduled buffer computes start = now.
func (s *PlaybackScheduler) Interrupt() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	n := len(s.live)
	s.live = make(map[int64]*ScheduledBuffer)
	s.cursor = time.Time{}
	s.mu.Unlock()

	s.sink.Flush()
	if n > 0 {
		s.log.Debug("interrupted playback", "stopped_buffers", n)
	}
}

// Close stops all playback and closes the sink. Idempotent; a second
// call is a safe no-op.
func (s *PlaybackScheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.live = make(map[int64]*ScheduledBuffer)
	s.cursor = time.Time{}
	s.mu.Unlock()

	s.sink.Flush()
	return s.sink.Close()
}

// Live returns the number of buffers currently tracked.
func (s *PlaybackScheduler) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Cursor returns the current cursor and whether it is set. After an
// interruption the cursor is unset until the next buffer is scheduled.
func (s *PlaybackScheduler) Cursor() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, !s.cursor.IsZero()
}

func (s *PlaybackScheduler) complete(id int64) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}
