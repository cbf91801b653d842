package audio

import "sync"

// Tap is a passive, read-only view of the time-domain signal on the
// input and output paths. It sits parallel to the audio flow, never
// inline before transmission or playback, so it adds no latency and
// cannot alter scheduling or muting.
type Tap struct {
	in  *sampleRing
	out *sampleRing
}

// NewTap creates a tap holding the most recent windowSamples samples per
// path.
func NewTap(windowSamples int) *Tap {
	if windowSamples <= 0 {
		windowSamples = 1024
	}
	return &Tap{
		in:  newSampleRing(windowSamples),
		out: newSampleRing(windowSamples),
	}
}

// PushInput records capture-path samples. Called for every capture
// frame, muted or not.
func (t *Tap) PushInput(samples []int16) { t.in.write(samples) }

// PushOutput records playback-path samples as they leave the speaker.
func (t *Tap) PushOutput(samples []int16) { t.out.write(samples) }

// InputWindow returns a copy of the most recent input window, oldest
// sample first. Callers poll at whatever refresh cadence they want.
func (t *Tap) InputWindow() []int16 { return t.in.snapshot() }

// OutputWindow returns a copy of the most recent output window.
func (t *Tap) OutputWindow() []int16 { return t.out.snapshot() }

// sampleRing is a fixed-capacity overwrite-oldest ring of int16 samples.
// Writes never block; the audio callback must not wait on a reader.
type sampleRing struct {
	mu   sync.Mutex
	buf  []int16
	head int
	n    int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]int16, capacity)}
}

func (r *sampleRing) write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range samples {
		r.buf[r.head] = s
		r.head = (r.head + 1) % len(r.buf)
		if r.n < len(r.buf) {
			r.n++
		}
	}
}

func (r *sampleRing) snapshot() []int16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == 0 {
		return nil
	}
	out := make([]int16, r.n)
	start := (r.head - r.n + len(r.buf)) % len(r.buf)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
