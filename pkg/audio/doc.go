// Package audio implements the real-time audio core of go-trivialive.
//
// The package has two independent halves around the network transport:
//
//   - The capture side acquires the microphone, frames raw samples,
//     quantizes them to 16-bit PCM and hands frames to a caller-supplied
//     sink when the mute gate is open. Every frame also feeds the
//     visualization tap, muted or not.
//
//   - The playback side decodes inbound PCM chunks and schedules them on
//     a shared monotonic timeline for gapless output. The scheduling rule
//     per chunk, applied in arrival order, is:
//
//	start = max(cursor, now)
//	play(buffer, start)
//	cursor = start + duration
//
// Consecutive chunks therefore abut exactly while delivery keeps up, and
// a delivery stall produces a natural silence gap rather than a
// negative-lag schedule. A barge-in interruption hard-stops everything in
// flight and resets the cursor so the next chunk starts at "now".
//
// # Usage
//
//	speaker, _ := audio.NewSpeaker(24000, 1, tap)
//	sched := audio.NewPlaybackScheduler(audio.SystemClock, speaker)
//
//	buf, err := audio.DecodePCM16(payload, 24000, 1)
//	if err != nil {
//	    // malformed chunk: drop it, keep going
//	}
//	sched.Schedule(buf)
//
//	// barge-in
//	sched.Interrupt()
package audio
