// Package tts synthesizes the host's turn-based announcements: round
// intros, correct-answer reveals, score recaps. Providers implement a
// common interface so the caller never cares which backend spoke.
//
// Example usage:
//
//	provider, _ := tts.NewGemini(
//	    tts.WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	    tts.WithVoice("Zephyr"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Round two! Hands on buzzers.")
//	// result.Audio holds 24kHz mono PCM16 ready for the playback scheduler.
package tts

import (
	"context"
	"time"

	"github.com/trivialabs/go-trivialive/pkg/audio"
)

// Provider is a text-to-speech backend.
type Provider interface {
	// Synthesize converts text to a complete audio buffer. Announcements
	// are short; nothing here streams.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is one complete synthesis.
type AudioResult struct {
	// Audio is raw little-endian PCM16.
	Audio []byte

	// Format describes the PCM parameters.
	Format AudioFormat

	// Duration is the playback duration of Audio.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round-trip in milliseconds.
	LatencyMs int64
}

// Buffer adapts the result for the playback scheduler.
func (r *AudioResult) Buffer() audio.Buffer {
	return audio.Buffer{
		Data:       r.Audio,
		SampleRate: r.Format.SampleRate,
		Channels:   r.Format.Channels,
	}
}

// AudioFormat describes PCM parameters.
type AudioFormat struct {
	// SampleRate in Hz.
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth is 16 for PCM16.
	BitDepth int
}

// PCM24 is the format every current provider emits: 24kHz mono PCM16,
// the same rate the live transport streams at.
func PCM24() AudioFormat {
	return AudioFormat{SampleRate: 24000, Channels: 1, BitDepth: 16}
}
