package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func geminiAudioResponse(pcm []byte, mime string) string {
	return fmt.Sprintf(`{
		"candidates": [{
			"content": {"parts": [{
				"inlineData": {"mimeType": %q, "data": %q}
			}]}
		}]
	}`, mime, base64.StdEncoding.EncodeToString(pcm))
}

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g, err := NewGemini(
		WithAPIKey("test-key"),
		WithBaseURL(srv.URL),
		WithRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return g
}

func TestGeminiSynthesizeDecodesPCM(t *testing.T) {
	pcm := make([]byte, 48000) // 1s at 24kHz PCM16
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, geminiAudioResponse(pcm, "audio/L16;codec=pcm;rate=24000"))
	})

	result, err := g.Synthesize(context.Background(), "Round one!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(result.Audio) != len(pcm) {
		t.Errorf("audio length = %d, want %d", len(result.Audio), len(pcm))
	}
	if result.Format.SampleRate != 24000 || result.Format.Channels != 1 {
		t.Errorf("format = %+v, want 24kHz mono", result.Format)
	}
	if result.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", result.Duration)
	}
	if result.CharCount != len("Round one!") {
		t.Errorf("char count = %d", result.CharCount)
	}
}

func TestGeminiRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	pcm := make([]byte, 480)
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"message": "slow down"}}`)
			return
		}
		fmt.Fprint(w, geminiAudioResponse(pcm, "audio/L16;codec=pcm;rate=24000"))
	})

	if _, err := g.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestGeminiDoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "bad key"}}`)
	})

	_, err := g.Synthesize(context.Background(), "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
		t.Fatalf("err = %v, want unauthorized APIError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestGeminiRejectsEmptyAudio(t *testing.T) {
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates": []}`)
	})

	_, err := g.Synthesize(context.Background(), "hi")
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestNewGeminiRequiresAPIKey(t *testing.T) {
	if _, err := NewGemini(); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestRateFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/L16; codec=pcm; rate=16000", 16000},
		{"audio/pcm", 24000},
		{"", 24000},
		{"audio/L16;rate=bogus", 24000},
	}
	for _, tt := range tests {
		if got := rateFromMime(tt.mime, 24000); got != tt.want {
			t.Errorf("rateFromMime(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestChainFallsBackToSecondProvider(t *testing.T) {
	failing := WithError(errors.New("synthetic outage"))
	working := NewMock()

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	result, err := chain.Synthesize(context.Background(), "Next question!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if result == nil || len(result.Audio) == 0 {
		t.Fatal("fallback produced no audio")
	}
	if working.CallCount("Synthesize") != 1 {
		t.Errorf("fallback called %d times, want 1", working.CallCount("Synthesize"))
	}
}

func TestChainAggregatesAllFailures(t *testing.T) {
	cause := errors.New("synthetic outage")
	chain, err := NewChain(WithError(cause), WithError(cause))
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	_, err = chain.Synthesize(context.Background(), "hi")
	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("err = %v, want *ChainError", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("aggregated %d errors, want 2", len(chainErr.Errors))
	}
	if !errors.Is(err, cause) {
		t.Error("ChainError does not unwrap to the underlying cause")
	}
}

func TestChainRequiresAProvider(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want ErrProviderUnavailable", err)
	}
}

func TestMockResultFeedsScheduler(t *testing.T) {
	m := NewMock()
	result, err := m.Synthesize(context.Background(), "Welcome to the show")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	buf := result.Buffer()
	if buf.SampleRate != 24000 || buf.Channels != 1 {
		t.Errorf("buffer = %dHz %dch, want 24kHz mono", buf.SampleRate, buf.Channels)
	}
	if buf.Duration() != result.Duration {
		t.Errorf("buffer duration %v != result duration %v", buf.Duration(), result.Duration)
	}
}

func TestSynthesisErrorWrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := WrapError("gemini", cause)

	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("err = %T, want *SynthesisError", err)
	}
	if synthErr.Provider != "gemini" {
		t.Errorf("provider = %q", synthErr.Provider)
	}
	if !errors.Is(err, cause) {
		t.Error("SynthesisError does not unwrap")
	}
	if WrapError("gemini", nil) != nil {
		t.Error("wrapping nil should return nil")
	}
}
