package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trivialabs/go-trivialive/internal/httpc"
)

const providerGemini = "gemini"

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini synthesizes announcements with the Gemini TTS models. Output
// is 24kHz mono PCM16.
type Gemini struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini TTS provider.
func NewGemini(opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.BaseURL = geminiBaseURL
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Gemini{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "tts.gemini"),
	}, nil
}

// Synthesize converts text to speech. Retryable API failures (rate
// limits, 5xx) are retried up to MaxRetries times.
func (g *Gemini) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(g.config.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := g.synthesizeOnce(ctx, text)
		if err == nil {
			result.CharCount = len(text)
			result.LatencyMs = time.Since(start).Milliseconds()
			g.logger.Debug("synthesized announcement",
				"chars", result.CharCount,
				"duration_ms", result.Duration.Milliseconds(),
				"latency_ms", result.LatencyMs)
			return result, nil
		}

		lastErr = err
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		g.logger.Warn("retrying synthesis", "attempt", attempt+1, "error", err)
	}

	return nil, lastErr
}

func (g *Gemini) synthesizeOnce(ctx context.Context, text string) (*AudioResult, error) {
	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": text},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseModalities": []string{"AUDIO"},
			"speechConfig": map[string]interface{}{
				"voiceConfig": map[string]interface{}{
					"prebuiltVoiceConfig": map[string]interface{}{
						"voiceName": g.config.Voice,
					},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.config.BaseURL, g.config.Model, g.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, g.parseError(resp.StatusCode, respBody)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					InlineData struct {
						MimeType string `json:"mimeType"`
						Data     string `json:"data"`
					} `json:"inlineData"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode response: %w", err))
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, WrapError(providerGemini, ErrNoAudio)
	}

	inline := result.Candidates[0].Content.Parts[0].InlineData
	if inline.Data == "" {
		return nil, WrapError(providerGemini, ErrNoAudio)
	}

	pcm, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("decode audio: %w", err))
	}

	format := PCM24()
	format.SampleRate = rateFromMime(inline.MimeType, format.SampleRate)

	return &AudioResult{
		Audio:    pcm,
		Format:   format,
		Duration: pcmDuration(len(pcm), format),
	}, nil
}

// Health checks API connectivity with a minimal synthesis.
func (g *Gemini) Health(ctx context.Context) error {
	_, err := g.synthesizeOnce(ctx, "ok")
	return err
}

// Close releases resources.
func (g *Gemini) Close() error {
	g.http.CloseIdleConnections()
	return nil
}

func (g *Gemini) parseError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return &APIError{StatusCode: status, Message: message, Provider: providerGemini}
}

// rateFromMime extracts the sample rate from a mime type like
// "audio/L16;codec=pcm;rate=24000".
func rateFromMime(mime string, fallback int) int {
	for _, part := range strings.Split(mime, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return fallback
}

func pcmDuration(byteLen int, f AudioFormat) time.Duration {
	bytesPerSecond := f.SampleRate * f.Channels * (f.BitDepth / 8)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(byteLen) * time.Second / time.Duration(bytesPerSecond)
}

// Verify Gemini implements Provider at compile time.
var _ Provider = (*Gemini)(nil)
