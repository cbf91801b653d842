package quiz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trivialabs/go-trivialive/internal/config"
	"github.com/trivialabs/go-trivialive/internal/httpc"
	"github.com/trivialabs/go-trivialive/internal/log"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Client generates trivia questions via the Gemini REST API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the generation model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the API base URL (tests).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a question generator.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		model:   config.DefaultQuizModel,
		baseURL: defaultBaseURL,
		http:    httpc.NewClient(30 * time.Second),
		logger:  log.Component("quiz"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

const questionPrompt = `Generate %d trivia questions about %s at %s difficulty.
Use Google Search to ground every question in accurate, current facts.
Reply with ONLY a JSON array, no prose. Each element:
{"question": "...", "choices": ["...", "...", "...", "..."], "answer": "...", "fact": "one surprising related fact"}
The answer must be one of the choices verbatim.`

// Generate produces count questions about topic at the given difficulty.
// Failures surface as *GenerationError; the caller decides whether the
// round is skipped or retried.
func (c *Client) Generate(ctx context.Context, topic, difficulty string, count int) ([]Question, error) {
	if count <= 0 {
		count = 5
	}
	if difficulty == "" {
		difficulty = "medium"
	}

	start := time.Now()

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]interface{}{
					{"text": fmt.Sprintf(questionPrompt, count, topic, difficulty)},
				},
			},
		},
		"tools": []map[string]interface{}{
			{"google_search": map[string]interface{}{}},
		},
		"generationConfig": map[string]interface{}{
			"temperature":     0.9,
			"maxOutputTokens": 2048,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapGeneration(err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrapGeneration(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapGeneration(err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var result generateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, wrapGeneration(fmt.Errorf("decode response: %w", err))
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoQuestions
	}

	cand := result.Candidates[0]
	questions, err := parseQuestions(cand.Content.Parts[0].Text)
	if err != nil {
		return nil, err
	}

	sources := cand.GroundingMetadata.sources()
	for i := range questions {
		questions[i].Sources = sources
	}

	c.logger.Info("questions generated",
		"topic", topic,
		"difficulty", difficulty,
		"count", len(questions),
		"sources", len(sources),
		"latency_ms", time.Since(start).Milliseconds())

	return questions, nil
}

// generateResponse is the generateContent response shape.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		GroundingMetadata groundingMetadata `json:"groundingMetadata"`
	} `json:"candidates"`
}

type groundingMetadata struct {
	GroundingChunks []struct {
		Web struct {
			URI   string `json:"uri"`
			Title string `json:"title"`
		} `json:"web"`
	} `json:"groundingChunks"`
}

func (m groundingMetadata) sources() []GroundingSource {
	var out []GroundingSource
	for _, chunk := range m.GroundingChunks {
		if chunk.Web.URI == "" {
			continue
		}
		out = append(out, GroundingSource{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return out
}

func parseAPIError(status int, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}
	return &GenerationError{StatusCode: status, Message: message}
}
