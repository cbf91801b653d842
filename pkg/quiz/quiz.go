// Package quiz generates trivia questions for the live host using the
// Gemini generateContent API with Google Search grounding.
package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrNoAPIKey    = errors.New("quiz: no API key provided")
	ErrNoQuestions = errors.New("quiz: model returned no questions")
)

// GenerationError reports a failed question generation request. The
// round that needed the question is skipped; the session keeps running.
type GenerationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("quiz: generation failed (HTTP %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("quiz: generation failed: %v", e.Err)
	}
	return fmt.Sprintf("quiz: generation failed: %s", e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func wrapGeneration(err error) error {
	return &GenerationError{Err: err}
}

// GroundingSource is a web source the model grounded a question on.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Question is one trivia question with its answer key.
type Question struct {
	Text    string   `json:"question"`
	Choices []string `json:"choices"`
	Answer  string   `json:"answer"`
	Fact    string   `json:"fact"`

	// Sources holds grounding metadata when the model searched the web.
	Sources []GroundingSource `json:"-"`
}

// parseQuestions extracts the question list from model output. The model
// is instructed to reply with a JSON array, but it routinely wraps it in
// a markdown code fence.
func parseQuestions(text string) ([]Question, error) {
	text = stripFence(text)

	var questions []Question
	if err := json.Unmarshal([]byte(text), &questions); err != nil {
		return nil, wrapGeneration(fmt.Errorf("parse questions: %w", err))
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	for i, q := range questions {
		if q.Text == "" || q.Answer == "" {
			return nil, wrapGeneration(fmt.Errorf("question %d missing text or answer", i))
		}
	}
	return questions, nil
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
