package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/trivialabs/go-trivialive/pkg/hub"
	"github.com/trivialabs/go-trivialive/pkg/leaderboard"
)

// vizPoints is the number of waveform points sent per path per frame.
const vizPoints = 128

// vizFrame is one waveform update. Values are normalized to [-1, 1].
type vizFrame struct {
	Input  []float32 `json:"input"`
	Output []float32 `json:"output"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.Status == nil {
		return c.JSON(SessionStatus{})
	}
	return c.JSON(s.Status())
}

func (s *Server) handleGetLeaderboard(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "leaderboard not configured",
		})
	}

	entries, err := s.store.Top(c.Context(), c.QueryInt("n"))
	if err != nil {
		s.logger.Error("leaderboard query failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "query failed",
		})
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	return c.JSON(entries)
}

// ResultRequest is the body for posting a game result.
type ResultRequest struct {
	Name       string `json:"name"`
	Score      int    `json:"score"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) handlePostResult(c *fiber.Ctx) error {
	if s.store == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "leaderboard not configured",
		})
	}

	var req ResultRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}

	entry, rank, err := s.store.Record(c.Context(), leaderboard.Entry{
		Name:       req.Name,
		Score:      req.Score,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
	})
	if err != nil {
		if errors.Is(err, leaderboard.ErrEmptyName) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "name required",
			})
		}
		s.logger.Error("record result failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "record failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":   entry.ID,
		"rank": rank,
	})
}

// handleVizWS streams waveform frames to a dashboard viewer.
func (s *Server) handleVizWS(c *websocket.Conn) {
	client := hub.NewClient(s.vizHub, c)
	client.Run() // Blocks until the viewer disconnects
}

// downsample reduces a sample window to n normalized points by picking
// the largest-magnitude sample per bucket, which preserves waveform
// peaks better than averaging.
func downsample(samples []int16, n int) []float32 {
	if len(samples) == 0 {
		return []float32{}
	}
	if n > len(samples) {
		n = len(samples)
	}

	out := make([]float32, n)
	bucket := len(samples) / n
	for i := 0; i < n; i++ {
		var peak int16
		for _, v := range samples[i*bucket : (i+1)*bucket] {
			if abs32(v) > abs32(peak) {
				peak = v
			}
		}
		out[i] = float32(peak) / 32768
	}
	return out
}

func abs32(v int16) int32 {
	m := int32(v)
	if m < 0 {
		m = -m
	}
	return m
}
