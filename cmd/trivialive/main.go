// Command trivialive starts a live voice trivia session: a realtime
// duplex audio conversation with an AI game show host, with an optional
// local dashboard for the leaderboard and live waveforms.
//
// Usage:
//
//	GEMINI_API_KEY=... go run ./cmd/trivialive --topic "space exploration"
//	go run ./cmd/trivialive --topic music --difficulty hard --voice Puck
//	go run ./cmd/trivialive --no-dashboard
//
// While running, press m+Enter to toggle the microphone mute and
// q+Enter (or Ctrl-C) to end the game.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trivialabs/go-trivialive/internal/config"
	"github.com/trivialabs/go-trivialive/internal/log"
	"github.com/trivialabs/go-trivialive/pkg/audio"
	"github.com/trivialabs/go-trivialive/pkg/leaderboard"
	"github.com/trivialabs/go-trivialive/pkg/quiz"
	"github.com/trivialabs/go-trivialive/pkg/session"
	"github.com/trivialabs/go-trivialive/pkg/web"
)

func main() {
	config.Load()

	topic := flag.String("topic", "general knowledge", "Trivia topic for this game")
	difficulty := flag.String("difficulty", config.DefaultDifficulty, "Question difficulty: easy, medium, hard")
	voice := flag.String("voice", config.HostVoice(), "Host voice name")
	personality := flag.String("personality", "", "Host personality (default: warm game show host)")
	questions := flag.Int("questions", 5, "Number of questions to pre-generate (0 to let the host improvise)")
	noDashboard := flag.Bool("no-dashboard", false, "Disable the local dashboard server")
	port := flag.String("port", config.DashboardPort(), "Dashboard listen port")
	dbPath := flag.String("db", config.DBPath(), "Leaderboard database path")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *debug {
		log.Init("debug")
	} else {
		log.Init("info")
	}

	key := config.APIKeyRequired()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("🎙️  TriviaLive")
	fmt.Printf("Topic: %s (%s)\n", *topic, *difficulty)

	// Pre-generate a question bank. Generation failures skip the bank,
	// not the game: the host improvises instead.
	bank := prepareQuestions(ctx, key, *topic, *difficulty, *questions)

	// Leaderboard is optional too; the game runs without persistence.
	var store *leaderboard.Store
	if s, err := leaderboard.Open(*dbPath); err != nil {
		log.Warn("leaderboard unavailable", "path", *dbPath, "error", err)
	} else {
		store = s
		defer store.Close()
	}

	tap := audio.NewTap(4096)

	sess, err := session.Start(ctx, session.Config{
		APIKey:      key,
		Topic:       *topic,
		Difficulty:  *difficulty,
		Personality: *personality,
		Voice:       *voice,
		Model:       config.LiveModel(),
		Instruction: session.HostInstructionWithQuestions(*topic, *difficulty, *personality, bank),
		Tap:         tap,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	var server *web.Server
	if !*noDashboard {
		server = web.NewServer(*port, store, tap)
		server.Status = func() web.SessionStatus {
			stats := sess.Stats()
			return web.SessionStatus{
				Active:          sess.State() == session.StateActive,
				State:           sess.State().String(),
				Muted:           sess.Muted(),
				Topic:           *topic,
				FramesSent:      stats.FramesSent,
				ChunksScheduled: stats.ChunksScheduled,
				LiveBuffers:     stats.LiveBuffers,
			}
		}
		server.StartAsync()
		defer server.Shutdown()
		fmt.Printf("Dashboard: http://localhost:%s\n", *port)
	}

	fmt.Println("Listening... speak to the host. [m] mute, [q] quit")

	go readKeys(sess, cancel)

	select {
	case <-ctx.Done():
		sess.Close()
		<-sess.Done()
	case <-sess.Done():
	}

	if err := sess.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Session ended with error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("👋 Thanks for playing!")
}

// prepareQuestions fetches the question bank, returning nil on any
// failure so the host can improvise.
func prepareQuestions(ctx context.Context, key, topic, difficulty string, count int) []string {
	if count <= 0 {
		return nil
	}

	client, err := quiz.NewClient(key, quiz.WithModel(config.QuizModel()))
	if err != nil {
		log.Warn("quiz client unavailable", "error", err)
		return nil
	}

	genCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	generated, err := client.Generate(genCtx, topic, difficulty, count)
	if err != nil {
		log.Warn("question generation failed, host will improvise", "error", err)
		return nil
	}

	bank := make([]string, 0, len(generated))
	for _, q := range generated {
		bank = append(bank, fmt.Sprintf("%s (answer: %s)", q.Text, q.Answer))
	}
	fmt.Printf("Prepared %d questions\n", len(bank))
	return bank
}

// readKeys handles the mute toggle and quit keys from stdin.
func readKeys(sess *session.AudioSession, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch scanner.Text() {
		case "m", "M":
			muted := !sess.Muted()
			sess.SetMuted(muted)
			if muted {
				fmt.Println("🔇 Muted")
			} else {
				fmt.Println("🎙️  Live")
			}
		case "q", "Q":
			quit()
			return
		}
	}
}
