// Package config provides configuration helpers for go-trivialive commands.
// Values come from environment variables, optionally loaded from a .env
// file, with sensible defaults for everything except credentials.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Defaults for the live session.
const (
	DefaultLiveModel  = "models/gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultQuizModel  = "gemini-2.5-flash"
	DefaultTTSModel   = "gemini-2.5-flash-preview-tts"
	DefaultHostVoice  = "Zephyr"
	DefaultDifficulty = "medium"

	DefaultDashboardPort = "8090"
	DefaultDBPath        = "trivialive.db"

	// Audio rates fixed by the live protocol: 16 kHz mono up, 24 kHz mono down.
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
)

// Load reads a .env file if present. Missing files are not an error;
// real environment variables always win over .env contents.
func Load() {
	_ = godotenv.Load()
}

// Env returns the named environment variable or the fallback if unset.
func Env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// APIKey returns the Gemini API key from GEMINI_API_KEY.
func APIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// APIKeyRequired returns the Gemini API key or exits with usage help.
func APIKeyRequired() string {
	key := APIKey()
	if key == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: GEMINI_API_KEY=... go run ./cmd/trivialive")
		os.Exit(1)
	}
	return key
}

// LiveModel returns the live conversation model from LIVE_MODEL or default.
func LiveModel() string {
	return Env("LIVE_MODEL", DefaultLiveModel)
}

// QuizModel returns the question generation model from QUIZ_MODEL or default.
func QuizModel() string {
	return Env("QUIZ_MODEL", DefaultQuizModel)
}

// HostVoice returns the response voice name from HOST_VOICE or default.
func HostVoice() string {
	return Env("HOST_VOICE", DefaultHostVoice)
}

// DashboardPort returns the dashboard listen port from DASHBOARD_PORT or default.
func DashboardPort() string {
	return Env("DASHBOARD_PORT", DefaultDashboardPort)
}

// DBPath returns the leaderboard database path from DB_PATH or default.
func DBPath() string {
	return Env("DB_PATH", DefaultDBPath)
}
