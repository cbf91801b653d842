// Package leaderboard persists game results in SQLite. The board keeps
// the top entries by score; everything below the cutoff is pruned.
package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/trivialabs/go-trivialive/internal/log"
)

// MaxEntries is the number of results the board retains.
const MaxEntries = 50

// ErrEmptyName is returned when a result has no player name.
var ErrEmptyName = errors.New("leaderboard: player name required")

// Entry is one game result.
type Entry struct {
	ID         int64
	Name       string
	Score      int
	Topic      string
	Difficulty string
	PlayedAt   time.Time
}

// Store is a SQLite-backed leaderboard.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS leaderboard (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL,
	score       INTEGER NOT NULL,
	topic       TEXT    NOT NULL DEFAULT '',
	difficulty  TEXT    NOT NULL DEFAULT '',
	played_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC, played_at ASC);
`

// Open opens (and if needed creates) the leaderboard database at path.
// Use ":memory:" for an ephemeral board.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("leaderboard: migrate: %w", err)
	}

	return &Store{
		db:     db,
		logger: log.Component("leaderboard"),
	}, nil
}

// Record stores a game result and prunes the board back down to
// MaxEntries. The stored entry's ID and rank are returned; rank is
// 1-based, 0 when the result did not make the board.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, int, error) {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return Entry{}, 0, ErrEmptyName
	}
	if e.PlayedAt.IsZero() {
		e.PlayedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leaderboard (name, score, topic, difficulty, played_at) VALUES (?, ?, ?, ?, ?)`,
		e.Name, e.Score, e.Topic, e.Difficulty, e.PlayedAt)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("leaderboard: insert: %w", err)
	}
	e.ID, _ = res.LastInsertId()

	if err := s.prune(ctx); err != nil {
		return Entry{}, 0, err
	}

	rank, err := s.rank(ctx, e.ID)
	if err != nil {
		return Entry{}, 0, err
	}

	s.logger.Info("result recorded", "name", e.Name, "score", e.Score, "rank", rank)
	return e, rank, nil
}

// prune deletes everything below the MaxEntries cutoff. Older results
// win ties, so a new equal score never displaces an existing one.
func (s *Store) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM leaderboard WHERE id NOT IN (
			SELECT id FROM leaderboard
			ORDER BY score DESC, played_at ASC, id ASC
			LIMIT ?
		)`, MaxEntries)
	if err != nil {
		return fmt.Errorf("leaderboard: prune: %w", err)
	}
	return nil
}

// rank returns the 1-based position of an entry, or 0 if it was pruned.
func (s *Store) rank(ctx context.Context, id int64) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM leaderboard ORDER BY score DESC, played_at ASC, id ASC`)
	if err != nil {
		return 0, fmt.Errorf("leaderboard: rank: %w", err)
	}
	defer rows.Close()

	pos := 0
	for rows.Next() {
		pos++
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			return 0, fmt.Errorf("leaderboard: rank: %w", err)
		}
		if rowID == id {
			return pos, nil
		}
	}
	return 0, rows.Err()
}

// Top returns up to n entries in descending score order. n <= 0 or
// n > MaxEntries returns the whole board.
func (s *Store) Top(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > MaxEntries {
		n = MaxEntries
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, score, topic, difficulty, played_at
		FROM leaderboard
		ORDER BY score DESC, played_at ASC, id ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name, &e.Score, &e.Topic, &e.Difficulty, &e.PlayedAt); err != nil {
			return nil, fmt.Errorf("leaderboard: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
