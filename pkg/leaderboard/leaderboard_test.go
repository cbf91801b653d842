package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndTopOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	scores := []int{300, 900, 600}
	for i, score := range scores {
		if _, _, err := s.Record(ctx, Entry{
			Name:  fmt.Sprintf("player-%d", i),
			Score: score,
			Topic: "space",
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	top, err := s.Top(ctx, 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("got %d entries, want 3", len(top))
	}
	for i := 1; i < len(top); i++ {
		if top[i].Score > top[i-1].Score {
			t.Fatalf("entries not in descending score order: %d before %d", top[i-1].Score, top[i].Score)
		}
	}
	if top[0].Name != "player-1" || top[0].Score != 900 {
		t.Errorf("top entry = %s/%d, want player-1/900", top[0].Name, top[0].Score)
	}
}

func TestRecordReturnsRank(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.Record(ctx, Entry{Name: "first", Score: 500})
	_, rank, err := s.Record(ctx, Entry{Name: "second", Score: 800})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rank != 1 {
		t.Errorf("rank = %d, want 1", rank)
	}

	_, rank, _ = s.Record(ctx, Entry{Name: "third", Score: 100})
	if rank != 3 {
		t.Errorf("rank = %d, want 3", rank)
	}
}

func TestBoardCapsAtMaxEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxEntries+10; i++ {
		if _, _, err := s.Record(ctx, Entry{
			Name:     fmt.Sprintf("player-%d", i),
			Score:    i * 10,
			PlayedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	top, err := s.Top(ctx, 0)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != MaxEntries {
		t.Fatalf("board holds %d entries, want %d", len(top), MaxEntries)
	}
	// The 10 lowest scores were pruned.
	if top[len(top)-1].Score != 100 {
		t.Errorf("lowest surviving score = %d, want 100", top[len(top)-1].Score)
	}
}

func TestLowScoreBelowFullBoardGetsNoRank(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxEntries; i++ {
		s.Record(ctx, Entry{
			Name:     fmt.Sprintf("player-%d", i),
			Score:    1000 + i,
			PlayedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	_, rank, err := s.Record(ctx, Entry{Name: "latecomer", Score: 5})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rank != 0 {
		t.Errorf("rank = %d, want 0 (pruned)", rank)
	}
}

func TestTieGoesToEarlierResult(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Record(ctx, Entry{Name: "early", Score: 700, PlayedAt: base})
	s.Record(ctx, Entry{Name: "late", Score: 700, PlayedAt: base.Add(time.Hour)})

	top, _ := s.Top(ctx, 2)
	if top[0].Name != "early" {
		t.Errorf("tie winner = %s, want early", top[0].Name)
	}
}

func TestRecordRejectsEmptyName(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.Record(context.Background(), Entry{Name: "   ", Score: 10})
	if !errors.Is(err, ErrEmptyName) {
		t.Fatalf("err = %v, want ErrEmptyName", err)
	}
}

func TestTopOnEmptyBoard(t *testing.T) {
	s := openTestStore(t)

	top, err := s.Top(context.Background(), 10)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("got %d entries from an empty board", len(top))
	}
}
