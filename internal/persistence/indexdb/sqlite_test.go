package indexdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/board"
	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/win"
)

func openTemp(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "bingo.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_SaveLoadState(t *testing.T) {
	ctx := context.Background()
	idx := openTemp(t)

	if _, found, err := idx.LoadState(ctx); err != nil || found {
		t.Fatalf("fresh db: found=%v err=%v", found, err)
	}

	s := progress.NewStore()
	a, b := uuid.New(), uuid.New()
	var bd board.Board
	bd[0], bd[12] = "c0", "free"
	s.SetBoard(a, "spring", bd)
	s.SetProgress(a, progress.NewKey("spring", "c0"), 3)
	s.MarkCompleted(a, progress.NewKey("spring", "c0"))
	s.SetProgress(b, progress.NewKey("summer", "x|y"), 1)
	s.MarkClaimedReward(b, "summer")

	if err := idx.SaveState(ctx, s.Snapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A second save replaces rather than merges.
	s.ResetGameForPlayer(b, "summer")
	if err := idx.SaveState(ctx, s.Snapshot()); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	snap, found, err := idx.LoadState(ctx)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	r := progress.NewStore()
	r.Restore(snap)
	if got, ok := r.Board(a, "spring"); !ok || got != bd {
		t.Fatalf("board: %v %v", got, ok)
	}
	if r.Progress(a, progress.NewKey("spring", "c0")) != 3 || !r.IsCompleted(a, progress.NewKey("spring", "c0")) {
		t.Fatalf("progress lost")
	}
	if r.HasClaimedReward(b, "summer") || r.Progress(b, progress.NewKey("summer", "x|y")) != 0 {
		t.Fatalf("stale rows survived the second save")
	}
}

func TestSQLiteIndex_RecordWinAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := openTemp(t)
	p := uuid.New()
	idx.RecordWin(win.Outcome{Player: p, Name: "Ash", Game: "spring", Line: true, Reward: "give cake", Reset: true})
	idx.RecordWin(win.Outcome{Player: p, Name: "Ash", Game: "summer", Line: true, Claimed: true})
	idx.RecordWin(win.Outcome{Player: p, Name: "Ash", Game: "spring", Line: true, Disabled: true})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	all, err := idx.Wins(ctx, "", 10)
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if len(all) != 3 || all[0].Game != "spring" || !all[0].Disabled {
		t.Fatalf("all wins (newest first): %+v", all)
	}
	spring, err := idx.Wins(ctx, "spring", 1)
	if err != nil {
		t.Fatalf("wins: %v", err)
	}
	if len(spring) != 1 || spring[0].Player != p.String() || spring[0].At.IsZero() {
		t.Fatalf("spring: %+v", spring)
	}
	if last := all[2]; last.Reward != "give cake" || !last.Reset {
		t.Fatalf("oldest: %+v", last)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.RecordWin(win.Outcome{Game: "a"})
	s.RecordWin(win.Outcome{Game: "b"})
	st := s.Stats()
	if st.DropWinTotal != 1 {
		t.Fatalf("DropWinTotal=%d want=1", st.DropWinTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_UpsertDefinitions(t *testing.T) {
	ctx := context.Background()
	idx := openTemp(t)
	g, err := defs.Parse("spring", []byte("name: Spring\nchallenges:\n  - id: a\n"), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := idx.UpsertDefinitions(ctx, []*defs.Game{g}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var digest string
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT digest,challenges FROM definitions WHERE game='spring'`).Scan(&digest, &n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if digest != g.Digest || n != 1 {
		t.Fatalf("row: digest=%q challenges=%d", digest, n)
	}
}
