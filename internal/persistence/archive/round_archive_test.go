package archive

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/persistence/snapshot"
)

func TestArchiveRound_WritesGameSliceAndNumbersRounds(t *testing.T) {
	dir := t.TempDir()
	s := progress.NewStore()
	a, b := uuid.New(), uuid.New()
	s.SetProgress(a, progress.NewKey("spring", "c1"), 2)
	s.SetProgress(b, progress.NewKey("summer", "c1"), 1)

	round, path, ok, err := ArchiveRound(dir, "Spring", ReasonWin, s.Snapshot())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || round != 1 {
		t.Fatalf("first archive: ok=%v round=%d", ok, round)
	}
	if want := filepath.Join(dir, "archives", "spring", "round_001", "state.snap.zst"); path != want {
		t.Fatalf("path: got %s want %s", path, want)
	}
	file, err := snapshot.Read(path)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if len(file.State.Players) != 1 || file.State.Players[0].ID != a {
		t.Fatalf("archived players: %+v", file.State.Players)
	}

	round, _, ok, err = ArchiveRound(dir, "spring", ReasonDisable, s.Snapshot())
	if err != nil || !ok || round != 2 {
		t.Fatalf("second archive: round=%d ok=%v err=%v", round, ok, err)
	}
	metas, err := Rounds(dir, "spring")
	if err != nil || len(metas) != 2 || metas[1].Reason != ReasonDisable || metas[0].Players != 1 {
		t.Fatalf("rounds: %+v err=%v", metas, err)
	}
}

func TestArchiveRound_SkipsEmptyGame(t *testing.T) {
	dir := t.TempDir()
	_, _, ok, err := ArchiveRound(dir, "autumn", ReasonAdmin, progress.NewStore().Snapshot())
	if err != nil || ok {
		t.Fatalf("empty game: ok=%v err=%v", ok, err)
	}
	if metas, err := Rounds(dir, "autumn"); err != nil || len(metas) != 0 {
		t.Fatalf("rounds: %+v err=%v", metas, err)
	}
}
