package progress

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/board"
)

var (
	alice = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	bob   = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
)

func strp(s string) *string { return &s }

func TestProgress_AddSetAndClamp(t *testing.T) {
	s := NewStore()
	k := NewKey(" Spring ", "c1")
	if got := s.Progress(alice, k); got != 0 {
		t.Fatalf("default: got %d want 0", got)
	}
	s.AddProgress(alice, k, 2)
	s.AddProgress(alice, Key{Game: "SPRING", Challenge: "c1"}, 3)
	if got := s.Progress(alice, k); got != 5 {
		t.Fatalf("add: got %d want 5", got)
	}
	s.AddProgress(alice, k, 0)
	s.AddProgress(alice, k, -4)
	if got := s.Progress(alice, k); got != 5 {
		t.Fatalf("non-positive add changed progress: %d", got)
	}
	s.SetProgress(alice, k, -9)
	if got := s.Progress(alice, k); got != 0 {
		t.Fatalf("negative set: got %d want 0", got)
	}
}

func TestCompletion_IsOneWay(t *testing.T) {
	s := NewStore()
	k := NewKey("g", "c")
	s.MarkCompleted(alice, k)
	s.SetProgress(alice, k, 0)
	s.AddProgress(alice, k, 1)
	s.SetProgress(alice, k, -1)
	if !s.IsCompleted(alice, k) {
		t.Fatalf("completion reverted by progress writes")
	}
	s.ResetChallengeForPlayer(alice, "c", strp("G"))
	if s.IsCompleted(alice, k) {
		t.Fatalf("reset did not remove completion")
	}
}

func TestResetGameForPlayer_RemovesEverythingForThatGame(t *testing.T) {
	s := NewStore()
	var b board.Board
	b[0] = "c"
	s.SetBoard(alice, "g", b)
	s.SetProgress(alice, NewKey("g", "c"), 1)
	s.MarkCompleted(alice, NewKey("g", "c"))
	s.MarkClaimedReward(alice, "g")
	s.SetProgress(alice, NewKey("other", "c"), 4)

	s.ResetGameForPlayer(alice, " G ")

	if _, ok := s.Board(alice, "g"); ok {
		t.Fatalf("board survived reset")
	}
	if s.HasClaimedReward(alice, "g") {
		t.Fatalf("claim survived reset")
	}
	if s.IsCompleted(alice, NewKey("g", "c")) || s.Progress(alice, NewKey("g", "c")) != 0 {
		t.Fatalf("progress survived reset")
	}
	if s.Progress(alice, NewKey("other", "c")) != 4 {
		t.Fatalf("reset touched another game")
	}
	if _, ok := s.completed[alice]; ok {
		t.Fatalf("empty completion map left behind")
	}
	if _, ok := s.boards[alice]; ok {
		t.Fatalf("empty board map left behind")
	}
	if _, ok := s.claimed[alice]; ok {
		t.Fatalf("empty claim map left behind")
	}
}

func TestResetGameForAllPlayers_UsesUnionOfMaps(t *testing.T) {
	s := NewStore()
	carol := uuid.New()
	s.MarkClaimedReward(alice, "g") // claim only
	var b board.Board
	s.SetBoard(bob, "g", b) // board only
	s.MarkCompleted(carol, NewKey("g", "x"))

	if n := s.ResetGameForAllPlayers("g"); n != 3 {
		t.Fatalf("visited: got %d want 3", n)
	}
	if len(s.KnownPlayers()) != 0 {
		t.Fatalf("players left: %v", s.KnownPlayers())
	}
}

func TestResetChallenge_AcrossGamesKeepsClaims(t *testing.T) {
	s := NewStore()
	s.SetProgress(alice, NewKey("a", "shared"), 1)
	s.SetProgress(alice, NewKey("b", "shared"), 1)
	s.SetProgress(alice, NewKey("b", "other"), 1)
	s.MarkClaimedReward(alice, "a")

	s.ResetChallengeForPlayer(alice, " shared ", nil)

	if s.Progress(alice, NewKey("a", "shared")) != 0 || s.Progress(alice, NewKey("b", "shared")) != 0 {
		t.Fatalf("challenge not removed from every game")
	}
	if s.Progress(alice, NewKey("b", "other")) != 1 {
		t.Fatalf("unrelated challenge removed")
	}
	if !s.HasClaimedReward(alice, "a") {
		t.Fatalf("challenge reset must not clear the game claim")
	}

	s.SetProgress(bob, NewKey("a", "other"), 2)
	if n := s.ResetChallengeForAllPlayers("other", strp("b")); n != 2 {
		t.Fatalf("visited: got %d want 2", n)
	}
	if s.Progress(bob, NewKey("a", "other")) != 2 {
		t.Fatalf("game-scoped reset touched game a")
	}
	if _, ok := s.progress[alice]; ok {
		t.Fatalf("empty progress map left behind")
	}
}

func TestDirtyFlag(t *testing.T) {
	s := NewStore()
	calls := 0
	s.OnDirty(func() {
		calls++
		_ = s.Progress(alice, NewKey("g", "c")) // callback may read the store
	})
	s.AddProgress(alice, NewKey("g", "c"), 0)
	if s.Dirty() {
		t.Fatalf("ignored add marked the store dirty")
	}
	s.AddProgress(alice, NewKey("g", "c"), 1)
	s.MarkCompleted(alice, NewKey("g", "c"))
	if !s.TakeDirty() {
		t.Fatalf("expected dirty")
	}
	if s.TakeDirty() {
		t.Fatalf("TakeDirty must clear the flag")
	}
	s.ClearClaimedReward(alice, "g")
	if calls != 2 {
		t.Fatalf("OnDirty calls: got %d want 2", calls)
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := NewStore()
	var b board.Board
	b[0], b[24] = "c0", "c24"
	s.SetBoard(alice, "g", b)
	s.SetProgress(alice, NewKey("g", "c0"), 3)
	s.MarkCompleted(alice, NewKey("g", "c0"))
	s.MarkClaimedReward(bob, "g")

	snap := s.Snapshot()
	if len(snap.Players) != 2 || snap.Players[0].ID != alice {
		t.Fatalf("players: %+v", snap.Players)
	}
	if snap.Players[0].Progress["g|c0"] != 3 {
		t.Fatalf("progress key form: %+v", snap.Players[0].Progress)
	}

	snap.Players[0].Boards["short"] = []string{"x"}
	snap.Players[0].Completed = append(snap.Players[0].Completed, "no-separator")

	r := NewStore()
	r.AddProgress(uuid.New(), NewKey("junk", "x"), 1)
	r.Restore(snap)
	if r.Dirty() {
		t.Fatalf("restore must leave the store clean")
	}
	if got, ok := r.Board(alice, "g"); !ok || got != b {
		t.Fatalf("board lost: %v %v", got, ok)
	}
	if _, ok := r.Board(alice, "short"); ok {
		t.Fatalf("short board restored")
	}
	if !r.IsCompleted(alice, NewKey("g", "c0")) || r.Progress(alice, NewKey("g", "c0")) != 3 {
		t.Fatalf("progress lost")
	}
	if !r.HasClaimedReward(bob, "g") {
		t.Fatalf("claim lost")
	}
	if len(r.KnownPlayers()) != 2 {
		t.Fatalf("restore kept old state: %v", r.KnownPlayers())
	}
}

func TestPrune(t *testing.T) {
	s := NewStore()
	s.SetProgress(alice, NewKey("g", "keep"), 1)
	s.SetProgress(alice, NewKey("g", "gone"), 1)
	s.MarkCompleted(alice, NewKey("old", "x"))
	s.TakeDirty()
	n := s.Prune(func(k Key) bool { return k.Game == "g" && k.Challenge == "keep" })
	if n != 2 {
		t.Fatalf("pruned: got %d want 2", n)
	}
	if !s.Dirty() {
		t.Fatalf("prune must mark dirty")
	}
	if _, ok := s.completed[alice]; ok {
		t.Fatalf("empty completion map left behind")
	}
}

func TestConcurrentReaders(t *testing.T) {
	s := NewStore()
	k := NewKey("g", "c")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = s.Progress(alice, k)
				_ = s.IsCompleted(alice, k)
				_ = s.KnownPlayers()
			}
		}()
	}
	for j := 0; j < 500; j++ {
		s.AddProgress(alice, k, 1)
	}
	wg.Wait()
	if got := s.Progress(alice, k); got != 500 {
		t.Fatalf("progress: got %d want 500", got)
	}
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("Spring|c|1")
	if !ok || k.Game != "spring" || k.Challenge != "c|1" {
		t.Fatalf("got %+v %v", k, ok)
	}
	if _, ok := ParseKey("g|  "); ok {
		t.Fatalf("blank challenge accepted")
	}
	if NewKey("A B", "x").String() != "a_b|x" {
		t.Fatalf("string form: %q", NewKey("A B", "x").String())
	}
}

func TestSnapshotForGame(t *testing.T) {
	s := NewStore()
	a, b := uuid.New(), uuid.New()
	var bd board.Board
	bd[0] = "x"
	s.SetBoard(a, "spring", bd)
	s.SetProgress(a, NewKey("spring", "x"), 2)
	s.MarkCompleted(a, NewKey("spring", "x"))
	s.MarkClaimedReward(a, "spring")
	s.SetProgress(a, NewKey("summer", "y"), 1)
	s.SetProgress(b, NewKey("summer", "y"), 1)

	got := s.Snapshot().ForGame("Spring")
	if len(got.Players) != 1 || got.Players[0].ID != a {
		t.Fatalf("players: %+v", got.Players)
	}
	ps := got.Players[0]
	if len(ps.Progress) != 1 || ps.Progress["spring|x"] != 2 || len(ps.Completed) != 1 || len(ps.Boards) != 1 || len(ps.Claimed) != 1 {
		t.Fatalf("spring state: %+v", ps)
	}
}
