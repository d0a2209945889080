package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bingoboard.ai/internal/bingo/logic/keys"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/persistence/snapshot"
)

// Reasons a game's state is wiped for every player.
const (
	ReasonWin     = "win"
	ReasonDisable = "disable"
	ReasonAdmin   = "admin"
)

type RoundMeta struct {
	Game      string `json:"game"`
	Round     int    `json:"round"`
	Reason    string `json:"reason"`
	Players   int    `json:"players"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveRound saves one game's slice of snap into
// `dataDir/archives/<game>/round_<NNN>/` before the game is wiped. It returns
// archived=false when no player had state for the game.
func ArchiveRound(dataDir, gameID, reason string, snap progress.Snapshot) (round int, archivedPath string, archived bool, err error) {
	gid := keys.NormalizeGameID(gameID)
	part := snap.ForGame(gid)
	if len(part.Players) == 0 {
		return 0, "", false, nil
	}

	gameDir := filepath.Join(dataDir, "archives", gid)
	round, err = nextRound(gameDir)
	if err != nil {
		return 0, "", false, err
	}
	roundDir := filepath.Join(gameDir, fmt.Sprintf("round_%03d", round))
	dst := filepath.Join(roundDir, "state.snap.zst")
	if err := snapshot.Write(dst, part); err != nil {
		return 0, "", false, err
	}

	meta := RoundMeta{
		Game:      gid,
		Round:     round,
		Reason:    reason,
		Players:   len(part.Players),
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(roundDir, "meta.json"), b, 0o644)
	}
	return round, dst, true, nil
}

func nextRound(gameDir string) (int, error) {
	ents, err := os.ReadDir(gameDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}
	last := 0
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "round_") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "round_")); err == nil && n > last {
			last = n
		}
	}
	return last + 1, nil
}

// Rounds lists archived round metadata for a game, oldest first.
func Rounds(dataDir, gameID string) ([]RoundMeta, error) {
	gameDir := filepath.Join(dataDir, "archives", keys.NormalizeGameID(gameID))
	ents, err := os.ReadDir(gameDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []RoundMeta
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "round_") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(gameDir, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m RoundMeta
		if err := json.Unmarshal(b, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
