package progress

import (
	"sort"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/board"
	"bingoboard.ai/internal/bingo/logic/keys"
)

const SnapshotVersion = 1

// Snapshot is the key-value form of the store handed to persistence backends.
// Progress and completion keys use the "game|challenge" form.
type Snapshot struct {
	Version int           `json:"version"`
	Players []PlayerState `json:"players"`
}

type PlayerState struct {
	ID        uuid.UUID           `json:"id"`
	Progress  map[string]int      `json:"progress,omitempty"`
	Completed []string            `json:"completed,omitempty"`
	Boards    map[string][]string `json:"boards,omitempty"`
	Claimed   []string            `json:"claimed,omitempty"`
}

// Snapshot copies the store. Players and lists are sorted.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := s.knownPlayersLocked()
	snap := Snapshot{Version: SnapshotVersion, Players: make([]PlayerState, 0, len(players))}
	for _, p := range players {
		ps := PlayerState{ID: p}
		if m := s.progress[p]; len(m) > 0 {
			ps.Progress = make(map[string]int, len(m))
			for k, v := range m {
				ps.Progress[k.String()] = v
			}
		}
		for k := range s.completed[p] {
			ps.Completed = append(ps.Completed, k.String())
		}
		sort.Strings(ps.Completed)
		if m := s.boards[p]; len(m) > 0 {
			ps.Boards = make(map[string][]string, len(m))
			for gid, b := range m {
				ps.Boards[gid] = b.Slice()
			}
		}
		for gid := range s.claimed[p] {
			ps.Claimed = append(ps.Claimed, gid)
		}
		sort.Strings(ps.Claimed)
		snap.Players = append(snap.Players, ps)
	}
	return snap
}

// Restore replaces the whole store with snap. Malformed keys and boards that
// are not exactly 25 long are dropped. The dirty flag is cleared.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = map[uuid.UUID]map[Key]int{}
	s.completed = map[uuid.UUID]map[Key]struct{}{}
	s.boards = map[uuid.UUID]map[string]board.Board{}
	s.claimed = map[uuid.UUID]map[string]struct{}{}
	for _, ps := range snap.Players {
		for raw, v := range ps.Progress {
			k, ok := ParseKey(raw)
			if !ok {
				continue
			}
			if v < 0 {
				v = 0
			}
			if s.progress[ps.ID] == nil {
				s.progress[ps.ID] = map[Key]int{}
			}
			s.progress[ps.ID][k] = v
		}
		for _, raw := range ps.Completed {
			k, ok := ParseKey(raw)
			if !ok {
				continue
			}
			if s.completed[ps.ID] == nil {
				s.completed[ps.ID] = map[Key]struct{}{}
			}
			s.completed[ps.ID][k] = struct{}{}
		}
		for gid, ids := range ps.Boards {
			b, ok := board.FromSlice(ids)
			if !ok {
				continue
			}
			if s.boards[ps.ID] == nil {
				s.boards[ps.ID] = map[string]board.Board{}
			}
			s.boards[ps.ID][keys.NormalizeGameID(gid)] = b
		}
		for _, gid := range ps.Claimed {
			if s.claimed[ps.ID] == nil {
				s.claimed[ps.ID] = map[string]struct{}{}
			}
			s.claimed[ps.ID][keys.NormalizeGameID(gid)] = struct{}{}
		}
	}
	s.dirty.Store(false)
}

// ForGame keeps only the entries of one game; players left with nothing are
// dropped.
func (snap Snapshot) ForGame(gameID string) Snapshot {
	gid := keys.NormalizeGameID(gameID)
	out := Snapshot{Version: snap.Version}
	for _, ps := range snap.Players {
		kept := PlayerState{ID: ps.ID}
		for raw, v := range ps.Progress {
			if k, ok := ParseKey(raw); ok && k.Game == gid {
				if kept.Progress == nil {
					kept.Progress = map[string]int{}
				}
				kept.Progress[raw] = v
			}
		}
		for _, raw := range ps.Completed {
			if k, ok := ParseKey(raw); ok && k.Game == gid {
				kept.Completed = append(kept.Completed, raw)
			}
		}
		if b, ok := ps.Boards[gid]; ok {
			kept.Boards = map[string][]string{gid: b}
		}
		for _, g := range ps.Claimed {
			if g == gid {
				kept.Claimed = append(kept.Claimed, g)
			}
		}
		if len(kept.Progress) > 0 || len(kept.Completed) > 0 || len(kept.Boards) > 0 || len(kept.Claimed) > 0 {
			out.Players = append(out.Players, kept)
		}
	}
	return out
}
