package progress

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/board"
	"bingoboard.ai/internal/bingo/logic/keys"
)

// Store is the per-player ledger: progress counters, completion flags, boards
// and reward claims. Resets delete entries; a player's inner map is dropped as
// soon as it becomes empty.
//
// Mutations mark the store dirty. The host persists on its own schedule and
// clears the flag with TakeDirty.
type Store struct {
	mu        sync.RWMutex
	progress  map[uuid.UUID]map[Key]int
	completed map[uuid.UUID]map[Key]struct{}
	boards    map[uuid.UUID]map[string]board.Board
	claimed   map[uuid.UUID]map[string]struct{}

	dirty   atomic.Bool
	onDirty atomic.Pointer[func()]
}

func NewStore() *Store {
	return &Store{
		progress:  map[uuid.UUID]map[Key]int{},
		completed: map[uuid.UUID]map[Key]struct{}{},
		boards:    map[uuid.UUID]map[string]board.Board{},
		claimed:   map[uuid.UUID]map[string]struct{}{},
	}
}

// OnDirty registers fn to run when the store goes from clean to dirty. fn runs
// after the store lock is released.
func (s *Store) OnDirty(fn func()) {
	if fn == nil {
		s.onDirty.Store(nil)
		return
	}
	s.onDirty.Store(&fn)
}

func (s *Store) markDirty() {
	if s.dirty.Swap(true) {
		return
	}
	if fn := s.onDirty.Load(); fn != nil {
		(*fn)()
	}
}

func (s *Store) Dirty() bool { return s.dirty.Load() }

// MarkDirty flags the store as changed, e.g. after a failed save.
func (s *Store) MarkDirty() { s.markDirty() }

// TakeDirty reports whether the store changed since the last call and clears the flag.
func (s *Store) TakeDirty() bool { return s.dirty.Swap(false) }

func (s *Store) Progress(p uuid.UUID, k Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress[p][k.norm()]
}

// AddProgress adds amount to the counter. Non-positive amounts are ignored.
// No goal clamp is applied here.
func (s *Store) AddProgress(p uuid.UUID, k Key, amount int) {
	if amount <= 0 {
		return
	}
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.progress[p]
	if m == nil {
		m = map[Key]int{}
		s.progress[p] = m
	}
	m[k.norm()] += amount
}

// SetProgress overwrites the counter; negative values are stored as 0.
func (s *Store) SetProgress(p uuid.UUID, k Key, v int) {
	if v < 0 {
		v = 0
	}
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.progress[p]
	if m == nil {
		m = map[Key]int{}
		s.progress[p] = m
	}
	m[k.norm()] = v
}

func (s *Store) IsCompleted(p uuid.UUID, k Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.completed[p][k.norm()]
	return ok
}

// MarkCompleted is one-way; only a reset removes the flag.
func (s *Store) MarkCompleted(p uuid.UUID, k Key) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.completed[p]
	if m == nil {
		m = map[Key]struct{}{}
		s.completed[p] = m
	}
	m[k.norm()] = struct{}{}
}

func (s *Store) Board(p uuid.UUID, gameID string) (board.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[p][keys.NormalizeGameID(gameID)]
	return b, ok
}

func (s *Store) SetBoard(p uuid.UUID, gameID string, b board.Board) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.boards[p]
	if m == nil {
		m = map[string]board.Board{}
		s.boards[p] = m
	}
	m[keys.NormalizeGameID(gameID)] = b
}

func (s *Store) HasClaimedReward(p uuid.UUID, gameID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.claimed[p][keys.NormalizeGameID(gameID)]
	return ok
}

func (s *Store) MarkClaimedReward(p uuid.UUID, gameID string) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.claimed[p]
	if m == nil {
		m = map[string]struct{}{}
		s.claimed[p] = m
	}
	m[keys.NormalizeGameID(gameID)] = struct{}{}
}

func (s *Store) ClearClaimedReward(p uuid.UUID, gameID string) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	deleteFrom(s.claimed, p, keys.NormalizeGameID(gameID))
}

// KnownPlayers is every player with any progress, completion, board or claim,
// sorted by id.
func (s *Store) KnownPlayers() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.knownPlayersLocked()
}

func (s *Store) knownPlayersLocked() []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	for p := range s.progress {
		seen[p] = struct{}{}
	}
	for p := range s.completed {
		seen[p] = struct{}{}
	}
	for p := range s.boards {
		seen[p] = struct{}{}
	}
	for p := range s.claimed {
		seen[p] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ResetGameForPlayer removes the player's progress, completions, board and
// reward claim for one game.
func (s *Store) ResetGameForPlayer(p uuid.UUID, gameID string) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetGameLocked(p, keys.NormalizeGameID(gameID))
}

// ResetGameForAllPlayers applies ResetGameForPlayer to every known player and
// returns how many players were visited.
func (s *Store) ResetGameForAllPlayers(gameID string) int {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	gid := keys.NormalizeGameID(gameID)
	players := s.knownPlayersLocked()
	for _, p := range players {
		s.resetGameLocked(p, gid)
	}
	return len(players)
}

// ResetAllGamesForPlayer forgets everything recorded for the player.
func (s *Store) ResetAllGamesForPlayer(p uuid.UUID) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, p)
	delete(s.completed, p)
	delete(s.boards, p)
	delete(s.claimed, p)
}

func (s *Store) resetGameLocked(p uuid.UUID, gid string) {
	inGame := func(k Key) bool { return k.Game == gid }
	removeKeys(s.progress, p, inGame)
	removeKeys(s.completed, p, inGame)
	deleteFrom(s.boards, p, gid)
	deleteFrom(s.claimed, p, gid)
}

// ResetChallengeForPlayer removes one challenge's progress and completion. A
// nil gameID removes it from every game. Reward claims are left alone.
func (s *Store) ResetChallengeForPlayer(p uuid.UUID, challengeID string, gameID *string) {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetChallengeLocked(p, keys.NormalizeChallengeID(challengeID), gameID)
}

// ResetChallengeForAllPlayers applies ResetChallengeForPlayer to every known
// player and returns how many players were visited.
func (s *Store) ResetChallengeForAllPlayers(challengeID string, gameID *string) int {
	defer s.markDirty()
	s.mu.Lock()
	defer s.mu.Unlock()
	cid := keys.NormalizeChallengeID(challengeID)
	players := s.knownPlayersLocked()
	for _, p := range players {
		s.resetChallengeLocked(p, cid, gameID)
	}
	return len(players)
}

func (s *Store) resetChallengeLocked(p uuid.UUID, cid string, gameID *string) {
	match := func(k Key) bool { return k.Challenge == cid }
	if gameID != nil {
		gid := keys.NormalizeGameID(*gameID)
		match = func(k Key) bool { return k.Game == gid && k.Challenge == cid }
	}
	removeKeys(s.progress, p, match)
	removeKeys(s.completed, p, match)
}

// Prune drops progress and completion entries for which keep returns false and
// reports how many entries were removed.
func (s *Store) Prune(keep func(Key) bool) int {
	s.mu.Lock()
	removed := 0
	drop := func(k Key) bool {
		if keep(k) {
			return false
		}
		removed++
		return true
	}
	for p := range s.progress {
		removeKeys(s.progress, p, drop)
	}
	for p := range s.completed {
		removeKeys(s.completed, p, drop)
	}
	s.mu.Unlock()
	if removed > 0 {
		s.markDirty()
	}
	return removed
}

func removeKeys[V any](m map[uuid.UUID]map[Key]V, p uuid.UUID, match func(Key) bool) {
	inner := m[p]
	if inner == nil {
		return
	}
	for k := range inner {
		if match(k) {
			delete(inner, k)
		}
	}
	if len(inner) == 0 {
		delete(m, p)
	}
}

func deleteFrom[V any](m map[uuid.UUID]map[string]V, p uuid.UUID, gid string) {
	inner := m[p]
	if inner == nil {
		return
	}
	delete(inner, gid)
	if len(inner) == 0 {
		delete(m, p)
	}
}
