package engine

import (
	"errors"
	"hash/fnv"
	"io"
	"log"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/board"
	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/logic/weighted"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/registry"
	"bingoboard.ai/internal/bingo/win"
)

var (
	ErrUnknownGame      = errors.New("unknown game")
	ErrGameInactive     = errors.New("game is disabled")
	ErrTooFewChallenges = errors.New("game has fewer than 25 challenges")
)

type Player = win.Player

type Config struct {
	// Seed mixes into every player's board stream and the reward stream.
	Seed   uint64
	Hooks  win.Hooks
	Logger *log.Logger
	// OnWin receives every outcome that paid out. A claim-mode line that was
	// already claimed is not repeated.
	OnWin func(win.Outcome)
	// BeforeWipe sees the store just before a game is cleared for every
	// player, with reason "win", "disable" or "admin".
	BeforeWipe func(gameID, reason string)
}

type Engine struct {
	reg    *registry.Registry
	store  *progress.Store
	win    *win.Evaluator
	logger *log.Logger
	seed   uint64
	onWin  func(win.Outcome)
	wipe   func(gameID, reason string)

	// mu guards rngs and serializes board generation.
	mu   sync.Mutex
	rngs map[uuid.UUID]*rand.Rand
}

func New(reg *registry.Registry, store *progress.Store, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		reg:    reg,
		store:  store,
		logger: logger,
		seed:   cfg.Seed,
		onWin:  cfg.OnWin,
		wipe:   cfg.BeforeWipe,
		rngs:   map[uuid.UUID]*rand.Rand{},
		win: &win.Evaluator{
			Store:   store,
			Toggler: reg,
			Hooks:   cfg.Hooks,
			Rand:    weighted.NewLocked(cfg.Seed, 0x5eed),
			Logger:  logger,

			BeforeWipe: cfg.BeforeWipe,
		},
	}
}

func (e *Engine) Registry() *registry.Registry { return e.reg }
func (e *Engine) Store() *progress.Store       { return e.store }

// rngLocked returns the player's board stream. Streams are created on first
// use and advance across resets, so a regenerated board may differ.
func (e *Engine) rngLocked(p uuid.UUID) *rand.Rand {
	r := e.rngs[p]
	if r == nil {
		h := fnv.New64a()
		_, _ = h.Write(p[:])
		r = rand.New(rand.NewPCG(e.seed, h.Sum64()))
		e.rngs[p] = r
	}
	return r
}

// EnsureBoard returns the player's stored board for the game, generating and
// storing one when there is none. ok is false for unknown games.
func (e *Engine) EnsureBoard(p uuid.UUID, gameID string) (board.Board, bool) {
	g, ok := e.reg.Get(gameID)
	if !ok {
		return board.Board{}, false
	}
	return e.ensureBoard(p, g), true
}

func (e *Engine) ensureBoard(p uuid.UUID, g *defs.Game) board.Board {
	if b, ok := e.store.Board(p, g.ID); ok {
		return b
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.store.Board(p, g.ID); ok {
		return b
	}
	b := board.Generate(g, e.rngLocked(p))
	e.store.SetBoard(p, g.ID, b)
	return b
}

// OpenBoard checks that the game can be played and ensures the player's board.
func (e *Engine) OpenBoard(p uuid.UUID, gameID string) (board.Board, error) {
	g, err := e.playable(gameID)
	if err != nil {
		return board.Board{}, err
	}
	return e.ensureBoard(p, g), nil
}

func (e *Engine) playable(gameID string) (*defs.Game, error) {
	g, ok := e.reg.Get(gameID)
	if !ok {
		return nil, ErrUnknownGame
	}
	if !g.Active {
		return nil, ErrGameInactive
	}
	if !g.Playable() {
		return nil, ErrTooFewChallenges
	}
	return g, nil
}

// CheckWin runs win handling for the player and game. Ingestion calls it
// automatically; hosts that complete challenges through the store directly
// call it themselves.
func (e *Engine) CheckWin(p Player, gameID string) win.Outcome {
	g, ok := e.reg.Get(gameID)
	if !ok {
		return win.Outcome{}
	}
	return e.handleWin(p, g)
}

func (e *Engine) handleWin(p Player, g *defs.Game) win.Outcome {
	out := e.win.Handle(p, g)
	if out.Won() && e.onWin != nil {
		e.onWin(out)
	}
	return out
}

// EnableGame marks the game active. Reports false for unknown games.
func (e *Engine) EnableGame(gameID string) bool {
	return e.reg.SetActive(gameID, true)
}

// DisableGame marks the game inactive and wipes every player's state for it.
func (e *Engine) DisableGame(gameID string) bool {
	if !e.reg.SetActive(gameID, false) {
		return false
	}
	n := e.wipeGame(gameID, "disable")
	e.logger.Printf("disabled game %s, reset %d players", gameID, n)
	return true
}

// ResetGameForAll clears the game for every player and returns how many had
// state for it.
func (e *Engine) ResetGameForAll(gameID string) int {
	return e.wipeGame(gameID, "admin")
}

func (e *Engine) wipeGame(gameID, reason string) int {
	if e.wipe != nil {
		e.wipe(gameID, reason)
	}
	return e.store.ResetGameForAllPlayers(gameID)
}

// Prune drops progress for games or challenges no loaded definition knows.
func (e *Engine) Prune() int {
	return e.store.Prune(func(k progress.Key) bool {
		g, ok := e.reg.Get(k.Game)
		if !ok {
			return false
		}
		_, ok = g.Challenge(k.Challenge)
		return ok
	})
}
