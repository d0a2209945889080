package engine

import (
	"strings"

	"bingoboard.ai/internal/bingo/board"
	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/logic/keys"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/win"
)

// EnvironmentFunc reports whether the player's surroundings satisfy a
// challenge's environment filters. A nil func matches everything.
type EnvironmentFunc func(c *defs.Challenge) bool

// Surroundings is a ready-made EnvironmentFunc source for hosts that know the
// player's dimension and weather.
type Surroundings struct {
	Dimension string
	Raining   bool
}

// Matches applies the dimension and rain filters. Custom challenges always match.
func (s Surroundings) Matches(c *defs.Challenge) bool {
	if c == nil || c.Kind() == defs.TypeCustom || c.Properties == nil {
		return true
	}
	if want := strings.TrimSpace(c.Properties.Dimension); want != "" && want != s.Dimension {
		return false
	}
	if c.Properties.IsRaining != nil && *c.Properties.IsRaining != s.Raining {
		return false
	}
	return true
}

type CatchEvent struct {
	// Species is the caught species id, "name" or "namespace:name".
	Species string
	Types   []string
}

type Position struct {
	X, Y, Z int
}

// Result summarizes one ingestion call.
type Result struct {
	Changed      bool
	CompletedAny bool
	// Games whose state changed; viewers of these boards should refresh.
	Games []string
	// Wins holds outcomes that paid out during this call.
	Wins []win.Outcome
}

func (r *Result) merge(gameID string, changed, completed bool) {
	if changed {
		r.Changed = true
		r.Games = append(r.Games, gameID)
	}
	if completed {
		r.CompletedAny = true
	}
}

type category int

const (
	catCatch category = iota
	catCollect
	catEnterArea
)

func (c category) relevant(g *defs.Game) bool {
	switch c {
	case catCatch:
		return g.HasCatch
	case catCollect:
		return g.HasCollect
	case catEnterArea:
		return g.HasEnterArea
	}
	return false
}

func (c category) kind() defs.ChallengeType {
	switch c {
	case catCatch:
		return defs.TypeCatch
	case catCollect:
		return defs.TypeCollect
	default:
		return defs.TypeEnterArea
	}
}

// step applies one event to one challenge and reports the new progress, or
// ok=false when the challenge does not change.
type step func(c *defs.Challenge, prev, goal int) (next int, ok bool)

func (e *Engine) targets(gameID string) []*defs.Game {
	if strings.TrimSpace(gameID) == "" {
		return e.reg.Games()
	}
	if g, ok := e.reg.Get(gameID); ok {
		return []*defs.Game{g}
	}
	return nil
}

// ingest walks every active relevant game, matches the player's board against
// the event, and runs win handling once per game that saw a completion. Each
// challenge id counts at most once per event.
func (e *Engine) ingest(p Player, gameID string, cat category, env EnvironmentFunc, apply step) Result {
	var res Result
	for _, g := range e.targets(gameID) {
		if !g.Active || !cat.relevant(g) {
			continue
		}
		b := e.ensureBoard(p.ID, g)
		changed, completed := e.applyBoard(p, g, b, cat, env, apply)
		res.merge(g.ID, changed, completed)
		if completed {
			if out := e.handleWin(p, g); out.Won() {
				res.Wins = append(res.Wins, out)
			}
		}
	}
	return res
}

func (e *Engine) applyBoard(p Player, g *defs.Game, b board.Board, cat category, env EnvironmentFunc, apply step) (changed, completed bool) {
	seen := make(map[string]bool, defs.BoardSize)
	for _, cid := range b {
		if cid == "" || seen[cid] {
			continue
		}
		seen[cid] = true
		c, ok := g.Challenge(cid)
		if !ok || c.Kind() != cat.kind() || c.Properties == nil {
			continue
		}
		if env != nil && !env(c) {
			continue
		}
		k := progress.NewKey(g.ID, c.ID)
		if e.store.IsCompleted(p.ID, k) {
			continue
		}
		goal := c.Goal()
		prev := e.store.Progress(p.ID, k)
		next, ok := apply(c, prev, goal)
		if !ok {
			continue
		}
		e.store.SetProgress(p.ID, k, next)
		changed = true
		if next >= goal {
			e.store.MarkCompleted(p.ID, k)
			completed = true
		}
	}
	return changed, completed
}

// Catch counts one capture toward catch challenges listing the species or one
// of its types. A challenge listing both is never matched.
func (e *Engine) Catch(p Player, ev CatchEvent, gameID string, env EnvironmentFunc) Result {
	species := keys.Namespaced(ev.Species, keys.SpeciesDefault)
	types := map[string]bool{}
	for _, t := range ev.Types {
		if n := keys.TypeName(t); n != "" {
			types[n] = true
		}
	}
	return e.ingest(p, gameID, catCatch, env, func(c *defs.Challenge, prev, goal int) (int, bool) {
		if c.Ambiguous() || prev >= goal || !catchMatches(c.Properties, species, types) {
			return 0, false
		}
		return prev + 1, true
	})
}

func catchMatches(props *defs.Properties, species string, types map[string]bool) bool {
	switch {
	case len(props.Pokemon) > 0:
		if species == "" {
			return false
		}
		for _, want := range props.Pokemon {
			if keys.Namespaced(want, keys.SpeciesDefault) == species {
				return true
			}
		}
	case len(props.PokemonType) > 0:
		for _, want := range props.PokemonType {
			if n := keys.TypeName(want); n != "" && types[n] {
				return true
			}
		}
	}
	return false
}

// Inventory raises collect progress to the held count of each challenge's
// item, clamped to the goal. Progress never decreases.
func (e *Engine) Inventory(p Player, counts map[string]int, gameID string, env EnvironmentFunc) Result {
	held := make(map[string]int, len(counts))
	for item, n := range counts {
		if id := keys.Namespaced(item, keys.ItemDefault); id != "" {
			held[id] += n
		}
	}
	return e.ingest(p, gameID, catCollect, env, func(c *defs.Challenge, prev, goal int) (int, bool) {
		item := keys.Namespaced(c.Properties.Item, keys.ItemDefault)
		if item == "" {
			return 0, false
		}
		next := max(prev, min(goal, max(0, held[item])))
		return next, next != prev
	})
}

// EnterArea completes enter-area challenges whose target is exactly pos.
func (e *Engine) EnterArea(p Player, pos Position, gameID string, env EnvironmentFunc) Result {
	return e.ingest(p, gameID, catEnterArea, env, func(c *defs.Challenge, _, goal int) (int, bool) {
		x, y, z, ok := c.Target()
		if !ok || x != pos.X || y != pos.Y || z != pos.Z {
			return 0, false
		}
		return goal, true
	})
}

// AdminGrant adds amount to any challenge by id, clamped to its goal, skipping
// type and environment checks. It reports false when nothing was applied: a
// non-positive amount, an unknown or inactive game, an unknown challenge, or
// a challenge already completed.
func (e *Engine) AdminGrant(p Player, gameID, challengeID string, amount int) bool {
	if amount <= 0 {
		return false
	}
	g, ok := e.reg.Get(gameID)
	if !ok || !g.Active {
		return false
	}
	c, ok := g.Challenge(challengeID)
	if !ok {
		return false
	}
	e.ensureBoard(p.ID, g)
	k := progress.NewKey(g.ID, c.ID)
	if e.store.IsCompleted(p.ID, k) {
		return false
	}
	goal := c.Goal()
	next := min(goal, e.store.Progress(p.ID, k)+amount)
	e.store.SetProgress(p.ID, k, next)
	if next >= goal {
		e.store.MarkCompleted(p.ID, k)
		e.handleWin(p, g)
	}
	return true
}

// AdminGrantAll grants the challenge in every active game defining it.
// matched counts games with the challenge, applied those that changed.
func (e *Engine) AdminGrantAll(p Player, challengeID string, amount int) (matched, applied int) {
	for _, g := range e.reg.Games() {
		if !g.Active {
			continue
		}
		if _, ok := g.Challenge(challengeID); !ok {
			continue
		}
		matched++
		if e.AdminGrant(p, g.ID, challengeID, amount) {
			applied++
		}
	}
	return matched, applied
}
