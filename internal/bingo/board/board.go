package board

import (
	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/logic/weighted"
)

// Board is a player's assignment of challenge ids to the 25 positions, row-major.
// An empty id is an empty slot.
type Board [defs.BoardSize]string

// FromSlice converts a stored board. Anything not exactly 25 long is rejected.
func FromSlice(ids []string) (Board, bool) {
	var b Board
	if len(ids) != defs.BoardSize {
		return b, false
	}
	copy(b[:], ids)
	return b, true
}

func (b Board) Slice() []string {
	return append([]string(nil), b[:]...)
}

// Filled counts non-empty slots.
func (b Board) Filled() int {
	n := 0
	for _, id := range b {
		if id != "" {
			n++
		}
	}
	return n
}

func challengeWeight(c *defs.Challenge) int { return c.EffectiveWeight() }

// Generate builds a fresh board for g using r as the player's random stream.
func Generate(g *defs.Game, r weighted.Rand) Board {
	if g.Randomized {
		return randomized(g, r)
	}
	return bySlot(g, r)
}

// bySlot places challenges at their fixed slot; several challenges sharing a
// slot are resolved with a weighted draw.
func bySlot(g *defs.Game, r weighted.Rand) Board {
	var candidates [defs.BoardSize][]*defs.Challenge
	for _, c := range g.Eligible() {
		if s, ok := c.FixedSlot(); ok {
			candidates[s] = append(candidates[s], c)
		}
	}
	var b Board
	for pos, cs := range candidates {
		switch len(cs) {
		case 0:
		case 1:
			b[pos] = cs[0].ID
		default:
			b[pos] = cs[weighted.Pick(cs, challengeWeight, r)].ID
		}
	}
	return b
}

// randomized selects up to 25 challenges (all of them when there are no more
// than 25, otherwise weighted draws without replacement) and scatters them over
// a random permutation of positions.
func randomized(g *defs.Game, r weighted.Rand) Board {
	eligible := g.Eligible()
	selected := eligible
	if len(eligible) > defs.BoardSize {
		selected = weighted.Sample(eligible, defs.BoardSize, challengeWeight, r)
	}
	positions := weighted.Perm(defs.BoardSize, r)
	var b Board
	for i, c := range selected {
		b[positions[i]] = c.ID
	}
	return b
}
