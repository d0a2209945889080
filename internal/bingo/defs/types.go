package defs

import (
	"strings"

	"bingoboard.ai/internal/bingo/logic/keys"
	"bingoboard.ai/internal/bingo/logic/weighted"
)

const (
	BoardSize     = 25
	BoardWidth    = 5
	MinChallenges = BoardSize

	DefaultName              = "Bingo"
	DefaultCompletionMessage = "&a%player% completed &e%game%&a!"
)

type ChallengeType string

const (
	TypeCatch       ChallengeType = "catch"
	TypeCollect     ChallengeType = "collect"
	TypeEnterArea   ChallengeType = "enterarea"
	TypeCustom      ChallengeType = "custom"
	TypePlaceholder ChallengeType = "placeholder"
)

// IsKnown reports whether t is one of the built-in types. Unknown types are
// kept on load; they simply never match an ingestion category.
func (t ChallengeType) IsKnown() bool {
	switch t {
	case TypeCatch, TypeCollect, TypeEnterArea, TypeCustom, TypePlaceholder:
		return true
	default:
		return false
	}
}

type LineType string

const (
	LineHorizontal LineType = "horizontal"
	LineVertical   LineType = "vertical"
	LineDiagonal   LineType = "diagonal"
)

// LineSet is the allow-list of line types that can win a game.
type LineSet struct {
	Horizontal bool
	Vertical   bool
	Diagonal   bool
}

func AllLines() LineSet { return LineSet{Horizontal: true, Vertical: true, Diagonal: true} }

// ParseLineSet reads a completion list. An empty list enables every line type;
// unrecognized entries are ignored.
func ParseLineSet(list []string) LineSet {
	if len(list) == 0 {
		return AllLines()
	}
	var ls LineSet
	for _, s := range list {
		switch LineType(keys.TypeName(s)) {
		case LineHorizontal:
			ls.Horizontal = true
		case LineVertical:
			ls.Vertical = true
		case LineDiagonal:
			ls.Diagonal = true
		}
	}
	return ls
}

// WeightedAction is a completion reward candidate. The action payload is opaque
// to the engine and handed to the host's reward hook.
type WeightedAction struct {
	Action string `yaml:"command" json:"command"`
	Weight *int   `yaml:"weight,omitempty" json:"weight,omitempty"`
}

func (a WeightedAction) EffectiveWeight() int { return weighted.Effective(deref(a.Weight)) }

type Properties struct {
	// catch
	PokemonType []string `yaml:"pokemonType,omitempty" json:"pokemonType,omitempty"`
	Pokemon     []string `yaml:"pokemon,omitempty" json:"pokemon,omitempty"`

	// collect
	Item string `yaml:"item,omitempty" json:"item,omitempty"`

	// goal for every type
	Number *int `yaml:"number,omitempty" json:"number,omitempty"`

	// environment filters, evaluated by the host
	Dimension string `yaml:"dimension,omitempty" json:"dimension,omitempty"`
	IsRaining *bool  `yaml:"isRaining,omitempty" json:"isRaining,omitempty"`

	// enterarea
	X *int `yaml:"x,omitempty" json:"x,omitempty"`
	Y *int `yaml:"y,omitempty" json:"y,omitempty"`
	Z *int `yaml:"z,omitempty" json:"z,omitempty"`
}

type Challenge struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name,omitempty" json:"name,omitempty"`
	Type       string      `yaml:"type,omitempty" json:"type,omitempty"`
	Icon       string      `yaml:"icon,omitempty" json:"icon,omitempty"`
	Lore       []string    `yaml:"lore,omitempty" json:"lore,omitempty"`
	Weight     *int        `yaml:"weight,omitempty" json:"weight,omitempty"`
	Slot       *int        `yaml:"slot,omitempty" json:"slot,omitempty"`
	Properties *Properties `yaml:"properties,omitempty" json:"properties,omitempty"`
}

func (c *Challenge) Kind() ChallengeType {
	if c == nil {
		return ""
	}
	return ChallengeType(keys.TypeName(c.Type))
}

// Goal is the progress needed to complete c; never below 1.
func (c *Challenge) Goal() int {
	if c == nil || c.Properties == nil || c.Properties.Number == nil || *c.Properties.Number <= 0 {
		return 1
	}
	return *c.Properties.Number
}

func (c *Challenge) EffectiveWeight() int {
	if c == nil {
		return 1
	}
	return weighted.Effective(deref(c.Weight))
}

// FixedSlot returns the configured board position when it is within the board.
func (c *Challenge) FixedSlot() (int, bool) {
	if c == nil || c.Slot == nil {
		return 0, false
	}
	s := *c.Slot
	if s < 0 || s >= BoardSize {
		return 0, false
	}
	return s, true
}

// Ambiguous reports a catch challenge that lists both species and type names.
func (c *Challenge) Ambiguous() bool {
	p := c.Properties
	return p != nil && len(p.Pokemon) > 0 && len(p.PokemonType) > 0
}

// Target returns the enter-area coordinates when all three are set.
func (c *Challenge) Target() (x, y, z int, ok bool) {
	p := c.Properties
	if p == nil || p.X == nil || p.Y == nil || p.Z == nil {
		return 0, 0, 0, false
	}
	return *p.X, *p.Y, *p.Z, true
}

// Game is one bingo definition. A loaded Game is treated as immutable; runtime
// changes (the active flag) are made on copies by the registry.
type Game struct {
	ID string `yaml:"-" json:"id"`

	Name                string           `yaml:"name" json:"name"`
	Randomized          bool             `yaml:"isRandomized" json:"isRandomized"`
	Active              bool             `yaml:"isActive" json:"isActive"`
	ResetOnCompletion   bool             `yaml:"doesResetOnCompletion" json:"doesResetOnCompletion"`
	Completion          []string         `yaml:"completion" json:"completion"`
	CompletionMessage   string           `yaml:"completionMessage" json:"completionMessage"`
	DisableOnCompletion bool             `yaml:"disableOnCompletion" json:"disableOnCompletion"`
	OnCompletion        []WeightedAction `yaml:"onCompletion" json:"onCompletion"`
	Challenges          []Challenge      `yaml:"challenges" json:"challenges"`

	// Derived by Index.
	Lines        LineSet `yaml:"-" json:"-"`
	Digest       string  `yaml:"-" json:"digest,omitempty"`
	HasCatch     bool    `yaml:"-" json:"-"`
	HasCollect   bool    `yaml:"-" json:"-"`
	HasEnterArea bool    `yaml:"-" json:"-"`

	byID   map[string]int
	dupIDs []string
}

// New returns a Game carrying the defaults a definition file starts from.
func New(id string) *Game {
	return &Game{
		ID:                keys.NormalizeGameID(id),
		Name:              DefaultName,
		Active:            true,
		ResetOnCompletion: true,
		CompletionMessage: DefaultCompletionMessage,
	}
}

// Index trims challenge ids and builds the lookup table and category flags.
// Safe to call more than once.
func (g *Game) Index() {
	g.ID = keys.NormalizeGameID(g.ID)
	g.Lines = ParseLineSet(g.Completion)
	g.byID = make(map[string]int, len(g.Challenges))
	g.HasCatch, g.HasCollect, g.HasEnterArea = false, false, false
	g.dupIDs = nil
	for i := range g.Challenges {
		ch := &g.Challenges[i]
		ch.ID = keys.NormalizeChallengeID(ch.ID)
		if ch.Type == "" {
			ch.Type = string(TypePlaceholder)
		}
		if ch.ID != "" {
			if _, dup := g.byID[ch.ID]; dup {
				g.dupIDs = append(g.dupIDs, ch.ID)
			} else {
				g.byID[ch.ID] = i
			}
		}
		switch ch.Kind() {
		case TypeCatch:
			g.HasCatch = true
		case TypeCollect:
			if ch.Properties != nil && strings.TrimSpace(ch.Properties.Item) != "" {
				g.HasCollect = true
			}
		case TypeEnterArea:
			g.HasEnterArea = true
		}
	}
}

// Challenge looks up a challenge by trimmed id.
func (g *Game) Challenge(id string) (*Challenge, bool) {
	if g == nil {
		return nil, false
	}
	id = keys.NormalizeChallengeID(id)
	if id == "" {
		return nil, false
	}
	if g.byID == nil {
		for i := range g.Challenges {
			if keys.NormalizeChallengeID(g.Challenges[i].ID) == id {
				return &g.Challenges[i], true
			}
		}
		return nil, false
	}
	i, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return &g.Challenges[i], true
}

// DuplicateIDs lists ids that appeared more than once as of the last Index,
// once per extra occurrence.
func (g *Game) DuplicateIDs() []string {
	return append([]string(nil), g.dupIDs...)
}

// UnknownTypes lists "id=type" for challenges whose type is not built in.
func (g *Game) UnknownTypes() []string {
	var out []string
	for i := range g.Challenges {
		if k := g.Challenges[i].Kind(); !k.IsKnown() {
			out = append(out, g.Challenges[i].ID+"="+string(k))
		}
	}
	return out
}

// Eligible returns the challenges with a non-blank id, in definition order.
// Only the first entry of a repeated id is returned.
func (g *Game) Eligible() []*Challenge {
	out := make([]*Challenge, 0, len(g.Challenges))
	seen := make(map[string]bool, len(g.Challenges))
	for i := range g.Challenges {
		id := keys.NormalizeChallengeID(g.Challenges[i].ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, &g.Challenges[i])
	}
	return out
}

// Playable reports whether the definition has enough challenges to open a board.
func (g *Game) Playable() bool {
	return g != nil && len(g.Challenges) >= MinChallenges
}

// WithActive returns a shallow copy with the active flag replaced. Challenges and
// the index are shared; both are read-only after Index.
func (g *Game) WithActive(active bool) *Game {
	cp := *g
	cp.Active = active
	return &cp
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
