package win

import (
	"io"
	"log"
	"strings"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/logic/weighted"
	"bingoboard.ai/internal/bingo/progress"
)

type Player struct {
	ID   uuid.UUID
	Name string
}

// Hooks deliver win side effects to the host.
type Hooks interface {
	Reward(p Player, gameID, action string)
	Broadcast(gameID, msg string)
}

type NopHooks struct{}

func (NopHooks) Reward(Player, string, string) {}
func (NopHooks) Broadcast(string, string)      {}

// Toggler flips a game's active flag; the registry implements it.
type Toggler interface {
	SetActive(gameID string, active bool) bool
}

// Outcome describes what a win check did. Line is false when no allowed line
// is complete; every other field is then zero.
type Outcome struct {
	Player    uuid.UUID `json:"player"`
	Name      string    `json:"name,omitempty"`
	Game      string    `json:"game"`
	Line      bool      `json:"line"`
	Reward    string    `json:"reward,omitempty"`
	Reset     bool      `json:"reset,omitempty"`
	Claimed   bool      `json:"claimed,omitempty"`
	Broadcast string    `json:"broadcast,omitempty"`
	Disabled  bool      `json:"disabled,omitempty"`
}

// Won reports whether the outcome paid out: the board was reset or the
// reward was claimed for the first time.
func (o Outcome) Won() bool { return o.Reset || o.Claimed }

// HasLine reports whether done contains a complete row, column or diagonal of
// an allowed type. Both diagonals count as the single diagonal line type.
func HasLine(done [defs.BoardSize]bool, lines defs.LineSet) bool {
	const w = defs.BoardWidth
	if lines.Horizontal {
		for r := 0; r < w; r++ {
			if all(func(i int) bool { return done[r*w+i] }) {
				return true
			}
		}
	}
	if lines.Vertical {
		for c := 0; c < w; c++ {
			if all(func(i int) bool { return done[i*w+c] }) {
				return true
			}
		}
	}
	if lines.Diagonal {
		main := all(func(i int) bool { return done[i*w+i] })
		anti := all(func(i int) bool { return done[i*w+(w-1-i)] })
		if main || anti {
			return true
		}
	}
	return false
}

func all(cell func(i int) bool) bool {
	for i := 0; i < defs.BoardWidth; i++ {
		if !cell(i) {
			return false
		}
	}
	return true
}

type Evaluator struct {
	Store   *progress.Store
	Toggler Toggler
	Hooks   Hooks
	// Rand picks rewards; it is shared by every player.
	Rand   weighted.Rand
	Logger *log.Logger
	// BeforeWipe runs before a reset-on-completion win clears the game.
	BeforeWipe func(gameID, reason string)
}

func (e *Evaluator) logger() *log.Logger {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return e.Logger
}

func (e *Evaluator) hooks() Hooks {
	if e.Hooks == nil {
		return NopHooks{}
	}
	return e.Hooks
}

// Grid marks each board position whose challenge the player has completed.
// ok is false when the player has no board for the game.
func (e *Evaluator) Grid(p uuid.UUID, gameID string) (done [defs.BoardSize]bool, ok bool) {
	b, ok := e.Store.Board(p, gameID)
	if !ok {
		return done, false
	}
	for i, cid := range b {
		done[i] = cid != "" && e.Store.IsCompleted(p, progress.NewKey(gameID, cid))
	}
	return done, true
}

// Evaluate reports whether the player currently has an allowed line.
func (e *Evaluator) Evaluate(p uuid.UUID, g *defs.Game) bool {
	done, ok := e.Grid(p, g.ID)
	return ok && HasLine(done, g.Lines)
}

// Handle checks for a line and applies the game's completion policy:
//   - reset on completion: reward the player, then wipe the game for everyone.
//   - otherwise: reward and broadcast once per player until that player is reset.
//
// DisableOnCompletion deactivates the game in both modes.
func (e *Evaluator) Handle(p Player, g *defs.Game) Outcome {
	if g == nil || !e.Evaluate(p.ID, g) {
		return Outcome{}
	}
	out := Outcome{Player: p.ID, Name: p.Name, Game: g.ID, Line: true}
	if g.ResetOnCompletion {
		out.Reward = e.reward(p, g)
		if e.BeforeWipe != nil {
			e.BeforeWipe(g.ID, "win")
		}
		n := e.Store.ResetGameForAllPlayers(g.ID)
		out.Reset = true
		e.logger().Printf("win game=%s player=%s reset %d players", g.ID, p.ID, n)
	} else if !e.Store.HasClaimedReward(p.ID, g.ID) {
		e.Store.MarkClaimedReward(p.ID, g.ID)
		out.Claimed = true
		out.Reward = e.reward(p, g)
		if msg := FormatCompletion(g.CompletionMessage, p.Name, g.ID); msg != "" {
			out.Broadcast = msg
			e.hooks().Broadcast(g.ID, msg)
		}
		e.logger().Printf("win game=%s player=%s claimed", g.ID, p.ID)
	}
	if g.DisableOnCompletion && e.Toggler != nil {
		out.Disabled = e.Toggler.SetActive(g.ID, false)
	}
	return out
}

func (e *Evaluator) reward(p Player, g *defs.Game) string {
	action, ok := ChooseReward(g.OnCompletion, e.Rand)
	if !ok {
		return ""
	}
	e.hooks().Reward(p, g.ID, action)
	return action
}

// ChooseReward draws one action by weight among actions with a non-blank
// payload. ok is false when there is nothing to draw.
func ChooseReward(actions []defs.WeightedAction, r weighted.Rand) (string, bool) {
	pool := make([]defs.WeightedAction, 0, len(actions))
	for _, a := range actions {
		if strings.TrimSpace(a.Action) != "" {
			pool = append(pool, a)
		}
	}
	if r == nil || len(pool) == 0 {
		return "", false
	}
	i := weighted.Pick(pool, defs.WeightedAction.EffectiveWeight, r)
	if i < 0 {
		return "", false
	}
	return pool[i].Action, true
}

// FormatCompletion fills %player% and %game%. A blank template yields "".
func FormatCompletion(tmpl, playerName, gameID string) string {
	if strings.TrimSpace(tmpl) == "" {
		return ""
	}
	return strings.NewReplacer("%player%", playerName, "%game%", gameID).Replace(tmpl)
}

// TranslateColorCodes turns '&' colour codes into section-sign codes.
func TranslateColorCodes(s string) string {
	return strings.ReplaceAll(s, "&", "§")
}
