package engine

import (
	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/progress"
)

// Cell is one board position as a renderer needs it.
type Cell struct {
	Slot      int      `json:"slot"`
	Challenge string   `json:"challenge,omitempty"`
	Name      string   `json:"name,omitempty"`
	Type      string   `json:"type,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Lore      []string `json:"lore,omitempty"`
	Progress  int      `json:"progress"`
	Goal      int      `json:"goal"`
	Completed bool     `json:"completed"`
}

type View struct {
	Game    string               `json:"game"`
	Name    string               `json:"name"`
	Claimed bool                 `json:"claimed"`
	Cells   [defs.BoardSize]Cell `json:"cells"`
}

// View opens the board (same checks as OpenBoard) and resolves every slot.
// A completed cell reports at least its goal as progress.
func (e *Engine) View(p uuid.UUID, gameID string) (View, error) {
	g, err := e.playable(gameID)
	if err != nil {
		return View{}, err
	}
	b := e.ensureBoard(p, g)
	v := View{Game: g.ID, Name: g.Name, Claimed: e.store.HasClaimedReward(p, g.ID)}
	for i, cid := range b {
		cell := Cell{Slot: i, Challenge: cid}
		if c, ok := g.Challenge(cid); ok {
			k := progress.NewKey(g.ID, c.ID)
			cell.Name = c.Name
			cell.Type = string(c.Kind())
			cell.Icon = c.Icon
			cell.Lore = c.Lore
			cell.Goal = c.Goal()
			cell.Progress = e.store.Progress(p, k)
			cell.Completed = e.store.IsCompleted(p, k)
			if cell.Completed {
				cell.Progress = max(cell.Progress, cell.Goal)
			}
		}
		v.Cells[i] = cell
	}
	return v, nil
}
