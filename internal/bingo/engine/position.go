package engine

import (
	"sync"

	"github.com/google/uuid"
)

// PositionTracker remembers each player's last block position so enter-area
// checks run only when a player moved or is seen for the first time.
type PositionTracker struct {
	mu   sync.Mutex
	last map[uuid.UUID]Position
}

func NewPositionTracker() *PositionTracker {
	return &PositionTracker{last: map[uuid.UUID]Position{}}
}

// Moved records pos and reports whether it differs from the previous one.
func (t *PositionTracker) Moved(p uuid.UUID, pos Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[p]
	t.last[p] = pos
	return !seen || prev != pos
}

func (t *PositionTracker) Forget(p uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, p)
}
