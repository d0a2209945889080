package registry

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/logic/keys"
)

// LoadError records a definition that was skipped during a reload.
type LoadError struct {
	Name string
	Err  error
}

func (e LoadError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e LoadError) Unwrap() error { return e.Err }

// set is immutable once published.
type set struct {
	games map[string]*defs.Game
	ids   []string
	// ids whose active flag was toggled at runtime, with the digest it applies to
	toggled map[string]string
	errs    []LoadError
}

func (s *set) with(id string, g *defs.Game) *set {
	next := &set{
		games:   make(map[string]*defs.Game, len(s.games)),
		ids:     s.ids,
		toggled: make(map[string]string, len(s.toggled)+1),
		errs:    s.errs,
	}
	for k, v := range s.games {
		next.games[k] = v
	}
	for k, v := range s.toggled {
		next.toggled[k] = v
	}
	next.games[id] = g
	next.toggled[id] = g.Digest
	return next
}

// Registry holds the current definition set. Readers never lock; reload and
// active-flag toggles publish a new set.
type Registry struct {
	src       Source
	validator *defs.Validator
	logger    *log.Logger

	mu  sync.Mutex
	cur atomic.Pointer[set]
}

func New(src Source, validator *defs.Validator, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Registry{src: src, validator: validator, logger: logger}
	r.cur.Store(&set{games: map[string]*defs.Game{}, ids: []string{keys.DefaultGameID}})
	return r
}

// Reload re-reads every definition and atomically replaces the set. A file that
// cannot be read or parsed is skipped and recorded. A failure to list the
// source keeps the previous set. With no valid definition the id set is the
// synthetic "default" id with no backing definition.
//
// A runtime active toggle survives reload while the definition's bytes are
// unchanged; an edited file resets the flag to the file's value.
func (r *Registry) Reload(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	old := r.cur.Load()
	next := &set{games: map[string]*defs.Game{}, toggled: map[string]string{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := keys.NormalizeGameID(IDFromName(name))
		if _, dup := next.games[id]; dup {
			next.errs = append(next.errs, LoadError{Name: name, Err: fmt.Errorf("duplicate game id %q", id)})
			continue
		}
		raw, err := r.src.Read(ctx, name)
		if err != nil {
			next.errs = append(next.errs, LoadError{Name: name, Err: err})
			continue
		}
		g, err := defs.Parse(id, raw, r.validator)
		if err != nil {
			next.errs = append(next.errs, LoadError{Name: name, Err: err})
			continue
		}
		if unknown := g.UnknownTypes(); len(unknown) > 0 {
			r.logger.Printf("game %s: unknown challenge types %s", id, strings.Join(unknown, ", "))
		}
		if digest, ok := old.toggled[id]; ok && digest == g.Digest {
			if prev := old.games[id]; prev != nil {
				g = g.WithActive(prev.Active)
				next.toggled[id] = digest
			}
		}
		next.games[id] = g
	}
	for _, le := range next.errs {
		r.logger.Printf("skip definition %v", le)
	}
	for id := range next.games {
		next.ids = append(next.ids, id)
	}
	sort.Strings(next.ids)
	if len(next.ids) == 0 {
		next.ids = []string{keys.DefaultGameID}
	}
	r.cur.Store(next)
	r.logger.Printf("loaded %d definitions (%d skipped)", len(next.games), len(next.errs))
	return append([]string(nil), next.ids...), nil
}

// Get returns the definition for a game id in any casing.
func (r *Registry) Get(id string) (*defs.Game, bool) {
	g, ok := r.cur.Load().games[keys.NormalizeGameID(id)]
	return g, ok
}

// IDs returns the current sorted id set; never empty.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.cur.Load().ids...)
}

// Games returns the loaded definitions ordered by id.
func (r *Registry) Games() []*defs.Game {
	s := r.cur.Load()
	out := make([]*defs.Game, 0, len(s.games))
	for _, id := range s.ids {
		if g := s.games[id]; g != nil {
			out = append(out, g)
		}
	}
	return out
}

// SetActive flips a game's active flag. Reports false for unknown games.
func (r *Registry) SetActive(id string, active bool) bool {
	id = keys.NormalizeGameID(id)
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.cur.Load()
	g, ok := cur.games[id]
	if !ok {
		return false
	}
	if g.Active != active {
		r.logger.Printf("game %s active=%v", id, active)
	}
	r.cur.Store(cur.with(id, g.WithActive(active)))
	return true
}

// Errors returns the definitions skipped by the last reload.
func (r *Registry) Errors() []LoadError {
	return append([]LoadError(nil), r.cur.Load().errs...)
}
