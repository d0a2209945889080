package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/engine"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/registry"
	"bingoboard.ai/internal/bingo/win"
	"bingoboard.ai/internal/config"
	"bingoboard.ai/internal/persistence/archive"
	"bingoboard.ai/internal/persistence/backend"
	"bingoboard.ai/internal/persistence/indexdb"
	persistlog "bingoboard.ai/internal/persistence/log"
	"bingoboard.ai/internal/persistence/r2s3"
	"bingoboard.ai/internal/persistence/snapshot"
	"bingoboard.ai/internal/transport/ws"
)

// host owns the engine and its side channels: persistence, win/audit logs and
// the reply stream. The run loop is the only caller of handle/tick.
type host struct {
	cfg    config.Config
	logger *log.Logger
	eng    *engine.Engine
	store  *progress.Store
	reg    *registry.Registry

	backend  backend.Backend
	idx      *indexdb.SQLiteIndex
	ownIdx   bool
	wins     *persistlog.WinLogger
	audit    *persistlog.AuditLogger
	tracker  *engine.PositionTracker
	outMu    sync.Mutex
	out      io.Writer
	ws       *ws.Server
	mirror   *r2s3.Mirror
	remote   chan event
	seq      uint64
	tickN    uint64
	inv      map[uuid.UUID]event
	pos      map[uuid.UUID]event
	winSinks []func(win.Outcome)
}

func newHost(ctx context.Context, cfg config.Config, out io.Writer, logger *log.Logger) (*host, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var mirror *r2s3.Mirror
	if cfg.Mirror.Enabled() {
		c, err := r2s3.New(r2s3.Options{
			Endpoint:        cfg.Mirror.Endpoint,
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		mirror = r2s3.NewMirror(c, cfg.DataDir, cfg.Mirror.Prefix, cfg.Mirror.Workers, logger)
	}
	b, err := backend.Open(ctx, backend.Options{
		Kind:        cfg.Store,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		mirror.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	h := &host{
		cfg:     cfg,
		logger:  logger,
		backend: b,
		mirror:  mirror,
		store:   progress.NewStore(),
		tracker: engine.NewPositionTracker(),
		out:     out,
		inv:     map[uuid.UUID]event{},
		pos:     map[uuid.UUID]event{},
	}
	if h.idx, h.ownIdx, err = openWinIndex(cfg, b); err != nil {
		mirror.Close()
		_ = b.Close()
		return nil, fmt.Errorf("open win index: %w", err)
	}
	h.wins = persistlog.NewWinLogger(cfg.DataDir)
	if cfg.AuditLog {
		h.audit = persistlog.NewAuditLogger(cfg.DataDir)
	}
	h.winSinks = h.buildWinSinks(ctx)

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
		logger.Printf("no seed configured; using %d", seed)
	}
	h.reg = registry.New(registry.DirSource{Dir: cfg.DefinitionsDir}, defs.MustValidator(), logger)
	h.eng = engine.New(h.reg, h.store, engine.Config{
		Seed:   seed,
		Hooks:  hostHooks{h: h},
		Logger: logger,
		OnWin:  h.recordWin,

		BeforeWipe: h.archiveRound,
	})

	if _, err := h.reload(ctx); err != nil {
		h.Close()
		return nil, err
	}
	found, err := backend.Restore(ctx, b, h.store)
	if err != nil {
		h.Close()
		return nil, err
	}
	if found {
		logger.Printf("restored %d players from %s store", len(h.store.KnownPlayers()), cfg.Store)
	}
	return h, nil
}

func (h *host) buildWinSinks(ctx context.Context) []func(win.Outcome) {
	sinks := []func(win.Outcome){
		func(o win.Outcome) {
			if err := h.wins.WriteWin(o); err != nil {
				h.logger.Printf("win log: %v", err)
			}
		},
	}
	if h.idx != nil {
		sinks = append(sinks, h.idx.RecordWin)
	}
	if rw, ok := h.backend.(winRecorder); ok {
		sinks = append(sinks, func(o win.Outcome) {
			if err := rw.RecordWin(ctx, o); err != nil {
				h.logger.Printf("win stream: %v", err)
			}
		})
	}
	return sinks
}

// archiveRound copies the game's state aside before a game-wide wipe.
func (h *host) archiveRound(gameID, reason string) {
	if !h.cfg.ArchiveRounds {
		return
	}
	round, path, ok, err := archive.ArchiveRound(h.cfg.DataDir, gameID, reason, h.store.Snapshot())
	if err != nil {
		h.logger.Printf("archive %s: %v", gameID, err)
		return
	}
	if ok {
		h.logger.Printf("archived %s round %d (%s) to %s", gameID, round, reason, path)
		h.mirror.Enqueue(path, filepath.Join(filepath.Dir(path), "meta.json"))
	}
}

func (h *host) recordWin(o win.Outcome) {
	for _, sink := range h.winSinks {
		sink(o)
	}
}

func (h *host) reload(ctx context.Context) ([]string, error) {
	ids, err := h.reg.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	for _, le := range h.reg.Errors() {
		h.logger.Printf("definition %v", le)
	}
	if h.idx != nil {
		if err := h.idx.UpsertDefinitions(ctx, h.reg.Games()); err != nil {
			h.logger.Printf("index definitions: %v", err)
		}
	}
	h.logger.Printf("loaded games: %v", ids)
	return ids, nil
}

var errQueueFull = errors.New("event queue full")

// attach serves remote producers through s. Replies are published to every
// client and Run keeps going after the local feed ends.
func (h *host) attach(s *ws.Server) {
	h.ws = s
	h.remote = make(chan event, 1024)
}

// submit decodes one event from a remote client and queues it for Run.
func (h *host) submit(raw []byte) error {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("bad event: %w", err)
	}
	select {
	case h.remote <- ev:
		return nil
	default:
		return errQueueFull
	}
}

// Run consumes the feed until EOF or ctx is done, ticking at cfg.Tick(). With
// remote producers attached it runs until ctx is done; a nil feed is allowed.
// Pending throttled events are applied and state is flushed before returning.
func (h *host) Run(ctx context.Context, feed io.Reader) error {
	lines := make(chan event, 256)
	readErr := make(chan error, 1)
	if feed == nil {
		close(lines)
		readErr <- nil
	} else {
		go h.readFeed(ctx, feed, lines, readErr)
	}

	ticker := time.NewTicker(h.cfg.Tick())
	defer ticker.Stop()
	defer h.drain()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.tick(ctx)
		case ev := <-h.remote:
			h.handle(ctx, ev)
		case ev, ok := <-lines:
			if ok {
				h.handle(ctx, ev)
				continue
			}
			if err := <-readErr; err != nil {
				return fmt.Errorf("read feed: %w", err)
			}
			if h.remote == nil {
				return nil
			}
			lines = nil
		}
	}
}

// readFeed decodes JSONL events into lines. readErr always receives exactly
// one value before lines is closed.
func (h *host) readFeed(ctx context.Context, feed io.Reader, lines chan<- event, readErr chan<- error) {
	defer close(lines)
	sc := bufio.NewScanner(feed)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			h.logger.Printf("bad event line: %v", err)
			continue
		}
		select {
		case lines <- ev:
		case <-ctx.Done():
			readErr <- nil
			return
		}
	}
	readErr <- sc.Err()
}

// drain applies everything still throttled and saves.
func (h *host) drain() {
	h.applyInventories()
	h.applyPositions()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.flush(ctx)
}

func (h *host) tick(ctx context.Context) {
	h.tickN++
	if h.tickN%uint64(h.cfg.CollectEveryTicks) == 0 {
		h.applyInventories()
	}
	if h.tickN%uint64(h.cfg.EnterAreaEveryTicks) == 0 {
		h.applyPositions()
	}
	if h.tickN%uint64(h.cfg.FlushEveryTicks) == 0 {
		h.flush(ctx)
	}
}

func (h *host) flush(ctx context.Context) {
	saved, err := backend.Flush(ctx, h.backend, h.store)
	if err != nil {
		h.logger.Printf("flush: %v", err)
		return
	}
	if saved {
		h.logger.Printf("saved state (%d players)", len(h.store.KnownPlayers()))
		if fs, ok := h.backend.(*snapshot.FileStore); ok {
			h.mirror.Enqueue(fs.Path)
		}
	}
	if h.idx != nil {
		if err := h.idx.Flush(ctx); err != nil {
			h.logger.Printf("win index flush: %v", err)
		}
	}
}

func (h *host) applyInventories() {
	for _, p := range sortedKeys(h.inv) {
		ev := h.inv[p]
		delete(h.inv, p)
		res := h.eng.Inventory(ev.player(), ev.Items, ev.Game, ev.env())
		h.emitResult(ev, res)
	}
}

func (h *host) applyPositions() {
	for _, p := range sortedKeys(h.pos) {
		ev := h.pos[p]
		delete(h.pos, p)
		pos := engine.Position{X: ev.X, Y: ev.Y, Z: ev.Z}
		if !h.tracker.Moved(p, pos) {
			continue
		}
		res := h.eng.EnterArea(ev.player(), pos, ev.Game, ev.env())
		h.emitResult(ev, res)
	}
}

func sortedKeys[V any](m map[uuid.UUID]V) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// handle dispatches one feed event. Inventory and position events are
// throttled: only the latest per player is kept until its scan tick.
func (h *host) handle(ctx context.Context, ev event) {
	switch ev.Type {
	case evCatch:
		res := h.eng.Catch(ev.player(), engine.CatchEvent{Species: ev.Species, Types: ev.Types}, ev.Game, ev.env())
		h.emitResult(ev, res)
	case evInventory:
		h.inv[ev.Player] = ev
	case evPosition:
		h.pos[ev.Player] = ev
	case evLeave:
		delete(h.inv, ev.Player)
		delete(h.pos, ev.Player)
		h.tracker.Forget(ev.Player)
		h.emit(reply{Type: ev.Type, OK: true, Player: ev.Player.String()})
	case evGrant:
		h.grant(ev)
	case evEnable, evDisable:
		var ok bool
		if ev.Type == evEnable {
			ok = h.eng.EnableGame(ev.Game)
		} else {
			ok = h.eng.DisableGame(ev.Game)
		}
		h.auditEvent(ev, "")
		h.emit(reply{Type: ev.Type, OK: ok, Game: ev.Game, Error: unknownIf(!ok, ev.Game)})
	case evReload:
		ids, err := h.reload(ctx)
		h.auditEvent(ev, fmt.Sprintf("%d games", len(ids)))
		h.emit(reply{Type: ev.Type, OK: err == nil, Error: errString(err), IDs: ids})
	case evResetGame:
		h.store.ResetGameForPlayer(ev.Player, ev.Game)
		h.auditEvent(ev, "")
		h.emit(reply{Type: ev.Type, OK: true, Player: ev.Player.String(), Game: ev.Game})
	case evResetGameAll:
		n := h.eng.ResetGameForAll(ev.Game)
		h.auditEvent(ev, fmt.Sprintf("%d players", n))
		h.emit(reply{Type: ev.Type, OK: true, Game: ev.Game, Count: n})
	case evResetChallenge:
		h.store.ResetChallengeForPlayer(ev.Player, ev.Challenge, ev.gameScope())
		h.auditEvent(ev, ev.Challenge)
		h.emit(reply{Type: ev.Type, OK: true, Player: ev.Player.String(), Game: ev.Game})
	case evResetChallengeAll:
		n := h.store.ResetChallengeForAllPlayers(ev.Challenge, ev.gameScope())
		h.auditEvent(ev, ev.Challenge)
		h.emit(reply{Type: ev.Type, OK: true, Game: ev.Game, Count: n})
	case evOpen:
		v, err := h.eng.View(ev.Player, ev.Game)
		if err != nil {
			h.emit(reply{Type: ev.Type, Player: ev.Player.String(), Game: ev.Game, Error: err.Error()})
			return
		}
		h.emit(reply{Type: ev.Type, OK: true, Player: ev.Player.String(), Game: v.Game, View: &v})
	default:
		h.emit(reply{Type: ev.Type, Error: "unknown event type"})
	}
}

func (h *host) grant(ev event) {
	amount := ev.Amount
	if amount == 0 {
		amount = 1
	}
	r := reply{Type: ev.Type, Player: ev.Player.String(), Game: ev.Game}
	if ev.Game == "" {
		matched, applied := h.eng.AdminGrantAll(ev.player(), ev.Challenge, amount)
		r.OK, r.Count = applied > 0, applied
		if matched == 0 {
			r.Error = "no active game defines " + ev.Challenge
		}
	} else {
		r.OK = h.eng.AdminGrant(ev.player(), ev.Game, ev.Challenge, amount)
		if r.OK {
			r.Count = 1
		}
	}
	h.auditEvent(ev, fmt.Sprintf("%s +%d", ev.Challenge, amount))
	h.emit(r)
}

func (h *host) emitResult(ev event, res engine.Result) {
	if !res.Changed {
		return
	}
	h.emit(reply{Type: ev.Type, OK: true, Player: ev.Player.String(), Changed: true, Games: res.Games})
}

func (h *host) emit(r reply) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	h.seq++
	r.Seq = h.seq
	b, err := json.Marshal(r)
	if err != nil {
		h.logger.Printf("encode reply: %v", err)
		return
	}
	if _, err := h.out.Write(append(b, '\n')); err != nil {
		h.logger.Printf("write reply: %v", err)
	}
	h.ws.Publish(b)
}

func (h *host) auditEvent(ev event, detail string) {
	if h.audit == nil {
		return
	}
	e := persistlog.AdminEntry{Command: ev.Type, Game: ev.Game, Detail: detail}
	if ev.Player != uuid.Nil {
		e.Player = ev.Player.String()
	}
	if err := h.audit.WriteAudit(e); err != nil {
		h.logger.Printf("audit log: %v", err)
	}
}

func (h *host) Close() {
	h.mirror.Close()
	h.mirror = nil
	if h.idx != nil && h.ownIdx {
		_ = h.idx.Close()
	}
	if h.wins != nil {
		_ = h.wins.Close()
	}
	if h.audit != nil {
		_ = h.audit.Close()
	}
	if h.backend != nil {
		_ = h.backend.Close()
	}
}

// hostHooks forwards reward actions and broadcasts to the reply stream; the
// game server executing them reads that stream.
type hostHooks struct{ h *host }

func (k hostHooks) Reward(p win.Player, gameID, action string) {
	k.h.logger.Printf("reward %s (%s) game=%s: %s", p.Name, p.ID, gameID, action)
	k.h.emit(reply{Type: "reward", OK: true, Player: p.ID.String(), Game: gameID, Action: action})
}

func (k hostHooks) Broadcast(gameID, msg string) {
	k.h.logger.Printf("broadcast game=%s: %s", gameID, msg)
	k.h.emit(reply{Type: "broadcast", OK: true, Game: gameID, Message: win.TranslateColorCodes(msg)})
}

func unknownIf(cond bool, gameID string) string {
	if !cond {
		return ""
	}
	return fmt.Sprintf("%v: %s", engine.ErrUnknownGame, gameID)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
