package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/engine"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/registry"
	"bingoboard.ai/internal/bingo/win"
	"bingoboard.ai/internal/config"
	"bingoboard.ai/internal/persistence/archive"
	"bingoboard.ai/internal/persistence/backend"
	persistlog "bingoboard.ai/internal/persistence/log"
)

func loadConfig(f *rootFlags) (config.Config, error) {
	path := strings.TrimSpace(f.configPath)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if d := strings.TrimSpace(f.defsDir); d != "" {
		cfg.DefinitionsDir = d
	}
	if d := strings.TrimSpace(f.dataDir); d != "" {
		cfg.DataDir = d
		cfg.SQLitePath = ""
		cfg.Normalize()
	}
	return cfg, nil
}

// session is one offline edit: state is restored from the configured backend,
// changed through the engine/store, and saved back by save.
type session struct {
	cfg     config.Config
	by      string
	out     io.Writer
	reg     *registry.Registry
	store   *progress.Store
	eng     *engine.Engine
	backend backend.Backend
	audit   *persistlog.AuditLogger
	wins    *persistlog.WinLogger
}

func openSession(ctx context.Context, f *rootFlags, out io.Writer) (*session, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	b, err := backend.Open(ctx, backend.Options{
		Kind:        cfg.Store,
		DataDir:     cfg.DataDir,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	s := &session{
		cfg:     cfg,
		by:      f.by,
		out:     out,
		store:   progress.NewStore(),
		backend: b,
		wins:    persistlog.NewWinLogger(cfg.DataDir),
	}
	if cfg.AuditLog {
		s.audit = persistlog.NewAuditLogger(cfg.DataDir)
	}
	s.reg = registry.New(registry.DirSource{Dir: cfg.DefinitionsDir}, defs.MustValidator(), log.New(io.Discard, "", 0))
	if _, err := s.reg.Reload(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.eng = engine.New(s.reg, s.store, engine.Config{
		Seed:  cfg.Seed,
		Hooks: pendingHooks{out: out},
		OnWin: func(o win.Outcome) {
			if err := s.wins.WriteWin(o); err != nil {
				fmt.Fprintln(out, "win log:", err)
			}
		},
		BeforeWipe: s.archiveRound,
	})
	if _, err := backend.Restore(ctx, b, s.store); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) archiveRound(gameID, reason string) {
	if !s.cfg.ArchiveRounds {
		return
	}
	round, path, ok, err := archive.ArchiveRound(s.cfg.DataDir, gameID, reason, s.store.Snapshot())
	if err != nil {
		fmt.Fprintln(s.out, "archive:", err)
		return
	}
	if ok {
		fmt.Fprintf(s.out, "archived %s round %d to %s\n", gameID, round, path)
	}
}

func (s *session) save(ctx context.Context) error {
	if _, err := backend.Flush(ctx, s.backend, s.store); err != nil {
		return err
	}
	return nil
}

func (s *session) record(command string, player uuid.UUID, game, detail string) {
	if s.audit == nil {
		return
	}
	e := persistlog.AdminEntry{Command: command, Game: game, Detail: detail}
	if player != uuid.Nil {
		e.Player = player.String()
	}
	if s.by != "" {
		e.Detail = strings.TrimSpace(e.Detail + " by=" + s.by)
	}
	if err := s.audit.WriteAudit(e); err != nil {
		fmt.Fprintln(s.out, "audit log:", err)
	}
}

func (s *session) Close() {
	if s.audit != nil {
		_ = s.audit.Close()
	}
	_ = s.wins.Close()
	_ = s.backend.Close()
}

// pendingHooks reports reward actions the operator must deliver by hand;
// offline there is no game server to run them.
type pendingHooks struct{ out io.Writer }

func (h pendingHooks) Reward(p win.Player, gameID, action string) {
	fmt.Fprintf(h.out, "reward pending for %s in %s: %s\n", p.ID, gameID, action)
}

func (h pendingHooks) Broadcast(gameID, msg string) {
	fmt.Fprintf(h.out, "broadcast skipped for %s: %s\n", gameID, msg)
}

func parsePlayer(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad player uuid %q: %w", s, err)
	}
	return id, nil
}
