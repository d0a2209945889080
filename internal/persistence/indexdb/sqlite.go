package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/win"
)

const schemaVersion = "1"

// SQLiteIndex stores the progress snapshot in relational form and keeps an
// append-only win history. State saves are synchronous; win rows go through a
// buffered queue drained by one writer goroutine.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed       atomic.Bool
	dropWinTotal atomic.Uint64
}

type req struct {
	win   *winRow
	flush chan struct{}
}

type winRow struct {
	At       string
	Player   string
	Name     string
	Game     string
	Reward   string
	Reset    bool
	Claimed  bool
	Disabled bool
	RawJSON  string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DropWinTotal  uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS progress (
			player TEXT NOT NULL,
			game TEXT NOT NULL,
			challenge TEXT NOT NULL,
			value INTEGER NOT NULL,
			PRIMARY KEY (player, game, challenge)
		);`,
		`CREATE TABLE IF NOT EXISTS completed (
			player TEXT NOT NULL,
			game TEXT NOT NULL,
			challenge TEXT NOT NULL,
			PRIMARY KEY (player, game, challenge)
		);`,
		`CREATE TABLE IF NOT EXISTS boards (
			player TEXT NOT NULL,
			game TEXT NOT NULL,
			cells_json TEXT NOT NULL,
			PRIMARY KEY (player, game)
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			player TEXT NOT NULL,
			game TEXT NOT NULL,
			PRIMARY KEY (player, game)
		);`,
		`CREATE TABLE IF NOT EXISTS wins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			player TEXT NOT NULL,
			name TEXT NOT NULL,
			game TEXT NOT NULL,
			reward TEXT NOT NULL,
			reset INTEGER NOT NULL,
			claimed INTEGER NOT NULL,
			disabled INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_wins_game_id ON wins(game, id);`,
		`CREATE INDEX IF NOT EXISTS idx_wins_player_id ON wins(player, id);`,
		`CREATE TABLE IF NOT EXISTS definitions (
			game TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			digest TEXT NOT NULL,
			active INTEGER NOT NULL,
			challenges INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// SaveState replaces the stored state with snap in one transaction.
func (s *SQLiteIndex) SaveState(ctx context.Context, snap progress.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"progress", "completed", "boards", "claims"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	insProgress, err := tx.PrepareContext(ctx, `INSERT INTO progress(player,game,challenge,value) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insProgress.Close()
	insCompleted, err := tx.PrepareContext(ctx, `INSERT INTO completed(player,game,challenge) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer insCompleted.Close()
	insBoard, err := tx.PrepareContext(ctx, `INSERT INTO boards(player,game,cells_json) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer insBoard.Close()
	insClaim, err := tx.PrepareContext(ctx, `INSERT INTO claims(player,game) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer insClaim.Close()

	for _, ps := range snap.Players {
		pid := ps.ID.String()
		for raw, v := range ps.Progress {
			k, ok := progress.ParseKey(raw)
			if !ok {
				continue
			}
			if _, err := insProgress.ExecContext(ctx, pid, k.Game, k.Challenge, v); err != nil {
				return fmt.Errorf("insert progress: %w", err)
			}
		}
		for _, raw := range ps.Completed {
			k, ok := progress.ParseKey(raw)
			if !ok {
				continue
			}
			if _, err := insCompleted.ExecContext(ctx, pid, k.Game, k.Challenge); err != nil {
				return fmt.Errorf("insert completed: %w", err)
			}
		}
		for gid, cells := range ps.Boards {
			b, _ := json.Marshal(cells)
			if _, err := insBoard.ExecContext(ctx, pid, gid, string(b)); err != nil {
				return fmt.Errorf("insert board: %w", err)
			}
		}
		for _, gid := range ps.Claimed {
			if _, err := insClaim.ExecContext(ctx, pid, gid); err != nil {
				return fmt.Errorf("insert claim: %w", err)
			}
		}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('state_saved_at',?)`, now); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadState rebuilds the snapshot. found is false when no state was ever saved.
func (s *SQLiteIndex) LoadState(ctx context.Context) (progress.Snapshot, bool, error) {
	snap := progress.Snapshot{Version: progress.SnapshotVersion}
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='state_saved_at'`).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, err
	}

	players := map[uuid.UUID]*progress.PlayerState{}
	var order []uuid.UUID
	get := func(raw string) *progress.PlayerState {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil
		}
		ps := players[id]
		if ps == nil {
			ps = &progress.PlayerState{ID: id}
			players[id] = ps
			order = append(order, id)
		}
		return ps
	}

	if err := eachRow(ctx, s.db, `SELECT player,game,challenge,value FROM progress ORDER BY player,game,challenge`, func(rows *sql.Rows) error {
		var pid, gid, cid string
		var v int
		if err := rows.Scan(&pid, &gid, &cid, &v); err != nil {
			return err
		}
		if ps := get(pid); ps != nil {
			if ps.Progress == nil {
				ps.Progress = map[string]int{}
			}
			ps.Progress[progress.Key{Game: gid, Challenge: cid}.String()] = v
		}
		return nil
	}); err != nil {
		return snap, false, fmt.Errorf("load progress: %w", err)
	}
	if err := eachRow(ctx, s.db, `SELECT player,game,challenge FROM completed ORDER BY player,game,challenge`, func(rows *sql.Rows) error {
		var pid, gid, cid string
		if err := rows.Scan(&pid, &gid, &cid); err != nil {
			return err
		}
		if ps := get(pid); ps != nil {
			ps.Completed = append(ps.Completed, progress.Key{Game: gid, Challenge: cid}.String())
		}
		return nil
	}); err != nil {
		return snap, false, fmt.Errorf("load completed: %w", err)
	}
	if err := eachRow(ctx, s.db, `SELECT player,game,cells_json FROM boards ORDER BY player,game`, func(rows *sql.Rows) error {
		var pid, gid, raw string
		if err := rows.Scan(&pid, &gid, &raw); err != nil {
			return err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil
		}
		if ps := get(pid); ps != nil {
			if ps.Boards == nil {
				ps.Boards = map[string][]string{}
			}
			ps.Boards[gid] = cells
		}
		return nil
	}); err != nil {
		return snap, false, fmt.Errorf("load boards: %w", err)
	}
	if err := eachRow(ctx, s.db, `SELECT player,game FROM claims ORDER BY player,game`, func(rows *sql.Rows) error {
		var pid, gid string
		if err := rows.Scan(&pid, &gid); err != nil {
			return err
		}
		if ps := get(pid); ps != nil {
			ps.Claimed = append(ps.Claimed, gid)
		}
		return nil
	}); err != nil {
		return snap, false, fmt.Errorf("load claims: %w", err)
	}

	for _, id := range order {
		snap.Players = append(snap.Players, *players[id])
	}
	return snap, true, nil
}

func eachRow(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// RecordWin queues a win row. Wins are dropped (and counted) when the writer
// falls behind; the JSONL win log remains the source of truth.
func (s *SQLiteIndex) RecordWin(o win.Outcome) {
	if s == nil || s.closed.Load() {
		return
	}
	raw, _ := json.Marshal(o)
	r := &winRow{
		At:       time.Now().UTC().Format(time.RFC3339Nano),
		Player:   o.Player.String(),
		Name:     o.Name,
		Game:     o.Game,
		Reward:   o.Reward,
		Reset:    o.Reset,
		Claimed:  o.Claimed,
		Disabled: o.Disabled,
		RawJSON:  string(raw),
	}
	select {
	case s.ch <- req{win: r}:
	default:
		s.dropWinTotal.Add(1)
	}
}

// Flush blocks until every queued win is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{flush: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropWinTotal:  s.dropWinTotal.Load(),
	}
}

type WinRecord struct {
	ID       int64
	At       time.Time
	Player   string
	Name     string
	Game     string
	Reward   string
	Reset    bool
	Claimed  bool
	Disabled bool
}

// Wins returns the most recent wins, newest first. An empty game lists every game.
func (s *SQLiteIndex) Wins(ctx context.Context, game string, limit int) ([]WinRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id,at,player,name,game,reward,reset,claimed,disabled FROM wins`
	args := []any{}
	if game != "" {
		q += ` WHERE game=?`
		args = append(args, game)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WinRecord
	for rows.Next() {
		var r WinRecord
		var at string
		if err := rows.Scan(&r.ID, &at, &r.Player, &r.Name, &r.Game, &r.Reward, &r.Reset, &r.Claimed, &r.Disabled); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertDefinitions records the loaded definitions with their digests.
func (s *SQLiteIndex) UpsertDefinitions(ctx context.Context, games []*defs.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO definitions(game,name,digest,active,challenges,updated_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, g := range games {
		if _, err := stmt.ExecContext(ctx, g.ID, g.Name, g.Digest, g.Active, len(g.Challenges), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insertWin, _ := s.db.Prepare(`INSERT INTO wins(at,player,name,game,reward,reset,claimed,disabled,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertWin != nil {
			_ = insertWin.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		commitEvery = 256
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
	}

	for r := range s.ch {
		if r.win != nil && insertWin != nil {
			begin()
			if tx != nil {
				w := r.win
				_, _ = tx.StmtContext(ctx, insertWin).ExecContext(ctx, w.At, w.Player, w.Name, w.Game, w.Reward, w.Reset, w.Claimed, w.Disabled, w.RawJSON)
				opCount++
			}
		}
		if r.flush != nil || opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
		if r.flush != nil {
			close(r.flush)
		}
	}
	commit()
}
