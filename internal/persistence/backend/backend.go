// Package backend selects where the progress snapshot lives.
package backend

import (
	"context"
	"fmt"
	"path/filepath"

	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/persistence/indexdb"
	"bingoboard.ai/internal/persistence/redisstore"
	"bingoboard.ai/internal/persistence/snapshot"
)

const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Backend persists and restores whole progress snapshots.
type Backend interface {
	SaveState(ctx context.Context, snap progress.Snapshot) error
	LoadState(ctx context.Context) (progress.Snapshot, bool, error)
	Close() error
}

type Options struct {
	Kind        string
	DataDir     string
	SQLitePath  string
	RedisURL    string
	RedisPrefix string
}

// Open returns the backend named by opts.Kind. For sqlite the returned index
// is also usable as a win history; callers can type-assert *indexdb.SQLiteIndex.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Kind {
	case "", KindFile:
		return &snapshot.FileStore{Path: filepath.Join(opts.DataDir, "state.snap.zst")}, nil
	case KindSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.DataDir, "bingo.sqlite")
		}
		idx, err := indexdb.OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case KindRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis backend: missing redis url")
		}
		st, err := redisstore.Connect(ctx, opts.RedisURL, opts.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", opts.Kind)
	}
}

// Restore loads the saved snapshot into s. It reports whether one existed.
func Restore(ctx context.Context, b Backend, s *progress.Store) (bool, error) {
	snap, found, err := b.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if found {
		s.Restore(snap)
	}
	return found, nil
}

// Flush saves s when it has unsaved changes. A failed save re-marks the
// store dirty so the next flush retries.
func Flush(ctx context.Context, b Backend, s *progress.Store) (bool, error) {
	if !s.TakeDirty() {
		return false, nil
	}
	if err := b.SaveState(ctx, s.Snapshot()); err != nil {
		s.MarkDirty()
		return false, fmt.Errorf("save state: %w", err)
	}
	return true, nil
}
