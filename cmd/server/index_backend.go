package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"bingoboard.ai/internal/bingo/win"
	"bingoboard.ai/internal/config"
	"bingoboard.ai/internal/persistence/backend"
	"bingoboard.ai/internal/persistence/indexdb"
)

// winRecorder is implemented by backends that keep their own win history
// (the redis stream).
type winRecorder interface {
	RecordWin(ctx context.Context, o win.Outcome) error
}

// openWinIndex returns the sqlite win index. A sqlite state backend doubles as
// the index (owned=false); otherwise a separate index/wins.sqlite is opened
// unless disabled by win_index=false or BINGO_INDEX_BACKEND=none.
func openWinIndex(cfg config.Config, b backend.Backend) (idx *indexdb.SQLiteIndex, owned bool, err error) {
	if si, ok := b.(*indexdb.SQLiteIndex); ok {
		return si, false, nil
	}
	if !cfg.WinIndex {
		return nil, false, nil
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("BINGO_INDEX_BACKEND"))) {
	case "none", "off", "disabled":
		return nil, false, nil
	}
	idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "wins.sqlite"))
	if err != nil {
		return nil, false, err
	}
	return idx, true, nil
}
