package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/persistence/indexdb"
)

func TestOpen_FileAndSQLiteRoundTrip(t *testing.T) {
	for _, kind := range []string{KindFile, KindSQLite} {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b, err := Open(ctx, Options{Kind: kind, DataDir: dir})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if kind == KindSQLite {
				if _, ok := b.(*indexdb.SQLiteIndex); !ok {
					t.Fatalf("sqlite backend type: %T", b)
				}
			}

			s := progress.NewStore()
			if found, err := Restore(ctx, b, s); err != nil || found {
				t.Fatalf("restore empty: found=%v err=%v", found, err)
			}
			if saved, err := Flush(ctx, b, s); err != nil || saved {
				t.Fatalf("clean flush: saved=%v err=%v", saved, err)
			}

			p := uuid.New()
			s.SetProgress(p, progress.NewKey("g", "c"), 5)
			if saved, err := Flush(ctx, b, s); err != nil || !saved {
				t.Fatalf("dirty flush: saved=%v err=%v", saved, err)
			}
			if err := b.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			b2, err := Open(ctx, Options{Kind: kind, DataDir: dir})
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer b2.Close()
			r := progress.NewStore()
			if found, err := Restore(ctx, b2, r); err != nil || !found {
				t.Fatalf("restore: found=%v err=%v", found, err)
			}
			if got := r.Progress(p, progress.NewKey("g", "c")); got != 5 {
				t.Fatalf("progress: got %d want 5", got)
			}
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Kind: "tape"}); err == nil {
		t.Fatalf("unknown kind must fail")
	}
	if _, err := Open(ctx, Options{Kind: KindRedis}); err == nil {
		t.Fatalf("redis without url must fail")
	}
}

type failing struct{}

func (failing) SaveState(context.Context, progress.Snapshot) error { return errors.New("disk full") }
func (failing) LoadState(context.Context) (progress.Snapshot, bool, error) {
	return progress.Snapshot{}, false, errors.New("unreadable")
}
func (failing) Close() error { return nil }

func TestFlush_FailureKeepsDirty(t *testing.T) {
	s := progress.NewStore()
	s.SetProgress(uuid.New(), progress.NewKey("g", "c"), 1)
	if _, err := Flush(context.Background(), failing{}, s); err == nil {
		t.Fatalf("expected save error")
	}
	if !s.Dirty() {
		t.Fatalf("store must stay dirty after a failed save")
	}
	if _, err := Restore(context.Background(), failing{}, s); err == nil {
		t.Fatalf("expected load error")
	}
}
