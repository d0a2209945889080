package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bingoboard.ai/internal/bingo/progress"
	"bingoboard.ai/internal/bingo/win"
)

const (
	DefaultPrefix = "bingo"
	winsMaxLen    = 10000
)

// Store keeps the progress snapshot in Redis: one hash field per player
// (JSON PlayerState) under <prefix>:state, save metadata under <prefix>:meta,
// and a capped win stream under <prefix>:wins.
type Store struct {
	client *redis.Client
	prefix string
}

// Connect creates a client from a redis:// URL and pings it.
func Connect(ctx context.Context, redisURL, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) stateKey() string { return s.prefix + ":state" }
func (s *Store) metaKey() string  { return s.prefix + ":meta" }
func (s *Store) winsKey() string  { return s.prefix + ":wins" }

// encodePlayers renders the hash fields for a snapshot.
func encodePlayers(snap progress.Snapshot) (map[string]any, error) {
	fields := make(map[string]any, len(snap.Players))
	for _, ps := range snap.Players {
		b, err := json.Marshal(ps)
		if err != nil {
			return nil, fmt.Errorf("encode player %s: %w", ps.ID, err)
		}
		fields[ps.ID.String()] = string(b)
	}
	return fields, nil
}

// decodePlayers is the inverse of encodePlayers; unreadable fields are skipped.
func decodePlayers(fields map[string]string) []progress.PlayerState {
	ids := make([]string, 0, len(fields))
	for id := range fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]progress.PlayerState, 0, len(ids))
	for _, id := range ids {
		pid, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		var ps progress.PlayerState
		if err := json.Unmarshal([]byte(fields[id]), &ps); err != nil {
			continue
		}
		ps.ID = pid
		out = append(out, ps)
	}
	return out
}

// SaveState replaces the stored snapshot atomically (MULTI/EXEC).
func (s *Store) SaveState(ctx context.Context, snap progress.Snapshot) error {
	fields, err := encodePlayers(snap)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.stateKey())
		if len(fields) > 0 {
			pipe.HSet(ctx, s.stateKey(), fields)
		}
		pipe.HSet(ctx, s.metaKey(), map[string]any{
			"version":  snap.Version,
			"players":  len(snap.Players),
			"saved_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns found=false when nothing was saved under the prefix.
func (s *Store) LoadState(ctx context.Context) (progress.Snapshot, bool, error) {
	snap := progress.Snapshot{Version: progress.SnapshotVersion}
	meta, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return snap, false, fmt.Errorf("load meta: %w", err)
	}
	if len(meta) == 0 {
		return snap, false, nil
	}
	if v, err := strconv.Atoi(meta["version"]); err == nil {
		snap.Version = v
	}
	fields, err := s.client.HGetAll(ctx, s.stateKey()).Result()
	if err != nil {
		return snap, false, fmt.Errorf("load state: %w", err)
	}
	snap.Players = decodePlayers(fields)
	return snap, true, nil
}

// RecordWin appends a win to the capped stream.
func (s *Store) RecordWin(ctx context.Context, o win.Outcome) error {
	raw, _ := json.Marshal(o)
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.winsKey(),
		MaxLen: winsMaxLen,
		Approx: true,
		Values: map[string]any{
			"player":  o.Player.String(),
			"game":    o.Game,
			"payload": string(raw),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	return nil
}

// RecentWins reads up to n wins, newest first. A non-empty game keeps only
// that game's wins; the scan then covers the whole capped stream.
func (s *Store) RecentWins(ctx context.Context, game string, n int) ([]win.Outcome, error) {
	count := int64(n)
	if game != "" || n <= 0 {
		count = winsMaxLen
	}
	msgs, err := s.client.XRevRangeN(ctx, s.winsKey(), "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read wins: %w", err)
	}
	return pickWins(msgs, game, n), nil
}

func pickWins(msgs []redis.XMessage, game string, n int) []win.Outcome {
	var out []win.Outcome
	for _, m := range msgs {
		if n > 0 && len(out) >= n {
			break
		}
		if g, _ := m.Values["game"].(string); game != "" && g != game {
			continue
		}
		raw, _ := m.Values["payload"].(string)
		var o win.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *Store) Close() error { return s.client.Close() }
