package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bingoboard.ai/internal/bingo/defs"
	"bingoboard.ai/internal/bingo/engine"
	"bingoboard.ai/internal/bingo/logic/keys"
	"bingoboard.ai/internal/config"
	"bingoboard.ai/internal/persistence/archive"
	"bingoboard.ai/internal/persistence/indexdb"
	persistlog "bingoboard.ai/internal/persistence/log"
	"bingoboard.ai/internal/persistence/redisstore"
	"bingoboard.ai/internal/persistence/snapshot"
)

// run opens a session, calls fn, and saves when fn changed the store.
func run(cmd *cobra.Command, f *rootFlags, fn func(ctx context.Context, s *session) error) error {
	ctx := cmdContext(cmd)
	s, err := openSession(ctx, f, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := fn(ctx, s); err != nil {
		return err
	}
	return s.save(ctx)
}

func newGamesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "List loaded game definitions and load errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, func(ctx context.Context, s *session) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tRANDOM\tCHALLENGES\tDIGEST")
				for _, g := range s.reg.Games() {
					digest := g.Digest
					if len(digest) > 12 {
						digest = digest[:12]
					}
					fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%d\t%s\n", g.ID, g.Name, g.Active, g.Randomized, len(g.Challenges), digest)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, le := range s.reg.Errors() {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", le)
				}
				return nil
			})
		},
	}
}

func newShowCmd(f *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <player> <game>",
		Short: "Show a player's board with progress (creates the board if missing)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return run(cmd, f, func(ctx context.Context, s *session) error {
				v, err := s.eng.View(p, args[1])
				if err != nil {
					return fmt.Errorf("%s: %w", args[1], err)
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(v)
				}
				return printView(cmd, v)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the board as JSON")
	return cmd
}

func printView(cmd *cobra.Command, v engine.View) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s) claimed=%v\n", v.Name, v.Game, v.Claimed)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for r := 0; r < defs.BoardWidth; r++ {
		cells := make([]string, 0, defs.BoardWidth)
		for c := 0; c < defs.BoardWidth; c++ {
			cell := v.Cells[r*defs.BoardWidth+c]
			mark := " "
			if cell.Completed {
				mark = "x"
			}
			cells = append(cells, fmt.Sprintf("[%s] %s %d/%d", mark, cell.Challenge, cell.Progress, cell.Goal))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func newGrantCmd(f *rootFlags) *cobra.Command {
	var game, name string
	var amount int
	cmd := &cobra.Command{
		Use:   "grant <player> <challenge>",
		Short: "Add progress to a challenge, bypassing type and environment checks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			cid := args[1]
			return run(cmd, f, func(ctx context.Context, s *session) error {
				player := engine.Player{ID: p, Name: name}
				if game == "" {
					matched, applied := s.eng.AdminGrantAll(player, cid, amount)
					if matched == 0 {
						return fmt.Errorf("no active game defines challenge %q", cid)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "granted %s +%d in %d of %d games\n", cid, amount, applied, matched)
				} else {
					if !s.eng.AdminGrant(player, game, cid, amount) {
						return fmt.Errorf("grant %s in %s: nothing applied (unknown/inactive game or challenge, already complete, or amount <= 0)", cid, game)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "granted %s +%d in %s\n", cid, amount, game)
				}
				s.record("grant", p, game, fmt.Sprintf("%s +%d", cid, amount))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "game id (default: every active game defining the challenge)")
	cmd.Flags().StringVar(&name, "name", "", "player display name for completion messages")
	cmd.Flags().IntVar(&amount, "amount", 1, "progress to add")
	return cmd
}

func newResetGameCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-game <player> <game>",
		Short: "Wipe one player's progress, board and claim for a game",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return run(cmd, f, func(ctx context.Context, s *session) error {
				s.store.ResetGameForPlayer(p, args[1])
				s.record("reset-game", p, args[1], "")
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s for %s\n", args[1], p)
				return nil
			})
		},
	}
}

func newResetGameAllCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-game-all <game>",
		Short: "Wipe every player's progress, board and claim for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, func(ctx context.Context, s *session) error {
				n := s.eng.ResetGameForAll(args[0])
				s.record("reset-game-all", uuid.Nil, args[0], fmt.Sprintf("%d players", n))
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s for %d players\n", args[0], n)
				return nil
			})
		},
	}
}

func newResetChallengeCmd(f *rootFlags) *cobra.Command {
	var game string
	cmd := &cobra.Command{
		Use:   "reset-challenge <player> <challenge>",
		Short: "Clear one challenge for a player (every game unless --game)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return run(cmd, f, func(ctx context.Context, s *session) error {
				s.store.ResetChallengeForPlayer(p, args[1], optional(game))
				s.record("reset-challenge", p, game, args[1])
				fmt.Fprintf(cmd.OutOrStdout(), "reset challenge %s for %s\n", args[1], p)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "restrict to one game")
	return cmd
}

func newResetChallengeAllCmd(f *rootFlags) *cobra.Command {
	var game string
	cmd := &cobra.Command{
		Use:   "reset-challenge-all <challenge>",
		Short: "Clear one challenge for every player (every game unless --game)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, func(ctx context.Context, s *session) error {
				n := s.store.ResetChallengeForAllPlayers(args[0], optional(game))
				s.record("reset-challenge-all", uuid.Nil, game, args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "reset challenge %s for %d players\n", args[0], n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "restrict to one game")
	return cmd
}

func newResetPlayerCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-player <player>",
		Short: "Wipe a player's state in every game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePlayer(args[0])
			if err != nil {
				return err
			}
			return run(cmd, f, func(ctx context.Context, s *session) error {
				s.store.ResetAllGamesForPlayer(p)
				s.record("reset-player", p, "", "")
				fmt.Fprintf(cmd.OutOrStdout(), "reset all games for %s\n", p)
				return nil
			})
		},
	}
}

func newPruneCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Drop progress for games or challenges no definition knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, func(ctx context.Context, s *session) error {
				n := s.eng.Prune()
				s.record("prune", uuid.Nil, "", fmt.Sprintf("%d entries", n))
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)
				return nil
			})
		},
	}
}

// winIndexPath mirrors the server: a sqlite store doubles as the win index.
func winIndexPath(cfg config.Config) string {
	if cfg.Store == config.StoreSQLite {
		return cfg.SQLitePath
	}
	return filepath.Join(cfg.DataDir, "index", "wins.sqlite")
}

func newWinsCmd(f *rootFlags) *cobra.Command {
	var game string
	var limit int
	cmd := &cobra.Command{
		Use:   "wins",
		Short: "List recent wins (redis stream, sqlite index, or the win log)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if strings.TrimSpace(game) != "" {
				game = keys.NormalizeGameID(game)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if cfg.Store == config.StoreRedis {
				st, err := redisstore.Connect(cmdContext(cmd), cfg.RedisURL, cfg.RedisPrefix)
				if err != nil {
					return err
				}
				defer st.Close()
				wins, err := st.RecentWins(cmdContext(cmd), game, limit)
				if err != nil {
					return err
				}
				for _, o := range wins {
					if err := enc.Encode(o); err != nil {
						return err
					}
				}
				return nil
			}
			path := winIndexPath(cfg)
			if _, err := os.Stat(path); err == nil {
				idx, err := indexdb.OpenSQLite(path)
				if err != nil {
					return err
				}
				defer idx.Close()
				recs, err := idx.Wins(cmdContext(cmd), game, limit)
				if err != nil {
					return err
				}
				for _, r := range recs {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			}
			entries, err := persistlog.ReadWins(cfg.DataDir)
			if err != nil {
				return err
			}
			shown := 0
			for i := len(entries) - 1; i >= 0 && (limit <= 0 || shown < limit); i-- {
				if game != "" && entries[i].Game != game {
					continue
				}
				if err := enc.Encode(entries[i]); err != nil {
					return err
				}
				shown++
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&game, "game", "", "filter by game id")
	cmd.Flags().IntVar(&limit, "limit", 20, "result limit")
	return cmd
}

func newAuditCmd(f *rootFlags) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print admin audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}
			entries, err := persistlog.ReadAudit(cfg.DataDir, from)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, e := range entries {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this (e.g. 24h)")
	return cmd
}

func newRoundsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rounds <game>",
		Short: "List archived rounds of a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			rounds, err := archive.Rounds(cfg.DataDir, args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROUND\tREASON\tPLAYERS\tCREATED")
			for _, r := range rounds {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.Round, r.Reason, r.Players, r.CreatedAt)
			}
			return tw.Flush()
		},
	}
}

func newStateInfoCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "state-info",
		Short: "Summarize the persisted state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Store == config.StoreFile {
				path := filepath.Join(cfg.DataDir, "state.snap.zst")
				h, err := snapshot.ReadHeader(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				fmt.Fprintf(out, "file=%s version=%d players=%d saved_at=%s\n", path, h.Version, h.Players, h.SavedAt.Format(time.RFC3339))
				return nil
			}
			return run(cmd, f, func(ctx context.Context, s *session) error {
				fmt.Fprintf(out, "store=%s players=%d\n", cfg.Store, len(s.store.KnownPlayers()))
				return nil
			})
		},
	}
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
