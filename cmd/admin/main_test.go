package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bingoboard.ai/internal/bingo/engine"
)

const player = "6f1c2a4e-2d1b-4c39-9a57-0d3c1f3b8e11"

type adminEnv struct {
	defsDir string
	dataDir string
}

func newAdminEnv(t *testing.T) adminEnv {
	t.Helper()
	root := t.TempDir()
	env := adminEnv{defsDir: filepath.Join(root, "games"), dataDir: filepath.Join(root, "data")}
	if err := os.MkdirAll(env.defsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	b.WriteString("name: Admin Test\ndoesResetOnCompletion: false\ncompletion: [horizontal]\nonCompletion:\n  - command: give cake\nchallenges:\n")
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "  - id: c%d\n    type: custom\n    slot: %d\n", i, i)
	}
	if err := os.WriteFile(filepath.Join(env.defsDir, "g.yaml"), []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e adminEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	full := append([]string{
		"--config", filepath.Join(e.dataDir, "absent.yaml"),
		"--definitions", e.defsDir,
		"--data", e.dataDir,
		"--by", "tester",
	}, args...)
	root.SetArgs(full)
	err := root.Execute()
	return out.String(), err
}

func (e adminEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

func TestAdmin_GrantShowAndWin(t *testing.T) {
	env := newAdminEnv(t)

	out := env.mustRun(t, "grant", player, "c0", "--game", "g")
	if !strings.Contains(out, "granted c0 +1 in g") {
		t.Fatalf("grant output: %q", out)
	}
	out = env.mustRun(t, "show", player, "g", "--json")
	var v engine.View
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode view: %v\n%s", err, out)
	}
	if !v.Cells[0].Completed || v.Cells[1].Completed || v.Cells[0].Challenge != "c0" {
		t.Fatalf("view cells: %+v", v.Cells[:2])
	}

	for _, c := range []string{"c1", "c2", "c3"} {
		env.mustRun(t, "grant", player, c, "--game", "g")
	}
	out = env.mustRun(t, "grant", player, "c4", "--name", "Ash")
	if !strings.Contains(out, "reward pending for "+player+" in g: give cake") || !strings.Contains(out, "in 1 of 1 games") {
		t.Fatalf("winning grant output: %q", out)
	}

	out = env.mustRun(t, "wins", "--game", "g")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"game":"g"`) || !strings.Contains(lines[0], `"claimed":true`) {
		t.Fatalf("wins output: %q", out)
	}
	if again := env.mustRun(t, "wins", "--game", " G "); again != out {
		t.Fatalf("wins with unnormalized game: %q want %q", again, out)
	}

	out = env.mustRun(t, "show", player, "g")
	if !strings.Contains(out, "claimed=true") || !strings.Contains(out, "[x] c4 1/1") {
		t.Fatalf("text view: %q", out)
	}

	out = env.mustRun(t, "state-info")
	if !strings.Contains(out, "players=1") {
		t.Fatalf("state-info: %q", out)
	}
}

func TestAdmin_ResetsPruneAndAudit(t *testing.T) {
	env := newAdminEnv(t)
	env.mustRun(t, "grant", player, "c7", "--game", "g")

	out := env.mustRun(t, "reset-challenge-all", "c7")
	if !strings.Contains(out, "for 1 players") {
		t.Fatalf("reset-challenge-all: %q", out)
	}
	env.mustRun(t, "grant", player, "c7", "--game", "g")
	env.mustRun(t, "reset-challenge", player, "c7", "--game", "g")
	env.mustRun(t, "reset-game", player, "g")
	out = env.mustRun(t, "reset-game-all", "g")
	if !strings.Contains(out, "for 0 players") {
		t.Fatalf("reset-game-all after reset-game: %q", out)
	}
	env.mustRun(t, "grant", player, "c1", "--game", "g")
	env.mustRun(t, "reset-player", player)

	// Removing the definition leaves orphaned progress for prune.
	env.mustRun(t, "grant", player, "c2", "--game", "g")
	if err := os.Remove(filepath.Join(env.defsDir, "g.yaml")); err != nil {
		t.Fatal(err)
	}
	out = env.mustRun(t, "prune")
	if !strings.Contains(out, "pruned 2 entries") {
		t.Fatalf("prune: %q", out)
	}

	out = env.mustRun(t, "audit")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 10 {
		t.Fatalf("audit lines: got %d want 10\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], `"command":"grant"`) || !strings.Contains(lines[0], "by=tester") {
		t.Fatalf("first audit entry: %s", lines[0])
	}
}

func TestAdmin_Errors(t *testing.T) {
	env := newAdminEnv(t)
	if _, err := env.run(t, "grant", "not-a-uuid", "c0"); err == nil {
		t.Fatalf("bad uuid must fail")
	}
	if _, err := env.run(t, "grant", player, "zzz"); err == nil {
		t.Fatalf("unknown challenge must fail")
	}
	if _, err := env.run(t, "show", player, "missing"); err == nil {
		t.Fatalf("unknown game must fail")
	}
	if _, err := env.run(t, "reset-game", player); err == nil {
		t.Fatalf("missing arg must fail")
	}
}

func TestAdmin_ResetGameAllArchivesRound(t *testing.T) {
	env := newAdminEnv(t)
	env.mustRun(t, "grant", player, "c9", "--game", "g")
	out := env.mustRun(t, "reset-game-all", "g")
	if !strings.Contains(out, "archived g round 1") || !strings.Contains(out, "for 1 players") {
		t.Fatalf("reset-game-all: %q", out)
	}
	if _, err := os.Stat(filepath.Join(env.dataDir, "archives", "g", "round_001", "meta.json")); err != nil {
		t.Fatalf("round meta: %v", err)
	}
	out = env.mustRun(t, "rounds", "g")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "1 ") || !strings.Contains(lines[1], "admin") {
		t.Fatalf("rounds: %q", out)
	}
}
