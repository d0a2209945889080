package main

import (
	"github.com/google/uuid"

	"bingoboard.ai/internal/bingo/engine"
)

// Event types accepted on the feed.
const (
	evCatch             = "catch"
	evInventory         = "inventory"
	evPosition          = "position"
	evLeave             = "leave"
	evGrant             = "grant"
	evEnable            = "enable"
	evDisable           = "disable"
	evReload            = "reload"
	evResetGame         = "reset_game"
	evResetGameAll      = "reset_game_all"
	evResetChallenge    = "reset_challenge"
	evResetChallengeAll = "reset_challenge_all"
	evOpen              = "open"
)

// event is one JSONL line of the feed. Unused fields are ignored per type.
type event struct {
	Type   string    `json:"type"`
	Player uuid.UUID `json:"player"`
	Name   string    `json:"name,omitempty"`
	// Game scopes the event; empty means every loaded game where that applies.
	Game      string `json:"game,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	Species string         `json:"species,omitempty"`
	Types   []string       `json:"types,omitempty"`
	Items   map[string]int `json:"items,omitempty"`
	X       int            `json:"x,omitempty"`
	Y       int            `json:"y,omitempty"`
	Z       int            `json:"z,omitempty"`

	Dimension string `json:"dimension,omitempty"`
	Raining   bool   `json:"raining,omitempty"`
}

func (ev event) player() engine.Player {
	return engine.Player{ID: ev.Player, Name: ev.Name}
}

func (ev event) env() engine.EnvironmentFunc {
	return engine.Surroundings{Dimension: ev.Dimension, Raining: ev.Raining}.Matches
}

func (ev event) gameScope() *string {
	if ev.Game == "" {
		return nil
	}
	g := ev.Game
	return &g
}

// reply is one JSONL line written back to the host.
type reply struct {
	Seq     uint64 `json:"seq"`
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Player  string `json:"player,omitempty"`
	Game    string `json:"game,omitempty"`
	Changed bool   `json:"changed,omitempty"`
	// Games lists boards whose state changed.
	Games   []string     `json:"games,omitempty"`
	Count   int          `json:"count,omitempty"`
	Action  string       `json:"action,omitempty"`
	Message string       `json:"message,omitempty"`
	View    *engine.View `json:"view,omitempty"`
	IDs     []string     `json:"ids,omitempty"`
}
