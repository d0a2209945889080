package progress

import "bingoboard.ai/internal/bingo/logic/keys"

// Key addresses one challenge of one game. Use NewKey so the game id is
// normalized; the store normalizes keys it is handed either way.
type Key struct {
	Game      string
	Challenge string
}

func NewKey(gameID, challengeID string) Key {
	return Key{Game: keys.NormalizeGameID(gameID), Challenge: keys.NormalizeChallengeID(challengeID)}
}

func (k Key) norm() Key { return NewKey(k.Game, k.Challenge) }

// String renders the persisted form "game|challenge".
func (k Key) String() string { return keys.Key(k.Game, k.Challenge) }

func ParseKey(s string) (Key, bool) {
	g, c, ok := keys.Split(s)
	if !ok {
		return Key{}, false
	}
	k := NewKey(g, c)
	if k.Challenge == "" {
		return Key{}, false
	}
	return k, true
}
