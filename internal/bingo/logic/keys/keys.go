package keys

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	DefaultGameID  = "default"
	MaxGameIDLen   = 64
	Separator      = "|"
	SpeciesDefault = "cobblemon"
	ItemDefault    = "minecraft"
)

// Lower folds s with root-locale rules. A Caser keeps state, so one is built per call.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// NormalizeGameID trims, lowercases, replaces anything outside [a-z0-9._-] with '_'
// and caps the result at MaxGameIDLen. Blank input maps to DefaultGameID.
// Normalizing an already normalized id returns it unchanged.
func NormalizeGameID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultGameID
	}
	s = Lower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= MaxGameIDLen {
			break
		}
	}
	out := b.String()
	if len(out) > MaxGameIDLen {
		out = out[:MaxGameIDLen]
	}
	return out
}

func NormalizeChallengeID(raw string) string {
	return strings.TrimSpace(raw)
}

// Key renders the persisted form of a (game, challenge) pair.
func Key(gameID, challengeID string) string {
	return NormalizeGameID(gameID) + Separator + NormalizeChallengeID(challengeID)
}

// Split is the inverse of Key. Normalized game ids never contain the separator,
// so the first one splits the pair.
func Split(key string) (gameID, challengeID string, ok bool) {
	i := strings.Index(key, Separator)
	if i <= 0 {
		return "", "", false
	}
	return key[:i], key[i+len(Separator):], true
}

// Namespaced returns the canonical "namespace:name" form of an id, lowercased.
// A bare name gets defaultNS. Blank input returns "".
func Namespaced(raw, defaultNS string) string {
	s := Lower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if strings.Contains(s, ":") {
		return s
	}
	return defaultNS + ":" + s
}

// TypeName normalizes a case-insensitive type label. Blank input returns "".
func TypeName(raw string) string {
	return Lower(strings.TrimSpace(raw))
}
