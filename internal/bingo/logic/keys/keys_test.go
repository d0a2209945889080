package keys

import (
	"strings"
	"testing"
)

func TestNormalizeGameID(t *testing.T) {
	cases := map[string]string{
		"":                 "default",
		"   ":              "default",
		"Default":          "default",
		"  Summer Event  ": "summer_event",
		"a/b\\c":           "a_b_c",
		"ok.name-1_x":      "ok.name-1_x",
		"Émile":            "_mile",
	}
	for in, want := range cases {
		if got := NormalizeGameID(in); got != want {
			t.Fatalf("NormalizeGameID(%q): got %q want %q", in, got, want)
		}
	}
}

func TestNormalizeGameID_CapsLengthAndIsIdempotent(t *testing.T) {
	long := strings.Repeat("AbC ", 40)
	got := NormalizeGameID(long)
	if len(got) != MaxGameIDLen {
		t.Fatalf("len: got %d want %d", len(got), MaxGameIDLen)
	}
	for _, in := range []string{long, "  Mixed Case!! ", "", "x|y"} {
		once := NormalizeGameID(in)
		if twice := NormalizeGameID(once); twice != once {
			t.Fatalf("not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestKeyAndSplit(t *testing.T) {
	k := Key(" Spring ", "  catch_pikachu ")
	if k != "spring|catch_pikachu" {
		t.Fatalf("key: got %q", k)
	}
	g, c, ok := Split(k)
	if !ok || g != "spring" || c != "catch_pikachu" {
		t.Fatalf("split: got %q %q %v", g, c, ok)
	}
	// Challenge ids may themselves contain the separator.
	g, c, ok = Split("g|a|b")
	if !ok || g != "g" || c != "a|b" {
		t.Fatalf("split nested: got %q %q %v", g, c, ok)
	}
	if _, _, ok := Split("nogame"); ok {
		t.Fatalf("expected split failure without separator")
	}
}

func TestNamespaced(t *testing.T) {
	if got := Namespaced(" Pikachu ", SpeciesDefault); got != "cobblemon:pikachu" {
		t.Fatalf("bare: got %q", got)
	}
	if got := Namespaced("Mod:Eevee", SpeciesDefault); got != "mod:eevee" {
		t.Fatalf("namespaced: got %q", got)
	}
	if got := Namespaced("  ", ItemDefault); got != "" {
		t.Fatalf("blank: got %q", got)
	}
}
