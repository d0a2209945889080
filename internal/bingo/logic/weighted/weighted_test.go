package weighted

import (
	"math/rand/v2"
	"sort"
	"testing"
)

// scripted replays fixed rolls; each roll is reduced modulo n.
type scripted struct {
	rolls []int
	i     int
}

func (s *scripted) IntN(n int) int {
	v := s.rolls[s.i%len(s.rolls)]
	s.i++
	return v % n
}

func identity(w int) int { return w }

func TestPick_WalksCumulativeWeights(t *testing.T) {
	weights := []int{1, 3, 0, 2} // effective 1,3,1,2 -> total 7
	cases := []struct {
		roll int
		want int
	}{
		{0, 0}, {1, 1}, {3, 1}, {4, 2}, {5, 3}, {6, 3},
	}
	for _, c := range cases {
		got := Pick(weights, identity, &scripted{rolls: []int{c.roll}})
		if got != c.want {
			t.Fatalf("roll %d: got %d want %d", c.roll, got, c.want)
		}
	}
}

func TestPick_Empty(t *testing.T) {
	if got := Pick([]int{}, identity, &scripted{rolls: []int{0}}); got != -1 {
		t.Fatalf("empty: got %d want -1", got)
	}
}

func TestEffective(t *testing.T) {
	if Effective(-4) != 1 || Effective(0) != 1 || Effective(7) != 7 {
		t.Fatalf("unexpected effective weights")
	}
	if got := Total([]int{0, -1, 5}, identity); got != 7 {
		t.Fatalf("total: got %d want 7", got)
	}
}

func TestSample_DistinctWithoutReplacement(t *testing.T) {
	items := make([]int, 40)
	for i := range items {
		items[i] = i
	}
	r := rand.New(rand.NewPCG(1, 2))
	got := Sample(items, 25, func(v int) int { return v % 4 }, r)
	if len(got) != 25 {
		t.Fatalf("len: got %d want 25", len(got))
	}
	seen := map[int]bool{}
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate draw %d", v)
		}
		seen[v] = true
	}
}

func TestSample_FewerThanRequested(t *testing.T) {
	got := Sample([]int{5, 6}, 25, identity, rand.New(rand.NewPCG(3, 4)))
	sort.Ints(got)
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("got %v", got)
	}
}

func TestPerm_IsPermutation(t *testing.T) {
	p := Perm(25, rand.New(rand.NewPCG(9, 9)))
	sorted := append([]int(nil), p...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			t.Fatalf("not a permutation: %v", p)
		}
	}
}
