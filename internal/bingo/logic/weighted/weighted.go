package weighted

import (
	"math/rand/v2"
	"sync"
)

// Rand is the subset of *math/rand/v2.Rand the draws need.
type Rand interface {
	IntN(n int) int
}

// Effective clamps a configured weight to the sampling weight (>= 1).
func Effective(w int) int {
	if w < 1 {
		return 1
	}
	return w
}

// Total sums the effective weights of items.
func Total[T any](items []T, weight func(T) int) int {
	total := 0
	for _, it := range items {
		total += Effective(weight(it))
	}
	return total
}

// Pick draws one index from items: roll in [0,total), then walk the list
// accumulating weights until the running sum exceeds the roll.
// Returns -1 when items is empty.
func Pick[T any](items []T, weight func(T) int, r Rand) int {
	total := Total(items, weight)
	if total <= 0 {
		return -1
	}
	roll := r.IntN(total)
	acc := 0
	for i, it := range items {
		acc += Effective(weight(it))
		if roll < acc {
			return i
		}
	}
	return len(items) - 1
}

// Sample draws up to n distinct items without replacement, in draw order.
func Sample[T any](items []T, n int, weight func(T) int, r Rand) []T {
	pool := append([]T(nil), items...)
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]T, 0, n)
	for len(out) < n {
		i := Pick(pool, weight, r)
		if i < 0 {
			break
		}
		out = append(out, pool[i])
		pool = append(pool[:i], pool[i+1:]...)
	}
	return out
}

// Perm returns a uniform permutation of [0,n) (Fisher-Yates).
func Perm(n int, r Rand) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		p[i], p[j] = p[j], p[i]
	}
	return p
}

// Locked serializes access to a *rand.Rand shared by several goroutines.
type Locked struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewLocked(seed1, seed2 uint64) *Locked {
	return &Locked{r: rand.New(rand.NewPCG(seed1, seed2))}
}

func (l *Locked) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
