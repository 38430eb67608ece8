// Package shuffle produces the random permutations that decide question and
// option display order for an exam session.
package shuffle

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Permuter returns a uniformly random permutation of [0, n).
type Permuter interface {
	Permutation(n int) []int
}

// Engine is a Permuter backed by a math/rand/v2 source. It is safe for
// concurrent use.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns an Engine seeded from the runtime's entropy.
func New() *Engine {
	seed := uint64(time.Now().UnixNano())
	return &Engine{rng: rand.New(rand.NewPCG(seed, rand.Uint64()))}
}

// NewSeeded returns a deterministic Engine. Intended for tests and fixtures.
func NewSeeded(seed1, seed2 uint64) *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewFromSource wraps an arbitrary randomness source.
func NewFromSource(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src)}
}

// Permutation performs a Fisher–Yates shuffle of the identity permutation.
func (e *Engine) Permutation(n int) []int {
	if n <= 0 {
		return []int{}
	}
	perm := Identity(n)
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := n - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// Identity returns [0, 1, ..., n-1].
func Identity(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	return perm
}

// Valid reports whether perm is a permutation of [0, n).
func Valid(perm []int, n int) bool {
	if len(perm) != n {
		return false
	}
	seen := make([]bool, n)
	for _, v := range perm {
		if v < 0 || v >= n || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Apply reorders items so that result[i] = items[perm[i]].
func Apply[T any](items []T, perm []int) []T {
	out := make([]T, len(perm))
	for i, p := range perm {
		out[i] = items[p]
	}
	return out
}

// Fixed is a Permuter that replays preset permutations in order, falling back
// to the identity once exhausted. Useful when a test needs exact layouts.
type Fixed struct {
	mu    sync.Mutex
	perms [][]int
}

// NewFixed returns a Fixed permuter that hands out perms in sequence.
func NewFixed(perms ...[]int) *Fixed {
	return &Fixed{perms: perms}
}

func (f *Fixed) Permutation(n int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.perms) == 0 {
		return Identity(n)
	}
	p := f.perms[0]
	f.perms = f.perms[1:]
	if !Valid(p, n) {
		return Identity(n)
	}
	return append([]int(nil), p...)
}
