package shuffle

import (
	"slices"
	"testing"
)

func TestPermutation_IsValid(t *testing.T) {
	e := NewSeeded(1, 2)
	for n := 0; n <= 12; n++ {
		p := e.Permutation(n)
		if !Valid(p, n) {
			t.Fatalf("Permutation(%d) = %v is not a permutation", n, p)
		}
	}
}

func TestPermutation_DeterministicWithSeed(t *testing.T) {
	a := NewSeeded(42, 7)
	b := NewSeeded(42, 7)
	for i := 0; i < 20; i++ {
		pa, pb := a.Permutation(8), b.Permutation(8)
		if !slices.Equal(pa, pb) {
			t.Fatalf("iteration %d: %v != %v", i, pa, pb)
		}
	}
}

func TestPermutation_NotBiasedTowardIdentity(t *testing.T) {
	e := NewSeeded(99, 100)
	const n, rounds = 4, 24000
	// counts[pos][value]
	var counts [n][n]int
	identity := 0
	for r := 0; r < rounds; r++ {
		p := e.Permutation(n)
		if slices.Equal(p, Identity(n)) {
			identity++
		}
		for pos, v := range p {
			counts[pos][v]++
		}
	}
	want := rounds / n
	for pos := range counts {
		for v, c := range counts[pos] {
			if c < want*85/100 || c > want*115/100 {
				t.Fatalf("position %d value %d seen %d times, want about %d", pos, v, c, want)
			}
		}
	}
	// 4! = 24 equally likely outcomes.
	if identity > rounds/24*2 {
		t.Fatalf("identity permutation seen %d times out of %d", identity, rounds)
	}
}

func TestApply(t *testing.T) {
	opts := []string{"a", "b", "c", "d"}
	got := Apply(opts, []int{2, 0, 1, 3})
	want := []string{"c", "a", "b", "d"}
	if !slices.Equal(got, want) {
		t.Fatalf("Apply = %v, want %v", got, want)
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		perm []int
		n    int
		ok   bool
	}{
		{[]int{0, 1, 2}, 3, true},
		{[]int{2, 0, 1}, 3, true},
		{[]int{0, 0, 1}, 3, false},
		{[]int{0, 1}, 3, false},
		{[]int{0, 1, 3}, 3, false},
		{[]int{-1, 0, 1}, 3, false},
	}
	for _, tc := range cases {
		if got := Valid(tc.perm, tc.n); got != tc.ok {
			t.Errorf("Valid(%v, %d) = %v, want %v", tc.perm, tc.n, got, tc.ok)
		}
	}
}

func TestFixed(t *testing.T) {
	f := NewFixed([]int{1, 0}, []int{9, 9})
	if got := f.Permutation(2); !slices.Equal(got, []int{1, 0}) {
		t.Fatalf("first = %v", got)
	}
	// invalid preset degrades to identity
	if got := f.Permutation(2); !slices.Equal(got, []int{0, 1}) {
		t.Fatalf("second = %v", got)
	}
	if got := f.Permutation(3); !slices.Equal(got, []int{0, 1, 2}) {
		t.Fatalf("exhausted = %v", got)
	}
}
