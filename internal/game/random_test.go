package game

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestWeightedIndexEmpty(t *testing.T) {
	if _, err := weightedIndex(0.5, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestWeightedIndexNonPositiveWeightCountsAsOne(t *testing.T) {
	// weights [0, 1] behave as [1, 1]: a draw below 0.5 lands on the
	// zero-weight slot.
	idx, err := weightedIndex(0.25, []float64{0, 1})
	if err != nil {
		t.Fatalf("weightedIndex: %v", err)
	}
	if idx != 0 {
		t.Fatalf("idx=%d want=0", idx)
	}
}

func TestWeightedIndexBoundaryDraw(t *testing.T) {
	idx, err := weightedIndex(0.999999999999, []float64{1, 1})
	if err != nil {
		t.Fatalf("weightedIndex: %v", err)
	}
	if idx != 1 {
		t.Fatalf("idx=%d want=1", idx)
	}
}

func TestWeightedIndexConvergence(t *testing.T) {
	weights := []float64{1, 1, 8}
	rng := rand.New(rand.NewSource(99))
	const draws = 100_000
	counts := make([]int, len(weights))
	for i := 0; i < draws; i++ {
		idx, err := weightedIndex(rng.Float64(), weights)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		counts[idx]++
	}
	got := float64(counts[2]) / draws
	if math.Abs(got-0.8) > 0.01 {
		t.Fatalf("heavy slot frequency=%f want ~0.8", got)
	}
}

func TestIntBetween(t *testing.T) {
	if got := intBetween(0.5, 10, 10); got != 10 {
		t.Fatalf("degenerate range: %d", got)
	}
	if got := intBetween(0.5, 20, 10); got != 20 {
		t.Fatalf("inverted range: %d", got)
	}
	rng := rand.New(rand.NewSource(5))
	seenLo, seenHi := false, false
	for i := 0; i < 10_000; i++ {
		v := intBetween(rng.Float64(), 3, 7)
		if v < 3 || v > 7 {
			t.Fatalf("out of range: %d", v)
		}
		if v == 3 {
			seenLo = true
		}
		if v == 7 {
			seenHi = true
		}
	}
	if !seenLo || !seenHi {
		t.Fatalf("endpoints never sampled: lo=%v hi=%v", seenLo, seenHi)
	}
}
