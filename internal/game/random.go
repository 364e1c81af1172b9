package game

// Weighted sampling shared by roulette spins, NPC votes, and any other
// weighted draw. The empirical distribution over many draws converges
// to weight_i / sum(weights).

// randSource is the slice of math/rand the engine consumes; it keeps
// tick helpers testable with a seeded generator.
type randSource interface {
	Float64() float64
	NormFloat64() float64
}

// weightedIndex maps a uniform draw in [0,1) onto an index by cumulative
// weight. A weight <= 0 counts as 1 so sparse configs still work.
func weightedIndex(draw float64, weights []float64) (int, error) {
	if len(weights) == 0 {
		return 0, ErrInvalidConfig
	}
	var total float64
	for _, w := range weights {
		if w <= 0 {
			w = 1
		}
		total += w
	}
	target := draw * total
	var cum float64
	for i, w := range weights {
		if w <= 0 {
			w = 1
		}
		cum += w
		if target < cum {
			return i, nil
		}
	}
	// draw == 1 never happens with rand.Float64, but floating point
	// accumulation can leave target a hair above cum.
	return len(weights) - 1, nil
}

// WeightedPick samples one index proportionally to the given weights.
func (g *GameStateStore) WeightedPick(weights []float64) (int, error) {
	return weightedIndex(g.nextFloat(), weights)
}

// intBetween samples uniformly from [lo, hi].
func intBetween(draw float64, lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + int64(draw*float64(hi-lo+1))
}
