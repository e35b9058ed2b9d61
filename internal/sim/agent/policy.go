package agent

import (
	"math/rand"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

// Epsilon decays linearly with the generation and is floored at zero.
func Epsilon(generation int, decayRate float64) float64 {
	e := 1 - float64(generation)*decayRate
	if e < 0 {
		return 0
	}
	if e > 1 {
		return 1
	}
	return e
}

// Select is epsilon-greedy. Exploration draws uniformly from the legal actions;
// exploitation takes the argmax of q over every action, legal or not. q is called only
// when exploiting.
func Select(rng *rand.Rand, epsilon float64, legal [farm.NumActions]bool, q func() []float64) (a farm.Action, explored bool) {
	if rng.Float64() < epsilon {
		var cand [farm.NumActions]farm.Action
		n := 0
		for i, ok := range legal {
			if ok {
				cand[n] = farm.Action(i)
				n++
			}
		}
		if n > 0 {
			return cand[rng.Intn(n)], true
		}
	}
	return farm.Action(Argmax(q())), false
}
