package farm

const StateSize = 8

// State is the feature vector fed to the value function:
// holding, holding hoe/seeds/water, grid needs till/seed/water, held tool matches the
// current cell's need. It carries no absolute position.
type State [StateSize]int

func (w *World) Encode() State {
	var s State
	held := w.HeldKind()
	n := w.Needs()
	s[0] = b2i(w.held != nil)
	s[1] = b2i(held == KindHoe)
	s[2] = b2i(held == KindSeeds)
	s[3] = b2i(held == KindWater)
	s[4] = b2i(n.Till)
	s[5] = b2i(n.Seed)
	s[6] = b2i(n.Water)
	s[7] = b2i(w.held != nil && held == w.CellNeed())
	return s
}

func (s State) Floats() []float64 {
	out := make([]float64, StateSize)
	for i, v := range s {
		out[i] = float64(v)
	}
	return out
}

// StateFromBits expands the low 8 bits of b into a state vector, bit i to element i.
func StateFromBits(b uint8) State {
	var s State
	for i := 0; i < StateSize; i++ {
		s[i] = int(b>>i) & 1
	}
	return s
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
