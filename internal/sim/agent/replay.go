package agent

import (
	"math/rand"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

type Transition struct {
	State  farm.State  `json:"state"`
	Next   farm.State  `json:"next"`
	Action farm.Action `json:"action"`
	Reward float64     `json:"reward"`
	Done   bool        `json:"done"`
}

// ReplayBuffer is a bounded FIFO of transitions. Once full, each Append evicts the
// oldest entry.
type ReplayBuffer struct {
	buf  []Transition
	head int // index of the oldest entry once full
	cap  int
}

func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ReplayBuffer{buf: make([]Transition, 0, capacity), cap: capacity}
}

func (r *ReplayBuffer) Len() int { return len(r.buf) }
func (r *ReplayBuffer) Cap() int { return r.cap }

func (r *ReplayBuffer) Append(t Transition) {
	if len(r.buf) < r.cap {
		r.buf = append(r.buf, t)
		return
	}
	r.buf[r.head] = t
	r.head = (r.head + 1) % r.cap
}

// At returns the i-th entry counted from the oldest.
func (r *ReplayBuffer) At(i int) Transition {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Sample draws min(n, Len) distinct entries uniformly at random.
func (r *ReplayBuffer) Sample(rng *rand.Rand, n int) []Transition {
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Transition, 0, n)
	for _, i := range rng.Perm(len(r.buf))[:n] {
		out = append(out, r.buf[i])
	}
	return out
}
