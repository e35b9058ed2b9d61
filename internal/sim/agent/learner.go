package agent

import (
	"fmt"
	"math/rand"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

type Config struct {
	Gamma   float64
	MemSize int
	Net     NetConfig
}

// Agent bundles the value function, replay memory and the random source used for
// exploration and replay sampling.
type Agent struct {
	Net    *QNet
	Memory *ReplayBuffer
	Gamma  float64

	rng *rand.Rand
}

func New(cfg Config) (*Agent, error) {
	cfg.Net.Inputs = farm.StateSize
	cfg.Net.Outputs = farm.NumActions
	net, err := NewQNet(cfg.Net)
	if err != nil {
		return nil, err
	}
	if cfg.MemSize <= 0 {
		return nil, fmt.Errorf("agent: mem size must be > 0")
	}
	return &Agent{
		Net:    net,
		Memory: NewReplayBuffer(cfg.MemSize),
		Gamma:  cfg.Gamma,
		// Offset so exploration draws differ from weight init.
		rng: rand.New(rand.NewSource(cfg.Net.Seed + 1)),
	}, nil
}

func (a *Agent) Act(s farm.State, legal [farm.NumActions]bool, epsilon float64) (farm.Action, bool) {
	return Select(a.rng, epsilon, legal, func() []float64 { return a.Net.Predict(s.Floats()) })
}

// Target is the TD target: the reward alone at episode end, otherwise the reward plus
// the discounted best estimate for the next state.
func (a *Agent) Target(t Transition) float64 {
	if t.Done {
		return t.Reward
	}
	return t.Reward + a.Gamma*maxOf(a.Net.Predict(t.Next.Floats()))
}

// Learn fits the value function on one transition, moving only the chosen action's
// estimate toward the TD target. It returns the loss before the step.
func (a *Agent) Learn(t Transition) float64 {
	if !t.Action.Valid() {
		panic(&farm.InvariantError{Op: "learn", Detail: fmt.Sprintf("action index %d out of range", int(t.Action))})
	}
	target := a.Target(t)
	x := t.State.Floats()
	y := a.Net.Predict(x)
	y[t.Action] = target
	return a.Net.Fit(x, y)
}

func (a *Agent) Remember(t Transition) { a.Memory.Append(t) }

// Replay applies Learn once to each of up to Cap sampled transitions and returns how
// many were replayed.
func (a *Agent) Replay() int {
	batch := a.Memory.Sample(a.rng, a.Memory.Cap())
	for _, t := range batch {
		a.Learn(t)
	}
	return len(batch)
}
