package trainer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/render"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/agent"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

type Options struct {
	RunID  string
	Tuning tuning.Tuning
	Logger *log.Logger

	// All optional.
	Store       CheckpointStore
	Sinks       []CheckpointSink
	Generations GenerationRecorder
	Steps       StepRecorder
	Frames      FramePublisher

	// Greedy plays with epsilon 0 and neither learns nor persists.
	Greedy bool
}

type genStats struct {
	started     time.Time
	totalReward float64
	illegal     int
	explored    int
	exploited   int
	epsilon     float64
}

// Trainer drives the farm world and the learning agent. All methods except Metrics,
// Latest and Status must be called from one goroutine.
type Trainer struct {
	opts  Options
	tune  tuning.Tuning
	log   *log.Logger
	world *farm.World
	agent *agent.Agent

	digest string

	tick   uint64
	gen    int
	step   int
	status Status
	err    error
	cur    genStats

	lastAction farm.Action
	lastReward int
	acted      bool

	totalSteps      uint64
	wins            int
	persistFailures int
	lastGen         GenerationRecord

	metrics atomic.Value // Metrics
	latest  atomic.Value // observerproto.FrameMsg
}

func New(opts Options) (*Trainer, error) {
	t := opts.Tuning
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	w, err := farm.New(farm.Config{
		Width:      t.Grid.Width,
		Height:     t.Grid.Height,
		BotStart:   farm.Cell{X: t.Start.Bot[0], Y: t.Start.Bot[1]},
		HoeStart:   farm.Cell{X: t.Start.Hoe[0], Y: t.Start.Hoe[1]},
		SeedsStart: farm.Cell{X: t.Start.Seeds[0], Y: t.Start.Seeds[1]},
		WaterStart: farm.Cell{X: t.Start.Water[0], Y: t.Start.Water[1]},
	})
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	ag, err := agent.New(agent.Config{
		Gamma:   t.Learn.Gamma,
		MemSize: t.Learn.MemSize,
		Net: agent.NetConfig{
			Hidden:       t.Learn.Hidden,
			LearningRate: t.Learn.LearningRate,
			Optimizer:    t.Learn.Optimizer,
			Seed:         t.Learn.Seed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	tr := &Trainer{
		opts:   opts,
		tune:   t,
		log:    logger,
		world:  w,
		agent:  ag,
		digest: digestTuning(t),
	}
	tr.beginGeneration()
	tr.publish(0)
	return tr, nil
}

func digestTuning(t tuning.Tuning) string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (t *Trainer) World() *farm.World    { return t.world }
func (t *Trainer) Agent() *agent.Agent   { return t.agent }
func (t *Trainer) Generation() int       { return t.gen }
func (t *Trainer) StepCount() int        { return t.step }
func (t *Trainer) Tuning() tuning.Tuning { return t.tune }
func (t *Trainer) TuningDigest() string  { return t.digest }
func (t *Trainer) RunID() string         { return t.opts.RunID }
func (t *Trainer) Greedy() bool          { return t.opts.Greedy }

func (t *Trainer) Status() Status {
	m := t.Metrics()
	switch m.Status {
	case StatusFinished.String():
		return StatusFinished
	case StatusFailed.String():
		return StatusFailed
	default:
		return StatusRunning
	}
}

// Epsilon is the exploration rate of the current generation.
func (t *Trainer) Epsilon() float64 {
	if t.opts.Greedy {
		return 0
	}
	return agent.Epsilon(t.gen, t.tune.DecayRate())
}

// Restore loads checkpointed weights and continues from the generation after the one
// that produced the checkpoint.
func (t *Trainer) Restore(ck checkpoint.CheckpointV1) error {
	if err := t.agent.Net.SetParams(ck.Layers); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	t.gen = ck.Header.Generation + 1
	t.step = 0
	t.world.Reset()
	if t.gen >= t.tune.Loop.GenerationBudget && !t.opts.Greedy {
		t.status = StatusFinished
	}
	t.beginGeneration()
	t.publish(0)
	return nil
}

// Run ticks at the configured rate until ctx is cancelled, training finishes, or an
// invariant breaks.
func (t *Trainer) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(t.tune.Loop.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if t.status != StatusRunning {
			return t.err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick runs up to steps_per_tick decisions, stopping early on a win, then handles the
// win and publishes a frame. Cancellation is observed between steps only.
func (t *Trainer) Tick(ctx context.Context) error {
	if t.status == StatusFailed {
		return t.err
	}
	if t.status == StatusFinished {
		return nil
	}
	start := time.Now()
	for i := 0; i < t.tune.Loop.StepsPerTick; i++ {
		if err := ctx.Err(); err != nil {
			t.tick++
			t.publish(time.Since(start))
			return err
		}
		done, err := t.safeStep()
		if err != nil {
			t.status = StatusFailed
			t.err = err
			t.log.Printf("training aborted: %v", err)
			t.publish(time.Since(start))
			return err
		}
		if done {
			break
		}
	}
	if t.world.Won() {
		t.onWin()
	}
	t.tick++
	t.publish(time.Since(start))
	return nil
}

// StepOnce performs a single decision outside of a tick. A win is handled the same
// way Tick handles it.
func (t *Trainer) StepOnce() (StepRecord, error) {
	if t.status != StatusRunning {
		return StepRecord{}, t.err
	}
	rec, err := t.step1()
	if err != nil {
		t.status = StatusFailed
		t.err = err
		return rec, err
	}
	if rec.Done {
		t.onWin()
	}
	t.publish(0)
	return rec, nil
}

func (t *Trainer) safeStep() (bool, error) {
	rec, err := t.step1()
	return rec.Done, err
}

func (t *Trainer) step1() (rec StepRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*farm.InvariantError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("generation %d step %d: %w", t.gen, t.step, ie)
		}
	}()

	w := t.world
	pre := w.Encode()
	legal := w.Legal()
	a, explored := t.agent.Act(pre, legal, t.cur.epsilon)
	reward := w.Apply(a)
	post := w.Encode()
	done := w.Won()

	tr := agent.Transition{State: pre, Next: post, Action: a, Reward: float64(reward), Done: done}
	if !t.opts.Greedy {
		t.agent.Learn(tr)
		t.agent.Remember(tr)
	}

	t.step++
	t.totalSteps++
	t.cur.totalReward += float64(reward)
	if !legal[a] {
		t.cur.illegal++
	}
	if explored {
		t.cur.explored++
	} else {
		t.cur.exploited++
	}
	t.lastAction, t.lastReward, t.acted = a, reward, true

	if t.tune.CheckInvariants {
		if err := w.CheckInvariants(); err != nil {
			return StepRecord{}, fmt.Errorf("generation %d step %d: %w", t.gen, t.step, err)
		}
	}

	rec = StepRecord{
		RunID:      t.opts.RunID,
		Generation: t.gen,
		Step:       t.step,
		State:      pre,
		Action:     a.String(),
		Explored:   explored,
		Legal:      legal[a],
		Reward:     reward,
		Next:       post,
		Done:       done,
	}
	if t.opts.Steps != nil {
		if err := t.opts.Steps.WriteStep(rec); err != nil {
			t.log.Printf("step log: %v", err)
		}
	}
	return rec, nil
}

func (t *Trainer) beginGeneration() {
	t.cur = genStats{started: time.Now(), epsilon: t.Epsilon()}
}

func (t *Trainer) onWin() {
	now := time.Now()
	rec := GenerationRecord{
		RunID:       t.opts.RunID,
		Generation:  t.gen,
		Steps:       t.step,
		TotalReward: t.cur.totalReward,
		Illegal:     t.cur.illegal,
		Explored:    t.cur.explored,
		Exploited:   t.cur.exploited,
		Epsilon:     t.cur.epsilon,
		Greedy:      t.opts.Greedy,
		StartedAt:   t.cur.started.UTC().Format(time.RFC3339Nano),
		EndedAt:     now.UTC().Format(time.RFC3339Nano),
		DurationMS:  now.Sub(t.cur.started).Milliseconds(),
	}

	if !t.opts.Greedy {
		rec.Replayed = t.agent.Replay()
		if t.opts.Store != nil && t.tune.Persist.CheckpointEveryWin {
			ck := t.Checkpoint()
			loc, err := t.opts.Store.Save(ck)
			if err != nil {
				t.persistFailures++
				rec.PersistError = err.Error()
				t.log.Printf("checkpoint generation %d: %v", t.gen, err)
			} else {
				rec.Checkpoint = loc
				for _, s := range t.opts.Sinks {
					s.RecordCheckpoint(loc, ck)
				}
			}
		}
	}

	if t.opts.Generations != nil {
		if err := t.opts.Generations.WriteGeneration(rec); err != nil {
			t.log.Printf("generation log: %v", err)
		}
	}
	t.log.Printf("generation %d won: steps=%d reward=%.0f illegal=%d explored=%d eps=%.3f replayed=%d checkpoint=%s",
		rec.Generation, rec.Steps, rec.TotalReward, rec.Illegal, rec.Explored, rec.Epsilon, rec.Replayed, rec.Checkpoint)

	t.wins++
	t.lastGen = rec
	t.gen++
	if t.gen >= t.tune.Loop.GenerationBudget {
		// Leave the winning grid in place.
		t.status = StatusFinished
		t.log.Printf("generation budget %d reached; training finished", t.tune.Loop.GenerationBudget)
		return
	}
	t.step = 0
	t.world.Reset()
	t.beginGeneration()
}

// Checkpoint captures the current value function.
func (t *Trainer) Checkpoint() checkpoint.CheckpointV1 {
	return checkpoint.CheckpointV1{
		Header: checkpoint.Header{
			Version:    checkpoint.Version,
			RunID:      t.opts.RunID,
			Generation: t.gen,
			SavedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		},
		Shape:        t.agent.Net.Shape(),
		Layers:       t.agent.Net.Params(),
		Optimizer:    t.agent.Net.Config().Optimizer,
		LearningRate: t.tune.Learn.LearningRate,
		Gamma:        t.tune.Learn.Gamma,
		Epsilon:      t.cur.epsilon,
		DecayRate:    t.tune.DecayRate(),
		Seed:         t.tune.Learn.Seed,
		Steps:        t.step,
		TotalReward:  t.cur.totalReward,
		TuningDigest: t.digest,
	}
}

func (t *Trainer) publish(elapsed time.Duration) {
	f := t.Frame()
	t.latest.Store(f)
	t.metrics.Store(Metrics{
		Status:          t.status.String(),
		Tick:            t.tick,
		Generation:      t.gen,
		Step:            t.step,
		Epsilon:         t.cur.epsilon,
		TotalSteps:      t.totalSteps,
		Wins:            t.wins,
		PersistFailures: t.persistFailures,
		ReplayLen:       t.agent.Memory.Len(),
		LastGenSteps:    t.lastGen.Steps,
		LastGenReward:   t.lastGen.TotalReward,
		TickMS:          float64(elapsed.Microseconds()) / 1000,
	})
	if t.opts.Frames != nil {
		t.opts.Frames.Publish(f)
	}
}

// Frame builds a presentation snapshot of the current world.
func (t *Trainer) Frame() observerproto.FrameMsg {
	w := t.world
	held := w.Held()
	botPos := w.Bot().Pos
	ents := w.Entities()
	f := observerproto.FrameMsg{
		Type:            "FRAME",
		ProtocolVersion: observerproto.Version,
		RunID:           t.opts.RunID,
		Tick:            t.tick,
		Generation:      t.gen,
		Step:            t.step,
		Status:          t.status.String(),
		Epsilon:         t.cur.epsilon,
		State:           w.Encode(),
		LastReward:      t.lastReward,
		Width:           w.Config().Width,
		Height:          w.Config().Height,
		Entities:        make([]observerproto.EntityState, 0, len(ents)),
	}
	if t.acted {
		f.LastAction = t.lastAction.String()
	}
	for _, e := range ents {
		es := observerproto.EntityState{
			ID:     e.ID,
			Kind:   e.Kind.String(),
			Pos:    [2]int{e.Pos.X, e.Pos.Y},
			Stage:  e.Stage.String(),
			Visual: render.VisualKey(e),
		}
		if e == held {
			es.Held = true
			es.Pos = [2]int{botPos.X, botPos.Y}
		}
		f.Entities = append(f.Entities, es)
	}
	return f
}

// Latest returns the frame published after the most recent tick.
func (t *Trainer) Latest() observerproto.FrameMsg {
	f, _ := t.latest.Load().(observerproto.FrameMsg)
	return f
}

func (t *Trainer) Metrics() Metrics {
	m, _ := t.metrics.Load().(Metrics)
	return m
}

// IsAbort reports whether err ended training because of a broken invariant.
func IsAbort(err error) bool { return farm.IsInvariant(err) }
