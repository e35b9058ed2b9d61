package trainer

import (
	"context"
	"errors"
	"testing"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

type fakeStore struct {
	saved []checkpoint.CheckpointV1
	err   error
}

func (s *fakeStore) Save(ck checkpoint.CheckpointV1) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, ck)
	return "mem:latest", nil
}

type fakeSink struct{ locs []string }

func (s *fakeSink) RecordCheckpoint(loc string, _ checkpoint.CheckpointV1) { s.locs = append(s.locs, loc) }

type genLog struct{ recs []GenerationRecord }

func (g *genLog) WriteGeneration(r GenerationRecord) error {
	g.recs = append(g.recs, r)
	return nil
}

type stepLog struct{ n int }

func (s *stepLog) WriteStep(StepRecord) error {
	s.n++
	return nil
}

type frames struct{ got []observerproto.FrameMsg }

func (f *frames) Publish(m observerproto.FrameMsg) { f.got = append(f.got, m) }

func tinyTuning(budget int) tuning.Tuning {
	t := tuning.Defaults()
	t.Grid.Width, t.Grid.Height = 1, 1
	t.Start.Bot = [2]int{0, 0}
	t.Start.Hoe = [2]int{0, 0}
	t.Start.Seeds = [2]int{0, 0}
	t.Start.Water = [2]int{0, 0}
	t.Loop.StepsPerTick = 50
	t.Loop.GenerationBudget = budget
	t.Learn.MemSize = 64
	t.Learn.Hidden = []int{8}
	return t
}

func tickUntil(t *testing.T, tr *Trainer, done func() bool) {
	t.Helper()
	for i := 0; i < 20000; i++ {
		if done() {
			return
		}
		if err := tr.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	t.Fatalf("condition not reached")
}

func TestTrainer_WinPersistsAndResets(t *testing.T) {
	store := &fakeStore{}
	sink := &fakeSink{}
	gens := &genLog{}
	steps := &stepLog{}
	tr, err := New(Options{
		RunID: "run_test", Tuning: tinyTuning(3),
		Store: store, Sinks: []CheckpointSink{sink}, Generations: gens, Steps: steps,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tr.Epsilon() != 1 {
		t.Fatalf("gen 0 epsilon=%v want 1", tr.Epsilon())
	}

	tickUntil(t, tr, func() bool { return tr.Generation() >= 1 })

	if len(store.saved) != 1 || len(sink.locs) != 1 || sink.locs[0] != "mem:latest" {
		t.Fatalf("saved=%d sink=%v", len(store.saved), sink.locs)
	}
	if store.saved[0].Header.Generation != 0 {
		t.Fatalf("checkpoint generation=%d want 0", store.saved[0].Header.Generation)
	}
	if len(gens.recs) != 1 {
		t.Fatalf("generation records=%d", len(gens.recs))
	}
	rec := gens.recs[0]
	if rec.Checkpoint != "mem:latest" || rec.Steps <= 0 || rec.Replayed <= 0 {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Explored+rec.Exploited != rec.Steps {
		t.Fatalf("explored+exploited=%d steps=%d", rec.Explored+rec.Exploited, rec.Steps)
	}
	if steps.n < rec.Steps {
		t.Fatalf("step records=%d want >= %d", steps.n, rec.Steps)
	}
	// Reset happened: the lone cell has no plant.
	if tr.World().Won() || tr.World().PlantAt(farm.Cell{}) != nil {
		t.Fatalf("world not reset after win")
	}
	if tr.Agent().Memory.Len() == 0 {
		t.Fatalf("replay memory should survive the reset")
	}
	if m := tr.Metrics(); m.Wins != 1 || m.Generation != 1 || m.Status != "running" {
		t.Fatalf("metrics=%+v", m)
	}
}

func TestTrainer_PersistFailureDoesNotStopTraining(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	sink := &fakeSink{}
	gens := &genLog{}
	tr, err := New(Options{RunID: "r", Tuning: tinyTuning(5), Store: store, Sinks: []CheckpointSink{sink}, Generations: gens})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tickUntil(t, tr, func() bool { return tr.Generation() >= 2 })
	if len(sink.locs) != 0 {
		t.Fatalf("sink told about failed saves: %v", sink.locs)
	}
	if gens.recs[0].PersistError != "disk full" {
		t.Fatalf("persist error=%q", gens.recs[0].PersistError)
	}
	if m := tr.Metrics(); m.PersistFailures != 2 {
		t.Fatalf("persist failures=%d", m.PersistFailures)
	}
}

func TestTrainer_BudgetFinishesAndKeepsLastGrid(t *testing.T) {
	tr, err := New(Options{RunID: "r", Tuning: tinyTuning(1)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tickUntil(t, tr, func() bool { return tr.Status() == StatusFinished })
	if !tr.World().Won() {
		t.Fatalf("final grid should stay in its won state")
	}
	steps := tr.StepCount()
	if err := tr.Tick(context.Background()); err != nil {
		t.Fatalf("tick after finish: %v", err)
	}
	if tr.StepCount() != steps {
		t.Fatalf("finished trainer kept stepping")
	}
	if err := tr.Run(context.Background()); err != nil {
		t.Fatalf("run after finish: %v", err)
	}
}

func TestTrainer_CancelBetweenSteps(t *testing.T) {
	tr, err := New(Options{RunID: "r", Tuning: tinyTuning(10)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := tr.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("tick err=%v", err)
	}
	if tr.StepCount() != 0 {
		t.Fatalf("steps taken after cancel: %d", tr.StepCount())
	}
	if err := tr.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v", err)
	}
}

func TestTrainer_GreedyDoesNotLearn(t *testing.T) {
	store := &fakeStore{}
	fr := &frames{}
	tr, err := New(Options{RunID: "r", Tuning: tinyTuning(10), Store: store, Frames: fr, Greedy: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	before := tr.Agent().Net.Params()
	for i := 0; i < 20; i++ {
		if err := tr.Tick(context.Background()); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
	if tr.Epsilon() != 0 {
		t.Fatalf("greedy epsilon=%v", tr.Epsilon())
	}
	if tr.Agent().Memory.Len() != 0 || len(store.saved) != 0 {
		t.Fatalf("greedy mode remembered %d transitions and saved %d checkpoints", tr.Agent().Memory.Len(), len(store.saved))
	}
	after := tr.Agent().Net.Params()
	for i := range before {
		for j := range before[i].W {
			if before[i].W[j] != after[i].W[j] {
				t.Fatalf("weights changed in greedy mode")
			}
		}
	}
	if len(fr.got) != 21 {
		t.Fatalf("frames=%d want 21", len(fr.got))
	}
}

func TestTrainer_InvariantBreakAborts(t *testing.T) {
	tu := tinyTuning(10)
	tu.CheckInvariants = true
	tr, err := New(Options{RunID: "r", Tuning: tu})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr.World().Grid().Remove(tr.World().Bot())

	err = tr.Tick(context.Background())
	if err == nil || !IsAbort(err) {
		t.Fatalf("tick err=%v want invariant error", err)
	}
	if tr.Status() != StatusFailed {
		t.Fatalf("status=%s", tr.Status())
	}
	if err2 := tr.Tick(context.Background()); err2 == nil {
		t.Fatalf("failed trainer should keep returning its error")
	}
}

func TestTrainer_RestoreContinuesAfterCheckpoint(t *testing.T) {
	src, err := New(Options{RunID: "r", Tuning: tinyTuning(10)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ck := src.Checkpoint()
	ck.Header.Generation = 4

	dst, err := New(Options{RunID: "r", Tuning: tinyTuning(10)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := dst.Restore(ck); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if dst.Generation() != 5 {
		t.Fatalf("generation=%d want 5", dst.Generation())
	}
	if want := 1 - 5*tinyTuning(10).DecayRate(); dst.Epsilon() != want {
		t.Fatalf("epsilon=%v want %v", dst.Epsilon(), want)
	}
	x := farm.StateFromBits(0x15).Floats()
	a, b := src.Agent().Net.Predict(x), dst.Agent().Net.Predict(x)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("q[%d]=%v want %v", i, b[i], a[i])
		}
	}
}

func TestTrainer_FrameReportsHeldItemAtBot(t *testing.T) {
	tr, err := New(Options{RunID: "r", Tuning: tinyTuning(10)})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tr.World().Apply(farm.PickupHoe)
	f := tr.Frame()
	if f.Width != 1 || f.Height != 1 || len(f.Entities) != 4 {
		t.Fatalf("frame=%+v", f)
	}
	last := f.Entities[len(f.Entities)-1]
	if !last.Held || last.Kind != "hoe" || last.Pos != [2]int{0, 0} {
		t.Fatalf("held entity=%+v", last)
	}
}
