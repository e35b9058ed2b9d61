package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqGeneration}

	_ = s.WriteGeneration(trainer.GenerationRecord{Generation: 2})
	s.RecordCheckpoint("/tmp/latest.ckpt.zst", checkpoint.CheckpointV1{})

	st := s.Stats()
	if st.DropGenerationTotal != 1 {
		t.Fatalf("DropGenerationTotal=%d want=1", st.DropGenerationTotal)
	}
	if st.DropCheckpointTotal != 1 {
		t.Fatalf("DropCheckpointTotal=%d want=1", st.DropCheckpointTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesGenerationsAndCheckpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index", "run.sqlite")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	digest, err := idx.UpsertTuning(tuning.Defaults())
	if err != nil || digest == "" {
		t.Fatalf("UpsertTuning: digest=%q err=%v", digest, err)
	}
	for g, steps := range []int{120, 35, 35, 60} {
		_ = idx.WriteGeneration(trainer.GenerationRecord{
			RunID: "run_a", Generation: g, Steps: steps, TotalReward: float64(-10 * g),
			EndedAt: fmt.Sprintf("2026-03-01T10:00:%02dZ", g),
		})
	}
	_ = idx.WriteGeneration(trainer.GenerationRecord{RunID: "run_a", Generation: 9, Steps: 5, Greedy: true, EndedAt: "2026-03-01T10:00:09Z"})
	idx.RecordCheckpoint("/data/runs/run_a/checkpoints/latest.ckpt.zst", checkpoint.CheckpointV1{
		Header: checkpoint.Header{Version: checkpoint.Version, RunID: "run_a", Generation: 3, SavedAt: "2026-03-01T10:00:03Z"},
		Shape:  []int{8, 24, 9},
	})
	idx.RecordCheckpoint("", checkpoint.CheckpointV1{})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM generations WHERE run_id='run_a'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Fatalf("generation rows=%d want 5", n)
	}

	rd, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()
	ctx := context.Background()

	gens, err := rd.Generations(ctx, 2)
	if err != nil {
		t.Fatalf("Generations: %v", err)
	}
	if len(gens) != 2 || gens[0].Generation != 9 || gens[1].Generation != 3 {
		t.Fatalf("gens=%+v", gens)
	}
	best, ok, err := rd.BestGeneration(ctx)
	if err != nil || !ok {
		t.Fatalf("BestGeneration: ok=%v err=%v", ok, err)
	}
	if best.Generation != 1 || best.Steps != 35 {
		t.Fatalf("best=%+v want generation 1 with 35 steps", best)
	}
	cks, err := rd.Checkpoints(ctx, 10)
	if err != nil {
		t.Fatalf("Checkpoints: %v", err)
	}
	if len(cks) != 1 || cks[0].Generation != 3 || cks[0].Shape != "[8,24,9]" {
		t.Fatalf("checkpoints=%+v", cks)
	}
	tunes, err := rd.Tuning(ctx)
	if err != nil || len(tunes) != 1 || tunes[0].Digest != digest {
		t.Fatalf("tuning=%+v err=%v", tunes, err)
	}
}

func TestReader_BestGenerationEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	_ = idx.Close()

	rd, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()
	if _, ok, err := rd.BestGeneration(context.Background()); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestSQLiteIndex_GenerationVisibleWhileOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.sqlite")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	rd, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer rd.Close()

	_ = idx.WriteGeneration(trainer.GenerationRecord{RunID: "run_live", Generation: 0, Steps: 42, EndedAt: "2026-03-01T10:00:00Z"})

	deadline := time.Now().Add(time.Second)
	for {
		gens, err := rd.Generations(context.Background(), 10)
		if err != nil {
			t.Fatalf("Generations: %v", err)
		}
		if len(gens) == 1 && gens[0].Steps == 42 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("generation not visible to a reader while the index is open: %+v", gens)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
