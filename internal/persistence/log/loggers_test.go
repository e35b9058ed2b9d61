package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestGenerationLogger_FlushesEachRecord(t *testing.T) {
	dir := t.TempDir()
	l := NewGenerationLogger(dir)
	now := time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC)
	l.w.now = func() time.Time { return now }

	if err := l.WriteGeneration(trainer.GenerationRecord{RunID: "run_a", Generation: 3, Steps: 41, TotalReward: -250}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "generations", "generations-2026-03-01-14.jsonl.zst"))
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	var got trainer.GenerationRecord
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Generation != 3 || got.Steps != 41 || got.TotalReward != -250 {
		t.Fatalf("got=%+v", got)
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "steps")
	now := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	sl := &StepLogger{w: w}
	if err := sl.WriteStep(trainer.StepRecord{Step: 1, Action: "pickup_hoe"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := sl.WriteStep(trainer.StepRecord{Step: 2, Action: "use_item"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := sl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Lines() != 2 {
		t.Fatalf("lines=%d", w.Lines())
	}
	for _, name := range []string{"steps-2026-03-01-09.jsonl.zst", "steps-2026-03-01-10.jsonl.zst"} {
		if got := readLines(t, filepath.Join(dir, name)); len(got) != 1 {
			t.Fatalf("%s: lines=%d", name, len(got))
		}
	}
}
