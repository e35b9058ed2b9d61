package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
)

type MilestoneMeta struct {
	RunID        string  `json:"run_id"`
	Generation   int     `json:"generation"`
	Checkpoint   string  `json:"checkpoint"`
	SavedAt      string  `json:"saved_at"`
	CreatedAt    string  `json:"created_at"`
	Shape        []int   `json:"shape"`
	Epsilon      float64 `json:"epsilon"`
	Steps        int     `json:"steps"`
	TotalReward  float64 `json:"total_reward"`
	TuningDigest string  `json:"tuning_digest"`
}

// ArchiveCheckpoint copies a checkpoint into `runDir/archives/gen_<NNNNN>/` when its
// generation completes a block of `every` generations (generation numbers start at 0).
func ArchiveCheckpoint(runDir, checkpointPath string, ck checkpoint.CheckpointV1, every int) (archivedPath string, archived bool, err error) {
	if every <= 0 || checkpointPath == "" {
		return "", false, nil
	}
	gen := ck.Header.Generation
	if gen < 0 || (gen+1)%every != 0 {
		return "", false, nil
	}

	archiveDir := filepath.Join(runDir, "archives", fmt.Sprintf("gen_%05d", gen))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(checkpointPath))
	if err := copyFile(checkpointPath, dst); err != nil {
		return "", false, err
	}

	meta := MilestoneMeta{
		RunID:        ck.Header.RunID,
		Generation:   gen,
		Checkpoint:   filepath.Base(dst),
		SavedAt:      ck.Header.SavedAt,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Shape:        ck.Shape,
		Epsilon:      ck.Epsilon,
		Steps:        ck.Steps,
		TotalReward:  ck.TotalReward,
		TuningDigest: ck.TuningDigest,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

// Sink archives milestone checkpoints as the trainer saves them. Only file locations
// can be archived; other stores are skipped.
type Sink struct {
	RunDir string
	Every  int
	Logger *log.Logger
}

func (s *Sink) RecordCheckpoint(location string, ck checkpoint.CheckpointV1) {
	if s == nil || (strings.Contains(location, ":") && !filepath.IsAbs(location)) {
		return
	}
	dst, ok, err := ArchiveCheckpoint(s.RunDir, location, ck, s.Every)
	if s.Logger == nil {
		return
	}
	if err != nil {
		s.Logger.Printf("archive generation %d: %v", ck.Header.Generation, err)
		return
	}
	if ok {
		s.Logger.Printf("archived generation %d to %s", ck.Header.Generation, dst)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
