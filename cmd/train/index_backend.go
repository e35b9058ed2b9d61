package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/indexdb"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

type runtimeIndex interface {
	trainer.GenerationRecorder
	trainer.CheckpointSink
	UpsertTuning(tune tuning.Tuning) (string, error)
	Stats() indexdb.Stats
	Close() error
}

func openRuntimeIndex(runDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("FARM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported FARM_INDEX_BACKEND: %s", backend)
	}
}

type multiGenerationRecorder []trainer.GenerationRecorder

func (m multiGenerationRecorder) WriteGeneration(r trainer.GenerationRecord) error {
	var first error
	for _, g := range m {
		if g == nil {
			continue
		}
		if err := g.WriteGeneration(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
