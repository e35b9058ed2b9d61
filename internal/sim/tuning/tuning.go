package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	Grid    Grid    `yaml:"grid" json:"grid"`
	Start   Start   `yaml:"start" json:"start"`
	Loop    Loop    `yaml:"loop" json:"loop"`
	Learn   Learn   `yaml:"learn" json:"learn"`
	Persist Persist `yaml:"persist" json:"persist"`

	CheckInvariants bool `yaml:"check_invariants" json:"check_invariants"`
}

type Grid struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// Presentation only.
	CellPx int `yaml:"cell_px" json:"cell_px"`
}

// Start holds the fixed cells the bot and tools return to on every reset.
type Start struct {
	Bot   [2]int `yaml:"bot" json:"bot"`
	Hoe   [2]int `yaml:"hoe" json:"hoe"`
	Seeds [2]int `yaml:"seeds" json:"seeds"`
	Water [2]int `yaml:"water" json:"water"`
}

type Loop struct {
	StepsPerTick     int `yaml:"steps_per_tick" json:"steps_per_tick"`
	TickRateHz       int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	GenerationBudget int `yaml:"generation_budget" json:"generation_budget"`
}

type Learn struct {
	Gamma        float64 `yaml:"gamma" json:"gamma"`
	MemSize      int     `yaml:"mem_size" json:"mem_size"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Hidden       []int   `yaml:"hidden" json:"hidden"`
	Optimizer    string  `yaml:"optimizer" json:"optimizer"`
	Seed         int64   `yaml:"seed" json:"seed"`
}

type Persist struct {
	CheckpointEveryWin bool `yaml:"checkpoint_every_win" json:"checkpoint_every_win"`
	// 0 disables milestone archives.
	ArchiveEvery int `yaml:"archive_every" json:"archive_every"`
}

// Defaults returns the embedded defaults. It panics only if the embedded file is broken.
func Defaults() Tuning {
	var t Tuning
	if err := yaml.Unmarshal(defaultsYAML, &t); err != nil {
		panic(fmt.Sprintf("tuning: embedded defaults: %v", err))
	}
	return t
}

// Load reads a tuning file and overlays it on the defaults. Keys missing from the
// file keep their default value.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	if err := validateDocument(raw); err != nil {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	t := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

func validateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees plain JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s, err := jsonschema.CompileString("tuning.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return s.Validate(v)
}

func (t Tuning) Validate() error {
	if t.Grid.Width <= 0 || t.Grid.Height <= 0 {
		return fmt.Errorf("grid must be at least 1x1 (got %dx%d)", t.Grid.Width, t.Grid.Height)
	}
	for name, p := range map[string][2]int{
		"bot":   t.Start.Bot,
		"hoe":   t.Start.Hoe,
		"seeds": t.Start.Seeds,
		"water": t.Start.Water,
	} {
		if p[0] < 0 || p[0] >= t.Grid.Width || p[1] < 0 || p[1] >= t.Grid.Height {
			return fmt.Errorf("start.%s %v outside %dx%d grid", name, p, t.Grid.Width, t.Grid.Height)
		}
	}
	if t.Loop.StepsPerTick <= 0 {
		return fmt.Errorf("loop.steps_per_tick must be > 0")
	}
	if t.Loop.TickRateHz <= 0 {
		return fmt.Errorf("loop.tick_rate_hz must be > 0")
	}
	if t.Loop.GenerationBudget <= 0 {
		return fmt.Errorf("loop.generation_budget must be > 0")
	}
	if t.Learn.Gamma < 0 || t.Learn.Gamma > 1 {
		return fmt.Errorf("learn.gamma must be in [0,1]")
	}
	if t.Learn.MemSize <= 0 {
		return fmt.Errorf("learn.mem_size must be > 0")
	}
	if t.Learn.LearningRate <= 0 {
		return fmt.Errorf("learn.learning_rate must be > 0")
	}
	for i, h := range t.Learn.Hidden {
		if h <= 0 {
			return fmt.Errorf("learn.hidden[%d] must be > 0", i)
		}
	}
	switch strings.ToLower(t.Learn.Optimizer) {
	case "adam", "sgd":
	default:
		return fmt.Errorf("learn.optimizer %q: want adam or sgd", t.Learn.Optimizer)
	}
	if t.Persist.ArchiveEvery < 0 {
		return fmt.Errorf("persist.archive_every must be >= 0")
	}
	return nil
}

// DecayRate is the per-generation epsilon decrement. Epsilon reaches zero at twice the
// generation budget, so it never fully vanishes within a run.
func (t Tuning) DecayRate() float64 {
	if t.Loop.GenerationBudget <= 0 {
		return 0
	}
	return 1 / (2 * float64(t.Loop.GenerationBudget))
}
