package trainer

import (
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

type Status int

const (
	StatusRunning Status = iota
	StatusFinished
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StepRecord is one agent decision.
type StepRecord struct {
	RunID      string     `json:"run_id"`
	Generation int        `json:"generation"`
	Step       int        `json:"step"`
	State      farm.State `json:"state"`
	Action     string     `json:"action"`
	Explored   bool       `json:"explored"`
	Legal      bool       `json:"legal"`
	Reward     int        `json:"reward"`
	Next       farm.State `json:"next"`
	Done       bool       `json:"done"`
}

// GenerationRecord summarizes one finished generation.
type GenerationRecord struct {
	RunID       string  `json:"run_id"`
	Generation  int     `json:"generation"`
	Steps       int     `json:"steps"`
	TotalReward float64 `json:"total_reward"`
	Illegal     int     `json:"illegal"`
	Explored    int     `json:"explored"`
	Exploited   int     `json:"exploited"`
	Epsilon     float64 `json:"epsilon"`
	Replayed    int     `json:"replayed"`
	Greedy      bool    `json:"greedy,omitempty"`

	Checkpoint   string `json:"checkpoint,omitempty"`
	PersistError string `json:"persist_error,omitempty"`

	StartedAt  string `json:"started_at"`
	EndedAt    string `json:"ended_at"`
	DurationMS int64  `json:"duration_ms"`
}

type CheckpointStore interface {
	Save(ck checkpoint.CheckpointV1) (location string, err error)
}

// CheckpointSink is told about every checkpoint that was saved successfully.
type CheckpointSink interface {
	RecordCheckpoint(location string, ck checkpoint.CheckpointV1)
}

type GenerationRecorder interface {
	WriteGeneration(r GenerationRecord) error
}

type StepRecorder interface {
	WriteStep(r StepRecord) error
}

// FramePublisher receives a frame after every tick. Publish must not block.
type FramePublisher interface {
	Publish(f observerproto.FrameMsg)
}

// Metrics is a point-in-time view safe to read from any goroutine.
type Metrics struct {
	Status          string  `json:"status"`
	Tick            uint64  `json:"tick"`
	Generation      int     `json:"generation"`
	Step            int     `json:"step"`
	Epsilon         float64 `json:"epsilon"`
	TotalSteps      uint64  `json:"total_steps"`
	Wins            int     `json:"wins"`
	PersistFailures int     `json:"persist_failures"`
	ReplayLen       int     `json:"replay_len"`
	LastGenSteps    int     `json:"last_generation_steps"`
	LastGenReward   float64 `json:"last_generation_reward"`
	TickMS          float64 `json:"tick_ms"`
}
