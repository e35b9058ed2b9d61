package farm

type Stage uint8

const (
	StageTilled Stage = iota + 1
	StagePlanted
	StageGrown
	// Crushed is a failure-terminal stage. No transition produces it yet, but the win
	// check counts it as finished.
	StageCrushed
)

func (s Stage) String() string {
	switch s {
	case StageTilled:
		return "tilled"
	case StagePlanted:
		return "planted"
	case StageGrown:
		return "grown"
	case StageCrushed:
		return "crushed"
	default:
		return ""
	}
}

func (s Stage) Terminal() bool { return s == StageGrown || s == StageCrushed }

// Sow returns the stage of a new plant created by using tool on a cell with no plant.
func Sow(tool Kind) (Stage, bool) {
	if tool == KindHoe {
		return StageTilled, true
	}
	return 0, false
}

// Advance is the plant growth table. It returns the next stage and true when tool
// applies to a plant at stage from.
func Advance(from Stage, tool Kind) (Stage, bool) {
	switch from {
	case StageTilled:
		if tool == KindSeeds {
			return StagePlanted, true
		}
	case StagePlanted:
		if tool == KindWater {
			return StageGrown, true
		}
	case StageGrown, StageCrushed:
	}
	return from, false
}

// NeedOf returns the tool a cell needs next given its plant (nil for an empty cell),
// or KindNone once the plant is terminal.
func NeedOf(p *Entity) Kind {
	if p == nil {
		return KindHoe
	}
	switch p.Stage {
	case StageTilled:
		return KindSeeds
	case StagePlanted:
		return KindWater
	default:
		return KindNone
	}
}
