package farm

// Kind tags an entity variant.
type Kind uint8

const (
	KindBot Kind = iota
	KindHoe
	KindSeeds
	KindWater
	KindPlant
)

// KindNone marks "nothing" where a Kind is expected (empty hands, no need).
const KindNone Kind = 255

func (k Kind) String() string {
	switch k {
	case KindBot:
		return "bot"
	case KindHoe:
		return "hoe"
	case KindSeeds:
		return "seeds"
	case KindWater:
		return "water"
	case KindPlant:
		return "plant"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

func (k Kind) IsTool() bool {
	switch k {
	case KindHoe, KindSeeds, KindWater:
		return true
	default:
		return false
	}
}

// Tools lists the portable tools in pickup action order.
var Tools = [3]Kind{KindHoe, KindSeeds, KindWater}

// Entity is one occupant of the grid. Stage is meaningful only for plants.
type Entity struct {
	ID    int
	Kind  Kind
	Pos   Cell
	Stage Stage

	onGrid bool
}

// OnGrid reports whether the entity is currently listed in the grid index.
func (e *Entity) OnGrid() bool { return e.onGrid }
