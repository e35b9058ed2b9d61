package farm

type Action int

const (
	MoveLeft Action = iota
	MoveRight
	MoveUp
	MoveDown
	PickupHoe
	PickupSeeds
	PickupWater
	UseItem
	DropItem
)

const NumActions = 9

var actionNames = [NumActions]string{
	"move_left", "move_right", "move_up", "move_down",
	"pickup_hoe", "pickup_seeds", "pickup_water",
	"use_item", "drop_item",
}

func (a Action) Valid() bool { return a >= 0 && a < NumActions }

func (a Action) String() string {
	if !a.Valid() {
		return "invalid"
	}
	return actionNames[a]
}

func ParseAction(s string) (Action, bool) {
	for i, n := range actionNames {
		if n == s {
			return Action(i), true
		}
	}
	return 0, false
}

// delta returns the cell offset of a move action.
func (a Action) delta() (dx, dy int, ok bool) {
	switch a {
	case MoveLeft:
		return -1, 0, true
	case MoveRight:
		return 1, 0, true
	case MoveUp:
		return 0, -1, true
	case MoveDown:
		return 0, 1, true
	default:
		return 0, 0, false
	}
}

// pickupTool returns the tool a pickup action targets.
func (a Action) pickupTool() (Kind, bool) {
	switch a {
	case PickupHoe:
		return KindHoe, true
	case PickupSeeds:
		return KindSeeds, true
	case PickupWater:
		return KindWater, true
	default:
		return KindNone, false
	}
}

// Blocks reports whether an occupant of kind k prevents the bot from entering its cell.
// Every cell is currently walkable.
func Blocks(k Kind) bool { return false }

// Legal computes the legality vector for all actions against the current state.
func (w *World) Legal() [NumActions]bool {
	var out [NumActions]bool
	for a := Action(0); a < NumActions; a++ {
		out[a] = w.IsLegal(a)
	}
	return out
}

func (w *World) LegalActions() []Action {
	out := make([]Action, 0, NumActions)
	for a := Action(0); a < NumActions; a++ {
		if w.IsLegal(a) {
			out = append(out, a)
		}
	}
	return out
}

func (w *World) IsLegal(a Action) bool {
	switch a {
	case MoveLeft, MoveRight, MoveUp, MoveDown:
		dx, dy, _ := a.delta()
		dst := w.bot.Pos.Add(dx, dy)
		if !w.grid.InBounds(dst) {
			return false
		}
		for _, e := range w.grid.At(dst) {
			if Blocks(e.Kind) {
				return false
			}
		}
		return true
	case PickupHoe, PickupSeeds, PickupWater:
		tool, _ := a.pickupTool()
		return w.held == nil && w.grid.first(w.bot.Pos, tool) != nil
	case UseItem:
		return w.canUse()
	case DropItem:
		return w.held != nil
	default:
		return false
	}
}

func (w *World) canUse() bool {
	if w.held == nil {
		return false
	}
	p := w.PlantAt(w.bot.Pos)
	if p == nil {
		_, ok := Sow(w.held.Kind)
		return ok
	}
	_, ok := Advance(p.Stage, w.held.Kind)
	return ok
}
