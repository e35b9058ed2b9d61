package farm

const (
	RewardGood    = 10
	RewardBad     = -10
	RewardIllegal = -10
	// Moving is penalized harder than any other action.
	RewardMove = -100
)

// Apply performs one action and returns its reward. Illegal actions cost
// RewardIllegal and leave the world untouched. An action outside the catalog panics
// with an *InvariantError.
func (w *World) Apply(a Action) int {
	if !a.Valid() {
		invariantf("apply", "action index %d out of range", int(a))
	}
	if !w.IsLegal(a) {
		return RewardIllegal
	}

	switch a {
	case MoveLeft, MoveRight, MoveUp, MoveDown:
		dx, dy, _ := a.delta()
		w.grid.Move(w.bot, w.bot.Pos.Add(dx, dy))
		return RewardMove

	case PickupHoe, PickupSeeds, PickupWater:
		tool, _ := a.pickupTool()
		item := w.grid.first(w.bot.Pos, tool)
		if item == nil {
			return RewardBad
		}
		reward := RewardBad
		if w.Needs().Needs(tool) {
			reward = RewardGood
		}
		w.grid.Remove(item)
		w.held = item
		return reward

	case UseItem:
		return w.use()

	case DropItem:
		return w.drop()
	}
	return RewardBad
}

func (w *World) use() int {
	if w.held == nil {
		invariantf("use", "use with empty hands")
	}
	reward := RewardBad
	if p := w.PlantAt(w.bot.Pos); p != nil {
		if next, ok := Advance(p.Stage, w.held.Kind); ok {
			p.Stage = next
			reward = RewardGood
		}
	} else if s, ok := Sow(w.held.Kind); ok {
		p := w.newEntity(KindPlant)
		p.Stage = s
		w.grid.Put(p, w.bot.Pos)
		reward = RewardGood
	}
	return reward
}

func (w *World) drop() int {
	if w.held == nil {
		invariantf("drop", "drop with empty hands")
	}
	reward := RewardGood
	if w.held.Kind == w.CellNeed() {
		reward = RewardBad
	}
	item := w.held
	w.held = nil
	w.grid.Put(item, w.bot.Pos)
	return reward
}
