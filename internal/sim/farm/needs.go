package farm

// NeedProfile records which tools the grid still needs somewhere.
type NeedProfile struct {
	Till  bool
	Seed  bool
	Water bool
}

func (n NeedProfile) Needs(tool Kind) bool {
	switch tool {
	case KindHoe:
		return n.Till
	case KindSeeds:
		return n.Seed
	case KindWater:
		return n.Water
	default:
		return false
	}
}

// Needs scans every cell. An empty cell needs tilling.
func (w *World) Needs() NeedProfile {
	var n NeedProfile
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			switch NeedOf(w.PlantAt(Cell{X: x, Y: y})) {
			case KindHoe:
				n.Till = true
			case KindSeeds:
				n.Seed = true
			case KindWater:
				n.Water = true
			}
			if n.Till && n.Seed && n.Water {
				return n
			}
		}
	}
	return n
}

// CellNeed is the tool needed at the bot's current cell, or KindNone.
func (w *World) CellNeed() Kind {
	return NeedOf(w.PlantAt(w.bot.Pos))
}
