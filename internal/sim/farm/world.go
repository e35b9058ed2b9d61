package farm

import (
	"fmt"
	"sort"
)

type Config struct {
	Width  int
	Height int

	// Fixed start cells restored on every Reset.
	BotStart   Cell
	HoeStart   Cell
	SeedsStart Cell
	WaterStart Cell
}

// World is the simulation context: grid, bot, tools and plants. It is owned by a
// single goroutine.
type World struct {
	cfg  Config
	grid *GridIndex

	bot   *Entity
	tools [3]*Entity
	held  *Entity

	nextID int
}

func New(cfg Config) (*World, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("grid must be at least 1x1 (got %dx%d)", cfg.Width, cfg.Height)
	}
	w := &World{cfg: cfg, grid: NewGridIndex(cfg.Width, cfg.Height)}
	for _, c := range []Cell{cfg.BotStart, cfg.HoeStart, cfg.SeedsStart, cfg.WaterStart} {
		if !w.grid.InBounds(c) {
			return nil, fmt.Errorf("start cell %v outside %dx%d grid", c, cfg.Width, cfg.Height)
		}
	}
	w.bot = w.newEntity(KindBot)
	for i, k := range Tools {
		w.tools[i] = w.newEntity(k)
	}
	w.Reset()
	return w, nil
}

func (w *World) newEntity(k Kind) *Entity {
	w.nextID++
	return &Entity{ID: w.nextID, Kind: k}
}

// Reset clears the grid and returns the bot and tools to their start cells.
func (w *World) Reset() {
	w.grid.Clear()
	w.held = nil
	w.grid.Put(w.bot, w.cfg.BotStart)
	w.grid.Put(w.tools[0], w.cfg.HoeStart)
	w.grid.Put(w.tools[1], w.cfg.SeedsStart)
	w.grid.Put(w.tools[2], w.cfg.WaterStart)
}

func (w *World) Config() Config   { return w.cfg }
func (w *World) Grid() *GridIndex { return w.grid }
func (w *World) Bot() *Entity     { return w.bot }

// Held returns the item the bot carries, or nil.
func (w *World) Held() *Entity { return w.held }

func (w *World) HeldKind() Kind {
	if w.held == nil {
		return KindNone
	}
	return w.held.Kind
}

func (w *World) PlantAt(c Cell) *Entity { return w.grid.first(c, KindPlant) }

// Won reports whether every cell holds a plant in a terminal stage.
func (w *World) Won() bool {
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			p := w.PlantAt(Cell{X: x, Y: y})
			if p == nil || !p.Stage.Terminal() {
				return false
			}
		}
	}
	return true
}

// SetPlant places or overwrites the plant at c. It bypasses the action rules and is
// meant for seeding scenarios.
func (w *World) SetPlant(c Cell, s Stage) *Entity {
	if p := w.PlantAt(c); p != nil {
		p.Stage = s
		return p
	}
	p := w.newEntity(KindPlant)
	p.Stage = s
	w.grid.Put(p, c)
	return p
}

// Entities lists every entity in row-major cell order then ID order. A held item is
// in no cell and comes last; its Pos is not updated while it is carried.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, w.grid.Len()+1)
	for y := 0; y < w.cfg.Height; y++ {
		for x := 0; x < w.cfg.Width; x++ {
			occ := w.grid.At(Cell{X: x, Y: y})
			start := len(out)
			out = append(out, occ...)
			part := out[start:]
			sort.Slice(part, func(i, j int) bool { return part[i].ID < part[j].ID })
		}
	}
	if w.held != nil {
		out = append(out, w.held)
	}
	return out
}

// CheckInvariants verifies index/position agreement and holding exclusivity.
func (w *World) CheckInvariants() error {
	seen := map[*Entity]Cell{}
	for c, occ := range w.grid.cells {
		if !w.grid.InBounds(c) {
			return &InvariantError{Op: "check", Detail: fmt.Sprintf("cell %v outside grid", c)}
		}
		for _, e := range occ {
			if prev, dup := seen[e]; dup {
				return &InvariantError{Op: "check", Detail: fmt.Sprintf("entity %d listed at %v and %v", e.ID, prev, c)}
			}
			seen[e] = c
			if e.Pos != c {
				return &InvariantError{Op: "check", Detail: fmt.Sprintf("entity %d listed at %v but reports %v", e.ID, c, e.Pos)}
			}
			if !e.onGrid {
				return &InvariantError{Op: "check", Detail: fmt.Sprintf("entity %d listed at %v but flagged off-grid", e.ID, c)}
			}
		}
	}
	if _, ok := seen[w.bot]; !ok {
		return &InvariantError{Op: "check", Detail: "bot missing from grid"}
	}
	if w.held != nil {
		if !w.held.Kind.IsTool() {
			return &InvariantError{Op: "check", Detail: fmt.Sprintf("bot holds a %s", w.held.Kind)}
		}
		if _, ok := seen[w.held]; ok || w.held.onGrid {
			return &InvariantError{Op: "check", Detail: fmt.Sprintf("held %s still listed on the grid", w.held.Kind)}
		}
	}
	for _, t := range w.tools {
		if t == w.held {
			continue
		}
		if _, ok := seen[t]; !ok {
			return &InvariantError{Op: "check", Detail: fmt.Sprintf("%s neither held nor on the grid", t.Kind)}
		}
	}
	return nil
}
