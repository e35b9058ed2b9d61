package farm

type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Cell) Add(dx, dy int) Cell { return Cell{X: c.X + dx, Y: c.Y + dy} }

// GridIndex maps cells to their occupants. An entity is listed under exactly the cell
// matching its Pos, or under none while it is held.
type GridIndex struct {
	w, h  int
	cells map[Cell][]*Entity
}

func NewGridIndex(w, h int) *GridIndex {
	return &GridIndex{w: w, h: h, cells: map[Cell][]*Entity{}}
}

func (g *GridIndex) Width() int  { return g.w }
func (g *GridIndex) Height() int { return g.h }

func (g *GridIndex) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.w && c.Y >= 0 && c.Y < g.h
}

func (g *GridIndex) Put(e *Entity, c Cell) {
	if e.onGrid {
		invariantf("grid.put", "entity %d (%s) already listed at %v", e.ID, e.Kind, e.Pos)
	}
	if !g.InBounds(c) {
		invariantf("grid.put", "cell %v outside %dx%d", c, g.w, g.h)
	}
	g.cells[c] = append(g.cells[c], e)
	e.Pos = c
	e.onGrid = true
}

func (g *GridIndex) Remove(e *Entity) {
	if !e.onGrid {
		invariantf("grid.remove", "entity %d (%s) is not on the grid", e.ID, e.Kind)
	}
	occ := g.cells[e.Pos]
	for i, o := range occ {
		if o != e {
			continue
		}
		last := len(occ) - 1
		occ[i] = occ[last]
		occ[last] = nil
		occ = occ[:last]
		if len(occ) == 0 {
			delete(g.cells, e.Pos)
		} else {
			g.cells[e.Pos] = occ
		}
		e.onGrid = false
		return
	}
	invariantf("grid.remove", "entity %d (%s) missing from its cell %v", e.ID, e.Kind, e.Pos)
}

func (g *GridIndex) Move(e *Entity, c Cell) {
	g.Remove(e)
	g.Put(e, c)
}

// At returns the occupants of c. The slice is owned by the index; callers must not
// keep it across mutations.
func (g *GridIndex) At(c Cell) []*Entity { return g.cells[c] }

func (g *GridIndex) first(c Cell, k Kind) *Entity {
	for _, e := range g.cells[c] {
		if e.Kind == k {
			return e
		}
	}
	return nil
}

func (g *GridIndex) Clear() {
	for _, occ := range g.cells {
		for _, e := range occ {
			e.onGrid = false
		}
	}
	g.cells = map[Cell][]*Entity{}
}

// Len counts listed entities.
func (g *GridIndex) Len() int {
	n := 0
	for _, occ := range g.cells {
		n += len(occ)
	}
	return n
}
