package farm

import (
	"math/rand"
	"testing"
)

func newTestWorld(t *testing.T, w, h int, bot, hoe, seeds, water Cell) *World {
	t.Helper()
	wd, err := New(Config{Width: w, Height: h, BotStart: bot, HoeStart: hoe, SeedsStart: seeds, WaterStart: water})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return wd
}

func newTinyWorld(t *testing.T) *World {
	t.Helper()
	o := Cell{}
	return newTestWorld(t, 1, 1, o, o, o, o)
}

func mustApply(t *testing.T, w *World, a Action, want int) {
	t.Helper()
	if got := w.Apply(a); got != want {
		t.Fatalf("%s reward=%d want %d", a, got, want)
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("after %s: %v", a, err)
	}
}

func contains(es []*Entity, e *Entity) bool {
	for _, o := range es {
		if o == e {
			return true
		}
	}
	return false
}

func TestPickupHoe_OneCellGrid(t *testing.T) {
	w := newTinyWorld(t)
	hoe := w.grid.first(Cell{}, KindHoe)
	if hoe == nil {
		t.Fatalf("hoe not at start cell")
	}
	if !w.Legal()[PickupHoe] {
		t.Fatalf("PickupHoe should be legal")
	}
	mustApply(t, w, PickupHoe, RewardGood)
	if w.Held() != hoe {
		t.Fatalf("held=%v want hoe", w.Held())
	}
	if contains(w.Grid().At(Cell{}), hoe) {
		t.Fatalf("held hoe still listed at its cell")
	}
}

func TestUseHoe_TillsEmptyCell(t *testing.T) {
	w := newTinyWorld(t)
	mustApply(t, w, PickupHoe, RewardGood)
	mustApply(t, w, UseItem, RewardGood)
	p := w.PlantAt(Cell{})
	if p == nil || p.Stage != StageTilled {
		t.Fatalf("plant=%+v want tilled", p)
	}
	// The cell now has a plant; the hoe cannot be used again.
	if w.IsLegal(UseItem) {
		t.Fatalf("UseItem with hoe on a planted cell should be illegal")
	}
}

func TestUseSeeds_StageTransitions(t *testing.T) {
	w := newTinyWorld(t)
	mustApply(t, w, PickupHoe, RewardGood)
	mustApply(t, w, UseItem, RewardGood)
	mustApply(t, w, DropItem, RewardGood)
	mustApply(t, w, PickupSeeds, RewardGood)
	mustApply(t, w, UseItem, RewardGood)
	p := w.PlantAt(Cell{})
	if p.Stage != StagePlanted {
		t.Fatalf("stage=%s want planted", p.Stage)
	}

	if w.Legal()[UseItem] {
		t.Fatalf("seeds on a planted cell should be illegal")
	}
	mustApply(t, w, UseItem, RewardIllegal)
	if p.Stage != StagePlanted {
		t.Fatalf("illegal use mutated stage to %s", p.Stage)
	}

	w.SetPlant(Cell{}, StageGrown)
	mustApply(t, w, UseItem, RewardIllegal)
	if p.Stage != StageGrown {
		t.Fatalf("stage=%s want grown", p.Stage)
	}
}

func TestFullCycle_WinsOneCell(t *testing.T) {
	w := newTinyWorld(t)
	for _, a := range []Action{PickupHoe, UseItem, DropItem, PickupSeeds, UseItem, DropItem, PickupWater, UseItem} {
		if got := w.Apply(a); got != RewardGood {
			t.Fatalf("%s reward=%d want %d", a, got, RewardGood)
		}
	}
	if !w.Won() {
		t.Fatalf("expected win")
	}
	w.Reset()
	if w.Won() || w.Held() != nil || w.PlantAt(Cell{}) != nil {
		t.Fatalf("reset did not clear the grid")
	}
	if err := w.CheckInvariants(); err != nil {
		t.Fatalf("after reset: %v", err)
	}
}

func TestWon_ThreeByThree(t *testing.T) {
	o := Cell{}
	w := newTestWorld(t, 3, 3, Cell{X: 1, Y: 1}, o, o, o)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if x == 2 && y == 2 {
				continue
			}
			s := StageGrown
			if x == 0 {
				s = StageCrushed
			}
			w.SetPlant(Cell{X: x, Y: y}, s)
		}
	}
	if w.Won() {
		t.Fatalf("won with an empty cell")
	}
	p := w.SetPlant(Cell{X: 2, Y: 2}, StagePlanted)
	if w.Won() {
		t.Fatalf("won with a planted (non-terminal) cell")
	}
	p.Stage = StageGrown
	if !w.Won() {
		t.Fatalf("expected win with all cells grown or crushed")
	}
}

func TestTerminalStagesIgnoreTools(t *testing.T) {
	for _, s := range []Stage{StageGrown, StageCrushed} {
		for _, k := range []Kind{KindHoe, KindSeeds, KindWater, KindBot, KindPlant} {
			if next, ok := Advance(s, k); ok || next != s {
				t.Fatalf("Advance(%s,%s)=(%s,%v)", s, k, next, ok)
			}
		}
	}
}

func TestMoves(t *testing.T) {
	o := Cell{}
	w := newTestWorld(t, 2, 2, o, Cell{X: 1, Y: 1}, Cell{X: 1, Y: 1}, Cell{X: 1, Y: 1})
	mustApply(t, w, MoveLeft, RewardIllegal)
	mustApply(t, w, MoveUp, RewardIllegal)
	if w.Bot().Pos != o {
		t.Fatalf("illegal move changed position to %v", w.Bot().Pos)
	}
	mustApply(t, w, MoveRight, RewardMove)
	mustApply(t, w, MoveDown, RewardMove)
	if w.Bot().Pos != (Cell{X: 1, Y: 1}) {
		t.Fatalf("pos=%v want (1,1)", w.Bot().Pos)
	}
	if !contains(w.Grid().At(Cell{X: 1, Y: 1}), w.Bot()) || contains(w.Grid().At(o), w.Bot()) {
		t.Fatalf("grid index does not follow the bot")
	}
}

func TestDropReward_DependsOnCellNeed(t *testing.T) {
	o := Cell{}
	w := newTestWorld(t, 2, 1, o, o, Cell{X: 1}, Cell{X: 1})
	mustApply(t, w, PickupHoe, RewardGood)
	// The empty cell still needs the hoe.
	mustApply(t, w, DropItem, RewardBad)
	mustApply(t, w, PickupHoe, RewardGood)
	mustApply(t, w, UseItem, RewardGood)
	// Tilled now needs seeds, so dropping the hoe here is fine.
	mustApply(t, w, DropItem, RewardGood)
	if w.grid.first(o, KindHoe) == nil {
		t.Fatalf("dropped hoe not at the bot's cell")
	}
}

func TestPickup_RewardFollowsGlobalNeed(t *testing.T) {
	w := newTinyWorld(t)
	w.SetPlant(Cell{}, StageGrown)
	mustApply(t, w, PickupWater, RewardBad)
	if w.HeldKind() != KindWater {
		t.Fatalf("pickup should still happen when nothing needs water")
	}
	if w.IsLegal(PickupHoe) {
		t.Fatalf("pickup while holding should be illegal")
	}
	mustApply(t, w, PickupHoe, RewardIllegal)
}

func TestLegal_EmptyHands(t *testing.T) {
	w := newTinyWorld(t)
	legal := w.Legal()
	for _, a := range []Action{MoveLeft, MoveRight, MoveUp, MoveDown, UseItem, DropItem} {
		if legal[a] {
			t.Fatalf("%s should be illegal on a 1x1 grid with empty hands", a)
		}
	}
	for _, a := range []Action{PickupHoe, PickupSeeds, PickupWater} {
		if !legal[a] {
			t.Fatalf("%s should be legal", a)
		}
	}
}

func TestEncode(t *testing.T) {
	w := newTinyWorld(t)
	if got, want := w.Encode(), (State{0, 0, 0, 0, 1, 0, 0, 0}); got != want {
		t.Fatalf("encode=%v want %v", got, want)
	}
	w.Apply(PickupHoe)
	if got, want := w.Encode(), (State{1, 1, 0, 0, 1, 0, 0, 1}); got != want {
		t.Fatalf("encode=%v want %v", got, want)
	}
	w.Apply(UseItem)
	if got, want := w.Encode(), (State{1, 1, 0, 0, 0, 1, 0, 0}); got != want {
		t.Fatalf("encode=%v want %v", got, want)
	}
}

func TestStateFromBits(t *testing.T) {
	if got, want := StateFromBits(0b10000101), (State{1, 0, 1, 0, 0, 0, 0, 1}); got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestApply_OutOfRangePanics(t *testing.T) {
	w := newTinyWorld(t)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !IsInvariant(err) {
			t.Fatalf("recover=%v want *InvariantError", r)
		}
	}()
	w.Apply(Action(NumActions))
}

func TestGridIndex_PutTwicePanics(t *testing.T) {
	g := NewGridIndex(2, 2)
	e := &Entity{ID: 1, Kind: KindHoe}
	g.Put(e, Cell{})
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic")
		}
	}()
	g.Put(e, Cell{X: 1})
}

func TestRandomPlay_KeepsInvariants(t *testing.T) {
	w := newTestWorld(t, 4, 3, Cell{X: 2, Y: 1}, Cell{}, Cell{X: 1}, Cell{X: 2})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		w.Apply(Action(rng.Intn(NumActions)))
		if err := w.CheckInvariants(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		for c, occ := range w.grid.cells {
			for _, e := range occ {
				if e.Pos != c {
					t.Fatalf("step %d: entity %d at %v reports %v", i, e.ID, c, e.Pos)
				}
			}
		}
		if w.Won() {
			w.Reset()
		}
	}
}

func TestEntities_HeldItemListedLastOutsideGrid(t *testing.T) {
	w := newTestWorld(t, 2, 1, Cell{}, Cell{}, Cell{X: 1}, Cell{X: 1})
	mustApply(t, w, PickupHoe, 10)
	mustApply(t, w, MoveRight, -100)

	hoe := w.Held()
	if hoe == nil || hoe.Kind != KindHoe {
		t.Fatalf("held=%v", hoe)
	}
	es := w.Entities()
	if es[len(es)-1] != hoe {
		t.Fatalf("held item not listed last")
	}
	n := 0
	for _, e := range es {
		if e == hoe {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("held item listed %d times", n)
	}
	if contains(w.Grid().At(w.Bot().Pos), hoe) || contains(w.Grid().At(Cell{}), hoe) {
		t.Fatalf("held item still indexed in a cell")
	}
}
