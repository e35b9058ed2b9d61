package render

import (
	"testing"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

func TestFor_CoversEveryKindAndStage(t *testing.T) {
	type ks struct {
		k farm.Kind
		s farm.Stage
	}
	all := []ks{
		{farm.KindBot, 0}, {farm.KindHoe, 0}, {farm.KindSeeds, 0}, {farm.KindWater, 0},
		{farm.KindPlant, farm.StageTilled}, {farm.KindPlant, farm.StagePlanted},
		{farm.KindPlant, farm.StageGrown}, {farm.KindPlant, farm.StageCrushed},
	}
	seen := map[string]bool{}
	for _, c := range all {
		a := For(c.k, c.s)
		if a.Key == unknown.Key {
			t.Fatalf("%s/%s has no appearance", c.k, c.s)
		}
		if seen[a.Key] {
			t.Fatalf("duplicate key %q", a.Key)
		}
		seen[a.Key] = true
		if got := ByKey(a.Key); got.Key != a.Key || got.Glyph != a.Glyph {
			t.Fatalf("ByKey(%q)=%+v want %+v", a.Key, got, a)
		}
	}
	if For(farm.KindPlant, 0).Key != unknown.Key {
		t.Fatalf("stageless plant should be unknown")
	}
}

func TestASCII_TopLayerWins(t *testing.T) {
	f := observerproto.FrameMsg{
		Width:  3,
		Height: 2,
		Entities: []observerproto.EntityState{
			{ID: 1, Kind: "plant", Pos: [2]int{0, 0}, Stage: "grown", Visual: "plant_grown"},
			{ID: 2, Kind: "bot", Pos: [2]int{0, 0}, Visual: "bot"},
			{ID: 3, Kind: "hoe", Pos: [2]int{2, 1}, Visual: "hoe"},
			{ID: 4, Kind: "plant", Pos: [2]int{2, 1}, Stage: "tilled", Visual: "plant_tilled"},
		},
	}
	if got, want := ASCII(f), "@..\n..h\n"; got != want {
		t.Fatalf("ascii=%q want %q", got, want)
	}
}

func TestTagged_WrapsGlyphs(t *testing.T) {
	f := observerproto.FrameMsg{
		Width:    2,
		Height:   1,
		Entities: []observerproto.EntityState{{ID: 1, Kind: "water", Pos: [2]int{1, 0}, Visual: "water"}},
	}
	if got, want := Tagged(f), "[green].[-][#1e90ff]w[-]\n"; got != want {
		t.Fatalf("tagged=%q want %q", got, want)
	}
}
