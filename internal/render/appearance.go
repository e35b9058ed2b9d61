// Package render maps entities to how presenters draw them. It holds no game logic.
package render

import (
	"image/color"
	"strings"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
)

// Background is the field color behind every cell.
var Background = color.RGBA{R: 115, G: 209, B: 94, A: 255}

type Appearance struct {
	Key   string
	Glyph rune
	// Tag is a tview color tag.
	Tag   string
	Color color.RGBA
	// Drawing order; higher draws on top.
	Layer int
}

var unknown = Appearance{Key: "unknown", Glyph: '?', Tag: "red", Color: color.RGBA{R: 255, A: 255}}

var plants = map[farm.Stage]Appearance{
	farm.StageTilled:  {Key: "plant_tilled", Glyph: '=', Tag: "#8b5a2b", Color: color.RGBA{R: 139, G: 90, B: 43, A: 255}},
	farm.StagePlanted: {Key: "plant_planted", Glyph: ',', Tag: "#6b8e23", Color: color.RGBA{R: 107, G: 142, B: 35, A: 255}},
	farm.StageGrown:   {Key: "plant_grown", Glyph: '*', Tag: "#228b22", Color: color.RGBA{R: 34, G: 139, B: 34, A: 255}},
	farm.StageCrushed: {Key: "plant_crushed", Glyph: 'x', Tag: "#696969", Color: color.RGBA{R: 105, G: 105, B: 105, A: 255}},
}

// For looks up an entity's appearance by kind and, for plants, stage.
func For(k farm.Kind, s farm.Stage) Appearance {
	switch k {
	case farm.KindBot:
		return Appearance{Key: "bot", Glyph: '@', Tag: "white", Color: color.RGBA{R: 230, G: 230, B: 240, A: 255}, Layer: 3}
	case farm.KindHoe:
		return Appearance{Key: "hoe", Glyph: 'h', Tag: "yellow", Color: color.RGBA{R: 200, G: 170, B: 60, A: 255}, Layer: 2}
	case farm.KindSeeds:
		return Appearance{Key: "seeds", Glyph: 's', Tag: "#deb887", Color: color.RGBA{R: 222, G: 184, B: 135, A: 255}, Layer: 2}
	case farm.KindWater:
		return Appearance{Key: "water", Glyph: 'w', Tag: "#1e90ff", Color: color.RGBA{R: 30, G: 144, B: 255, A: 255}, Layer: 2}
	case farm.KindPlant:
		if a, ok := plants[s]; ok {
			a.Layer = 1
			return a
		}
	}
	return unknown
}

func VisualKey(e *farm.Entity) string { return For(e.Kind, e.Stage).Key }

// ByKey resolves a visual key received over the wire.
func ByKey(key string) Appearance {
	switch key {
	case "bot":
		return For(farm.KindBot, 0)
	case "hoe":
		return For(farm.KindHoe, 0)
	case "seeds":
		return For(farm.KindSeeds, 0)
	case "water":
		return For(farm.KindWater, 0)
	}
	if strings.HasPrefix(key, "plant_") {
		for s, a := range plants {
			if a.Key == key {
				return For(farm.KindPlant, s)
			}
		}
	}
	return unknown
}

// Cells groups a frame's entities by cell, keeping only the top-most per cell.
func Cells(f observerproto.FrameMsg) map[[2]int]Appearance {
	out := make(map[[2]int]Appearance, len(f.Entities))
	for _, e := range f.Entities {
		a := ByKey(e.Visual)
		if cur, ok := out[e.Pos]; ok && cur.Layer > a.Layer {
			continue
		}
		out[e.Pos] = a
	}
	return out
}

// ASCII renders a frame as rows of glyphs, '.' for empty cells.
func ASCII(f observerproto.FrameMsg) string {
	cells := Cells(f)
	var b strings.Builder
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if a, ok := cells[[2]int{x, y}]; ok {
				b.WriteRune(a.Glyph)
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Tagged renders a frame like ASCII but wraps glyphs in tview color tags.
func Tagged(f observerproto.FrameMsg) string {
	cells := Cells(f)
	var b strings.Builder
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			if a, ok := cells[[2]int{x, y}]; ok {
				b.WriteString("[" + a.Tag + "]")
				b.WriteRune(a.Glyph)
				b.WriteString("[-]")
			} else {
				b.WriteString("[green].[-]")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
