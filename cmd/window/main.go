// Command window trains (or, with -play, replays) the farming agent in a desktop
// window, one trainer tick per frame.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/render"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

const appName = "machine_learning_farming"

type checkpointStore interface {
	trainer.CheckpointStore
	Load() (checkpoint.CheckpointV1, bool, error)
}

type Game struct {
	tr     *trainer.Trainer
	ctx    context.Context
	cellPx int
	w, h   int

	frame  observerproto.FrameMsg
	tiles  map[string]*ebiten.Image
	status string
}

func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	if err := g.tr.Tick(g.ctx); err != nil {
		return err
	}
	g.frame = g.tr.Frame()
	m := g.tr.Metrics()
	mode := "train"
	if g.tr.Greedy() {
		mode = "play"
	}
	g.status = fmt.Sprintf("%s gen %d step %d eps %.2f %s", mode, m.Generation, m.Step, m.Epsilon, m.Status)
	return nil
}

func (g *Game) tile(a render.Appearance) *ebiten.Image {
	if img, ok := g.tiles[a.Key]; ok {
		return img
	}
	img := ebiten.NewImage(g.cellPx, g.cellPx)
	img.Fill(a.Color)
	g.tiles[a.Key] = img
	return img
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(render.Background)
	for pos, a := range render.Cells(g.frame) {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Translate(float64(pos[0]*g.cellPx), float64(pos[1]*g.cellPx))
		screen.DrawImage(g.tile(a), op)
	}
	ebitenutil.DebugPrintAt(screen, g.status, 2, g.h*g.cellPx)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (screenWidth, screenHeight int) {
	return g.w * g.cellPx, g.h*g.cellPx + 16
}

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "", "store checkpoints under this directory instead of the user data dir")
		play       = flag.Bool("play", false, "play greedily from the saved checkpoint without learning")
		fresh      = flag.Bool("fresh", false, "ignore any saved checkpoint")
		scale      = flag.Int("scale", 3, "window scale factor")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[window] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}

	var store checkpointStore
	if strings.TrimSpace(*dataDir) != "" {
		store = checkpoint.NewFileStore(filepath.Join(*dataDir, "window", "checkpoints"))
	} else if gs, err := checkpoint.OpenGdataStore(appName); err == nil {
		store = gs
	} else {
		logger.Printf("user data dir unavailable (%v); using ./data", err)
		store = checkpoint.NewFileStore(filepath.Join("data", "window", "checkpoints"))
	}

	tr, err := trainer.New(trainer.Options{
		RunID:  "window",
		Tuning: tune,
		Logger: logger,
		Store:  store,
		Greedy: *play,
	})
	if err != nil {
		logger.Fatalf("trainer: %v", err)
	}
	if !*fresh {
		ck, ok, err := store.Load()
		switch {
		case err != nil:
			logger.Fatalf("load checkpoint: %v", err)
		case ok:
			if err := tr.Restore(ck); err != nil {
				logger.Fatalf("restore: %v", err)
			}
			logger.Printf("loaded checkpoint from generation %d", ck.Header.Generation)
		case *play:
			logger.Printf("no checkpoint saved yet; playing an untrained network")
		}
	}

	g := &Game{
		tr:     tr,
		ctx:    context.Background(),
		cellPx: tune.Grid.CellPx,
		w:      tune.Grid.Width,
		h:      tune.Grid.Height,
		frame:  tr.Frame(),
		tiles:  map[string]*ebiten.Image{},
	}
	ebiten.SetTPS(tune.Loop.TickRateHz)
	ebiten.SetWindowSize(g.w*g.cellPx**scale, (g.h*g.cellPx+16)**scale)
	ebiten.SetWindowTitle("Machine Learning Farming")

	if err := ebiten.RunGame(g); err != nil && !errors.Is(err, ebiten.Termination) {
		logger.Fatal(err)
	}
}
