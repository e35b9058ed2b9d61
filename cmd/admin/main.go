package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/archive"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "runs"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ck, err := checkpoint.Read(filepath.Join(*dataDir, "runs", e.Name(), "checkpoints", checkpoint.LatestName))
		if err != nil {
			fmt.Println(e.Name())
			continue
		}
		fmt.Printf("%s generation=%d saved_at=%s steps=%d\n", e.Name(), ck.Header.Generation, ck.Header.SavedAt, ck.Steps)
	}
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	metas, err := readArchives(filepath.Join(*dataDir, "runs", *runID))
	if err != nil {
		fmt.Fprintln(os.Stderr, "archives:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		printJSON(m)
	}
}

// rollbackCmd replaces a run's latest checkpoint with an archived milestone so the
// next -resume continues from there.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id")
	gen := fs.Int("generation", -1, "archived generation to roll back to (default: newest archive)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*runID) == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}
	runDir := filepath.Join(*dataDir, "runs", *runID)
	metas, err := readArchives(runDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archives:", err)
		os.Exit(1)
	}
	if len(metas) == 0 {
		fmt.Fprintln(os.Stderr, "no archived checkpoints; nothing to roll back to")
		os.Exit(2)
	}
	m, ok := pickArchive(metas, *gen)
	if !ok {
		fmt.Fprintf(os.Stderr, "no archive for generation %d\n", *gen)
		os.Exit(2)
	}

	src := filepath.Join(runDir, "archives", fmt.Sprintf("gen_%05d", m.Generation), m.Checkpoint)
	ck, err := checkpoint.Read(src)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read archive:", err)
		os.Exit(1)
	}
	store := checkpoint.NewFileStore(filepath.Join(runDir, "checkpoints"))
	loc, err := store.Save(ck)
	if err != nil {
		fmt.Fprintln(os.Stderr, "write checkpoint:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: run=%s generation=%d out=%s\n", *runID, ck.Header.Generation, loc)
}

func readArchives(runDir string) ([]archive.MilestoneMeta, error) {
	dir := filepath.Join(runDir, "archives")
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []archive.MilestoneMeta
	for _, e := range ents {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "gen_") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name(), "meta.json"))
		if err != nil {
			continue
		}
		var m archive.MilestoneMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out, nil
}

// pickArchive returns the newest archive when gen is negative.
func pickArchive(metas []archive.MilestoneMeta, gen int) (archive.MilestoneMeta, bool) {
	if len(metas) == 0 {
		return archive.MilestoneMeta{}, false
	}
	if gen < 0 {
		return metas[len(metas)-1], true
	}
	for _, m := range metas {
		if m.Generation == gen {
			return m, true
		}
	}
	return archive.MilestoneMeta{}, false
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
