package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "generations"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index", "run.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *limit <= 0 {
		*limit = 20
	}
	if err := runQuery(ctx, r, q, *limit); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, r *indexdb.Reader, q string, limit int) error {
	switch q {
	case "generations":
		rows, err := r.Generations(ctx, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "best":
		row, ok, err := r.BestGeneration(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no training generations recorded")
		}
		printJSON(row)
	case "checkpoints":
		rows, err := r.Checkpoints(ctx, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	case "tuning":
		rows, err := r.Tuning(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			printJSON(row)
		}
	default:
		return fmt.Errorf("unknown query (want generations|best|checkpoints|tuning)")
	}
	return nil
}
