// Command inspect prints a checkpoint's header and the greedy action it picks for
// every binary state vector.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/agent"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
)

type stateRow struct {
	Bits   string    `json:"bits"`
	State  [8]int    `json:"state"`
	Q      []float64 `json:"q"`
	Action string    `json:"action"`
}

func main() {
	var (
		ckPath   = flag.String("checkpoint", "", "path to .ckpt.zst (default: <data>/runs/<run>/checkpoints/latest.ckpt.zst)")
		dataDir  = flag.String("data", "./data", "runtime data directory")
		runID    = flag.String("run", "", "run id")
		gdataApp = flag.String("gdata", "", "read the checkpoint saved by the window presenter under this app name")
		asJSON   = flag.Bool("json", false, "print one JSON object per state")
		gens     = flag.Bool("generations", false, "also summarize the run's generation log")
	)
	flag.Parse()

	var (
		ck  checkpoint.CheckpointV1
		err error
	)
	switch {
	case *gdataApp != "":
		gs, oerr := checkpoint.OpenGdataStore(*gdataApp)
		if oerr != nil {
			fmt.Fprintln(os.Stderr, "gdata:", oerr)
			os.Exit(1)
		}
		var ok bool
		ck, ok, err = gs.Load()
		if err == nil && !ok {
			fmt.Fprintln(os.Stderr, "no checkpoint saved under", *gdataApp)
			os.Exit(2)
		}
	default:
		p := strings.TrimSpace(*ckPath)
		if p == "" {
			if strings.TrimSpace(*runID) == "" {
				fmt.Fprintln(os.Stderr, "missing -checkpoint or -run")
				os.Exit(2)
			}
			p = filepath.Join(*dataDir, "runs", *runID, "checkpoints", checkpoint.LatestName)
		}
		ck, err = checkpoint.Read(p)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "read checkpoint:", err)
		os.Exit(1)
	}

	fmt.Printf("checkpoint v%d run=%s generation=%d saved_at=%s shape=%v optimizer=%s lr=%g gamma=%g epsilon=%.3f steps=%d reward=%.0f\n",
		ck.Header.Version, ck.Header.RunID, ck.Header.Generation, ck.Header.SavedAt, ck.Shape,
		ck.Optimizer, ck.LearningRate, ck.Gamma, ck.Epsilon, ck.Steps, ck.TotalReward)

	rows, err := policyTable(ck)
	if err != nil {
		fmt.Fprintln(os.Stderr, "network:", err)
		os.Exit(1)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetEscapeHTML(false)
		for _, r := range rows {
			_ = enc.Encode(r)
		}
	} else {
		counts := map[string]int{}
		for _, r := range rows {
			counts[r.Action]++
			fmt.Printf("%s %-12s %s\n", r.Bits, r.Action, formatQ(r.Q))
		}
		names := make([]string, 0, len(counts))
		for n := range counts {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("argmax %-12s %d states\n", n, counts[n])
		}
	}

	if *gens && *runID != "" {
		recs, err := readGenerations(filepath.Join(*dataDir, "runs", *runID, "generations"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "generations:", err)
			os.Exit(1)
		}
		for _, r := range recs {
			fmt.Printf("gen %5d steps=%6d reward=%8.0f illegal=%5d explored=%5d eps=%.3f\n",
				r.Generation, r.Steps, r.TotalReward, r.Illegal, r.Explored, r.Epsilon)
		}
	}
}

// policyTable evaluates the checkpointed network on all 256 binary states.
func policyTable(ck checkpoint.CheckpointV1) ([]stateRow, error) {
	net, err := ck.Net()
	if err != nil {
		return nil, err
	}
	rows := make([]stateRow, 0, 256)
	for b := 0; b < 256; b++ {
		s := farm.StateFromBits(uint8(b))
		q := net.Predict(s.Floats())
		rows = append(rows, stateRow{
			Bits:   fmt.Sprintf("%08b", b),
			State:  s,
			Q:      q,
			Action: farm.Action(agent.Argmax(q)).String(),
		})
	}
	return rows, nil
}

func formatQ(q []float64) string {
	parts := make([]string, len(q))
	for i, v := range q {
		parts[i] = fmt.Sprintf("%8.2f", v)
	}
	return strings.Join(parts, " ")
}

func readGenerations(dir string) ([]trainer.GenerationRecord, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "generations-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []trainer.GenerationRecord
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			var r trainer.GenerationRecord
			if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
				continue
			}
			out = append(out, r)
		}
		// A live run's current hour has no closing frame yet.
		err = sc.Err()
		dec.Close()
		_ = f.Close()
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Generation < out[j].Generation })
	return out, nil
}
