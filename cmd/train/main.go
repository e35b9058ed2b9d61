package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/archive"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	persistlog "github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/log"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/transport/observer"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code; deferred closes flush the index and logs.
func run() int {
	var (
		addr         = flag.String("addr", "127.0.0.1:8080", "http listen address (empty to disable)")
		configDir    = flag.String("configs", "./configs", "config directory")
		tuningPath   = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir      = flag.String("data", "./data", "runtime data directory")
		runID        = flag.String("run", "", "run id (default: run_<timestamp>)")
		resume       = flag.Bool("resume", false, "resume from the run's latest checkpoint if present")
		disableDB    = flag.Bool("disable_db", false, "disable the sqlite run index")
		stepLog      = flag.Bool("step_log", false, "write one JSONL record per decision")
		exitOnFinish = flag.Bool("exit_on_finish", true, "stop serving once the generation budget is reached")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[train] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = "run_" + time.Now().UTC().Format("20060102-150405")
	}
	runDir := filepath.Join(*dataDir, "runs", id)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("run dir: %v", err)
	}

	// Optional read-model index; the JSONL generation log stays authoritative.
	idx, err := openRuntimeIndex(runDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if _, err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	genLog := persistlog.NewGenerationLogger(runDir)
	defer genLog.Close()
	recorders := multiGenerationRecorder{genLog}
	sinks := []trainer.CheckpointSink{&archive.Sink{RunDir: runDir, Every: tune.Persist.ArchiveEvery, Logger: logger}}
	if idx != nil {
		recorders = append(recorders, idx)
		sinks = append(sinks, idx)
	}

	var steps trainer.StepRecorder
	if *stepLog {
		sl := persistlog.NewStepLogger(runDir)
		defer sl.Close()
		steps = sl
	}

	store := checkpoint.NewFileStore(filepath.Join(runDir, "checkpoints"))
	hub := observer.NewHub()

	tr, err := trainer.New(trainer.Options{
		RunID:       id,
		Tuning:      tune,
		Logger:      logger,
		Store:       store,
		Sinks:       sinks,
		Generations: recorders,
		Steps:       steps,
		Frames:      hub,
	})
	if err != nil {
		logger.Printf("trainer: %v", err)
		return 1
	}

	if *resume {
		ck, ok, err := store.Load()
		if err != nil {
			logger.Printf("read checkpoint: %v", err)
			return 1
		}
		if ok {
			if ck.TuningDigest != "" && ck.TuningDigest != tr.TuningDigest() {
				logger.Printf("checkpoint was written with different tuning (%.12s != %.12s)", ck.TuningDigest, tr.TuningDigest())
			}
			if err := tr.Restore(ck); err != nil {
				logger.Printf("restore: %v", err)
				return 1
			}
			logger.Printf("resumed run=%s from generation %d (epsilon %.3f)", id, ck.Header.Generation, tr.Epsilon())
		} else {
			logger.Printf("no checkpoint under %s; starting fresh", store.Dir)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Printf("training run=%s grid=%dx%d budget=%d steps_per_tick=%d tick_rate_hz=%d",
			id, tune.Grid.Width, tune.Grid.Height, tune.Loop.GenerationBudget, tune.Loop.StepsPerTick, tune.Loop.TickRateHz)
		err := tr.Run(ctx)
		switch {
		case err == nil:
			m := tr.Metrics()
			logger.Printf("training finished: generations=%d total_steps=%d persist_failures=%d", m.Wins, m.TotalSteps, m.PersistFailures)
		case errors.Is(err, context.Canceled):
			logger.Printf("training interrupted at generation %d step %d", tr.Generation(), tr.StepCount())
		default:
			logger.Printf("training stopped: %v", err)
		}
		if *exitOnFinish || err != nil {
			cancel()
		}
	}()

	if strings.TrimSpace(*addr) == "" {
		<-done
		return 0
	}

	obsSrv := observer.NewServer(hub, bootstrapFor(tr), logger)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(tr, hub, idx, obsSrv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	return serve(srv, cancel, done, logger)
}

// serve blocks until the trainer goroutine exits. A listen failure stops training
// instead of exiting, so the caller's deferred closes still run.
func serve(srv *http.Server, cancel context.CancelFunc, done <-chan struct{}, logger *log.Logger) int {
	code := 0
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("ListenAndServe: %v", err)
		code = 1
		cancel()
	}
	<-done
	return code
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
