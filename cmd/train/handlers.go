package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/render"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/farm"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/transport/observer"
)

func bootstrapFor(tr *trainer.Trainer) observer.BootstrapFunc {
	tune := tr.Tuning()
	actions := make([]string, 0, farm.NumActions)
	for a := farm.Action(0); a < farm.NumActions; a++ {
		actions = append(actions, a.String())
	}
	return func() observerproto.BootstrapResponse {
		m := tr.Metrics()
		return observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           tr.RunID(),
			Tick:            m.Tick,
			Generation:      m.Generation,
			GridParams: observerproto.GridParams{
				Width:            tune.Grid.Width,
				Height:           tune.Grid.Height,
				CellPx:           tune.Grid.CellPx,
				StepsPerTick:     tune.Loop.StepsPerTick,
				TickRateHz:       tune.Loop.TickRateHz,
				GenerationBudget: tune.Loop.GenerationBudget,
			},
			Actions: actions,
		}
	}
}

func newMux(tr *trainer.Trainer, hub *observer.Hub, idx runtimeIndex, obsSrv *observer.Server) *http.ServeMux {
	runID := tr.RunID()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if tr.Metrics().Status == trainer.StatusFailed.String() {
			http.Error(rw, "failed", http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m := tr.Metrics()

		// Minimal Prometheus exposition format.
		gauge := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{run=%q} %v\n", name, runID, v)
		}
		counter := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s counter\n", name)
			fmt.Fprintf(rw, "%s{run=%q} %v\n", name, runID, v)
		}

		running := 0
		if m.Status == trainer.StatusRunning.String() {
			running = 1
		}
		gauge("farm_trainer_running", "1 while training is in progress.", running)
		gauge("farm_trainer_tick", "Ticks executed.", m.Tick)
		gauge("farm_trainer_generation", "Current generation.", m.Generation)
		gauge("farm_trainer_step", "Steps taken in the current generation.", m.Step)
		gauge("farm_trainer_epsilon", "Exploration rate of the current generation.", fmt.Sprintf("%.6f", m.Epsilon))
		gauge("farm_trainer_replay_len", "Transitions held in replay memory.", m.ReplayLen)
		gauge("farm_trainer_last_generation_steps", "Steps the last won generation took.", m.LastGenSteps)
		gauge("farm_trainer_last_generation_reward", "Total reward of the last won generation.", fmt.Sprintf("%.0f", m.LastGenReward))
		gauge("farm_trainer_tick_ms", "Last tick duration in milliseconds.", fmt.Sprintf("%.3f", m.TickMS))
		counter("farm_trainer_steps_total", "Decisions taken.", m.TotalSteps)
		counter("farm_trainer_wins_total", "Generations won.", m.Wins)
		counter("farm_trainer_persist_failures_total", "Checkpoint saves that failed.", m.PersistFailures)

		hs := hub.Stats()
		gauge("farm_observer_subscribers", "Connected observer sessions.", hs.Subscribers)
		counter("farm_observer_frames_total", "Frames published to the observer hub.", hs.PublishedTotal)
		counter("farm_observer_dropped_total", "Frames evicted from slow observer queues.", hs.DropTotal)

		if idx != nil {
			st := idx.Stats()
			fmt.Fprintf(rw, "# HELP farm_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE farm_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "farm_index_queue_depth{run=%q} %d\n", runID, st.QueueDepth)
			fmt.Fprintf(rw, "# HELP farm_index_dropped_total Index rows dropped because the writer fell behind.\n")
			fmt.Fprintf(rw, "# TYPE farm_index_dropped_total counter\n")
			fmt.Fprintf(rw, "farm_index_dropped_total{run=%q,table=%q} %d\n", runID, "generations", st.DropGenerationTotal)
			fmt.Fprintf(rw, "farm_index_dropped_total{run=%q,table=%q} %d\n", runID, "checkpoints", st.DropCheckpointTotal)
			counter("farm_index_write_errors_total", "Index statements or commits that failed.", st.WriteErrTotal)
		}
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		f := tr.Latest()
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			RunID   string          `json:"run_id"`
			Metrics trainer.Metrics `json:"metrics"`
			Grid    string          `json:"grid,omitempty"`
		}{
			RunID:   runID,
			Metrics: tr.Metrics(),
			Grid:    render.ASCII(f),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	})
	mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	return mux
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
