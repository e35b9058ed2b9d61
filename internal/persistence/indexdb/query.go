package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GenerationRow is one row of the generations table.
type GenerationRow struct {
	RunID        string  `json:"run_id"`
	Generation   int     `json:"generation"`
	Steps        int     `json:"steps"`
	TotalReward  float64 `json:"total_reward"`
	Illegal      int     `json:"illegal"`
	Explored     int     `json:"explored"`
	Exploited    int     `json:"exploited"`
	Epsilon      float64 `json:"epsilon"`
	Replayed     int     `json:"replayed"`
	Greedy       bool    `json:"greedy"`
	Checkpoint   string  `json:"checkpoint,omitempty"`
	PersistError string  `json:"persist_error,omitempty"`
	EndedAt      string  `json:"ended_at"`
	DurationMS   int64   `json:"duration_ms"`
}

type CheckpointRow struct {
	RunID        string  `json:"run_id"`
	Generation   int     `json:"generation"`
	Location     string  `json:"location"`
	SavedAt      string  `json:"saved_at"`
	Epsilon      float64 `json:"epsilon"`
	TotalReward  float64 `json:"total_reward"`
	Shape        string  `json:"shape"`
	TuningDigest string  `json:"tuning_digest"`
}

type TuningRow struct {
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

// Reader runs read-only queries against an index written by SQLiteIndex.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

const generationCols = `run_id,generation,steps,total_reward,illegal,explored,exploited,epsilon,replayed,greedy,COALESCE(checkpoint,''),COALESCE(persist_error,''),ended_at,duration_ms`

func scanGeneration(sc interface{ Scan(...any) error }) (GenerationRow, error) {
	var g GenerationRow
	err := sc.Scan(&g.RunID, &g.Generation, &g.Steps, &g.TotalReward, &g.Illegal, &g.Explored, &g.Exploited,
		&g.Epsilon, &g.Replayed, &g.Greedy, &g.Checkpoint, &g.PersistError, &g.EndedAt, &g.DurationMS)
	return g, err
}

// Generations returns the most recently finished generations, newest first.
func (r *Reader) Generations(ctx context.Context, limit int) ([]GenerationRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+generationCols+` FROM generations ORDER BY ended_at DESC, generation DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GenerationRow
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// BestGeneration returns the training generation won in the fewest steps; ties go to
// the higher total reward, then the earlier generation. ok is false for an empty index.
func (r *Reader) BestGeneration(ctx context.Context) (g GenerationRow, ok bool, err error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+generationCols+` FROM generations WHERE greedy=0 ORDER BY steps ASC, total_reward DESC, generation ASC LIMIT 1`)
	g, err = scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return GenerationRow{}, false, nil
	}
	if err != nil {
		return GenerationRow{}, false, err
	}
	return g, true, nil
}

func (r *Reader) Checkpoints(ctx context.Context, limit int) ([]CheckpointRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT run_id,generation,location,saved_at,epsilon,total_reward,shape,tuning_digest FROM checkpoints ORDER BY saved_at DESC, generation DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CheckpointRow
	for rows.Next() {
		var c CheckpointRow
		if err := rows.Scan(&c.RunID, &c.Generation, &c.Location, &c.SavedAt, &c.Epsilon, &c.TotalReward, &c.Shape, &c.TuningDigest); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Tuning returns every stored tuning document, most recently applied first.
func (r *Reader) Tuning(ctx context.Context) ([]TuningRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT digest,json,updated_at FROM tuning ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TuningRow
	for rows.Next() {
		var t TuningRow
		if err := rows.Scan(&t.Digest, &t.JSON, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
