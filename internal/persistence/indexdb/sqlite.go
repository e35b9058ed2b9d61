package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/persistence/checkpoint"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/trainer"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/sim/tuning"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropGenerationTotal atomic.Uint64
	dropCheckpointTotal atomic.Uint64
	writeErrTotal       atomic.Uint64
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	QueueCapacity       int    `json:"queue_capacity"`
	DropGenerationTotal uint64 `json:"drop_generation_total"`
	DropCheckpointTotal uint64 `json:"drop_checkpoint_total"`
	WriteErrTotal       uint64 `json:"write_err_total"`
}

type reqKind int

const (
	reqGeneration reqKind = iota + 1
	reqCheckpoint
)

type req struct {
	kind reqKind

	gen trainer.GenerationRecord
	ck  checkpointRow
}

type checkpointRow struct {
	RunID       string
	Generation  int
	Location    string
	SavedAt     string
	Epsilon     float64
	TotalReward float64
	Shape       string
	Digest      string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			steps INTEGER NOT NULL,
			total_reward REAL NOT NULL,
			illegal INTEGER NOT NULL,
			explored INTEGER NOT NULL,
			exploited INTEGER NOT NULL,
			epsilon REAL NOT NULL,
			replayed INTEGER NOT NULL,
			greedy INTEGER NOT NULL,
			checkpoint TEXT,
			persist_error TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, generation)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_steps ON generations(steps);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			location TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			epsilon REAL NOT NULL,
			total_reward REAL NOT NULL,
			shape TEXT NOT NULL,
			tuning_digest TEXT NOT NULL,
			PRIMARY KEY (run_id, generation, location)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropGenerationTotal: s.dropGenerationTotal.Load(),
		DropCheckpointTotal: s.dropCheckpointTotal.Load(),
		WriteErrTotal:       s.writeErrTotal.Load(),
	}
}

// WriteGeneration queues a generation row. It never blocks; rows are dropped when the
// writer falls behind since the JSONL generation log remains the source of truth.
func (s *SQLiteIndex) WriteGeneration(r trainer.GenerationRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqGeneration, gen: r}:
	default:
		s.dropGenerationTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordCheckpoint(location string, ck checkpoint.CheckpointV1) {
	if s == nil || s.closed.Load() || location == "" {
		return
	}
	shape, _ := json.Marshal(ck.Shape)
	r := checkpointRow{
		RunID:       ck.Header.RunID,
		Generation:  ck.Header.Generation,
		Location:    location,
		SavedAt:     ck.Header.SavedAt,
		Epsilon:     ck.Epsilon,
		TotalReward: ck.TotalReward,
		Shape:       string(shape),
		Digest:      ck.TuningDigest,
	}
	select {
	case s.ch <- req{kind: reqCheckpoint, ck: r}:
	default:
		s.dropCheckpointTotal.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, keyed by the digest of its
// canonical JSON, and returns that digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) (string, error) {
	if s == nil {
		return "", nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion); err != nil {
		return "", err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, digest); err != nil {
		return "", err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(digest,json,updated_at) VALUES(?,?,?)`, digest, string(b), now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return digest, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertGen, _ := s.db.Prepare(`INSERT OR REPLACE INTO generations(run_id,generation,steps,total_reward,illegal,explored,exploited,epsilon,replayed,greedy,checkpoint,persist_error,started_at,ended_at,duration_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertCk, _ := s.db.Prepare(`INSERT OR REPLACE INTO checkpoints(run_id,generation,location,saved_at,epsilon,total_reward,shape,tuning_digest) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertGen != nil {
			_ = insertGen.Close()
		}
		if insertCk != nil {
			_ = insertCk.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrTotal.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErrTotal.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		// Commit once the queue drains so readers see rows written on a win.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeErrTotal.Add(1)
			continue
		}
		switch r.kind {
		case reqGeneration:
			g := r.gen
			if insertGen == nil {
				break
			}
			if _, err := tx.Stmt(insertGen).Exec(
				g.RunID,
				g.Generation,
				g.Steps,
				g.TotalReward,
				g.Illegal,
				g.Explored,
				g.Exploited,
				g.Epsilon,
				g.Replayed,
				g.Greedy,
				g.Checkpoint,
				g.PersistError,
				g.StartedAt,
				g.EndedAt,
				g.DurationMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqCheckpoint:
			c := r.ck
			if insertCk == nil {
				break
			}
			if _, err := tx.Stmt(insertCk).Exec(
				c.RunID,
				c.Generation,
				c.Location,
				c.SavedAt,
				c.Epsilon,
				c.TotalReward,
				c.Shape,
				c.Digest,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
