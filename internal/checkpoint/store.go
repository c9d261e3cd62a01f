// Package checkpoint persists learner state snapshots to SQLite so a run can
// resume from the next unseen sequence index without reprocessing.
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/ska-stream/internal/learner"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	version_id    TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	weights       BLOB NOT NULL,
	knowledge     REAL NOT NULL,
	prev_decision REAL NOT NULL,
	prev_feature  REAL NOT NULL,
	clip          REAL NOT NULL,
	learning_rate REAL NOT NULL,
	step          INTEGER NOT NULL,
	saturations   INTEGER NOT NULL,
	strategy      TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES checkpoints(version_id)
);

CREATE TABLE IF NOT EXISTS run_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	event         TEXT NOT NULL,
	seq           INTEGER,
	detail        TEXT,
	created_at    TEXT NOT NULL
);
`

// #endregion schema

// #region errors
var (
	// ErrNoCheckpoint is returned when no checkpoint exists to restore.
	ErrNoCheckpoint = errors.New("checkpoint: no checkpoint found")
	// ErrCorrupt is returned when a restored checkpoint fails its consistency
	// check. Callers fall back to a cold start rather than propagating it.
	ErrCorrupt = errors.New("checkpoint: corrupt checkpoint")
)

// #endregion errors

// #region store
// Store manages checkpoint snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. runlog).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store

// #region save
// Save inserts a snapshot and updates the active pointer atomically. The
// context bounds the write so a slow disk cannot stall the learning loop;
// on deadline the caller abandons the attempt and retries next interval.
func (s *Store) Save(ctx context.Context, runID string, seq uint64, st learner.State) (Record, error) {
	rec := Record{
		VersionID: uuid.New().String(),
		RunID:     runID,
		Seq:       seq,
		State:     st.Clone(),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (version_id, run_id, seq, weights, knowledge, prev_decision,
		 prev_feature, clip, learning_rate, step, saturations, strategy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, rec.RunID, int64(rec.Seq), encodeWeights(st.Weights),
		st.Knowledge, st.PrevDecision, st.PrevFeature, st.Clip, st.LearningRate,
		int64(st.Step), int64(st.Saturations), st.Strategy,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO active_checkpoint (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return Record{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion save

// #region restore
// Restore loads the active checkpoint and validates it. A missing checkpoint
// yields ErrNoCheckpoint; one holding non-finite state yields ErrCorrupt.
// Either way the caller cold-starts instead of trusting the snapshot.
func (s *Store) Restore() (Record, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_checkpoint WHERE id = 1`).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNoCheckpoint
	}
	if err != nil {
		return Record{}, fmt.Errorf("get active: %w", err)
	}

	rec, err := s.Get(versionID)
	if err != nil {
		return Record{}, err
	}
	if err := rec.State.CheckFinite(); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if _, err := learner.ParseStrategy(rec.State.Strategy); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}

// Get retrieves a specific checkpoint by version ID.
func (s *Store) Get(versionID string) (Record, error) {
	var rec Record
	var weightsBlob []byte
	var seq, step, saturations int64
	var createdStr string

	err := s.db.QueryRow(
		`SELECT version_id, run_id, seq, weights, knowledge, prev_decision, prev_feature,
		 clip, learning_rate, step, saturations, strategy, created_at
		 FROM checkpoints WHERE version_id = ?`, versionID,
	).Scan(&rec.VersionID, &rec.RunID, &seq, &weightsBlob, &rec.State.Knowledge,
		&rec.State.PrevDecision, &rec.State.PrevFeature, &rec.State.Clip,
		&rec.State.LearningRate, &step, &saturations, &rec.State.Strategy, &createdStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: version %s", ErrNoCheckpoint, versionID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get checkpoint %s: %w", versionID, err)
	}

	rec.Seq = uint64(seq)
	rec.State.Step = uint64(step)
	rec.State.Saturations = uint64(saturations)
	rec.State.Weights = decodeWeights(weightsBlob)
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
	if err != nil {
		return Record{}, fmt.Errorf("parse created_at for %s: %w", versionID, err)
	}
	return rec, nil
}

// #endregion restore

// #region list
// List returns the most recent checkpoints, newest first.
func (s *Store) List(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT version_id FROM checkpoints ORDER BY created_at DESC, seq DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// #endregion list

// #region weight-encoding
func encodeWeights(w []float64) []byte {
	buf := make([]byte, len(w)*8)
	for i, f := range w {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeWeights(b []byte) []float64 {
	w := make([]float64, len(b)/8)
	for i := range w {
		w[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return w
}

// #endregion weight-encoding
