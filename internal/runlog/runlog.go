// Package runlog writes durable run events to the run_log table in the
// checkpoint database: run lifecycle, checkpoints, counted losses, degenerate
// configurations and divergence halts.
package runlog

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-event
// LogEvent appends one entry to the run_log table.
func LogEvent(db *sql.DB, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO run_log (run_id, event, seq, detail, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.RunID,
		string(e.Event),
		nullableSeq(e.Seq),
		nullIfEmpty(e.Detail),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log event: %w", err)
	}
	return nil
}

// #endregion log-event

// #region list
// ListForRun returns all events for a run, oldest first.
func ListForRun(db *sql.DB, runID string) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT run_id, event, seq, detail, created_at FROM run_log
		 WHERE run_id = ? ORDER BY id ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var event string
		var seq sql.NullInt64
		var detail sql.NullString
		var createdStr string
		if err := rows.Scan(&e.RunID, &event, &seq, &detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Event = Event(event)
		if seq.Valid {
			s := uint64(seq.Int64)
			e.Seq = &s
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdStr)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableSeq(seq *uint64) interface{} {
	if seq == nil {
		return nil
	}
	return int64(*seq)
}

// #endregion helpers
