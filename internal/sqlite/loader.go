package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
)

// loadJSONL reads events.jsonl into the index in one transaction and returns
// the number of events loaded. Lines that are not JSON, do not decode
// against the registry, or repeat a timestamp are skipped and logged.
// Unknown fields are ignored.
func (b *Backend) loadJSONL() (int, error) {
	path := filepath.Join(b.config.DataDir, eventsJSONL)
	records, skipped, err := readJSONL(path)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		b.logger.Warn("skipped malformed journal lines", "path", path, "count", skipped)
	}

	tx, err := b.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	loaded := 0
	for i, raw := range records {
		var rec eventJSON
		if err := json.Unmarshal(raw, &rec); err != nil {
			b.logger.Warn("skipped journal record", "line", i+1, "reason", err)
			continue
		}
		if _, err := decodeEvent(b.registry, rec); err != nil {
			b.logger.Warn("skipped journal record", "line", i+1, "timestamp", rec.Timestamp, "reason", err)
			continue
		}
		exists, err := eventExists(tx, rec.Timestamp)
		if err != nil {
			return 0, err
		}
		if exists {
			b.logger.Warn("skipped journal record", "line", i+1, "timestamp", rec.Timestamp, "reason", "duplicate timestamp")
			continue
		}
		if err := insertEvent(tx, rec); err != nil {
			return 0, fmt.Errorf("loading event %d: %w", rec.Timestamp, err)
		}
		loaded++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing load transaction: %w", err)
	}
	return loaded, nil
}

// writeJournalLocked rewrites events.jsonl from the index, ordered by
// timestamp.
func (b *Backend) writeJournalLocked() error {
	recs, err := queryRecords(b.db, selectEvents+" ORDER BY timestamp")
	if err != nil {
		return err
	}
	lines := make([]json.RawMessage, len(recs))
	for i, rec := range recs {
		if lines[i], err = json.Marshal(rec); err != nil {
			return fmt.Errorf("encoding event %d: %w", rec.Timestamp, err)
		}
	}
	return writeJSONL(filepath.Join(b.config.DataDir, eventsJSONL), lines)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const selectEvents = "SELECT timestamp, created_at, description, changes FROM events"

func eventExists(q querier, ts int64) (bool, error) {
	var n int
	err := q.QueryRow("SELECT COUNT(*) FROM events WHERE timestamp = ?", ts).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking event %d: %w", ts, err)
	}
	return n > 0, nil
}

func insertEvent(q querier, rec eventJSON) error {
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("encoding changes: %w", err)
	}
	if _, err := q.Exec(
		"INSERT INTO events (timestamp, created_at, description, changes) VALUES (?, ?, ?, ?)",
		rec.Timestamp, rec.Created, rec.Description, string(changes),
	); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	for _, c := range rec.Changes {
		if _, err := q.Exec(
			"INSERT INTO aspect_changes (timestamp, aspect_type, aspect_id, op) VALUES (?, ?, ?, ?)",
			rec.Timestamp, c.AspectType, c.AspectID, c.Op,
		); err != nil {
			return fmt.Errorf("inserting change %s/%s: %w", c.AspectType, c.AspectID, err)
		}
	}
	return nil
}

func deleteEvent(q querier, ts int64) (bool, error) {
	if _, err := q.Exec("DELETE FROM aspect_changes WHERE timestamp = ?", ts); err != nil {
		return false, fmt.Errorf("deleting changes of event %d: %w", ts, err)
	}
	res, err := q.Exec("DELETE FROM events WHERE timestamp = ?", ts)
	if err != nil {
		return false, fmt.Errorf("deleting event %d: %w", ts, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// queryRecords runs an events query and returns its rows as file records.
func queryRecords(q querier, query string, args ...any) ([]eventJSON, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []eventJSON
	for rows.Next() {
		var rec eventJSON
		var changes string
		if err := rows.Scan(&rec.Timestamp, &rec.Created, &rec.Description, &changes); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(changes), &rec.Changes); err != nil {
			return nil, fmt.Errorf("decoding changes of event %d: %w", rec.Timestamp, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
