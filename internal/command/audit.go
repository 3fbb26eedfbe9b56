package command

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/TensoriumAi/Glyde/internal/logging"
)

// Audit records every dispatched command in a per-session SQLite database.
// Recording is best-effort: a failed insert is logged and the command path
// is never affected. A nil *Audit is a valid no-op.
type Audit struct {
	db *sql.DB
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS command_audit (
	id          TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	command     TEXT NOT NULL,
	ok          INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_command_audit_ts ON command_audit(ts);
`

// OpenAudit opens (creating if needed) the audit database at path.
func OpenAudit(path string) (*Audit, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &Audit{db: db}, nil
}

// Record inserts one audit row. Safe on a nil receiver.
func (a *Audit) Record(cmd string, ok bool, errMsg string, dur time.Duration) {
	if a == nil || a.db == nil {
		return
	}
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := a.db.Exec(
		`INSERT INTO command_audit (id, ts, command, ok, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UnixMilli(), cmd, okInt, errMsg, dur.Milliseconds(),
	)
	if err != nil {
		logging.AuditWarn("record %q: %v", cmd, err)
		return
	}
	logging.Audit("%s ok=%v dur=%dms", cmd, ok, dur.Milliseconds())
}

// Entry is one audit row.
type Entry struct {
	ID         string
	Timestamp  time.Time
	Command    string
	OK         bool
	Error      string
	DurationMs int64
}

// Recent returns up to limit rows, newest first.
func (a *Audit) Recent(limit int) ([]Entry, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.Query(
		`SELECT id, ts, command, ok, error, duration_ms FROM command_audit ORDER BY ts DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var ok int
		if err := rows.Scan(&e.ID, &ts, &e.Command, &ok, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts)
		e.OK = ok == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the database handle. Safe on a nil receiver.
func (a *Audit) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
