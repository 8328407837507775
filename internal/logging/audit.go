package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region schema
const responseLogSchema = `
CREATE TABLE IF NOT EXISTS response_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	input       TEXT NOT NULL,
	response    TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	stage       TEXT,
	quality     REAL NOT NULL,
	grade       TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_response_log_user ON response_log(user_id, created_at);
`

// Migrate creates the response_log table.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(responseLogSchema); err != nil {
		return fmt.Errorf("migrate response_log: %w", err)
	}
	return nil
}
// #endregion schema

// #region log-response
// LogResponse writes an audit entry to the response_log table.
func LogResponse(db *sql.DB, entry ResponseEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	success := 0
	if entry.Success {
		success = 1
	}

	_, err := db.Exec(
		`INSERT INTO response_log (request_id, user_id, input, response, strategy, stage, quality, grade, success, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.UserID,
		entry.Input,
		entry.Response,
		entry.Strategy,
		nullIfEmpty(entry.Stage),
		entry.Quality,
		entry.Grade,
		success,
		nullIfEmpty(entry.Error),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log response: %w", err)
	}
	return nil
}
// #endregion log-response

// #region recent
// RecentResponses returns the newest limit entries, optionally for one user.
func RecentResponses(ctx context.Context, db *sql.DB, userID string, limit int) ([]ResponseEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT request_id, user_id, input, response, strategy, stage, quality, grade, success, error, created_at
		FROM response_log`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("recent responses: %w", err)
	}
	defer rows.Close()

	var out []ResponseEntry
	for rows.Next() {
		var (
			e              ResponseEntry
			stage, errText sql.NullString
			success        int
			created        string
		)
		if err := rows.Scan(&e.RequestID, &e.UserID, &e.Input, &e.Response, &e.Strategy,
			&stage, &e.Quality, &e.Grade, &success, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		e.Stage = stage.String
		e.Error = errText.String
		e.Success = success == 1
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
