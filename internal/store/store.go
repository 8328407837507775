package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS user_relations (
	user_id       TEXT NOT NULL,
	keyword       TEXT NOT NULL,
	term          TEXT NOT NULL,
	count         INTEGER NOT NULL DEFAULT 0,
	strength      REAL NOT NULL DEFAULT 0,
	last_updated  TEXT NOT NULL,
	PRIMARY KEY (user_id, keyword, term)
);
CREATE INDEX IF NOT EXISTS idx_relations_user ON user_relations(user_id);

CREATE TABLE IF NOT EXISTS ngram_counts (
	context     TEXT NOT NULL,
	word        TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 0,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (context, word)
);
CREATE INDEX IF NOT EXISTS idx_ngram_word ON ngram_counts(word);

CREATE TABLE IF NOT EXISTS strategy_stats (
	strategy        TEXT PRIMARY KEY,
	selections      INTEGER NOT NULL DEFAULT 0,
	total_reward    REAL NOT NULL DEFAULT 0,
	average_reward  REAL NOT NULL DEFAULT 0,
	last_used       TEXT
);

CREATE TABLE IF NOT EXISTS quality_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id     TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	score       REAL NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quality_user ON quality_history(user_id);

CREATE TABLE IF NOT EXISTS system_data (
	key         TEXT PRIMARY KEY,
	value       TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store is the SQLite-backed learning store: relation graphs, n-gram counts,
// bandit arms, quality history and persisted system defaults.
type Store struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// #endregion store-struct

// #region constructor
// Open opens (or creates) the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps PRAGMAs in effect and serialises writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open database and runs migrations.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for packages that keep their own tables
// in the same file (response log, fallback pairs).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor
