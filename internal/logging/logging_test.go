package logging

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// #endregion helpers

// #region logger-tests
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})
	log.With("component", "orch").Debug("selected", "strategy", "quality_focused")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "orch" || rec["strategy"] != "quality_focused" {
		t.Errorf("unexpected attrs: %v", rec)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn record missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// #endregion logger-tests

// #region log-response-tests
func TestLogResponse_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := ResponseEntry{
		RequestID: "r1",
		UserID:    "alice",
		Input:     "Pythonについて",
		Response:  "Pythonについて、ライブラリが深く関係していますね。",
		Strategy:  "cooccurrence_expansion",
		Stage:     "information_request",
		Quality:   0.82,
		Grade:     "good",
		Success:   true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := LogResponse(db, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := RecentResponses(context.Background(), db, "alice", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Strategy != "cooccurrence_expansion" || !got[0].Success || got[0].Quality != 0.82 {
		t.Errorf("unexpected row: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(entry.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, entry.CreatedAt)
	}
}

func TestLogResponse_EmptyOptionalFields(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	if err := LogResponse(db, ResponseEntry{RequestID: "r2", UserID: "bob", Strategy: "fallback", Grade: "fallback"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var stage, errText sql.NullString
	var created string
	db.QueryRow("SELECT stage, error, created_at FROM response_log").Scan(&stage, &errText, &created)
	if stage.Valid || errText.Valid {
		t.Error("expected NULL stage and error for empty strings")
	}
	if _, err := time.Parse(time.RFC3339Nano, created); err != nil {
		t.Errorf("auto-filled created_at not RFC3339: %q", created)
	}
}

func TestRecentResponses_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for _, id := range []string{"a", "b", "c"} {
		if err := LogResponse(db, ResponseEntry{RequestID: id, UserID: "u", Grade: "good"}); err != nil {
			t.Fatal(err)
		}
	}
	LogResponse(db, ResponseEntry{RequestID: "other", UserID: "v", Grade: "good"})

	got, err := RecentResponses(context.Background(), db, "u", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].RequestID != "c" || got[1].RequestID != "b" {
		t.Errorf("unexpected order: %+v", got)
	}

	all, _ := RecentResponses(context.Background(), db, "", 0)
	if len(all) != 4 {
		t.Errorf("expected 4 rows across users, got %d", len(all))
	}
}

func TestLogResponse_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	if err := LogResponse(db, ResponseEntry{RequestID: "r4"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-response-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected passthrough for non-empty string")
	}
}

// #endregion null-if-empty-tests
