package logging

import (
	"io"
	"time"
)

// #region config
// Config selects the slog handler.
type Config struct {
	Level  string    // debug | info | warn | error
	Format string    // text | json
	Output io.Writer // nil = stderr
}

// DefaultConfig returns info-level text logging to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}
// #endregion config

// #region response-entry
// ResponseEntry is a single row in the response_log table.
type ResponseEntry struct {
	RequestID string
	UserID    string
	Input     string
	Response  string
	Strategy  string
	Stage     string
	Quality   float64
	Grade     string
	Success   bool
	Error     string
	CreatedAt time.Time
}
// #endregion response-entry
