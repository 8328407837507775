package orchestrator

import (
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
)

// #region entry

// HistoryEntry is one completed request.
type HistoryEntry struct {
	ID        string
	UserID    string
	Input     string
	Response  string
	Strategy  string
	Quality   float64
	Grade     quality.Grade
	Timestamp time.Time
}

// #endregion

// #region ring

// History is a fixed-size ring of recent requests. Safe for concurrent use.
type History struct {
	mu   sync.Mutex
	buf  []HistoryEntry
	next int
	full bool
}

// NewHistory creates a ring holding size entries, clamped to [50,100].
func NewHistory(size int) *History {
	size = min(max(size, 50), 100)
	return &History{buf: make([]HistoryEntry, size)}
}

// Add appends e, overwriting the oldest entry once full.
func (h *History) Add(e HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = e
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Cap returns the ring size.
func (h *History) Cap() int {
	return len(h.buf)
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (h *History) Recent(n int) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	size := h.next
	if h.full {
		size = len(h.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]HistoryEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.buf[(h.next-i+len(h.buf))%len(h.buf)])
	}
	return out
}

// #endregion
