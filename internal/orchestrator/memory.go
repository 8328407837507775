package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"
)

// #endregion

// #region schema

const fallbackPairsSchema = `
CREATE TABLE IF NOT EXISTS fallback_pairs (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       TEXT NOT NULL,
    keywords      TEXT NOT NULL,
    primary_term  TEXT NOT NULL,
    support       TEXT NOT NULL DEFAULT '',
    strength      REAL NOT NULL,
    created_at    TEXT NOT NULL
);
`

const fallbackPairsIndex = `
CREATE INDEX IF NOT EXISTS idx_fallback_pairs_user
ON fallback_pairs(user_id, id);
`

// pairScanLimit bounds how many recent pairs one lookup ranks.
const pairScanLimit = 200

// listSep joins keyword lists in a single column. Keywords never contain it.
const listSep = "\x1f"

// #endregion

// #region pair

// Pair is a previously successful keyword→relation pairing kept for reuse
// when generation cannot run.
type Pair struct {
	UserID    string
	Keywords  []string
	Primary   string
	Support   []string
	Strength  float64
	CreatedAt time.Time
}

// #endregion

// #region memory-struct

// PairMemory persists successful pairs in SQLite and ranks them by keyword
// overlap.
type PairMemory struct {
	db  *sql.DB
	now func() time.Time
}

// NewPairMemory initializes the fallback_pairs table and returns a PairMemory.
func NewPairMemory(db *sql.DB) (*PairMemory, error) {
	if _, err := db.Exec(fallbackPairsSchema); err != nil {
		return nil, fmt.Errorf("fallback pairs schema: %w", err)
	}
	if _, err := db.Exec(fallbackPairsIndex); err != nil {
		return nil, fmt.Errorf("fallback pairs index: %w", err)
	}
	return &PairMemory{db: db, now: time.Now}, nil
}

// #endregion

// #region remember

// Remember stores p. Pairs without keywords or a primary term are ignored.
func (m *PairMemory) Remember(ctx context.Context, p Pair) error {
	if len(p.Keywords) == 0 || strings.TrimSpace(p.Primary) == "" {
		return nil
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO fallback_pairs (user_id, keywords, primary_term, support, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.UserID,
		strings.Join(p.Keywords, listSep),
		p.Primary,
		strings.Join(p.Support, listSep),
		p.Strength,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("remember pair: %w", err)
	}
	return nil
}

// #endregion

// #region best

// Best returns the stored pair whose keywords overlap keywords most
// (Jaccard). Ties prefer the higher decay-weighted strength. ok is false
// when nothing overlaps.
func (m *PairMemory) Best(ctx context.Context, userID string, keywords []string) (Pair, bool, error) {
	if len(keywords) == 0 {
		return Pair{}, false, nil
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT keywords, primary_term, support, strength, created_at
		FROM fallback_pairs
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`,
		userID, pairScanLimit,
	)
	if err != nil {
		return Pair{}, false, fmt.Errorf("best pair: %w", err)
	}
	defer rows.Close()

	now := m.now()
	halfLife := 7.0 * 24.0 // 7 days in hours

	var (
		best                Pair
		bestSim, bestWeight float64
		found               bool
	)
	for rows.Next() {
		var kw, primary, support, createdAtStr string
		var strength float64
		if err := rows.Scan(&kw, &primary, &support, &strength, &createdAtStr); err != nil {
			return Pair{}, false, fmt.Errorf("scan pair: %w", err)
		}
		p := Pair{
			UserID:   userID,
			Keywords: splitList(kw),
			Primary:  primary,
			Support:  splitList(support),
			Strength: strength,
		}
		sim := Jaccard(keywords, p.Keywords)
		if sim == 0 {
			continue
		}
		weight := strength
		if createdAt, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
			p.CreatedAt = createdAt
			weight *= math.Exp(-now.Sub(createdAt).Hours() / halfLife)
		}
		if !found || sim > bestSim || (sim == bestSim && weight > bestWeight) {
			best, bestSim, bestWeight, found = p, sim, weight, true
		}
	}
	if err := rows.Err(); err != nil {
		return Pair{}, false, err
	}
	return best, found, nil
}

// #endregion

// #region jaccard

// Jaccard returns |a∩b| / |a∪b| over the distinct elements of a and b.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	inter := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(setA)+len(setB)-inter)
}

func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, listSep)
}

// #endregion
