package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// #region record-ngram
// RecordNgram increments the (context, word) bigram count.
func (s *Store) RecordNgram(ctx context.Context, contextWord, word string) error {
	return addNgram(ctx, s.db, contextWord, word, 1)
}

func addNgram(ctx context.Context, ex execer, contextWord, word string, n int) error {
	if contextWord == "" || word == "" || n <= 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := ex.ExecContext(ctx,
		`INSERT INTO ngram_counts (context, word, count, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(context, word) DO UPDATE SET
		   count = ngram_counts.count + excluded.count,
		   updated_at = excluded.updated_at`,
		contextWord, word, n, now,
	)
	if err != nil {
		return fmt.Errorf("record ngram: %w", err)
	}
	return nil
}

// #endregion record-ngram

// #region ngram-stats
// GetNgramStats returns the number of stored bigram types and the mean
// relative frequency of a bigram within its context.
func (s *Store) GetNgramStats(ctx context.Context) (NgramStats, error) {
	var stats NgramStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(n.count * 1.0 / t.total)
		 FROM ngram_counts n
		 JOIN (SELECT context, SUM(count) AS total FROM ngram_counts GROUP BY context) t
		   ON n.context = t.context`,
	).Scan(&stats.TotalPatterns, &avg)
	if err != nil {
		return NgramStats{}, fmt.Errorf("ngram stats: %w", err)
	}
	if avg.Valid {
		stats.AverageConfidence = avg.Float64
	}
	return stats, nil
}

// #endregion ngram-stats

// #region ngram-patterns
// GetNgramPatterns returns the continuations of word, most frequent first.
func (s *Store) GetNgramPatterns(ctx context.Context, word string) ([]NgramPattern, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT context, word, count,
		        count * 1.0 / (SELECT SUM(count) FROM ngram_counts WHERE context = ?)
		 FROM ngram_counts WHERE context = ?
		 ORDER BY count DESC, word`,
		word, word,
	)
	if err != nil {
		return nil, fmt.Errorf("ngram patterns: %w", err)
	}
	defer rows.Close()

	var out []NgramPattern
	for rows.Next() {
		var p NgramPattern
		if err := rows.Scan(&p.Context, &p.Word, &p.Count, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan ngram pattern: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PredictNext returns the most frequent continuation of word with its
// relative frequency, or "" when word has never been seen as a context.
func (s *Store) PredictNext(ctx context.Context, word string) (string, float64, error) {
	patterns, err := s.GetNgramPatterns(ctx, word)
	if err != nil {
		return "", 0, err
	}
	if len(patterns) == 0 {
		return "", 0, nil
	}
	return patterns[0].Word, patterns[0].Confidence, nil
}

// #endregion ngram-patterns

// #region ngram-counts
// GetNgramCounts returns the (context, word, count) triples whose context is
// nextWord or, when given, the preceding text (typically the last keyword).
func (s *Store) GetNgramCounts(ctx context.Context, text, nextWord string) ([]NgramCount, error) {
	text = strings.TrimSpace(text)
	if nextWord == "" && text == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT context, word, count FROM ngram_counts
		 WHERE context = ? OR context = ?
		 ORDER BY context, count DESC, word`,
		nextWord, text,
	)
	if err != nil {
		return nil, fmt.Errorf("ngram counts: %w", err)
	}
	defer rows.Close()

	var out []NgramCount
	for rows.Next() {
		var c NgramCount
		if err := rows.Scan(&c.Context, &c.Word, &c.Count); err != nil {
			return nil, fmt.Errorf("scan ngram count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetContinuationCounts returns, for each word, the number of distinct
// contexts it has followed, plus the total number of bigram types.
func (s *Store) GetContinuationCounts(ctx context.Context, words []string) (map[string]int, int, error) {
	out := make(map[string]int, len(words))
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ngram_counts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("continuation total: %w", err)
	}
	for _, w := range words {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT context) FROM ngram_counts WHERE word = ?`, w,
		).Scan(&n)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("continuation count %s: %w", w, err)
		}
		out[w] = n
	}
	return out, total, nil
}

// #endregion ngram-counts
