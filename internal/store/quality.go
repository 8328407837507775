package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

// #region record-quality
// RecordQuality appends one graded response to the quality history.
func (s *Store) RecordQuality(ctx context.Context, userID, strategy string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quality_history (user_id, strategy, score, created_at) VALUES (?, ?, ?, ?)`,
		userID, strategy, score, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record quality: %w", err)
	}
	return nil
}

// #endregion record-quality

// #region quality-stats
// GetQualityStats returns mean, population standard deviation and the share
// of scores >= 0.5 over all recorded responses.
func (s *Store) GetQualityStats(ctx context.Context) (QualityStats, error) {
	var n int
	var mean, meanSq, acc sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(score), AVG(score * score),
		        AVG(CASE WHEN score >= 0.5 THEN 1.0 ELSE 0.0 END)
		 FROM quality_history`,
	).Scan(&n, &mean, &meanSq, &acc)
	if err != nil {
		return QualityStats{}, fmt.Errorf("quality stats: %w", err)
	}
	stats := QualityStats{Samples: n}
	if n == 0 {
		return stats, nil
	}
	stats.Average = mean.Float64
	stats.StdDev = math.Sqrt(math.Max(meanSq.Float64-mean.Float64*mean.Float64, 0))
	stats.AverageAccuracy = acc.Float64
	return stats, nil
}

// #endregion quality-stats

// #region user-stats
// GetUserStats returns the user's response count and how filled-in their
// relation graph is (distinct keywords / 20, capped at 1).
func (s *Store) GetUserStats(ctx context.Context, userID string) (UserStats, error) {
	var stats UserStats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM quality_history WHERE user_id = ?`, userID,
	).Scan(&stats.TotalInteractions); err != nil {
		return UserStats{}, fmt.Errorf("user interactions: %w", err)
	}
	var keywords int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT keyword) FROM user_relations WHERE user_id = ?`, userID,
	).Scan(&keywords); err != nil {
		return UserStats{}, fmt.Errorf("user keywords: %w", err)
	}
	stats.ProfileCompleteness = math.Min(float64(keywords)/20.0, 1)
	return stats, nil
}

// #endregion user-stats
