package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #region load-strategy-stats
// LoadStrategyStats returns every persisted bandit arm keyed by strategy name.
func (s *Store) LoadStrategyStats(ctx context.Context) (map[string]StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, selections, total_reward, average_reward, last_used FROM strategy_stats`,
	)
	if err != nil {
		return nil, fmt.Errorf("load strategy stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]StrategyRecord)
	for rows.Next() {
		var rec StrategyRecord
		var lastUsed sql.NullString
		if err := rows.Scan(&rec.Strategy, &rec.Selections, &rec.TotalReward, &rec.AverageReward, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan strategy stats: %w", err)
		}
		if lastUsed.Valid {
			rec.LastUsed, _ = time.Parse(time.RFC3339Nano, lastUsed.String)
		}
		out[rec.Strategy] = rec
	}
	return out, rows.Err()
}

// #endregion load-strategy-stats

// #region increment-selection
// IncrementStrategySelection records one selection. The counter is bumped in
// SQL so concurrent writers never overwrite each other. The average reward is
// left alone; only AddStrategyReward moves it.
func (s *Store) IncrementStrategySelection(ctx context.Context, strategy string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_stats (strategy, selections, total_reward, average_reward, last_used)
		 VALUES (?, 1, 0, 0, ?)
		 ON CONFLICT(strategy) DO UPDATE SET
		   selections = strategy_stats.selections + 1,
		   last_used = excluded.last_used`,
		strategy, at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("increment selection: %w", err)
	}
	return nil
}

// #endregion increment-selection

// #region add-reward
// AddStrategyReward folds reward into the arm's running mean in one statement.
func (s *Store) AddStrategyReward(ctx context.Context, strategy string, reward float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO strategy_stats (strategy, selections, total_reward, average_reward, last_used)
		 VALUES (?, 1, ?, ?, NULL)
		 ON CONFLICT(strategy) DO UPDATE SET
		   total_reward = strategy_stats.total_reward + excluded.total_reward,
		   average_reward = (strategy_stats.total_reward + excluded.total_reward) / MAX(strategy_stats.selections, 1)`,
		strategy, reward, reward,
	)
	if err != nil {
		return fmt.Errorf("add reward: %w", err)
	}
	return nil
}

// #endregion add-reward

// #region bandit-stats
// GetBanditStats returns the total number of strategy selections ever made.
func (s *Store) GetBanditStats(ctx context.Context) (BanditStats, error) {
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(selections) FROM strategy_stats`).Scan(&total); err != nil {
		return BanditStats{}, fmt.Errorf("bandit stats: %w", err)
	}
	return BanditStats{TotalOptimizations: int(total.Int64)}, nil
}

// #endregion bandit-stats
