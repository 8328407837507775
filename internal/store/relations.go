package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// #region record-relation
// RecordRelation bumps the keyword → term edge for userID. The first
// observation creates it with count=1; later ones increment count and fold
// strength into a running mean.
func (s *Store) RecordRelation(ctx context.Context, userID, keyword, term string, strength float64) error {
	if keyword == "" || term == "" || keyword == term {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_relations (user_id, keyword, term, count, strength, last_updated)
		 VALUES (?, ?, ?, 1, ?, ?)
		 ON CONFLICT(user_id, keyword, term) DO UPDATE SET
		   strength = (user_relations.strength * user_relations.count + excluded.strength) / (user_relations.count + 1),
		   count = user_relations.count + 1,
		   last_updated = excluded.last_updated`,
		userID, keyword, term, strength, now,
	)
	if err != nil {
		return fmt.Errorf("record relation: %w", err)
	}
	return nil
}

// putRelation writes an edge with explicit count and strength (seed import).
func putRelation(ctx context.Context, ex execer, userID, keyword, term string, count int, strength float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := ex.ExecContext(ctx,
		`INSERT INTO user_relations (user_id, keyword, term, count, strength, last_updated)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, keyword, term) DO UPDATE SET
		   count = excluded.count, strength = excluded.strength, last_updated = excluded.last_updated`,
		userID, keyword, term, count, strength, now,
	)
	if err != nil {
		return fmt.Errorf("put relation: %w", err)
	}
	return nil
}

// #endregion record-relation

// #region get-user-relations
// GetUserRelations returns the user's whole relation graph. Within a keyword,
// terms are ordered by count then strength, descending.
func (s *Store) GetUserRelations(ctx context.Context, userID string) (UserRelations, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT keyword, term, count, strength, last_updated
		 FROM user_relations
		 WHERE user_id = ?
		 ORDER BY keyword, count DESC, strength DESC, term`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get user relations: %w", err)
	}
	defer rows.Close()

	out := make(UserRelations)
	for rows.Next() {
		var keyword, updated string
		var r Relation
		if err := rows.Scan(&keyword, &r.Term, &r.Count, &r.Strength, &updated); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		r.LastUpdated, _ = time.Parse(time.RFC3339Nano, updated)
		out[keyword] = append(out[keyword], r)
	}
	return out, rows.Err()
}

// #endregion get-user-relations

// #region related-terms
// RelatedTerms returns one keyword's neighbours in analysis form.
func (s *Store) RelatedTerms(ctx context.Context, userID, keyword string) ([]analysis.RelatedTerm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, count, strength FROM user_relations
		 WHERE user_id = ? AND keyword = ?
		 ORDER BY strength DESC, count DESC, term`,
		userID, keyword,
	)
	if err != nil {
		return nil, fmt.Errorf("related terms: %w", err)
	}
	defer rows.Close()

	var out []analysis.RelatedTerm
	for rows.Next() {
		var rt analysis.RelatedTerm
		if err := rows.Scan(&rt.Term, &rt.Count, &rt.Strength); err != nil {
			return nil, fmt.Errorf("scan related term: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// #endregion related-terms

// #region decay
// DecayRelations ages every edge: strength *= 0.5^(age/halfLife), where age is
// measured from last_updated to now. Edges that fall below floor are deleted;
// the rest are stamped with now so a later pass only decays the new interval.
func (s *Store) DecayRelations(ctx context.Context, halfLife time.Duration, floor float64, now time.Time) (DecayResult, error) {
	if halfLife <= 0 {
		return DecayResult{}, errors.New("decay relations: half-life must be positive")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, keyword, term, strength, last_updated FROM user_relations`)
	if err != nil {
		return DecayResult{}, fmt.Errorf("decay relations: %w", err)
	}

	type edge struct {
		user, keyword, term string
		strength            float64
	}
	var updates, deletes []edge
	for rows.Next() {
		var e edge
		var updated string
		if err := rows.Scan(&e.user, &e.keyword, &e.term, &e.strength, &updated); err != nil {
			rows.Close()
			return DecayResult{}, fmt.Errorf("scan relation: %w", err)
		}
		t, _ := time.Parse(time.RFC3339Nano, updated)
		age := now.Sub(t)
		if age <= 0 {
			continue
		}
		e.strength *= math.Exp(-age.Seconds() * math.Ln2 / halfLife.Seconds())
		if e.strength < floor {
			deletes = append(deletes, e)
		} else {
			updates = append(updates, e)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return DecayResult{}, fmt.Errorf("decay relations: %w", err)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DecayResult{}, fmt.Errorf("begin decay: %w", err)
	}
	defer tx.Rollback()

	stamp := now.UTC().Format(time.RFC3339Nano)
	for _, e := range updates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE user_relations SET strength = ?, last_updated = ?
			 WHERE user_id = ? AND keyword = ? AND term = ?`,
			e.strength, stamp, e.user, e.keyword, e.term); err != nil {
			return DecayResult{}, fmt.Errorf("decay %s/%s: %w", e.keyword, e.term, err)
		}
	}
	for _, e := range deletes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_relations WHERE user_id = ? AND keyword = ? AND term = ?`,
			e.user, e.keyword, e.term); err != nil {
			return DecayResult{}, fmt.Errorf("prune %s/%s: %w", e.keyword, e.term, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return DecayResult{}, fmt.Errorf("commit decay: %w", err)
	}
	return DecayResult{Decayed: len(updates), Pruned: len(deletes)}, nil
}

// #endregion decay

// #region sever
// SeverTerm deletes every edge of userID where term is either end.
func (s *Store) SeverTerm(ctx context.Context, userID, term string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_relations WHERE user_id = ? AND (keyword = ? OR term = ?)`,
		userID, term, term)
	if err != nil {
		return 0, fmt.Errorf("sever %s: %w", term, err)
	}
	return res.RowsAffected()
}

// #endregion sever
