package store

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// #region seed-types
// Seed is the YAML document accepted by the seed command:
//
//	relations:
//	  alice:
//	    Python:
//	      - {term: ライブラリ, count: 6, strength: 0.8}
//	ngrams:
//	  - {context: Python, word: ライブラリ, count: 4}
type Seed struct {
	Relations map[string]map[string][]SeedRelation `yaml:"relations" json:"relations"`
	Ngrams    []SeedNgram                          `yaml:"ngrams" json:"ngrams"`
}

// SeedRelation is one keyword → term edge in a seed file. A missing or
// non-positive strength defaults to count/(count+1).
type SeedRelation struct {
	Term     string  `yaml:"term" json:"term"`
	Count    int     `yaml:"count" json:"count"`
	Strength float64 `yaml:"strength" json:"strength"`
}

// SeedNgram is one bigram count in a seed file.
type SeedNgram struct {
	Context string `yaml:"context" json:"context"`
	Word    string `yaml:"word" json:"word"`
	Count   int    `yaml:"count" json:"count"`
}

// SeedResult reports what Apply wrote.
type SeedResult struct {
	Relations int
	Ngrams    int
}

// #endregion seed-types

// #region load-seed
// LoadSeed decodes a seed document.
func LoadSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return Seed{}, nil
		}
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// #endregion load-seed

// #region apply-seed
// ApplySeed writes the seed into the store inside one transaction. Relation
// counts and strengths replace existing values; n-gram counts are added.
// Edges with an empty or self-referencing term are skipped.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (SeedResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SeedResult{}, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	var res SeedResult
	users := make([]string, 0, len(seed.Relations))
	for u := range seed.Relations {
		users = append(users, u)
	}
	sort.Strings(users)

	for _, user := range users {
		for keyword, rels := range seed.Relations[user] {
			for _, r := range rels {
				if r.Term == "" || r.Term == keyword {
					continue
				}
				count := r.Count
				if count < 1 {
					count = 1
				}
				strength := r.Strength
				if strength <= 0 {
					strength = float64(count) / float64(count+1)
				}
				if err := putRelation(ctx, tx, user, keyword, r.Term, count, strength); err != nil {
					return SeedResult{}, fmt.Errorf("seed %s/%s: %w", user, keyword, err)
				}
				res.Relations++
			}
		}
	}

	for _, n := range seed.Ngrams {
		if n.Context == "" || n.Word == "" || n.Count <= 0 {
			continue
		}
		if err := addNgram(ctx, tx, n.Context, n.Word, n.Count); err != nil {
			return SeedResult{}, fmt.Errorf("seed %s: %w", n.Context, err)
		}
		res.Ngrams++
	}

	if err := tx.Commit(); err != nil {
		return SeedResult{}, fmt.Errorf("commit seed: %w", err)
	}
	return res, nil
}

// #endregion apply-seed

// #region export-seed
// ExportSeed dumps relations (for one user, or all when userID is empty) and
// every n-gram count as a Seed that ApplySeed accepts back unchanged.
func (s *Store) ExportSeed(ctx context.Context, userID string) (Seed, error) {
	seed := Seed{Relations: make(map[string]map[string][]SeedRelation)}

	query := `SELECT user_id, keyword, term, count, strength FROM user_relations`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id, keyword, count DESC, strength DESC, term`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Seed{}, fmt.Errorf("export relations: %w", err)
	}
	for rows.Next() {
		var user, keyword string
		var r SeedRelation
		if err := rows.Scan(&user, &keyword, &r.Term, &r.Count, &r.Strength); err != nil {
			rows.Close()
			return Seed{}, fmt.Errorf("scan export relation: %w", err)
		}
		if seed.Relations[user] == nil {
			seed.Relations[user] = make(map[string][]SeedRelation)
		}
		seed.Relations[user][keyword] = append(seed.Relations[user][keyword], r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Seed{}, fmt.Errorf("export relations: %w", err)
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT context, word, count FROM ngram_counts ORDER BY context, count DESC, word`)
	if err != nil {
		return Seed{}, fmt.Errorf("export ngrams: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n SeedNgram
		if err := rows.Scan(&n.Context, &n.Word, &n.Count); err != nil {
			return Seed{}, fmt.Errorf("scan export ngram: %w", err)
		}
		seed.Ngrams = append(seed.Ngrams, n)
	}
	return seed, rows.Err()
}

// WriteSeed encodes seed as YAML.
func WriteSeed(w io.Writer, seed Seed) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seed); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	return enc.Close()
}

// #endregion export-seed
