package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRelationRunningMean(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "ライブラリ", 0.4))
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "ライブラリ", 0.8))
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "データ分析", 0.5))
	// Self edges and empty terms are ignored.
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "Python", 1))
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "", 1))

	rels, err := s.GetUserRelations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rels["Python"], 2)
	assert.Equal(t, "ライブラリ", rels["Python"][0].Term)
	assert.Equal(t, 2, rels["Python"][0].Count)
	assert.InDelta(t, 0.6, rels["Python"][0].Strength, 1e-9)
	assert.Equal(t, 2, rels.TotalRelations())

	other, err := s.GetUserRelations(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRelatedTermsOrdering(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRelation(ctx, "u", "Go", "並行", 0.3))
	require.NoError(t, s.RecordRelation(ctx, "u", "Go", "型", 0.9))

	terms, err := s.RelatedTerms(ctx, "u", "Go")
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.Equal(t, "型", terms[0].Term)
	assert.Equal(t, 1, terms[0].Count)
}

func TestNgrams(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordNgram(ctx, "Python", "ライブラリ"))
	}
	require.NoError(t, s.RecordNgram(ctx, "Python", "入門"))
	require.NoError(t, s.RecordNgram(ctx, "データ", "ライブラリ"))

	word, conf, err := s.PredictNext(ctx, "Python")
	require.NoError(t, err)
	assert.Equal(t, "ライブラリ", word)
	assert.InDelta(t, 0.75, conf, 1e-9)

	word, conf, err = s.PredictNext(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, word)
	assert.Zero(t, conf)

	stats, err := s.GetNgramStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalPatterns)
	// (0.75 + 0.25 + 1.0) / 3
	assert.InDelta(t, 2.0/3.0, stats.AverageConfidence, 1e-9)

	counts, err := s.GetNgramCounts(ctx, "データ", "Python")
	require.NoError(t, err)
	assert.Len(t, counts, 3)

	cont, total, err := s.GetContinuationCounts(ctx, []string{"ライブラリ", "入門", "無い"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, map[string]int{"ライブラリ": 2, "入門": 1, "無い": 0}, cont)
}

func TestNgramStatsEmpty(t *testing.T) {
	s := tempStore(t)
	stats, err := s.GetNgramStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPatterns)
	assert.Zero(t, stats.AverageConfidence)
}

func TestStrategyStats(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.IncrementStrategySelection(ctx, "ngram_continuation", now))
	require.NoError(t, s.IncrementStrategySelection(ctx, "ngram_continuation", now))
	require.NoError(t, s.AddStrategyReward(ctx, "ngram_continuation", 0.4))
	require.NoError(t, s.AddStrategyReward(ctx, "ngram_continuation", 0.8))

	all, err := s.LoadStrategyStats(ctx)
	require.NoError(t, err)
	rec := all["ngram_continuation"]
	assert.Equal(t, 2, rec.Selections)
	assert.InDelta(t, 1.2, rec.TotalReward, 1e-9)
	assert.InDelta(t, 0.6, rec.AverageReward, 1e-9)
	assert.False(t, rec.LastUsed.IsZero())

	bandit, err := s.GetBanditStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, bandit.TotalOptimizations)

	// A later selection counts but does not move the mean until rewarded.
	require.NoError(t, s.IncrementStrategySelection(ctx, "ngram_continuation", now))
	all, err = s.LoadStrategyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, all["ngram_continuation"].Selections)
	assert.InDelta(t, 0.6, all["ngram_continuation"].AverageReward, 1e-9)
}

func TestIncrementSelectionConcurrent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementStrategySelection(ctx, "quality_focused", time.Now()))
		}()
	}
	wg.Wait()

	bandit, err := s.GetBanditStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, bandit.TotalOptimizations)
}

func TestQualityStats(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	empty, err := s.GetQualityStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Samples)

	for _, v := range []float64{0.2, 0.4, 0.6, 0.8} {
		require.NoError(t, s.RecordQuality(ctx, "alice", "quality_focused", v))
	}
	stats, err := s.GetQualityStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Samples)
	assert.InDelta(t, 0.5, stats.Average, 1e-9)
	assert.InDelta(t, 0.2236, stats.StdDev, 1e-3)
	assert.InDelta(t, 0.5, stats.AverageAccuracy, 1e-9)

	require.NoError(t, s.RecordRelation(ctx, "alice", "Go", "型", 0.5))
	user, err := s.GetUserStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, user.TotalInteractions)
	assert.InDelta(t, 0.05, user.ProfileCompleteness, 1e-9)
}

func TestSystemData(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	var got map[string]float64
	ok, err := s.LoadSystemData(ctx, "thresholds", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveSystemData(ctx, "thresholds", map[string]float64{"high": 0.7}))
	require.NoError(t, s.SaveSystemData(ctx, "thresholds", map[string]float64{"high": 0.8}))
	ok, err = s.LoadSystemData(ctx, "thresholds", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.8, got["high"])
}

const seedDoc = `
relations:
  alice:
    Python:
      - {term: ライブラリ, count: 6, strength: 0.8}
      - {term: データ分析, count: 2}
      - {term: Python, count: 9}
ngrams:
  - {context: Python, word: ライブラリ, count: 4}
  - {context: "", word: x, count: 1}
`

func TestSeed(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	seed, err := LoadSeed(strings.NewReader(seedDoc))
	require.NoError(t, err)

	res, err := s.ApplySeed(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Relations: 2, Ngrams: 1}, res)

	rels, err := s.GetUserRelations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rels["Python"], 2)
	assert.Equal(t, 6, rels["Python"][0].Count)

	terms, err := s.RelatedTerms(ctx, "alice", "Python")
	require.NoError(t, err)
	strengths := map[string]float64{}
	for _, r := range terms {
		strengths[r.Term] = r.Strength
	}
	assert.InDelta(t, 0.8, strengths["ライブラリ"], 1e-9, "explicit strength kept")
	assert.InDelta(t, 2.0/3.0, strengths["データ分析"], 1e-9, "missing strength derived from count")

	// Re-applying replaces relation counts but adds n-gram counts.
	_, err = s.ApplySeed(ctx, seed)
	require.NoError(t, err)
	rels, err = s.GetUserRelations(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 6, rels["Python"][0].Count)
	patterns, err := s.GetNgramPatterns(ctx, "Python")
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 8, patterns[0].Count)
}

func TestLoadSeedRejectsUnknownFields(t *testing.T) {
	_, err := LoadSeed(strings.NewReader("relation: {}\n"))
	assert.Error(t, err)

	empty, err := LoadSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Relations)
}

func TestExportSeedRoundTrip(t *testing.T) {
	src := tempStore(t)
	ctx := context.Background()

	seed, err := LoadSeed(strings.NewReader(seedDoc))
	require.NoError(t, err)
	_, err = src.ApplySeed(ctx, seed)
	require.NoError(t, err)
	require.NoError(t, src.RecordRelation(ctx, "bob", "Go", "並行", 0.5))

	exported, err := src.ExportSeed(ctx, "alice")
	require.NoError(t, err)
	assert.NotContains(t, exported.Relations, "bob")
	require.Len(t, exported.Relations["alice"]["Python"], 2)
	assert.Equal(t, SeedRelation{Term: "ライブラリ", Count: 6, Strength: 0.8}, exported.Relations["alice"]["Python"][0])
	assert.Equal(t, []SeedNgram{{Context: "Python", Word: "ライブラリ", Count: 4}}, exported.Ngrams)

	var buf strings.Builder
	require.NoError(t, WriteSeed(&buf, exported))
	back, err := LoadSeed(strings.NewReader(buf.String()))
	require.NoError(t, err)

	dst := tempStore(t)
	res, err := dst.ApplySeed(ctx, back)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Relations: 2, Ngrams: 1}, res)

	all, err := src.ExportSeed(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, all.Relations, "bob")
}

func TestDecayRelations(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "ライブラリ", 0.8))
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "データ分析", 0.02))

	res, err := s.DecayRelations(ctx, time.Hour, 0.015, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, DecayResult{Decayed: 1, Pruned: 1}, res)

	terms, err := s.RelatedTerms(ctx, "alice", "Python")
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "ライブラリ", terms[0].Term)
	assert.InDelta(t, 0.4, terms[0].Strength, 0.01)

	// A second pass at the same instant finds nothing older than its stamp.
	res, err = s.DecayRelations(ctx, time.Hour, 0.015, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pruned)
	terms, err = s.RelatedTerms(ctx, "alice", "Python")
	require.NoError(t, err)
	assert.InDelta(t, 0.4, terms[0].Strength, 0.02)

	_, err = s.DecayRelations(ctx, 0, 0.01, time.Now())
	assert.Error(t, err)
}

func TestSeverTerm(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordRelation(ctx, "alice", "Python", "ライブラリ", 0.8))
	require.NoError(t, s.RecordRelation(ctx, "alice", "ライブラリ", "pandas", 0.5))
	require.NoError(t, s.RecordRelation(ctx, "alice", "Go", "並行", 0.5))
	require.NoError(t, s.RecordRelation(ctx, "bob", "Python", "ライブラリ", 0.5))

	n, err := s.SeverTerm(ctx, "alice", "ライブラリ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rels, err := s.GetUserRelations(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, rels.TotalRelations())
	bob, err := s.GetUserRelations(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, bob.TotalRelations())
}
