package store

import "time"

// #region relation
// Relation is one edge of a user's co-occurrence graph: keyword → Term.
type Relation struct {
	Term        string
	Count       int
	Strength    float64
	LastUpdated time.Time
}

// UserRelations maps keyword → related terms, strongest first.
type UserRelations map[string][]Relation

// TotalRelations counts edges across all keywords.
func (u UserRelations) TotalRelations() int {
	n := 0
	for _, rels := range u {
		n += len(rels)
	}
	return n
}

// DecayResult reports what DecayRelations changed.
type DecayResult struct {
	Decayed int
	Pruned  int
}

// #endregion relation

// #region ngram
// NgramCount is a (context, word, count) triple.
type NgramCount struct {
	Context string
	Word    string
	Count   int
}

// NgramPattern is a continuation of a context word with its relative frequency.
type NgramPattern struct {
	Context    string
	Word       string
	Count      int
	Confidence float64
}

// NgramStats summarises the whole n-gram table.
type NgramStats struct {
	TotalPatterns     int
	AverageConfidence float64
}

// #endregion ngram

// #region strategy
// StrategyRecord is the persisted bandit arm for one strategy.
type StrategyRecord struct {
	Strategy      string
	Selections    int
	TotalReward   float64
	AverageReward float64
	LastUsed      time.Time
}

// BanditStats aggregates selections across all arms.
type BanditStats struct {
	TotalOptimizations int
}

// #endregion strategy

// #region quality
// QualityStats is the live distribution of recorded quality scores.
type QualityStats struct {
	Samples         int
	Average         float64
	StdDev          float64
	AverageAccuracy float64 // share of responses scoring >= 0.5
}

// UserStats summarises one user's interaction history.
type UserStats struct {
	TotalInteractions   int
	ProfileCompleteness float64
}

// #endregion quality
