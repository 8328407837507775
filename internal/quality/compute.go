package quality

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region performance-stats

// ComputePerformanceStats classifies each keyword bucket by its summed
// relation strength. With no keywords it returns the 0.1 / 0.3 defaults.
func ComputePerformanceStats(rels store.UserRelations) PerformanceStats {
	if len(rels) == 0 {
		return PerformanceStats{HighQualityRate: 0.1, MediumQualityRate: 0.3}
	}
	var high, medium int
	for _, bucket := range rels {
		var sum float64
		for _, r := range bucket {
			sum += r.Strength
		}
		switch {
		case sum > 5:
			high++
		case sum > 2:
			medium++
		}
	}
	n := float64(len(rels))
	return PerformanceStats{
		HighQualityRate:   float64(high) / n,
		MediumQualityRate: float64(medium) / n,
	}
}

// #endregion

// #region quality-metrics

// ComputeMetrics summarises the relation graph's size and strength.
func ComputeMetrics(rels store.UserRelations) Metrics {
	m := Metrics{VocabularyDiversity: len(rels), AverageRelationStrength: 0.5}
	total := rels.TotalRelations()
	if total == 0 {
		return m
	}
	var strength float64
	for _, bucket := range rels {
		for _, r := range bucket {
			strength += r.Strength
		}
	}
	m.RelationshipDensity = float64(total) / float64(len(rels))
	m.AverageRelationStrength = strength / float64(total)
	m.ContextualRichness = m.AverageRelationStrength * m.RelationshipDensity
	return m
}

// #endregion

// #region compute-thresholds

// ComputeThresholds derives the confidence bands. interactions is the
// user's historical response count; below cfg.ColdStartResponses the
// bands are floored at 0.1 / 0.3 / 0.5.
func ComputeThresholds(perf PerformanceStats, m Metrics, interactions int, cfg Config) Thresholds {
	high := math.Min(0.5+0.3*perf.HighQualityRate, 0.9)
	medium := math.Min(0.3+0.2*perf.MediumQualityRate, high-0.1)
	low := cfg.LowConfidence

	if interactions < cfg.ColdStartResponses {
		high = math.Max(high, 0.5)
		medium = math.Max(medium, 0.3)
		low = math.Max(low, 0.1)
	}
	// A configured baseline must still sit under the medium band.
	if low >= medium {
		low = medium / 2
	}
	if low < 0 {
		low = 0
	}

	return Thresholds{
		Low:                  low,
		Medium:               medium,
		High:                 high,
		RelationshipStrength: math.Max(0.7*m.AverageRelationStrength, 0.5),
		VocabularySelection:  math.Min(float64(m.VocabularyDiversity)/100, 0.8),
	}
}

// #endregion

// #region grade-against

// GradeAgainst buckets score relative to a distribution with the given
// mean and standard deviation.
func GradeAgainst(score, mean, stdDev float64) Grade {
	switch {
	case score > mean+stdDev:
		return GradeExcellent
	case score > mean:
		return GradeGood
	case score > mean-stdDev:
		return GradeAcceptable
	default:
		return GradePoor
	}
}

// #endregion

// #region sentence-metrics

var segmentBreaks = "。！？!?\n"

// MeasureSentence computes diversity (distinct informative tokens over all
// tokens) and coherence (mean segment length / 100, capped at 1). When
// tokens is nil the sentence is tokenized.
func MeasureSentence(sentence string, tokens []analysis.Token) SentenceMetrics {
	if tokens == nil {
		tokens = analysis.Tokenize(analysis.Normalize(sentence))
	}
	var m SentenceMetrics
	if len(tokens) > 0 {
		m.Diversity = float64(len(analysis.InformativeKeywords(tokens))) / float64(len(tokens))
	}

	segments := strings.FieldsFunc(sentence, func(r rune) bool {
		return strings.ContainsRune(segmentBreaks, r)
	})
	var total, n int
	for _, s := range segments {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		total += utf8.RuneCountInString(s)
		n++
	}
	if n > 0 {
		m.Coherence = math.Min(float64(total)/float64(n)/100, 1)
	}
	return m
}

// Combine produces the ranking score 0.6 × quality + 0.2 × diversity +
// 0.2 × coherence.
func Combine(q float64, m SentenceMetrics) Assessment {
	return Assessment{
		Quality:   q,
		Diversity: m.Diversity,
		Coherence: m.Coherence,
		Total:     0.6*q + 0.2*m.Diversity + 0.2*m.Coherence,
	}
}

// #endregion
