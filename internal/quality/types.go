package quality

// #region grade

// Grade is the bucket a quality score falls into relative to the live
// distribution of past scores.
type Grade string

const (
	GradeExcellent  Grade = "excellent"
	GradeGood       Grade = "good"
	GradeAcceptable Grade = "acceptable"
	GradePoor       Grade = "poor"
	GradeFallback   Grade = "fallback"
	GradeError      Grade = "error"
)

// NeedsImprovement reports whether the orchestrator should try to improve
// a response with this grade.
func (g Grade) NeedsImprovement() bool {
	return g == GradePoor || g == GradeAcceptable
}

// #endregion

// #region thresholds

// Thresholds are the confidence bands used to phrase and filter responses.
// For any value produced by this package High > Medium > Low holds.
type Thresholds struct {
	Low                  float64 `json:"lowConfidence"`
	Medium               float64 `json:"mediumConfidence"`
	High                 float64 `json:"highConfidence"`
	RelationshipStrength float64 `json:"relationshipStrength"`
	VocabularySelection  float64 `json:"vocabularySelection"`
}

// MinimalThresholds is the conservative set used whenever statistics
// cannot be read.
func MinimalThresholds() Thresholds {
	return Thresholds{
		Low:                  0.1,
		Medium:               0.3,
		High:                 0.5,
		RelationshipStrength: 0.5,
		VocabularySelection:  0.1,
	}
}

// #endregion

// #region stats

// PerformanceStats is the share of a user's keywords whose summed relation
// strength is high (> 5) or medium (> 2).
type PerformanceStats struct {
	HighQualityRate   float64
	MediumQualityRate float64
}

// Metrics is the shape of a user's relation graph.
type Metrics struct {
	VocabularyDiversity     int
	RelationshipDensity     float64
	AverageRelationStrength float64
	ContextualRichness      float64
}

// SentenceMetrics are the structural scores of one generated sentence.
type SentenceMetrics struct {
	Diversity float64
	Coherence float64
}

// Assessment is a scored candidate.
type Assessment struct {
	Quality   float64
	Diversity float64
	Coherence float64
	Total     float64
}

// #endregion

// #region config

// Config controls threshold computation.
type Config struct {
	LowConfidence      float64 // baseline low band
	ColdStartResponses int     // below this many responses, floors apply
	ColdMean           float64 // grading distribution used with no history
	ColdStdDev         float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		LowConfidence:      0.1,
		ColdStartResponses: 10,
		ColdMean:           0.5,
		ColdStdDev:         0.2,
	}
}

// #endregion
