package strategy

import "time"

// #region strategy

// Strategy is one of the five generation approaches the bandit chooses from.
type Strategy string

const (
	NgramContinuation      Strategy = "ngram_continuation"
	CooccurrenceExpansion  Strategy = "cooccurrence_expansion"
	PersonalAdaptation     Strategy = "personal_adaptation"
	VocabularyOptimization Strategy = "vocabulary_optimization"
	QualityFocused         Strategy = "quality_focused"
)

// All lists the strategies in enumeration order. UCB ties resolve to the
// earliest entry.
var All = []Strategy{
	NgramContinuation,
	CooccurrenceExpansion,
	PersonalAdaptation,
	VocabularyOptimization,
	QualityFocused,
}

// Valid reports whether s is one of All.
func (s Strategy) Valid() bool {
	for _, x := range All {
		if x == s {
			return true
		}
	}
	return false
}

// #endregion

// #region stage

// Stage is the coarse communicative intent of a turn.
type Stage string

const (
	StageGreeting                Stage = "greeting"
	StageInformationRequest      Stage = "information_request"
	StageProblemSolving          Stage = "problem_solving"
	StageConfirmation            Stage = "confirmation"
	StageContextDriven           Stage = "context_driven"
	StageVocabularyFocused       Stage = "vocabulary_focused"
	StagePersonalized            Stage = "personalized"
	StageRelationshipExploration Stage = "relationship_exploration"
	StageGeneral                 Stage = "general"
)

// #endregion

// #region arm

// Arm is the in-memory bandit state for one strategy.
type Arm struct {
	Selections    int       `json:"selections"`
	TotalReward   float64   `json:"totalReward"`
	AverageReward float64   `json:"averageReward"`
	LastUsed      time.Time `json:"lastUsed"`
}

// #endregion
