package analysis

import (
	"context"
	"errors"
)

// #region errors

var (
	// ErrEmptyInput is returned when the utterance has no usable text.
	ErrEmptyInput = errors.New("empty input")
	// ErrAnalysisFailed is returned when the collaborator reports success=false.
	ErrAnalysisFailed = errors.New("analysis reported failure")
)

// #endregion errors

// #region token

// Token is one morpheme with its part-of-speech tag.
type Token struct {
	Surface string `json:"surface"`
	POS     string `json:"pos"`
}

// #endregion token

// #region related-term

// RelatedTerm is one co-occurrence neighbour of a term.
type RelatedTerm struct {
	Term     string  `json:"term"`
	Strength float64 `json:"strength"`
	Count    int     `json:"count"`
}

// #endregion related-term

// #region sub-records

// PredictedContext is the n-gram predictor's guess for the next word.
type PredictedContext struct {
	NextWord   string  `json:"predictedNextWord"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"predictedCategory"`
}

// Adaptation carries the personal-profile score for the speaker.
type Adaptation struct {
	Score        float64 `json:"adaptationScore"`
	UserCategory string  `json:"userCategory"`
}

// QualityPrediction is the collaborator's estimate of achievable reply quality.
type QualityPrediction struct {
	Score        float64  `json:"qualityScore"`
	Confidence   float64  `json:"confidence"`
	Improvements []string `json:"improvements"`
}

// #endregion sub-records

// #region utterance-analysis

// UtteranceAnalysis is the immutable per-request input produced by the
// analysis collaborator. Optional sections are zero-valued, never nil maps,
// once built through Default.
type UtteranceAnalysis struct {
	OriginalText        string
	Tokens              []Token
	OptimizedVocabulary []string
	Predicted           PredictedContext
	Adaptation          Adaptation
	Cooccurrence        map[string][]RelatedTerm
	Quality             QualityPrediction
	EnhancedTerms       []string
	Success             bool
}

// Default returns the "insufficient data" analysis for text: no predictions,
// no co-occurrence, zero confidences. Every decoder starts from this value.
func Default(text string) UtteranceAnalysis {
	return UtteranceAnalysis{
		OriginalText: text,
		Tokens:       []Token{},
		Cooccurrence: map[string][]RelatedTerm{},
		Quality: QualityPrediction{
			Improvements: []string{},
		},
		Success: true,
	}
}

// UniqueRelatedTerms counts distinct related terms across all keywords.
func (a UtteranceAnalysis) UniqueRelatedTerms() int {
	seen := make(map[string]struct{})
	for _, terms := range a.Cooccurrence {
		for _, t := range terms {
			seen[t.Term] = struct{}{}
		}
	}
	return len(seen)
}

// RelatedFor returns the co-occurrence list for keyword, or nil.
func (a UtteranceAnalysis) RelatedFor(keyword string) []RelatedTerm {
	return a.Cooccurrence[keyword]
}

// #endregion utterance-analysis

// #region analyzer

// Analyzer produces an UtteranceAnalysis for one user utterance.
type Analyzer interface {
	Analyze(ctx context.Context, userID, text string) (UtteranceAnalysis, error)
}

// #endregion analyzer
