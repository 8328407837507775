package analysis

import (
	"context"
	"fmt"
	"sort"
)

// #region lookup

// Lookup is the slice of the learning store the local analyzer reads.
type Lookup interface {
	RelatedTerms(ctx context.Context, userID, keyword string) ([]RelatedTerm, error)
	PredictNext(ctx context.Context, word string) (string, float64, error)
}

// #endregion lookup

// #region local-analyzer

// LocalAnalyzer builds an UtteranceAnalysis in-process from the script-run
// tokenizer and the user's learned statistics. Used when no remote analysis
// service is configured.
type LocalAnalyzer struct {
	lookup Lookup // nil = tokens only
}

// NewLocalAnalyzer creates a LocalAnalyzer. lookup may be nil.
func NewLocalAnalyzer(lookup Lookup) *LocalAnalyzer {
	return &LocalAnalyzer{lookup: lookup}
}

// Analyze tokenizes text and attaches whatever statistics the store has.
// Store errors do not fail the analysis; the affected section stays default.
func (l *LocalAnalyzer) Analyze(ctx context.Context, userID, text string) (UtteranceAnalysis, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return UtteranceAnalysis{}, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return UtteranceAnalysis{}, fmt.Errorf("analyze: %w", err)
	}

	a := Default(text)
	a.Tokens = Tokenize(normalized)
	keywords := InformativeKeywords(a.Tokens)
	a.OptimizedVocabulary = rankByQuality(keywords, 5)

	covered := 0
	if l.lookup != nil {
		for _, kw := range keywords {
			related, err := l.lookup.RelatedTerms(ctx, userID, kw)
			if err != nil || len(related) == 0 {
				continue
			}
			a.Cooccurrence[kw] = related
			covered++
		}
		if len(keywords) > 0 {
			next, conf, err := l.lookup.PredictNext(ctx, keywords[len(keywords)-1])
			if err == nil && next != "" {
				a.Predicted = PredictedContext{NextWord: next, Confidence: conf, Category: "ngram"}
			}
		}
	}

	coverage := 0.0
	if len(keywords) > 0 {
		coverage = float64(covered) / float64(len(keywords))
	}
	a.Adaptation = Adaptation{Score: coverage, UserCategory: "new"}
	if covered > 0 {
		a.Adaptation.UserCategory = "returning"
	}

	a.Quality.Confidence = 0.5*a.Predicted.Confidence + 0.5*coverage
	a.Quality.Score = a.Quality.Confidence
	if covered == 0 {
		a.Quality.Improvements = append(a.Quality.Improvements, "more_context")
	}
	return a, nil
}

// #endregion local-analyzer

// #region helpers

func rankByQuality(keywords []string, limit int) []string {
	ranked := append([]string(nil), keywords...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return StatisticalQuality(ranked[i]) > StatisticalQuality(ranked[j])
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// #endregion helpers
