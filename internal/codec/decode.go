package codec

import (
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// DecodeAnalysis maps the service's analysis payload onto the typed record.
// Absent or mistyped sections keep their analysis.Default values.
func DecodeAnalysis(text string, s *structpb.Struct) analysis.UtteranceAnalysis {
	a := analysis.Default(text)
	f := s.GetFields()

	if v := str(f, "originalText"); v != "" {
		a.OriginalText = v
	}
	for _, item := range list(f, "processedTokens") {
		tf := item.GetStructValue().GetFields()
		if surface := str(tf, "surface"); surface != "" {
			a.Tokens = append(a.Tokens, analysis.Token{Surface: surface, POS: str(tf, "pos")})
		}
	}
	if len(a.Tokens) == 0 {
		a.Tokens = analysis.Tokenize(analysis.Normalize(a.OriginalText))
	}

	// optimizedVocabulary is either one string or a list.
	if v, ok := f["optimizedVocabulary"]; ok {
		switch k := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			a.OptimizedVocabulary = strings.Fields(k.StringValue)
		case *structpb.Value_ListValue:
			for _, item := range k.ListValue.GetValues() {
				if s := item.GetStringValue(); s != "" {
					a.OptimizedVocabulary = append(a.OptimizedVocabulary, s)
				}
			}
		}
	}

	if pc := sub(f, "predictedContext"); pc != nil {
		a.Predicted = analysis.PredictedContext{
			NextWord:   str(pc, "predictedNextWord"),
			Confidence: unit(num(pc, "confidence")),
			Category:   str(pc, "predictedCategory"),
		}
	}
	if ac := sub(f, "adaptedContent"); ac != nil {
		a.Adaptation = analysis.Adaptation{
			Score:        unit(num(ac, "adaptationScore")),
			UserCategory: str(ac, "userCategory"),
		}
	}
	if co := sub(f, "cooccurrenceAnalysis"); co != nil {
		for kw, v := range sub(co, "relatedTerms") {
			for _, item := range v.GetListValue().GetValues() {
				rf := item.GetStructValue().GetFields()
				term := str(rf, "term")
				if term == "" {
					continue
				}
				a.Cooccurrence[kw] = append(a.Cooccurrence[kw], analysis.RelatedTerm{
					Term:     term,
					Strength: unit(num(rf, "strength")),
					Count:    int(num(rf, "count")),
				})
			}
		}
	}
	if qp := sub(f, "qualityPrediction"); qp != nil {
		a.Quality.Score = unit(num(qp, "qualityScore"))
		a.Quality.Confidence = unit(num(qp, "confidence"))
		for _, item := range list(qp, "improvements") {
			if s := item.GetStringValue(); s != "" {
				a.Quality.Improvements = append(a.Quality.Improvements, s)
			}
		}
	}
	for _, item := range list(f, "enhancedTerms") {
		// entries are {term} objects or bare strings
		term := item.GetStringValue()
		if term == "" {
			term = str(item.GetStructValue().GetFields(), "term")
		}
		if term != "" {
			a.EnhancedTerms = append(a.EnhancedTerms, term)
		}
	}
	if v, ok := f["success"]; ok {
		if b, isBool := v.GetKind().(*structpb.Value_BoolValue); isBool {
			a.Success = b.BoolValue
		}
	}
	return a
}

// #region helpers
func sub(f map[string]*structpb.Value, key string) map[string]*structpb.Value {
	v, ok := f[key]
	if !ok {
		return nil
	}
	return v.GetStructValue().GetFields()
}

func list(f map[string]*structpb.Value, key string) []*structpb.Value {
	return f[key].GetListValue().GetValues()
}

func str(f map[string]*structpb.Value, key string) string {
	return strings.TrimSpace(f[key].GetStringValue())
}

func num(f map[string]*structpb.Value, key string) float64 {
	return f[key].GetNumberValue()
}

func unit(v float64) float64 {
	return min(max(v, 0), 1)
}
// #endregion helpers
