package assembler

import (
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/grammar"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
)

// HoldingPhrase is returned when there is not even a primary term.
const HoldingPhrase = "もう少し詳しく教えていただけますか？"

// MinimalTemplate is the deterministic reply used when generation cannot be
// trusted.
func MinimalTemplate(primary string) string {
	if primary == "" {
		return HoldingPhrase
	}
	return primary + "について、何かお手伝いできることはありますか？"
}

// Band is a confidence tier.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor places confidence in a tier of t.
func BandFor(confidence float64, t quality.Thresholds) Band {
	switch {
	case confidence >= t.High:
		return BandHigh
	case confidence >= t.Medium:
		return BandMedium
	default:
		return BandLow
	}
}

// Phrase renders tokens (primary first) as a sentence in the tone of band,
// then appends the clause for typ when support terms exist.
func Phrase(tokens []string, band Band, typ grammar.SentenceType) string {
	if len(tokens) == 0 {
		return HoldingPhrase
	}
	primary, support := tokens[0], tokens[1:]

	var b strings.Builder
	switch band {
	case BandHigh:
		if len(support) > 0 {
			b.WriteString(primary + "について、" + strings.Join(support, "や") + "が深く関係していますね。")
		} else {
			b.WriteString(primary + "について、詳しくお話しできます。")
		}
	case BandMedium:
		if len(support) > 0 {
			b.WriteString(primary + "について、" + support[0] + "の観点から考えてみましょう。")
		} else {
			b.WriteString(primary + "について考えてみましょう。")
		}
	default:
		b.WriteString(primary + "のことでしょうか。")
	}

	if len(support) > 0 {
		b.WriteString(typeClause(typ, primary, support[0]))
	}
	return b.String()
}

func typeClause(typ grammar.SentenceType, primary, support string) string {
	switch typ {
	case grammar.TypeTopicFocus:
		return primary + "について言えば、" + support + "が重要です。"
	case grammar.TypeTopicComment:
		return primary + "は" + support + "と関係があります。"
	case grammar.TypeSubjectPredicate:
		return primary + "は" + support + "です。"
	case grammar.TypeTopicFormal:
		return primary + "に関しては、" + support + "も検討できます。"
	case grammar.TypeObjectFocus:
		return support + "を通じて" + primary + "を深められます。"
	default:
		return ""
	}
}

// ResponseTokens picks the words a sentence is built from: enhanced terms
// when present, else the skeleton's primary and support, else the top
// context terms. Noise tokens are dropped and at most 3 are kept.
func ResponseTokens(enhanced []string, sk grammar.Skeleton, entries []ContextEntry) []string {
	var raw []string
	switch {
	case len(enhanced) > 0:
		raw = enhanced
	case sk.HasPrimary():
		raw = append([]string{sk.Primary}, sk.Support...)
	default:
		for _, e := range entries {
			raw = append(raw, e.Term)
		}
	}
	seen := make(map[string]bool)
	out := make([]string, 0, 3)
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if analysis.IsNoise(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == 3 {
			break
		}
	}
	return out
}
