package grammar

import (
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// ProbabilityFloor is the minimum probability of any Sentence rule.
const ProbabilityFloor = 0.05

// FallbackPattern is injected when no Sentence rule could be induced.
const FallbackPattern = "NP について VP"

// #region extract

var abstractMarkers = []string{"的", "性", "論"}

// ExtractPatterns derives structural, lexical and contextual patterns from
// each keyword bucket of the relation graph. Keywords are visited in sorted
// order so the result is deterministic.
func ExtractPatterns(graph store.UserRelations) Patterns {
	keywords := make([]string, 0, len(graph))
	for kw := range graph {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	var p Patterns
	for _, kw := range keywords {
		bucket := graph[kw]
		if len(bucket) == 0 {
			continue
		}
		total := 0
		for _, r := range bucket {
			total += r.Count
		}
		p.Structural = append(p.Structural, structuralFor(kw, total))

		abstract := false
		for _, r := range bucket {
			rel := 0.0
			if total > 0 {
				rel = float64(r.Count) / float64(total)
			}
			priority := "normal"
			if r.Count > 2 {
				priority = "high"
			}
			p.Lexical = append(p.Lexical, LexicalPattern{
				Keyword:           kw,
				Term:              r.Term,
				Frequency:         r.Count,
				RelativeFrequency: rel,
				UsagePriority:     priority,
			})
			if isAbstract(r.Term) {
				abstract = true
			}
		}
		formality := 0.4
		if abstract {
			formality = 0.7
		}
		p.Contextual = append(p.Contextual, ContextualPattern{Keyword: kw, Abstract: abstract, Formality: formality})
	}
	return p
}

func structuralFor(keyword string, count int) StructuralPattern {
	c := float64(count)
	switch {
	case count > 3:
		return StructuralPattern{Keyword: keyword, Pattern: "NP について VP", Probability: math.Min(c/10, 0.8), Kind: KindHighRelation, Count: count}
	case count > 1:
		return StructuralPattern{Keyword: keyword, Pattern: "NP は VP", Probability: math.Min(c/5, 0.6), Kind: KindMediumRelation, Count: count}
	default:
		return StructuralPattern{Keyword: keyword, Pattern: "NP が VP", Probability: 0.3, Kind: KindLowRelation, Count: count}
	}
}

func isAbstract(term string) bool {
	for _, m := range abstractMarkers {
		if strings.Contains(term, m) {
			return true
		}
	}
	return false
}

// #endregion

// #region normalize

// NormalizeProbabilities aggregates structural-pattern probabilities by
// pattern string and normalizes them into a distribution (raw). floored is
// raw with every value raised to at least ProbabilityFloor; it is not
// renormalized afterwards.
func NormalizeProbabilities(structural []StructuralPattern) (raw, floored map[string]float64) {
	raw = make(map[string]float64)
	floored = make(map[string]float64)
	var total float64
	for _, sp := range structural {
		raw[sp.Pattern] += sp.Probability
		total += sp.Probability
	}
	if total <= 0 {
		if len(raw) == 0 {
			return raw, floored
		}
		// All-zero strengths: treat the patterns as equally likely.
		for k := range raw {
			raw[k] = 1 / float64(len(raw))
		}
	} else {
		for k, v := range raw {
			raw[k] = v / total
		}
	}
	for k, v := range raw {
		floored[k] = math.Max(v, ProbabilityFloor)
	}
	return raw, floored
}

// #endregion

// #region build-rules

// InferType maps a pattern to its SentenceType by the topic particle it
// contains.
func InferType(pattern string) SentenceType {
	fields := strings.Fields(pattern)
	has := func(p string) bool {
		for _, f := range fields {
			if f == p {
				return true
			}
		}
		return false
	}
	switch {
	case has("に関して"):
		return TypeTopicFormal
	case has("について"):
		return TypeTopicFocus
	case has("は"):
		return TypeTopicComment
	case has("が"):
		return TypeSubjectPredicate
	case has("を"):
		return TypeObjectFocus
	default:
		return TypeGeneral
	}
}

// usageConfidence bands a phrase head's usage count.
func usageConfidence(n int) float64 {
	switch {
	case n >= 5:
		return 0.8
	case n >= 3:
		return 0.6
	case n >= 2:
		return 0.4
	default:
		return 0.2
	}
}

var (
	minimalNounPhrases = []PhraseRule{
		{Symbol: "NP", Head: "こと", Confidence: 0.5},
		{Symbol: "NP", Head: "もの", Confidence: 0.5},
	}
	minimalVerbPhrases = []PhraseRule{
		{Symbol: "VP", Head: "です", Confidence: 0.6},
		{Symbol: "VP", Head: "ます", Confidence: 0.4},
	}
)

const maxPhraseRules = 10

// BuildRules turns normalized probabilities into a RuleSet and derives NP and
// VP heads from the graph's term usage. Empty families get their minimal set;
// an empty Sentence family gets FallbackPattern with probability 1.
func BuildRules(graph store.UserRelations, probs map[string]float64) RuleSet {
	var rs RuleSet
	for pattern, p := range probs {
		rs.Sentence = append(rs.Sentence, SentenceRule{
			Pattern:     pattern,
			Probability: p,
			Type:        InferType(pattern),
			Learned:     true,
		})
	}
	sort.Slice(rs.Sentence, func(i, j int) bool {
		if rs.Sentence[i].Probability != rs.Sentence[j].Probability {
			return rs.Sentence[i].Probability > rs.Sentence[j].Probability
		}
		return rs.Sentence[i].Pattern < rs.Sentence[j].Pattern
	})
	if len(rs.Sentence) == 0 {
		rs.Sentence = []SentenceRule{{
			Pattern:     FallbackPattern,
			Probability: 1.0,
			Type:        InferType(FallbackPattern),
		}}
	}

	nouns, verbs := usageByPOS(graph)
	rs.NounPhrase = phraseRules("NP", nouns)
	rs.VerbPhrase = phraseRules("VP", verbs)
	if len(rs.NounPhrase) == 0 {
		rs.NounPhrase = append([]PhraseRule(nil), minimalNounPhrases...)
	}
	if len(rs.VerbPhrase) == 0 {
		rs.VerbPhrase = append([]PhraseRule(nil), minimalVerbPhrases...)
	}
	return rs
}

// usageByPOS sums usage counts per term, split into noun and verb candidates.
// Keywords count once per related term they carry.
func usageByPOS(graph store.UserRelations) (nouns, verbs map[string]int) {
	nouns = make(map[string]int)
	verbs = make(map[string]int)
	add := func(term string, n int) {
		switch headPOS(term) {
		case "動詞":
			verbs[term] += n
		case "名詞":
			nouns[term] += n
		}
	}
	for kw, bucket := range graph {
		for _, r := range bucket {
			add(r.Term, max(r.Count, 1))
		}
		add(kw, len(bucket))
	}
	return nouns, verbs
}

// headPOS classifies a term by its last token, treating a trailing する as a
// verb regardless of how the stem was tagged.
func headPOS(term string) string {
	if strings.HasSuffix(term, "する") || strings.HasSuffix(term, "できる") {
		return "動詞"
	}
	tokens := analysis.Tokenize(term)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1].POS
}

func phraseRules(symbol string, usage map[string]int) []PhraseRule {
	out := make([]PhraseRule, 0, len(usage))
	for head, n := range usage {
		if analysis.IsNoise(head) {
			continue
		}
		out = append(out, PhraseRule{
			Symbol:     symbol,
			Head:       head,
			Usage:      n,
			Confidence: usageConfidence(n),
			Learned:    true,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Usage != out[j].Usage {
			return out[i].Usage > out[j].Usage
		}
		return out[i].Head < out[j].Head
	})
	if len(out) > maxPhraseRules {
		out = out[:maxPhraseRules]
	}
	return out
}

// #endregion
