package grammar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region deps

// GraphSource reads a user's relation graph.
type GraphSource interface {
	GetUserRelations(ctx context.Context, userID string) (store.UserRelations, error)
}

// ThresholdSource supplies the user's adaptive thresholds.
type ThresholdSource interface {
	Thresholds(ctx context.Context, userID string) quality.Thresholds
}

// #endregion

// #region inducer

// Inducer builds a grammar from the user's relation graph on every call and
// turns it into a Skeleton.
type Inducer struct {
	graph      GraphSource
	thresholds ThresholdSource
	log        *slog.Logger
}

// NewInducer creates an Inducer.
func NewInducer(graph GraphSource, thresholds ThresholdSource, log *slog.Logger) *Inducer {
	if log == nil {
		log = slog.Default()
	}
	return &Inducer{graph: graph, thresholds: thresholds, log: log.With("component", "grammar")}
}

// Induce reads the graph and builds the rule set. The result always has at
// least one Sentence rule.
func (in *Inducer) Induce(ctx context.Context, userID string) (RuleSet, Patterns, error) {
	graph, err := in.graph.GetUserRelations(ctx, userID)
	if err != nil {
		return RuleSet{}, Patterns{}, fmt.Errorf("induce: %w", err)
	}
	patterns := ExtractPatterns(graph)
	_, probs := NormalizeProbabilities(patterns.Structural)
	return BuildRules(graph, probs), patterns, nil
}

// Generate returns a skeleton for keywords given the current context
// relations. It never fails: any error or a skeleton at or below the low
// threshold falls back to Fallback(relations).
func (in *Inducer) Generate(ctx context.Context, userID string, keywords []string, relations []analysis.RelatedTerm) (sk Skeleton) {
	defer func() {
		if r := recover(); r != nil {
			in.log.Error("generate panicked", "user_id", userID, "panic", r)
			sk = Fallback(relations)
		}
	}()

	rules, _, err := in.Induce(ctx, userID)
	if err != nil {
		in.log.Warn("grammar induction failed", "user_id", userID, "err", err)
		return Fallback(relations)
	}
	rule := SelectPattern(keywords, relations, rules)
	sk = Apply(rule, relations)
	if !sk.Valid() {
		return Fallback(relations)
	}

	low := quality.MinimalThresholds().Low
	if in.thresholds != nil {
		low = in.thresholds.Thresholds(ctx, userID).Low
	}
	if sk.Confidence <= low {
		return Fallback(relations)
	}
	return sk
}

// #endregion

// #region select

// SelectPattern scores each Sentence rule as 0.8 × probability + 0.2 ×
// similarity between the rule's placeholder embeddings and the context.
// Ties keep the earlier rule. With no rules an emergency pattern is built
// from the first keyword.
func SelectPattern(keywords []string, relations []analysis.RelatedTerm, rules RuleSet) SentenceRule {
	if len(rules.Sentence) == 0 {
		return emergencyRule(keywords)
	}
	ctxVec := Embed(relations)
	symbols := map[string]Embedding{
		"NP": embedPhrases(rules.NounPhrase),
		"VP": embedPhrases(rules.VerbPhrase),
	}

	best := rules.Sentence[0]
	bestScore := -1.0
	for _, r := range rules.Sentence {
		score := 0.8*r.Probability + 0.2*placeholderSimilarity(r.Pattern, symbols, ctxVec)
		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

func placeholderSimilarity(pattern string, symbols map[string]Embedding, ctxVec Embedding) float64 {
	var sum float64
	var n int
	for _, f := range strings.Fields(pattern) {
		emb, ok := symbols[f]
		if !ok {
			continue
		}
		sum += Cosine(emb, ctxVec)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func emergencyRule(keywords []string) SentenceRule {
	head := "NP"
	if len(keywords) > 0 && keywords[0] != "" {
		head = keywords[0]
	}
	pattern := head + " について VP"
	return SentenceRule{Pattern: pattern, Probability: 0.1, Type: TypeTopicFocus}
}

// #endregion

// #region apply

// Apply fills rule with the strongest relation as primary term and the
// next two as support.
func Apply(rule SentenceRule, relations []analysis.RelatedTerm) Skeleton {
	ranked := rankByStrength(relations)
	sk := Skeleton{
		Type:       rule.Type,
		Structure:  StructureInduced,
		Pattern:    rule.Pattern,
		Support:    []string{},
		Confidence: rule.Probability,
	}
	if rule.Learned {
		sk.Structure = StructureLearned
	}
	if len(ranked) == 0 {
		return sk
	}
	sk.Primary = ranked[0].Term
	for _, r := range ranked[1:] {
		if len(sk.Support) == 2 {
			break
		}
		sk.Support = append(sk.Support, r.Term)
	}
	return sk
}

// Fallback uses the single strongest relation as primary and every other
// relation stronger than 0.5 as support. With no relations it returns
// Minimal().
func Fallback(relations []analysis.RelatedTerm) Skeleton {
	ranked := rankByStrength(relations)
	if len(ranked) == 0 {
		return Minimal()
	}
	sk := Skeleton{
		Type:       TypeGeneral,
		Structure:  StructureFallback,
		Primary:    ranked[0].Term,
		Support:    []string{},
		Confidence: ranked[0].Strength,
	}
	for _, r := range ranked[1:] {
		if r.Strength > 0.5 {
			sk.Support = append(sk.Support, r.Term)
		}
	}
	return sk
}

// rankByStrength dedupes by term and orders by strength, keeping input order
// on ties. Empty terms are dropped.
func rankByStrength(relations []analysis.RelatedTerm) []analysis.RelatedTerm {
	seen := make(map[string]bool, len(relations))
	out := make([]analysis.RelatedTerm, 0, len(relations))
	for _, r := range relations {
		if r.Term == "" || seen[r.Term] {
			continue
		}
		seen[r.Term] = true
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strength > out[j].Strength })
	return out
}

// #endregion
