package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/grammar"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/strategy"
)

// #region deps

// Source is the slice of the learning store the assembler reads.
type Source interface {
	GetNgramCounts(ctx context.Context, text, nextWord string) ([]store.NgramCount, error)
	GetContinuationCounts(ctx context.Context, words []string) (map[string]int, int, error)
	GetUserRelations(ctx context.Context, userID string) (store.UserRelations, error)
	RelatedTerms(ctx context.Context, userID, keyword string) ([]analysis.RelatedTerm, error)
}

// Evaluator scores sentences and supplies thresholds.
type Evaluator interface {
	Thresholds(ctx context.Context, userID string) quality.Thresholds
	Assess(sentence string, prior float64, tokens []analysis.Token) quality.Assessment
}

// SkeletonGenerator produces the structural plan for a sentence.
type SkeletonGenerator interface {
	Generate(ctx context.Context, userID string, keywords []string, relations []analysis.RelatedTerm) grammar.Skeleton
}

// #endregion

// #region config

// Config tunes the assembler.
type Config struct {
	ContextLimit int     // semantic context size, clamped to [5,10]
	Discount     float64 // Kneser-Ney D
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{ContextLimit: 8, Discount: DefaultDiscount}
}

// #endregion

// #region types

// Candidate sources.
const (
	SourceKneserNey     = "kneser_ney"
	SourceStructural    = "structural"
	SourceSkeletonAlt   = "fallback_skeleton"
	SourceLowConfidence = "low_confidence"
	SourceMinimal       = "minimal"
)

// Candidate is one generated sentence with its scores.
type Candidate struct {
	Text       string
	Confidence float64
	Type       grammar.SentenceType
	Primary    string
	Support    []string
	Source     string
	Assessment quality.Assessment
}

// Result is the chosen sentence.
type Result struct {
	Candidate
	Candidates int  // how many were generated
	Minimal    bool // replaced by the minimal template
	Degraded   bool // an internal error occurred; must not be rewarded
	Reason     string
}

// #endregion

// #region assembler

// Assembler produces and ranks candidate sentences for a strategy.
type Assembler struct {
	src     Source
	grammar SkeletonGenerator
	eval    Evaluator
	hook    SemanticHook // nil = statistical ranking only
	cfg     Config
	log     *slog.Logger
}

// New creates an Assembler. hook may be nil.
func New(src Source, gen SkeletonGenerator, eval Evaluator, hook SemanticHook, cfg Config, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	cfg.ContextLimit = min(max(cfg.ContextLimit, 5), 10)
	if cfg.Discount <= 0 || cfg.Discount >= 1 {
		cfg.Discount = DefaultDiscount
	}
	return &Assembler{
		src:     src,
		grammar: gen,
		eval:    eval,
		hook:    hook,
		cfg:     cfg,
		log:     log.With("component", "assembler"),
	}
}

// Generate runs the strategy's generator, scores every candidate and returns
// the best. It never fails: panics and context errors yield the minimal
// template with Degraded set.
func (a *Assembler) Generate(ctx context.Context, an analysis.UtteranceAnalysis, st strategy.Strategy, userID string) (res Result) {
	keywords := keywordsOf(an)
	first := ""
	if len(keywords) > 0 {
		first = keywords[0]
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("generate panicked", "user_id", userID, "strategy", st, "panic", r)
			res = degraded(first, fmt.Sprintf("panic: %v", r))
		}
	}()

	th := a.eval.Thresholds(ctx, userID)
	cands, err := a.candidates(ctx, an, st, userID, keywords, th)
	if err != nil {
		a.log.Warn("generation failed", "user_id", userID, "strategy", st, "err", err)
		return degraded(first, err.Error())
	}
	for i := range cands {
		cands[i].Assessment = a.eval.Assess(cands[i].Text, cands[i].Confidence, nil)
	}
	return Select(cands, th.Low, first)
}

// Select keeps the candidate with the highest total score. If its quality
// is below low it is replaced by the minimal template for its primary term
// (or fallbackPrimary).
func Select(cands []Candidate, low float64, fallbackPrimary string) Result {
	if len(cands) == 0 {
		return Result{Candidate: minimalCandidate(fallbackPrimary, Candidate{}), Minimal: true, Reason: "no candidates"}
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Assessment.Total > best.Assessment.Total {
			best = c
		}
	}
	res := Result{Candidate: best, Candidates: len(cands)}
	if best.Assessment.Quality < low {
		primary := best.Primary
		if primary == "" {
			primary = fallbackPrimary
		}
		res.Candidate = minimalCandidate(primary, best)
		res.Minimal = true
		res.Reason = "below low confidence"
	}
	return res
}

func minimalCandidate(primary string, from Candidate) Candidate {
	return Candidate{
		Text:       MinimalTemplate(primary),
		Confidence: from.Confidence,
		Type:       grammar.TypeGeneral,
		Primary:    primary,
		Support:    []string{},
		Source:     SourceMinimal,
		Assessment: from.Assessment,
	}
}

func degraded(primary, reason string) Result {
	return Result{
		Candidate: minimalCandidate(primary, Candidate{}),
		Minimal:   true,
		Degraded:  true,
		Reason:    reason,
	}
}

// #endregion

// #region candidates

func (a *Assembler) candidates(ctx context.Context, an analysis.UtteranceAnalysis, st strategy.Strategy, userID string, keywords []string, th quality.Thresholds) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	switch st {
	case strategy.NgramContinuation:
		if an.Predicted.NextWord != "" && an.Predicted.Confidence > th.Low {
			if c, ok := a.kneserNey(ctx, an, keywords, th); ok {
				return []Candidate{c}, nil
			}
		}
		return []Candidate{lowConfidence(an, keywords)}, nil

	case strategy.CooccurrenceExpansion:
		kws := a.filterByQuality(ctx, userID, keywords)
		related := a.relatedFor(ctx, an, userID, kws)
		entries := a.semanticContext(ctx, kws, related)
		return a.structural(ctx, an, userID, kws, entries, meanStrength(entries), th)

	case strategy.PersonalAdaptation:
		entries := a.semanticContext(ctx, keywords, relatedFromAnalysis(an))
		known := a.userKeywords(ctx, userID)
		boost := 1 + an.Adaptation.Score
		entries = reweight(entries, func(e ContextEntry) float64 {
			if known[e.Term] {
				return boost
			}
			return 1
		})
		return a.structural(ctx, an, userID, keywords, entries, an.Adaptation.Score, th)

	case strategy.VocabularyOptimization:
		entries := a.semanticContext(ctx, keywords, relatedFromAnalysis(an))
		optimized := make(map[string]bool, len(an.OptimizedVocabulary))
		for _, w := range an.OptimizedVocabulary {
			optimized[w] = true
		}
		entries = reweight(entries, func(e ContextEntry) float64 {
			if optimized[e.Term] {
				return 1.5
			}
			return 1
		})
		signal := math.Min(float64(len(an.OptimizedVocabulary))/5, 1)
		return a.structural(ctx, an, userID, keywords, entries, signal, th)

	case strategy.QualityFocused:
		entries := a.semanticContext(ctx, keywords, relatedFromAnalysis(an))
		entries = reweight(entries, func(e ContextEntry) float64 {
			return 0.5 + analysis.StatisticalQuality(e.Term)
		})
		return a.structural(ctx, an, userID, keywords, entries, an.Quality.Confidence, th)

	default:
		return nil, fmt.Errorf("candidates: unknown strategy %q", st)
	}
}

// structural runs grammar induction over entries and phrases the result.
// It returns the induced candidate and, when it differs, one built from the
// strongest-relation fallback skeleton.
func (a *Assembler) structural(ctx context.Context, an analysis.UtteranceAnalysis, userID string, keywords []string, entries []ContextEntry, signal float64, th quality.Thresholds) ([]Candidate, error) {
	rels := toRelations(entries)
	sk := a.grammar.Generate(ctx, userID, keywords, rels)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("structural: %w", err)
	}

	out := []Candidate{a.fromSkeleton(an.EnhancedTerms, sk, entries, signal, th, SourceStructural)}
	if alt := grammar.Fallback(rels); alt.HasPrimary() && sk.Structure != grammar.StructureFallback {
		out = append(out, a.fromSkeleton(an.EnhancedTerms, alt, entries, signal, th, SourceSkeletonAlt))
	}
	return out, nil
}

func (a *Assembler) fromSkeleton(enhanced []string, sk grammar.Skeleton, entries []ContextEntry, signal float64, th quality.Thresholds, source string) Candidate {
	tokens := ResponseTokens(enhanced, sk, entries)
	conf := clamp01(0.5*sk.Confidence + 0.5*signal)
	c := Candidate{
		Text:       Phrase(tokens, BandFor(conf, th), sk.Type),
		Confidence: conf,
		Type:       sk.Type,
		Support:    []string{},
		Source:     source,
	}
	if len(tokens) > 0 {
		c.Primary = tokens[0]
		c.Support = tokens[1:]
	}
	return c
}

// kneserNey ranks continuations of the predicted next word (and of the last
// keyword) and phrases the best three. ok=false when there is no data.
func (a *Assembler) kneserNey(ctx context.Context, an analysis.UtteranceAnalysis, keywords []string, th quality.Thresholds) (Candidate, bool) {
	last := ""
	if len(keywords) > 0 {
		last = keywords[len(keywords)-1]
	}
	counts, err := a.src.GetNgramCounts(ctx, last, an.Predicted.NextWord)
	if err != nil {
		a.log.Warn("ngram counts unavailable", "err", err)
		return Candidate{}, false
	}
	if len(counts) == 0 {
		return Candidate{}, false
	}
	words := make([]string, 0, len(counts))
	for _, c := range counts {
		words = append(words, c.Word)
	}
	cont, total, err := a.src.GetContinuationCounts(ctx, words)
	if err != nil {
		a.log.Warn("continuation counts unavailable", "err", err)
		cont, total = nil, 0
	}

	ranked := NewKneserNey(a.cfg.Discount, counts, cont, total).Rank()
	var tokens []string
	for _, s := range ranked {
		if analysis.IsNoise(s.Word) {
			continue
		}
		tokens = append(tokens, s.Word)
		if len(tokens) == 3 {
			break
		}
	}
	if len(tokens) == 0 {
		return Candidate{}, false
	}
	conf := clamp01(0.5*an.Predicted.Confidence + 0.5*ranked[0].Probability)
	return Candidate{
		Text:       Phrase(tokens, BandFor(conf, th), grammar.TypeGeneral),
		Confidence: conf,
		Type:       grammar.TypeGeneral,
		Primary:    tokens[0],
		Support:    tokens[1:],
		Source:     SourceKneserNey,
	}, true
}

func lowConfidence(an analysis.UtteranceAnalysis, keywords []string) Candidate {
	primary := an.Predicted.NextWord
	if len(keywords) > 0 {
		primary = keywords[0]
	}
	text := HoldingPhrase
	if primary != "" {
		text = primary + "の続きについて、もう少し聞かせてください。"
	}
	return Candidate{
		Text:       text,
		Confidence: clamp01(an.Predicted.Confidence),
		Type:       grammar.TypeGeneral,
		Primary:    primary,
		Support:    []string{},
		Source:     SourceLowConfidence,
	}
}

// #endregion

// #region context-helpers

// semanticContext seeds the keywords at full strength ahead of the related
// terms so they rank first, then builds and re-ranks the context.
func (a *Assembler) semanticContext(ctx context.Context, keywords []string, related []analysis.RelatedTerm) []ContextEntry {
	seeded := make([]analysis.RelatedTerm, 0, len(keywords)+len(related))
	for _, kw := range keywords {
		seeded = append(seeded, analysis.RelatedTerm{Term: kw, Strength: 1, Count: 1})
	}
	seeded = append(seeded, related...)
	entries := BuildSemanticContext(keywords, seeded, a.cfg.ContextLimit)
	return Rerank(ctx, a.hook, keywords, entries)
}

// filterByQuality keeps keywords whose statistical quality reaches the
// median quality of the user's own vocabulary. Falls back to all keywords
// when none pass.
func (a *Assembler) filterByQuality(ctx context.Context, userID string, keywords []string) []string {
	graph, err := a.src.GetUserRelations(ctx, userID)
	if err != nil {
		a.log.Warn("vocabulary median unavailable", "user_id", userID, "err", err)
	}
	scores := make([]float64, 0, len(graph))
	for kw := range graph {
		scores = append(scores, analysis.StatisticalQuality(kw))
	}
	median := analysis.Median(scores)

	var out []string
	for _, kw := range keywords {
		if analysis.StatisticalQuality(kw) >= median {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return keywords
	}
	return out
}

// relatedFor merges the analysis co-occurrence with the store's relations
// for each keyword. Store errors are logged and skipped.
func (a *Assembler) relatedFor(ctx context.Context, an analysis.UtteranceAnalysis, userID string, keywords []string) []analysis.RelatedTerm {
	var out []analysis.RelatedTerm
	for _, kw := range keywords {
		out = append(out, an.RelatedFor(kw)...)
		terms, err := a.src.RelatedTerms(ctx, userID, kw)
		if err != nil {
			a.log.Warn("related terms unavailable", "user_id", userID, "keyword", kw, "err", err)
			continue
		}
		out = append(out, terms...)
	}
	return out
}

func (a *Assembler) userKeywords(ctx context.Context, userID string) map[string]bool {
	graph, err := a.src.GetUserRelations(ctx, userID)
	if err != nil {
		a.log.Warn("user graph unavailable", "user_id", userID, "err", err)
		return nil
	}
	out := make(map[string]bool, len(graph))
	for kw, rels := range graph {
		out[kw] = true
		for _, r := range rels {
			out[r.Term] = true
		}
	}
	return out
}

func relatedFromAnalysis(an analysis.UtteranceAnalysis) []analysis.RelatedTerm {
	keys := make([]string, 0, len(an.Cooccurrence))
	for k := range an.Cooccurrence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []analysis.RelatedTerm
	for _, k := range keys {
		out = append(out, an.Cooccurrence[k]...)
	}
	return out
}

func reweight(entries []ContextEntry, factor func(ContextEntry) float64) []ContextEntry {
	out := append([]ContextEntry(nil), entries...)
	for i := range out {
		out[i].Score *= factor(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func meanStrength(entries []ContextEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Strength
	}
	return sum / float64(len(entries))
}

func keywordsOf(an analysis.UtteranceAnalysis) []string {
	if len(an.Tokens) > 0 {
		return analysis.InformativeKeywords(an.Tokens)
	}
	return analysis.ExtractKeywords(analysis.Normalize(an.OriginalText))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// #endregion
