package assembler

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// #region entry

// ContextEntry is one merged term of the semantic context.
type ContextEntry struct {
	Term      string
	Strength  float64
	Count     int
	Relevance float64
	Score     float64
}

// SemanticHook optionally re-scores a term against the input keywords.
// ok=false means no opinion; the statistical score is kept.
type SemanticHook interface {
	Similarity(ctx context.Context, keywords []string, term string) (score float64, ok bool)
}

// #endregion

// #region build

// BuildSemanticContext merges related terms by identity (strength as a
// running average, count as a sum), scores each as 0.7 × strength + 0.3 ×
// relevance to the keywords, and returns the top limit entries.
// A zero strength with a positive count is read as count/(count+1).
func BuildSemanticContext(keywords []string, related []analysis.RelatedTerm, limit int) []ContextEntry {
	index := make(map[string]int)
	seen := make(map[string]int) // observations per term, for the running mean
	var entries []ContextEntry
	for _, r := range related {
		term := strings.TrimSpace(r.Term)
		if term == "" || analysis.IsNoise(term) {
			continue
		}
		strength := r.Strength
		if strength == 0 && r.Count > 0 {
			strength = float64(r.Count) / float64(r.Count+1)
		}
		i, ok := index[term]
		if !ok {
			index[term] = len(entries)
			seen[term] = 1
			entries = append(entries, ContextEntry{Term: term, Strength: strength, Count: r.Count})
			continue
		}
		seen[term]++
		e := &entries[i]
		e.Strength += (strength - e.Strength) / float64(seen[term])
		e.Count += r.Count
	}

	for i := range entries {
		entries[i].Relevance = Relevance(entries[i].Term, keywords)
		entries[i].Score = 0.7*entries[i].Strength + 0.3*entries[i].Relevance
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Rerank blends the top entries with the hook's semantic score
// (0.6 × statistical + 0.4 × semantic) and re-sorts them.
func Rerank(ctx context.Context, hook SemanticHook, keywords []string, entries []ContextEntry) []ContextEntry {
	if hook == nil || len(entries) == 0 {
		return entries
	}
	out := append([]ContextEntry(nil), entries...)
	for i := range out {
		if sim, ok := hook.Similarity(ctx, keywords, out[i].Term); ok {
			out[i].Score = 0.6*out[i].Score + 0.4*sim
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// #endregion

// #region relevance

// Relevance is 1 when term and some keyword contain one another, otherwise
// the best normalized Levenshtein similarity to any keyword.
func Relevance(term string, keywords []string) float64 {
	best := 0.0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(term, kw) || strings.Contains(kw, term) {
			return 1
		}
		if s := similarity(term, kw); s > best {
			best = s
		}
	}
	return best
}

func similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// Levenshtein returns the rune-level edit distance between a and b.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// #endregion

// toRelations converts context entries to grammar input, using the blended
// score as strength.
func toRelations(entries []ContextEntry) []analysis.RelatedTerm {
	out := make([]analysis.RelatedTerm, len(entries))
	for i, e := range entries {
		out[i] = analysis.RelatedTerm{Term: e.Term, Strength: e.Score, Count: e.Count}
	}
	return out
}
