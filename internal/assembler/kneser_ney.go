package assembler

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// DefaultDiscount is the absolute discount D.
const DefaultDiscount = 0.75

// Smoother estimates P(word | context).
type Smoother interface {
	Probability(context, word string) float64
}

// KneserNey is an interpolated bigram Kneser-Ney estimator over a fixed set
// of counts.
type KneserNey struct {
	discount     float64
	counts       map[string]map[string]int
	contextTotal map[string]int
	continuation map[string]int // distinct left contexts per word
	totalTypes   int            // distinct bigram types
}

// NewKneserNey builds the estimator. continuation and totalTypes are the
// global continuation statistics.
func NewKneserNey(discount float64, counts []store.NgramCount, continuation map[string]int, totalTypes int) *KneserNey {
	k := &KneserNey{
		discount:     discount,
		counts:       make(map[string]map[string]int),
		contextTotal: make(map[string]int),
		continuation: continuation,
		totalTypes:   totalTypes,
	}
	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		if k.counts[c.Context] == nil {
			k.counts[c.Context] = make(map[string]int)
		}
		k.counts[c.Context][c.Word] += c.Count
		k.contextTotal[c.Context] += c.Count
	}
	return k
}

// ContinuationProbability is wordTypeCount(w) / totalWordTypes.
func (k *KneserNey) ContinuationProbability(word string) float64 {
	if k.totalTypes <= 0 {
		return 0
	}
	return float64(k.continuation[word]) / float64(k.totalTypes)
}

// Probability returns max(c−D,0)/C + D·unique(c)/C · P_cont(w). An unseen
// context backs off entirely to the continuation probability.
func (k *KneserNey) Probability(context, word string) float64 {
	total := k.contextTotal[context]
	pc := k.ContinuationProbability(word)
	if total == 0 {
		return pc
	}
	c := float64(k.counts[context][word])
	n := float64(total)
	lambda := k.discount * float64(len(k.counts[context])) / n
	return math.Max(c-k.discount, 0)/n + lambda*pc
}

// Scored is a word with its smoothed probability.
type Scored struct {
	Word        string
	Context     string
	Probability float64
}

// Rank scores every observed continuation under its own context and returns
// them best first. A word seen under several contexts keeps its best score.
func (k *KneserNey) Rank() []Scored {
	best := make(map[string]Scored)
	for ctxWord, words := range k.counts {
		for w := range words {
			p := k.Probability(ctxWord, w)
			if cur, ok := best[w]; !ok || p > cur.Probability || (p == cur.Probability && ctxWord < cur.Context) {
				best[w] = Scored{Word: w, Context: ctxWord, Probability: p}
			}
		}
	}
	out := make([]Scored, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Word < out[j].Word
	})
	return out
}
