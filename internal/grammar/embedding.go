package grammar

import (
	"hash/fnv"
	"math"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// EmbeddingDim is the number of hash buckets in a term embedding.
const EmbeddingDim = 10

// Embedding is a hashed bag-of-terms vector. It is a positional proxy,
// not a trained embedding.
type Embedding [EmbeddingDim]float64

// Embed hashes each term into a bucket weighted by its strength and
// L2-normalizes the result. An all-zero input stays zero.
func Embed(terms []analysis.RelatedTerm) Embedding {
	var v Embedding
	for _, t := range terms {
		v[bucket(t.Term)] += t.Strength
	}
	return v.normalized()
}

func embedPhrases(rules []PhraseRule) Embedding {
	var v Embedding
	for _, r := range rules {
		v[bucket(r.Head)] += r.Confidence
	}
	return v.normalized()
}

func bucket(term string) int {
	h := fnv.New32a()
	h.Write([]byte(term))
	return int(h.Sum32() % EmbeddingDim)
}

func (v Embedding) normalized() Embedding {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] /= n
	}
	return v
}

// Cosine returns the cosine similarity of a and b, 0 if either is zero.
func Cosine(a, b Embedding) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
