package analysis

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// #region script-class

type scriptClass int

const (
	classOther scriptClass = iota
	classHiragana
	classKatakana
	classKanji
	classLatin
	classSpace
)

func classify(r rune) scriptClass {
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case unicode.Is(unicode.Hiragana, r):
		return classHiragana
	case unicode.Is(unicode.Katakana, r) || r == 'ー':
		return classKatakana
	case unicode.Is(unicode.Han, r) || r == '々':
		return classKanji
	case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '+' || r == '#':
		return classLatin
	default:
		return classOther
	}
}

// #endregion script-class

// #region particles

var particles = map[string]bool{
	"は": true, "が": true, "を": true, "に": true, "で": true, "と": true,
	"の": true, "へ": true, "も": true, "や": true, "から": true, "まで": true,
	"より": true, "について": true, "に関して": true, "です": true, "ます": true,
	"か": true, "ね": true, "よ": true, "な": true, "って": true, "とは": true,
}

var verbEndings = []string{"する", "します", "できる", "ます", "る", "う", "す", "く", "た", "て"}

// #endregion particles

// #region normalize

// Normalize applies NFKC and folds full-width ASCII / half-width katakana to
// their canonical widths so the same keyword always maps to one graph node.
func Normalize(text string) string {
	return strings.TrimSpace(width.Fold.String(norm.NFKC.String(text)))
}

// #endregion normalize

// #region tokenize

// Tokenize splits text into script runs and assigns a coarse POS tag.
// It is a stand-in for a morphological analyzer, good enough to pull
// keywords out of mixed Japanese/Latin input.
func Tokenize(text string) []Token {
	text = Normalize(text)
	var tokens []Token
	var b strings.Builder
	current := classSpace

	flush := func() {
		if b.Len() == 0 {
			return
		}
		surface := b.String()
		b.Reset()
		tokens = append(tokens, Token{Surface: surface, POS: guessPOS(surface, current)})
	}

	for _, r := range text {
		c := runGroup(classify(r))
		if c != current || c == classOther {
			flush()
			current = c
		}
		if c == classSpace {
			continue
		}
		b.WriteRune(r)
	}
	flush()
	return tokens
}

// runGroup merges the noun-bearing scripts so compounds such as
// "データ分析" or "Python3" stay one token.
func runGroup(c scriptClass) scriptClass {
	switch c {
	case classKanji, classKatakana, classLatin:
		return classKanji
	}
	return c
}

func guessPOS(surface string, c scriptClass) string {
	switch c {
	case classKanji:
		return "名詞"
	case classHiragana:
		if particles[surface] {
			return "助詞"
		}
		for _, e := range verbEndings {
			if strings.HasSuffix(surface, e) {
				return "動詞"
			}
		}
		return "助動詞"
	default:
		return "記号"
	}
}

// #endregion tokenize

// #region noise

// IsNoise reports whether a token carries no content: punctuation/symbols
// only, or a bare kana fragment of at most two characters.
func IsNoise(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	allSymbol := true
	allHiragana := true
	for _, r := range s {
		c := classify(r)
		if c != classOther && c != classSpace {
			allSymbol = false
		}
		if c != classHiragana {
			allHiragana = false
		}
	}
	if allSymbol {
		return true
	}
	return allHiragana && utf8.RuneCountInString(s) <= 2
}

// #endregion noise

// #region keywords

// InformativeKeywords returns content-bearing token surfaces in input order,
// excluding particles, auxiliaries, symbols and noise fragments.
func InformativeKeywords(tokens []Token) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokens {
		switch t.POS {
		case "助詞", "助動詞", "記号":
			continue
		}
		if IsNoise(t.Surface) || particles[t.Surface] || seen[t.Surface] {
			continue
		}
		seen[t.Surface] = true
		out = append(out, t.Surface)
	}
	return out
}

// ExtractKeywords tokenizes text and returns its informative keywords.
func ExtractKeywords(text string) []string {
	return InformativeKeywords(Tokenize(text))
}

// #endregion keywords

// #region statistical-quality

// StatisticalQuality scores how informative a term is from its own
// characters: 0.4 × script-class diversity + 0.6 × normalised Shannon entropy.
func StatisticalQuality(term string) float64 {
	runes := []rune(term)
	if len(runes) == 0 {
		return 0
	}
	classes := make(map[scriptClass]bool)
	freq := make(map[rune]int)
	for _, r := range runes {
		if c := classify(r); c != classSpace {
			classes[c] = true
		}
		freq[r]++
	}
	diversity := float64(len(classes)) / 4.0
	if diversity > 1 {
		diversity = 1
	}

	var entropy float64
	n := float64(len(runes))
	for _, c := range freq {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(math.Max(n, 2))
	info := entropy / maxEntropy
	if info > 1 {
		info = 1
	}
	return 0.4*diversity + 0.6*info
}

// Median returns the median of values, 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// #endregion statistical-quality
