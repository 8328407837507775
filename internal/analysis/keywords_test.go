package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_ScriptRuns(t *testing.T) {
	tokens := Tokenize("Pythonについて？")
	require.Len(t, tokens, 3)
	assert.Equal(t, Token{Surface: "Python", POS: "名詞"}, tokens[0])
	assert.Equal(t, Token{Surface: "について", POS: "助詞"}, tokens[1])
	assert.Equal(t, "記号", tokens[2].POS)
}

func TestNormalize_FoldsWidth(t *testing.T) {
	assert.Equal(t, "Python", Normalize("Ｐｙｔｈｏｎ"))
	assert.Equal(t, "データ", Normalize("ﾃﾞｰﾀ"))
}

func TestIsNoise(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"。", true},
		{"!?", true},
		{"は", true},
		{"です", true},
		{"ライブラリ", false},
		{"Python", false},
		{"ありがとう", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNoise(tt.in))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	assert.Equal(t, []string{"Python"}, ExtractKeywords("Pythonは？"))
	assert.Equal(t, []string{"Python", "データ分析"}, ExtractKeywords("Python と データ分析 と Python"))
	assert.Empty(t, ExtractKeywords("。、！"))
}

func TestStatisticalQuality(t *testing.T) {
	assert.Zero(t, StatisticalQuality(""))
	// mixed scripts score higher than a repeated single character
	assert.Greater(t, StatisticalQuality("データ分析"), StatisticalQuality("ああああ"))
	assert.LessOrEqual(t, StatisticalQuality("Python3データ分析"), 1.0)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, Median(nil))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
}

type fakeLookup struct {
	related map[string][]RelatedTerm
	err     error
}

func (f fakeLookup) RelatedTerms(_ context.Context, _, keyword string) ([]RelatedTerm, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.related[keyword], nil
}

func (f fakeLookup) PredictNext(_ context.Context, word string) (string, float64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	if word == "Python" {
		return "ライブラリ", 0.6, nil
	}
	return "", 0, nil
}

func TestLocalAnalyzer_Empty(t *testing.T) {
	_, err := NewLocalAnalyzer(nil).Analyze(context.Background(), "u1", "   ")
	assert.True(t, errors.Is(err, ErrEmptyInput))
}

func TestLocalAnalyzer_WithLookup(t *testing.T) {
	lookup := fakeLookup{related: map[string][]RelatedTerm{
		"Python": {{Term: "ライブラリ", Strength: 0.8, Count: 6}},
	}}
	a, err := NewLocalAnalyzer(lookup).Analyze(context.Background(), "u1", "Pythonは？")
	require.NoError(t, err)
	assert.True(t, a.Success)
	assert.Len(t, a.RelatedFor("Python"), 1)
	assert.Equal(t, "ライブラリ", a.Predicted.NextWord)
	assert.Equal(t, "returning", a.Adaptation.UserCategory)
	assert.InDelta(t, 1.0, a.Adaptation.Score, 1e-9)
}

func TestLocalAnalyzer_LookupErrorsDegrade(t *testing.T) {
	a, err := NewLocalAnalyzer(fakeLookup{err: errors.New("disk gone")}).Analyze(context.Background(), "u1", "Pythonは？")
	require.NoError(t, err)
	assert.Empty(t, a.Cooccurrence)
	assert.Zero(t, a.Predicted.Confidence)
	assert.Contains(t, a.Quality.Improvements, "more_context")
}
