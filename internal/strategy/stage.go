package strategy

import (
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
)

// #region keywords

var greetingKeywords = []string{
	"こんにちは", "こんばんは", "おはよう", "はじめまして", "よろしく",
	"hello", "hi ", "hey",
}

var informationKeywords = []string{
	"教えて", "とは", "何", "なに", "どう", "知りたい", "?", "？",
	"what", "how", "why",
}

var problemKeywords = []string{
	"エラー", "問題", "解決", "困っ", "できない", "直し", "バグ", "失敗",
	"error", "fix", "broken",
}

var confirmationKeywords = []string{
	"ですよね", "ですか", "確認", "合って", "本当", "正しい", "でしょうか",
}

var contextKeywords = []string{
	"さっき", "前の", "続き", "それ", "あれ", "その話",
}

var vocabularyKeywords = []string{
	"意味", "言葉", "単語", "用語", "言い方", "表現",
}

var personalKeywords = []string{
	"私", "僕", "俺", "自分", "わたし", "my ", "i ",
}

var relationshipKeywords = []string{
	"関係", "関連", "違い", "比較", "つながり", "似て",
}

// #endregion

// #region stage-table

type stageRule struct {
	stage    Stage
	keywords []string
	feature  func(a analysis.UtteranceAnalysis) bool
}

// stageRules is in declaration order; ties go to the earlier stage.
var stageRules = []stageRule{
	{StageGreeting, greetingKeywords, nil},
	{StageInformationRequest, informationKeywords, nil},
	{StageProblemSolving, problemKeywords, nil},
	{StageConfirmation, confirmationKeywords, nil},
	{StageContextDriven, contextKeywords, func(a analysis.UtteranceAnalysis) bool {
		return a.Predicted.Confidence > 0.5
	}},
	{StageVocabularyFocused, vocabularyKeywords, func(a analysis.UtteranceAnalysis) bool {
		return len(a.OptimizedVocabulary) >= 3
	}},
	{StagePersonalized, personalKeywords, func(a analysis.UtteranceAnalysis) bool {
		return a.Adaptation.Score > 0.5
	}},
	{StageRelationshipExploration, relationshipKeywords, func(a analysis.UtteranceAnalysis) bool {
		return a.UniqueRelatedTerms() >= 3
	}},
}

// stageMultipliers are hand-set heuristics, not learned. Missing entries are 1.
var stageMultipliers = map[Stage]map[Strategy]float64{
	StageGreeting:                {NgramContinuation: 1.5},
	StageInformationRequest:      {CooccurrenceExpansion: 1.3, QualityFocused: 1.2},
	StageProblemSolving:          {QualityFocused: 1.4, CooccurrenceExpansion: 1.1},
	StageConfirmation:            {NgramContinuation: 1.2},
	StageContextDriven:           {NgramContinuation: 1.4},
	StageVocabularyFocused:       {VocabularyOptimization: 1.5},
	StagePersonalized:            {PersonalAdaptation: 1.5},
	StageRelationshipExploration: {CooccurrenceExpansion: 1.5},
}

// StageMultiplier returns the heuristic weight of s under stage.
func StageMultiplier(stage Stage, s Strategy) float64 {
	if m, ok := stageMultipliers[stage][s]; ok {
		return m
	}
	return 1
}

// #endregion

// #region determine-stage

// DetermineStage scores every stage by keyword hits in the original text plus
// one point for its feature check, and returns the best. No hits means
// StageGeneral.
func DetermineStage(a analysis.UtteranceAnalysis) Stage {
	lower := strings.ToLower(analysis.Normalize(a.OriginalText)) + " "

	best := StageGeneral
	bestScore := 0
	for _, r := range stageRules {
		score := 0
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if r.feature != nil && r.feature(a) {
			score++
		}
		if score > bestScore {
			best, bestScore = r.stage, score
		}
	}
	return best
}

// #endregion
