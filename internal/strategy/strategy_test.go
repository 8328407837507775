package strategy

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

func TestDetermineStage(t *testing.T) {
	tests := []struct {
		name string
		text string
		mod  func(*analysis.UtteranceAnalysis)
		want Stage
	}{
		{"greeting", "こんにちは", nil, StageGreeting},
		{"information", "Pythonとは何ですか？", nil, StageInformationRequest},
		{"problem", "ビルドでエラーが出て困っています", nil, StageProblemSolving},
		{"confirmation", "これで正しい確認になりますか", nil, StageConfirmation},
		{"vocabulary", "この用語の意味", nil, StageVocabularyFocused},
		{"relationship", "GoとRustの違いと関係", nil, StageRelationshipExploration},
		{"personalized by feature", "Python", func(a *analysis.UtteranceAnalysis) {
			a.Adaptation.Score = 0.9
		}, StagePersonalized},
		{"context by feature", "Python", func(a *analysis.UtteranceAnalysis) {
			a.Predicted.Confidence = 0.8
		}, StageContextDriven},
		{"general", "Python", nil, StageGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analysis.Default(tt.text)
			if tt.mod != nil {
				tt.mod(&a)
			}
			if got := DetermineStage(a); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStageMultiplier(t *testing.T) {
	if got := StageMultiplier(StageGreeting, NgramContinuation); got != 1.5 {
		t.Fatalf("greeting ngram: got %v", got)
	}
	if got := StageMultiplier(StageGreeting, QualityFocused); got != 1 {
		t.Fatalf("greeting quality: got %v", got)
	}
	if got := StageMultiplier(StageGeneral, CooccurrenceExpansion); got != 1 {
		t.Fatalf("general: got %v", got)
	}
}

func TestExplorationGuarantee(t *testing.T) {
	s := NewSelector(nil, nil, nil)
	ctx := context.Background()
	base := map[Strategy]float64{}
	for _, st := range All {
		base[st] = 0.3
	}
	for i, want := range All {
		if got := s.Select(ctx, base); got != want {
			t.Fatalf("call %d: got %q, want %q", i, got, want)
		}
	}
	for st, arm := range s.Snapshot() {
		if arm.Selections != 1 {
			t.Fatalf("%s: selections %d", st, arm.Selections)
		}
	}
}

func TestUCB(t *testing.T) {
	if got := UCB(Arm{}, 0, 0.5); got != UnexploredBonus+0.05 {
		t.Fatalf("unexplored: got %v", got)
	}
	arm := Arm{Selections: 2, AverageReward: 0.5}
	want := 0.5 + 2*math.Sqrt(math.Log(8)/2) + 0.1
	if got := UCB(arm, 8, 1); math.Abs(got-want) > 1e-12 {
		t.Fatalf("explored: got %v, want %v", got, want)
	}
}

func TestRewardRunningMean(t *testing.T) {
	s := NewSelector(nil, nil, nil)
	ctx := context.Background()
	for _, r := range []float64{0.9, 0.6, 0.3} {
		s.mu.Lock()
		s.arms[QualityFocused].Selections++
		s.mu.Unlock()
		if err := s.RecordReward(ctx, QualityFocused, r); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.Snapshot()[QualityFocused].AverageReward; got != 0.6 {
		t.Fatalf("average: got %v, want 0.6", got)
	}
}

func TestRecordRewardRejectsUnknown(t *testing.T) {
	s := NewSelector(nil, nil, nil)
	if err := s.RecordReward(context.Background(), Strategy("nope"), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestConcurrentRewardsDoNotLoseUpdates(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "arms.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s := NewSelector(st, st, nil)
	ctx := context.Background()
	base := map[Strategy]float64{}

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chosen := s.Select(ctx, base)
			if err := s.RecordReward(ctx, chosen, 0.5); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	total := 0
	var reward float64
	for _, arm := range s.Snapshot() {
		total += arm.Selections
		reward += arm.TotalReward
	}
	if total != n {
		t.Fatalf("in-memory selections: got %d, want %d", total, n)
	}
	if math.Abs(reward-0.5*n) > 1e-9 {
		t.Fatalf("in-memory reward: got %v", reward)
	}

	// The persisted arms must agree with memory.
	reloaded := NewSelector(st, nil, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	for k, arm := range s.Snapshot() {
		got := reloaded.Snapshot()[k]
		if got.Selections != arm.Selections || math.Abs(got.TotalReward-arm.TotalReward) > 1e-9 {
			t.Fatalf("%s: persisted %+v, memory %+v", k, got, arm)
		}
	}
}

type fakeStats struct {
	ngram store.NgramStats
	user  store.UserStats
	err   error
}

func (f fakeStats) GetNgramStats(context.Context) (store.NgramStats, error) { return f.ngram, f.err }
func (f fakeStats) GetBanditStats(context.Context) (store.BanditStats, error) {
	return store.BanditStats{TotalOptimizations: 50}, f.err
}
func (f fakeStats) GetUserStats(context.Context, string) (store.UserStats, error) {
	return f.user, f.err
}

func TestScore(t *testing.T) {
	ctx := context.Background()
	a := analysis.Default("Python")
	a.Cooccurrence = map[string][]analysis.RelatedTerm{
		"Python": {{Term: "ライブラリ"}, {Term: "データ分析"}},
	}
	a.Quality.Confidence = 0.4

	t.Run("cold", func(t *testing.T) {
		s := NewSelector(nil, nil, nil)
		got := s.Score(ctx, a, StageGeneral, "u")
		if got[NgramContinuation] != 0 {
			t.Errorf("ngram: got %v", got[NgramContinuation])
		}
		// 2 unique / 10 × 2.0 × uniform 0.2
		if math.Abs(got[CooccurrenceExpansion]-0.08) > 1e-9 {
			t.Errorf("cooccurrence: got %v", got[CooccurrenceExpansion])
		}
		if math.Abs(got[QualityFocused]-0.04) > 1e-9 {
			t.Errorf("quality: got %v", got[QualityFocused])
		}
	})

	t.Run("stage multiplier", func(t *testing.T) {
		s := NewSelector(nil, nil, nil)
		got := s.Score(ctx, a, StageRelationshipExploration, "u")
		if math.Abs(got[CooccurrenceExpansion]-0.12) > 1e-9 {
			t.Errorf("cooccurrence: got %v", got[CooccurrenceExpansion])
		}
	})

	t.Run("with statistics", func(t *testing.T) {
		s := NewSelector(nil, fakeStats{
			ngram: store.NgramStats{TotalPatterns: 100, AverageConfidence: 1},
			user:  store.UserStats{ProfileCompleteness: 0.5},
		}, nil)
		b := a
		b.Predicted.Confidence = 0.5
		b.Adaptation.Score = 0.8
		b.OptimizedVocabulary = []string{"a", "b", "c", "d", "e"}
		got := s.Score(ctx, b, StageGeneral, "u")
		if math.Abs(got[NgramContinuation]-0.1) > 1e-9 {
			t.Errorf("ngram: got %v", got[NgramContinuation])
		}
		if math.Abs(got[PersonalAdaptation]-0.08) > 1e-9 {
			t.Errorf("personal: got %v", got[PersonalAdaptation])
		}
		if math.Abs(got[VocabularyOptimization]-0.2) > 1e-9 {
			t.Errorf("vocabulary: got %v", got[VocabularyOptimization])
		}
	})

	t.Run("statistics errors degrade to zero", func(t *testing.T) {
		s := NewSelector(nil, fakeStats{err: errors.New("locked")}, nil)
		got := s.Score(ctx, a, StageGeneral, "u")
		if got[PersonalAdaptation] != 0 {
			t.Errorf("personal: got %v", got[PersonalAdaptation])
		}
	})
}

func TestSelectWritesThrough(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "arms.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	s := NewSelector(st, st, nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	chosen := s.Select(context.Background(), nil)

	recs, err := st.LoadStrategyStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := recs[string(chosen)]
	if !ok || rec.Selections != 1 || !rec.LastUsed.Equal(fixed) {
		t.Fatalf("persisted: %+v", rec)
	}
}

func TestSelectLeavesAverageRewardAlone(t *testing.T) {
	s := NewSelector(nil, nil, nil)
	s.mu.Lock()
	for _, st := range All {
		*s.arms[st] = Arm{Selections: 50}
	}
	*s.arms[QualityFocused] = Arm{Selections: 1, TotalReward: 0.8, AverageReward: 0.8}
	s.mu.Unlock()

	if got := s.Select(context.Background(), nil); got != QualityFocused {
		t.Fatalf("chose %q", got)
	}
	arm := s.Snapshot()[QualityFocused]
	if arm.Selections != 2 || arm.AverageReward != 0.8 {
		t.Fatalf("after select: %+v", arm)
	}
}
