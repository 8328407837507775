package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region deps

// ArmStore persists bandit arms. Increments are atomic on the store side.
type ArmStore interface {
	LoadStrategyStats(ctx context.Context) (map[string]store.StrategyRecord, error)
	IncrementStrategySelection(ctx context.Context, strategy string, at time.Time) error
	AddStrategyReward(ctx context.Context, strategy string, reward float64) error
}

// StatsSource supplies the aggregate statistics the base scores are built from.
type StatsSource interface {
	GetNgramStats(ctx context.Context) (store.NgramStats, error)
	GetBanditStats(ctx context.Context) (store.BanditStats, error)
	GetUserStats(ctx context.Context, userID string) (store.UserStats, error)
}

// #endregion

// #region constants

const (
	// UnexploredBonus forces every arm to be tried once before exploitation.
	UnexploredBonus = 10.0
	// BaseScoreWeight scales the contextual base score inside the UCB value.
	BaseScoreWeight = 0.1
	// CooccurrenceWeight multiplies co-occurrence richness.
	CooccurrenceWeight = 2.0
	// QualityPredictionWeight multiplies the quality-prediction confidence.
	QualityPredictionWeight = 0.5
)

// #endregion

// #region selector

// Selector is the UCB bandit over All. Arm state lives in memory under mu
// and is written through to the ArmStore.
type Selector struct {
	mu    sync.Mutex
	arms  map[Strategy]*Arm
	store ArmStore    // nil = memory only
	stats StatsSource // nil = cold-start statistics
	now   func() time.Time
	log   *slog.Logger
}

// NewSelector creates a Selector with zeroed arms.
func NewSelector(arms ArmStore, stats StatsSource, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	s := &Selector{
		arms:  make(map[Strategy]*Arm, len(All)),
		store: arms,
		stats: stats,
		now:   time.Now,
		log:   log.With("component", "strategy"),
	}
	for _, st := range All {
		s.arms[st] = &Arm{}
	}
	return s
}

// Load replaces in-memory arms with the persisted ones. Unknown strategy
// names in the store are ignored.
func (s *Selector) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	recs, err := s.store.LoadStrategyStats(ctx)
	if err != nil {
		return fmt.Errorf("load arms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rec := range recs {
		st := Strategy(name)
		if !st.Valid() {
			continue
		}
		s.arms[st] = &Arm{
			Selections:    rec.Selections,
			TotalReward:   rec.TotalReward,
			AverageReward: rec.AverageReward,
			LastUsed:      rec.LastUsed,
		}
	}
	return nil
}

// Snapshot returns a copy of every arm.
func (s *Selector) Snapshot() map[Strategy]Arm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Strategy]Arm, len(s.arms))
	for k, v := range s.arms {
		out[k] = *v
	}
	return out
}

// #endregion

// #region score

type aggregate struct {
	ngram  store.NgramStats
	bandit store.BanditStats
	user   store.UserStats
}

// Score computes the contextual base score of every strategy: a metric built
// from live statistics, times the strategy's normalized historical reward,
// times the stage multiplier. Store failures leave the affected statistics
// at zero.
func (s *Selector) Score(ctx context.Context, a analysis.UtteranceAnalysis, stage Stage, userID string) map[Strategy]float64 {
	agg := s.aggregate(ctx, userID)

	ngramQuality := 0.5*math.Min(float64(agg.ngram.TotalPatterns)/100, 1) + 0.5*agg.ngram.AverageConfidence
	banditUsage := math.Min(float64(agg.bandit.TotalOptimizations)/50, 1)
	candidates := math.Min(float64(len(a.OptimizedVocabulary))/5, 1)

	metrics := map[Strategy]float64{
		NgramContinuation:      a.Predicted.Confidence * ngramQuality,
		CooccurrenceExpansion:  math.Min(float64(a.UniqueRelatedTerms())/10, 1) * CooccurrenceWeight,
		PersonalAdaptation:     a.Adaptation.Score * agg.user.ProfileCompleteness,
		VocabularyOptimization: candidates * banditUsage,
		QualityFocused:         a.Quality.Confidence * QualityPredictionWeight,
	}

	weights := s.rewardWeights()
	out := make(map[Strategy]float64, len(All))
	for _, st := range All {
		out[st] = metrics[st] * weights[st] * StageMultiplier(stage, st)
	}
	return out
}

func (s *Selector) aggregate(ctx context.Context, userID string) aggregate {
	var agg aggregate
	if s.stats == nil {
		return agg
	}
	var g errgroup.Group
	g.Go(func() error {
		v, err := s.stats.GetNgramStats(ctx)
		if err != nil {
			return fmt.Errorf("ngram stats: %w", err)
		}
		agg.ngram = v
		return nil
	})
	g.Go(func() error {
		v, err := s.stats.GetBanditStats(ctx)
		if err != nil {
			return fmt.Errorf("bandit stats: %w", err)
		}
		agg.bandit = v
		return nil
	})
	g.Go(func() error {
		v, err := s.stats.GetUserStats(ctx, userID)
		if err != nil {
			return fmt.Errorf("user stats: %w", err)
		}
		agg.user = v
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("score: partial statistics", "user_id", userID, "err", err)
	}
	return agg
}

// rewardWeights normalizes average rewards to sum to 1; uniform with no
// reward history.
func (s *Selector) rewardWeights() map[Strategy]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, st := range All {
		sum += s.arms[st].AverageReward
	}
	out := make(map[Strategy]float64, len(All))
	for _, st := range All {
		if sum > 0 {
			out[st] = s.arms[st].AverageReward / sum
		} else {
			out[st] = 1 / float64(len(All))
		}
	}
	return out
}

// #endregion

// #region select

// UCB returns averageReward + exploration bonus + 0.1 × base for one arm.
func UCB(arm Arm, totalSelections int, base float64) float64 {
	bonus := UnexploredBonus
	if arm.Selections >= 1 && totalSelections > 0 {
		bonus = 2 * math.Sqrt(math.Log(float64(totalSelections))/float64(arm.Selections))
	}
	return arm.AverageReward + bonus + BaseScoreWeight*base
}

// Select picks the arm with the highest UCB value and counts the selection
// immediately. The average reward only moves in RecordReward. Ties keep the
// earlier strategy in All.
func (s *Selector) Select(ctx context.Context, base map[Strategy]float64) Strategy {
	s.mu.Lock()
	total := 0
	for _, st := range All {
		total += s.arms[st].Selections
	}
	chosen := All[0]
	bestScore := math.Inf(-1)
	for _, st := range All {
		v := UCB(*s.arms[st], total, base[st])
		if v > bestScore {
			chosen, bestScore = st, v
		}
	}
	at := s.now()
	arm := s.arms[chosen]
	arm.Selections++
	arm.LastUsed = at
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.IncrementStrategySelection(ctx, string(chosen), at); err != nil {
			s.log.Warn("persist selection failed", "strategy", chosen, "err", err)
		}
	}
	return chosen
}

// #endregion

// #region record-reward

// RecordReward folds reward (clamped to [0,1]) into the arm's running mean.
// Call once per completed, non-fallback request.
func (s *Selector) RecordReward(ctx context.Context, st Strategy, reward float64) error {
	if !st.Valid() {
		return fmt.Errorf("record reward: unknown strategy %q", st)
	}
	reward = math.Max(0, math.Min(1, reward))

	s.mu.Lock()
	arm := s.arms[st]
	arm.TotalReward += reward
	arm.AverageReward = arm.TotalReward / math.Max(float64(arm.Selections), 1)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AddStrategyReward(ctx, string(st), reward); err != nil {
			return fmt.Errorf("record reward: %w", err)
		}
	}
	return nil
}

// #endregion
