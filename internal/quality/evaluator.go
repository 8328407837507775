package quality

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region scorer

// Scorer assigns a quality score in [0,1] to a generated sentence.
type Scorer interface {
	Score(sentence string, prior float64) float64
}

// EchoScorer returns the generator's own confidence, clamped to [0,1].
// It is the placeholder until a real sentence-quality model exists.
type EchoScorer struct{}

// Score implements Scorer.
func (EchoScorer) Score(_ string, prior float64) float64 {
	return clamp01(prior)
}

// #endregion

// #region source

// Source is the slice of the learning store the evaluator reads.
type Source interface {
	GetUserRelations(ctx context.Context, userID string) (store.UserRelations, error)
	GetUserStats(ctx context.Context, userID string) (store.UserStats, error)
	GetQualityStats(ctx context.Context) (store.QualityStats, error)
}

// DefaultsStore persists the minimal threshold set so operators can tune it
// in place.
type DefaultsStore interface {
	LoadSystemData(ctx context.Context, key string, dest any) (bool, error)
	SaveSystemData(ctx context.Context, key string, value any) error
}

const minimalThresholdsKey = "quality.minimal_thresholds"

// #endregion

// #region evaluator

// Evaluator scores candidates, computes adaptive thresholds and grades
// against the live score distribution. Safe for concurrent use.
type Evaluator struct {
	src     Source
	scorer  Scorer
	cfg     Config
	minimal Thresholds
	group   singleflight.Group
	log     *slog.Logger
}

// NewEvaluator creates an Evaluator. A nil scorer means EchoScorer.
func NewEvaluator(src Source, scorer Scorer, cfg Config, log *slog.Logger) *Evaluator {
	if scorer == nil {
		scorer = EchoScorer{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{
		src:     src,
		scorer:  scorer,
		cfg:     cfg,
		minimal: MinimalThresholds(),
		log:     log.With("component", "quality"),
	}
}

// LoadDefaults reads the persisted minimal threshold set, seeding it on
// first use.
func (e *Evaluator) LoadDefaults(ctx context.Context, ds DefaultsStore) error {
	var t Thresholds
	ok, err := ds.LoadSystemData(ctx, minimalThresholdsKey, &t)
	if err != nil {
		return fmt.Errorf("load minimal thresholds: %w", err)
	}
	if !ok {
		if err := ds.SaveSystemData(ctx, minimalThresholdsKey, e.minimal); err != nil {
			return fmt.Errorf("seed minimal thresholds: %w", err)
		}
		return nil
	}
	if t.High > t.Medium && t.Medium > t.Low {
		e.minimal = t
	}
	return nil
}

// Minimal returns the threshold set used when statistics are unavailable.
func (e *Evaluator) Minimal() Thresholds {
	return e.minimal
}

// #endregion

// #region score

// Score runs the pluggable scorer.
func (e *Evaluator) Score(sentence string, prior float64) float64 {
	return clamp01(e.scorer.Score(sentence, prior))
}

// Assess scores sentence and combines it with its structural metrics.
func (e *Evaluator) Assess(sentence string, prior float64, tokens []analysis.Token) Assessment {
	return Combine(e.Score(sentence, prior), MeasureSentence(sentence, tokens))
}

// #endregion

// #region thresholds

// Thresholds returns the user's adaptive confidence bands. Concurrent calls
// for the same user share one computation. Store failures yield Minimal().
func (e *Evaluator) Thresholds(ctx context.Context, userID string) Thresholds {
	v, err, _ := e.group.Do(userID, func() (any, error) {
		return e.computeThresholds(ctx, userID)
	})
	if err != nil {
		e.log.Warn("thresholds: using minimal set", "user_id", userID, "err", err)
		return e.minimal
	}
	t, ok := v.(Thresholds)
	if !ok {
		return e.minimal
	}
	return t
}

func (e *Evaluator) computeThresholds(ctx context.Context, userID string) (Thresholds, error) {
	if e.src == nil {
		return Thresholds{}, fmt.Errorf("no statistics source")
	}
	var (
		rels  store.UserRelations
		stats store.UserStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rels, err = e.src.GetUserRelations(gctx, userID)
		if err != nil {
			return fmt.Errorf("user relations: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		stats, err = e.src.GetUserStats(gctx, userID)
		if err != nil {
			return fmt.Errorf("user stats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Thresholds{}, err
	}
	return ComputeThresholds(ComputePerformanceStats(rels), ComputeMetrics(rels), stats.TotalInteractions, e.cfg), nil
}

// PerformanceStats reads the user's graph and classifies it.
func (e *Evaluator) PerformanceStats(ctx context.Context, userID string) (PerformanceStats, error) {
	rels, err := e.src.GetUserRelations(ctx, userID)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("performance stats: %w", err)
	}
	return ComputePerformanceStats(rels), nil
}

// QualityMetrics reads the user's graph and summarises it.
func (e *Evaluator) QualityMetrics(ctx context.Context, userID string) (Metrics, error) {
	rels, err := e.src.GetUserRelations(ctx, userID)
	if err != nil {
		return Metrics{}, fmt.Errorf("quality metrics: %w", err)
	}
	return ComputeMetrics(rels), nil
}

// #endregion

// #region grade

// Grade buckets score against the recorded quality distribution, or the
// configured cold distribution when there is no history or it cannot be read.
func (e *Evaluator) Grade(ctx context.Context, score float64) Grade {
	mean, std := e.cfg.ColdMean, e.cfg.ColdStdDev
	if e.src != nil {
		stats, err := e.src.GetQualityStats(ctx)
		if err != nil {
			e.log.Warn("grade: using cold distribution", "err", err)
		} else if stats.Samples > 0 {
			mean, std = stats.Average, stats.StdDev
		}
	}
	return GradeAgainst(score, mean, std)
}

// #endregion

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
