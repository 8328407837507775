package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/assembler"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/strategy"
)

// #endregion

// #region constants

const (
	fallbackConfidence = 0.1
	errorConfidence    = 0.01
	systemErrorReply   = "申し訳ありません。システムエラーが発生しました。しばらくしてからもう一度お試しください。"
)

// #endregion

// #region orchestrator-struct

// Deps are the collaborators the pipeline sequences. Quality, Memory,
// Metrics and Audit are optional.
type Deps struct {
	Analyzer  analysis.Analyzer
	Selector  Selector
	Generator Generator
	Grader    Grader
	Quality   QualityRecorder
	Memory    *PairMemory
	Learners  []Learner
	Metrics   Recorder
	Audit     Auditor
	Log       *slog.Logger
}

// Orchestrator runs one request through
// Analyze → Stage → Select → Generate → Evaluate → Improve → Learn → History,
// or through the fallback path when analysis or the deadline fails.
type Orchestrator struct {
	analyzer  analysis.Analyzer
	selector  Selector
	generator Generator
	grader    Grader
	quality   QualityRecorder
	memory    *PairMemory
	metrics   Recorder
	audit     Auditor
	learn     *dispatcher
	history   *History
	cfg       Config
	log       *slog.Logger
	now       func() time.Time
}

// #endregion

// #region constructor

// New creates an orchestrator. Zero Config fields take DefaultConfig values.
func New(d Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.FallbackTimeout <= 0 {
		cfg.FallbackTimeout = def.FallbackTimeout
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = def.HistorySize
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "orch")
	var rec Recorder = nopRecorder{}
	if d.Metrics != nil {
		rec = d.Metrics
	}
	return &Orchestrator{
		analyzer:  d.Analyzer,
		selector:  d.Selector,
		generator: d.Generator,
		grader:    d.Grader,
		quality:   d.Quality,
		memory:    d.Memory,
		metrics:   rec,
		audit:     d.Audit,
		learn:     newDispatcher(d.Learners, cfg.LearnerRate, cfg.LearnerBurst, cfg.LearnerTimeout, log),
		history:   NewHistory(cfg.HistorySize),
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// History returns the in-memory ring of recent requests.
func (o *Orchestrator) History() *History {
	return o.history
}

// Wait blocks until background learners have finished.
func (o *Orchestrator) Wait() {
	o.learn.wait()
}

// #endregion

// #region respond

type request struct {
	id     string
	userID string
	input  string
	start  time.Time
	log    *slog.Logger
}

// Respond produces the envelope for one utterance. It never panics and
// never returns a malformed envelope.
func (o *Orchestrator) Respond(ctx context.Context, userID, input string) (resp Response) {
	req := request{id: uuid.NewString(), userID: userID, input: input, start: o.now()}
	req.log = o.log.With("request_id", req.id, "user_id", userID)
	defer func() {
		if r := recover(); r != nil {
			req.log.Error("pipeline panicked", "input", input, "panic", r)
			resp = o.catastrophic(req, fmt.Errorf("panic: %v", r))
		}
		resp = o.finish(ctx, req, resp)
	}()

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	an, err := o.analyze(rctx, userID, input)
	if err != nil {
		req.log.Warn("analysis failed", "step", "analyze", "input", input, "err", err)
		return o.fallback(ctx, req, err)
	}

	stage := strategy.DetermineStage(an)
	st := o.selector.Select(rctx, o.selector.Score(rctx, an, stage, userID))
	o.metrics.ObserveSelection(string(st))
	req.log.Debug("strategy selected", "stage", stage, "strategy", st)

	res := o.generator.Generate(rctx, an, st, userID)
	if err := rctx.Err(); err != nil {
		req.log.Warn("request deadline passed", "stage", stage, "strategy", st, "input", input, "err", err)
		return o.fallback(ctx, req, asTimeout(err))
	}

	score := res.Assessment.Quality
	grade := o.grader.Grade(rctx, score)
	improved := ""
	if res.Degraded {
		grade = quality.GradeFallback
		req.log.Warn("generation degraded; not rewarded", "stage", stage, "strategy", st, "input", input, "reason", res.Reason)
	} else {
		if grade.NeedsImprovement() {
			improved = Improve(res.Text, res.Primary, res.Support)
		}
		o.learnFeedback(rctx, req, an, st, res)
	}

	o.history.Add(HistoryEntry{
		ID:        req.id,
		UserID:    userID,
		Input:     input,
		Response:  res.Text,
		Strategy:  string(st),
		Quality:   score,
		Grade:     grade,
		Timestamp: o.now(),
	})

	resp = Response{
		Success:          true,
		Response:         res.Text,
		ImprovedResponse: improved,
		Confidence:       clamp01(res.Confidence),
		Strategy:         string(st),
		Stage:            string(stage),
		QualityScore:     clamp01(score),
		Grade:            grade,
		Improvements:     improvementNotes(an.Quality.Improvements, res.Minimal && !res.Degraded, improved != ""),
	}
	if res.Degraded {
		resp.Error = res.Reason
	}
	return resp
}

// #endregion

// #region analyze

func (o *Orchestrator) analyze(ctx context.Context, userID, input string) (an analysis.UtteranceAnalysis, err error) {
	if strings.TrimSpace(input) == "" {
		return an, analysis.ErrEmptyInput
	}
	if o.analyzer == nil {
		return an, fmt.Errorf("analyze: no analyzer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analyze: panic: %v", r)
		}
	}()
	an, err = o.analyzer.Analyze(ctx, userID, input)
	if err != nil {
		return an, fmt.Errorf("analyze: %w", asTimeout(err))
	}
	if !an.Success {
		return an, analysis.ErrAnalysisFailed
	}
	return an, nil
}

func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// #endregion

// #region learn-feedback

// learnFeedback rewards the bandit, records the score and hands the
// realized exchange to the learners. A minimal-template reply still rewards
// its strategy but carries no sentence worth learning from.
func (o *Orchestrator) learnFeedback(ctx context.Context, req request, an analysis.UtteranceAnalysis, st strategy.Strategy, res assembler.Result) {
	score := res.Assessment.Quality
	if err := o.selector.RecordReward(ctx, st, score); err != nil {
		req.log.Warn("record reward failed", "step", "learn", "strategy", st, "err", err)
	}
	if o.quality != nil {
		if err := o.quality.RecordQuality(ctx, req.userID, string(st), score); err != nil {
			req.log.Warn("record quality failed", "step", "learn", "strategy", st, "err", err)
		}
	}
	if res.Minimal {
		return
	}

	keywords := keywordsOf(an)
	o.learn.dispatch(Feedback{
		RequestID: req.id,
		UserID:    req.userID,
		Input:     req.input,
		Response:  res.Text,
		Keywords:  keywords,
		Terms:     contentTerms(res),
		Strategy:  string(st),
		Quality:   score,
	})

	if o.memory == nil || res.Primary == "" {
		return
	}
	th := o.grader.Thresholds(ctx, req.userID)
	if score < th.Medium || res.Confidence < th.RelationshipStrength {
		return
	}
	err := o.memory.Remember(ctx, Pair{
		UserID:   req.userID,
		Keywords: keywords,
		Primary:  res.Primary,
		Support:  res.Support,
		Strength: res.Confidence,
	})
	if err != nil {
		req.log.Warn("remember pair failed", "step", "learn", "strategy", st, "err", err)
	}
}

// contentTerms lists the primary and support words of res in order,
// without duplicates or noise.
func contentTerms(res assembler.Result) []string {
	terms := make([]string, 0, 1+len(res.Support))
	seen := make(map[string]bool, 1+len(res.Support))
	for _, t := range append([]string{res.Primary}, res.Support...) {
		if t == "" || seen[t] || analysis.IsNoise(t) {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	return terms
}

func keywordsOf(an analysis.UtteranceAnalysis) []string {
	if kws := analysis.InformativeKeywords(an.Tokens); len(kws) > 0 {
		return kws
	}
	return analysis.ExtractKeywords(an.OriginalText)
}

// #endregion

// #region fallback

// fallback answers without the generation pipeline: a remembered pair that
// overlaps the input, else a holding reply. success=false carries cause.
func (o *Orchestrator) fallback(parent context.Context, req request, cause error) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			req.log.Error("fallback panicked", "input", req.input, "cause", cause, "panic", r)
			resp = o.catastrophic(req, fmt.Errorf("fallback panic: %v", r))
		}
	}()
	o.metrics.ObserveFallback(fallbackReason(cause))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.cfg.FallbackTimeout)
	defer cancel()

	keywords := analysis.ExtractKeywords(req.input)
	text, conf := holdingReply(keywords), fallbackConfidence
	if o.memory != nil && len(keywords) > 0 {
		p, ok, err := o.memory.Best(ctx, req.userID, keywords)
		switch {
		case err != nil:
			req.log.Warn("pair memory unavailable", "step", "fallback", "err", err)
		case ok:
			text, conf = pairReply(p), clamp01(p.Strength)
		}
	}

	return Response{
		Success:      false,
		Response:     text,
		Confidence:   conf,
		Strategy:     StrategyFallback,
		QualityScore: conf,
		Grade:        quality.GradeFallback,
		Improvements: []string{},
		Error:        cause.Error(),
	}
}

// catastrophic is the reply of last resort. It reports success so callers
// always get a usable sentence.
func (o *Orchestrator) catastrophic(req request, err error) Response {
	o.metrics.ObserveFallback("panic")
	return Response{
		Success:      true,
		Response:     systemErrorReply,
		Confidence:   errorConfidence,
		Strategy:     StrategyErrorFallback,
		QualityScore: errorConfidence,
		Grade:        quality.GradeError,
		Improvements: []string{},
		Error:        err.Error(),
	}
}

func holdingReply(keywords []string) string {
	if len(keywords) == 0 {
		return assembler.HoldingPhrase
	}
	return keywords[0] + "については、まだ十分なデータがありません。" + assembler.HoldingPhrase
}

func pairReply(p Pair) string {
	if len(p.Support) == 0 {
		return p.Primary + "について、以前のお話をもとにお答えしますね。"
	}
	return p.Primary + "といえば、" + strings.Join(p.Support, "や") + "との関連がよく見られます。"
}

// #endregion

// #region finish

// finish stamps the envelope, records metrics and writes the audit row.
func (o *Orchestrator) finish(ctx context.Context, req request, resp Response) Response {
	end := o.now()
	elapsed := end.Sub(req.start)
	resp.RequestID = req.id
	resp.ProcessingTime = elapsed.Milliseconds()
	resp.Timestamp = end.UTC().Format(time.RFC3339)
	if resp.Improvements == nil {
		resp.Improvements = []string{}
	}

	o.metrics.ObserveRequest(resp.Strategy, outcome(resp), elapsed, resp.QualityScore)

	if o.audit != nil {
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FallbackTimeout)
		defer cancel()
		func() {
			defer func() {
				if r := recover(); r != nil {
					req.log.Error("audit panicked", "panic", r)
				}
			}()
			if err := o.audit.Audit(actx, req.userID, req.input, resp); err != nil {
				req.log.Warn("audit failed", "err", err)
			}
		}()
	}
	return resp
}

func outcome(r Response) string {
	switch {
	case r.Strategy == StrategyErrorFallback:
		return "error"
	case r.Strategy == StrategyFallback:
		return "fallback"
	case r.Error != "":
		return "degraded"
	default:
		return "success"
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// #endregion
