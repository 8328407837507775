package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/assembler"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/strategy"
)

// #endregion

// #region envelope-strategy

// Strategy labels used in the envelope besides the five bandit arms.
const (
	StrategyFallback      = "fallback"
	StrategyErrorFallback = "error_fallback"
)

// #endregion

// #region errors

// ErrTimeout is returned in the envelope when the request deadline expires
// before generation completes.
var ErrTimeout = fmt.Errorf("timeout: %w", context.DeadlineExceeded)

// #endregion

// #region response

// Response is the envelope returned for every request. It is always
// well-formed, even on the catastrophic path.
type Response struct {
	Success          bool          `json:"success"`
	Response         string        `json:"response"`
	ImprovedResponse string        `json:"improvedResponse,omitempty"`
	Confidence       float64       `json:"confidence"`
	Strategy         string        `json:"strategy"`
	Stage            string        `json:"stage,omitempty"`
	QualityScore     float64       `json:"qualityScore"`
	Grade            quality.Grade `json:"grade"`
	Improvements     []string      `json:"improvements"`
	ProcessingTime   int64         `json:"processingTime"` // ms
	Timestamp        string        `json:"timestamp"`      // RFC3339
	RequestID        string        `json:"requestId"`
	Error            string        `json:"error,omitempty"`
}

// #endregion

// #region config

// Config tunes the pipeline.
type Config struct {
	RequestTimeout  time.Duration // deadline for Analyze→Generate→Evaluate
	FallbackTimeout time.Duration // budget for the fallback path's own store reads
	HistorySize     int           // ring buffer length, clamped to [50,100]
	LearnerRate     float64       // feedback dispatches per second
	LearnerBurst    int
	LearnerTimeout  time.Duration // per-learner deadline
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  10 * time.Second,
		FallbackTimeout: 2 * time.Second,
		HistorySize:     100,
		LearnerRate:     5,
		LearnerBurst:    10,
		LearnerTimeout:  5 * time.Second,
	}
}

// #endregion

// #region feedback

// Feedback is the realized input/response/score triple handed to learners.
// Terms holds the content words the reply was built from; the rendered
// Response also carries phrasing-template text and is never mined for terms.
type Feedback struct {
	RequestID string   `json:"requestId"`
	UserID    string   `json:"userId"`
	Input     string   `json:"input"`
	Response  string   `json:"response"`
	Keywords  []string `json:"keywords"`
	Terms     []string `json:"terms"`
	Strategy  string   `json:"strategy"`
	Quality   float64  `json:"quality"`
}

// Learner absorbs feedback. Failures are logged and never reach the caller.
type Learner interface {
	Learn(ctx context.Context, fb Feedback) error
}

// #endregion

// #region collaborators

// Selector is the bandit surface the pipeline drives.
type Selector interface {
	Score(ctx context.Context, a analysis.UtteranceAnalysis, stage strategy.Stage, userID string) map[strategy.Strategy]float64
	Select(ctx context.Context, base map[strategy.Strategy]float64) strategy.Strategy
	RecordReward(ctx context.Context, st strategy.Strategy, reward float64) error
}

// Generator produces the best sentence for a strategy.
type Generator interface {
	Generate(ctx context.Context, an analysis.UtteranceAnalysis, st strategy.Strategy, userID string) assembler.Result
}

// Grader supplies thresholds and live-distribution grades.
type Grader interface {
	Thresholds(ctx context.Context, userID string) quality.Thresholds
	Grade(ctx context.Context, score float64) quality.Grade
}

// QualityRecorder persists realized quality scores.
type QualityRecorder interface {
	RecordQuality(ctx context.Context, userID, strategy string, score float64) error
}

// Recorder receives pipeline metrics.
type Recorder interface {
	ObserveRequest(strategy, outcome string, d time.Duration, quality float64)
	ObserveFallback(reason string)
	ObserveSelection(strategy string)
}

// Auditor persists one row per finished request.
type Auditor interface {
	Audit(ctx context.Context, userID, input string, resp Response) error
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, time.Duration, float64) {}
func (nopRecorder) ObserveFallback(string)                                {}
func (nopRecorder) ObserveSelection(string)                               {}

// #endregion

// #region fallback-reason

// fallbackReason labels the cause of a fallback for metrics.
func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, analysis.ErrEmptyInput):
		return "empty_input"
	default:
		return "analysis"
	}
}

// #endregion
