package orchestrator

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/analysis"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/assembler"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/grammar"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/strategy"
)

// #endregion

// #region options

// Options configures NewEngine.
type Options struct {
	Config    Config
	Quality   quality.Config
	Assembler assembler.Config
	Analyzer  analysis.Analyzer      // nil = LocalAnalyzer over the store
	Selector  Selector               // nil = UCB bandit over the store
	Hook      assembler.SemanticHook // nil = statistical ranking only
	Learners  []Learner              // run alongside the store learner
	Metrics   Recorder
	Log       *slog.Logger
}

// DefaultOptions returns production defaults for every component.
func DefaultOptions() Options {
	return Options{
		Config:    DefaultConfig(),
		Quality:   quality.DefaultConfig(),
		Assembler: assembler.DefaultConfig(),
	}
}

// #endregion

// #region engine

// NewEngine wires every component over st. Failing to read persisted
// defaults or bandit state is logged and the engine starts cold.
func NewEngine(ctx context.Context, st *store.Store, opts Options) (*Orchestrator, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	eval := quality.NewEvaluator(st, nil, opts.Quality, log)
	if err := eval.LoadDefaults(ctx, st); err != nil {
		log.Warn("engine: threshold defaults unavailable", "err", err)
	}
	sel := opts.Selector
	if sel == nil {
		bandit := strategy.NewSelector(st, st, log)
		if err := bandit.Load(ctx); err != nil {
			log.Warn("engine: starting with cold bandit", "err", err)
		}
		sel = bandit
	}
	gen := grammar.NewInducer(st, eval, log)
	asm := assembler.New(st, gen, eval, opts.Hook, opts.Assembler, log)

	mem, err := NewPairMemory(st.DB())
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if err := logging.Migrate(st.DB()); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewLocalAnalyzer(st)
	}
	learners := append([]Learner{NewStoreLearner(st)}, opts.Learners...)

	return New(Deps{
		Analyzer:  analyzer,
		Selector:  sel,
		Generator: asm,
		Grader:    eval,
		Quality:   st,
		Memory:    mem,
		Learners:  learners,
		Metrics:   opts.Metrics,
		Audit:     DBAuditor{DB: st.DB()},
		Log:       log,
	}, opts.Config), nil
}

// #endregion

// #region auditor

// DBAuditor writes envelopes to the response_log table.
type DBAuditor struct {
	DB *sql.DB
}

// Audit implements Auditor.
func (a DBAuditor) Audit(_ context.Context, userID, input string, resp Response) error {
	created, err := time.Parse(time.RFC3339, resp.Timestamp)
	if err != nil {
		created = time.Now().UTC()
	}
	return logging.LogResponse(a.DB, logging.ResponseEntry{
		RequestID: resp.RequestID,
		UserID:    userID,
		Input:     input,
		Response:  resp.Response,
		Strategy:  resp.Strategy,
		Stage:     resp.Stage,
		Quality:   resp.QualityScore,
		Grade:     string(resp.Grade),
		Success:   resp.Success,
		Error:     resp.Error,
		CreatedAt: created,
	})
}

// #endregion
