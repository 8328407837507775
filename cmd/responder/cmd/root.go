package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/codec"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/config"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region root

// app carries what every subcommand shares once flags are parsed.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     config.Config
	log     *slog.Logger
}

// NewRootCmd builds the command tree. Each call gets its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "responder",
		Short: "Statistical response engine with per-user learning",
		Long: `responder analyzes an utterance, picks a generation strategy with a UCB
bandit, assembles a reply from learned relations and Kneser-Ney smoothed
bigrams, grades it against adaptive thresholds and learns from the result.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("db", "", "SQLite database path (or set RESPONDER_DB_PATH)")
	pf.String("analyzer", "", "remote analysis service address; empty uses the local analyzer")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-format", "", "text or json")

	a.v.BindPFlag("db_path", pf.Lookup("db"))
	a.v.BindPFlag("analyzer_addr", pf.Lookup("analyzer"))
	a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	a.v.BindPFlag("log.format", pf.Lookup("log-format"))

	root.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newInspectCmd(a),
		newSeedCmd(a),
		newExportCmd(a),
		newReplayCmd(a),
		newPruneCmd(a),
	)
	return root
}

// Execute runs the root command against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.log)
	return nil
}

// #endregion root

// #region runtime

// runtime is an engine over an open store plus what must be closed after it.
type runtime struct {
	store    *store.Store
	engine   *orchestrator.Orchestrator
	registry *prometheus.Registry
	client   *codec.Client
}

// openStore opens the configured database.
func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", a.cfg.DBPath, err)
	}
	return st, nil
}

// engineOptions maps the runtime configuration onto engine options.
func engineOptions(cfg config.Config, log *slog.Logger) orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	opts.Config.RequestTimeout = cfg.RequestTimeout
	opts.Config.HistorySize = cfg.HistorySize
	opts.Config.LearnerRate = cfg.Learner.RatePerSecond
	opts.Config.LearnerBurst = cfg.Learner.Burst
	opts.Config.LearnerTimeout = cfg.Learner.Timeout
	opts.Quality.LowConfidence = cfg.Thresholds.LowConfidence
	opts.Quality.ColdStartResponses = cfg.Thresholds.ColdStartResponses
	opts.Assembler.ContextLimit = cfg.Assembler.ContextLimit
	opts.Assembler.Discount = cfg.Assembler.Discount
	opts.Log = log
	return opts
}

// openEngine wires the engine over st. A non-empty analyzer address adds the
// remote service as analyzer, learner and semantic hook.
func (a *app) openEngine(ctx context.Context, st *store.Store) (*runtime, error) {
	rt := &runtime{store: st, registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := engineOptions(a.cfg, a.log)
	opts.Metrics = metrics.New(rt.registry)

	if addr := a.cfg.AnalyzerAddr; addr != "" {
		client, err := codec.NewClient(addr)
		if err != nil {
			return nil, fmt.Errorf("connect analyzer %s: %w", addr, err)
		}
		rt.client = client
		opts.Analyzer = client
		opts.Hook = client
		opts.Learners = append(opts.Learners, client)
		a.log.Info("using remote analyzer", "addr", addr)
	}

	engine, err := orchestrator.NewEngine(ctx, st, opts)
	if err != nil {
		rt.closeClient()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

// Close drains background learners before releasing the store.
func (rt *runtime) Close() {
	if rt.engine != nil {
		rt.engine.Wait()
	}
	rt.closeClient()
}

func (rt *runtime) closeClient() {
	if rt.client != nil {
		rt.client.Close()
	}
}

// #endregion runtime
