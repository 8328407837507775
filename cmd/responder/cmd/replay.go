package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/replay"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region replay-cmd

func newReplayCmd(a *app) *cobra.Command {
	var (
		fixturePath string
		userID      string
		last        int
		strict      bool
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run logged turns (or a fixture) against an in-memory copy and report drift",
		Long: `replay copies the learned relations and n-grams into an in-memory store,
runs each turn through a fresh engine and compares strategy, grade and
success against what was recorded. The source database is never written.
Bandit arms are not copied, so strategy drift is expected on a warm database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := loadReplaySource(ctx, a, fixturePath, userID, last)
			if err != nil {
				return err
			}
			if len(f.Turns) == 0 {
				return errors.New("nothing to replay")
			}

			mem, err := store.Open(":memory:")
			if err != nil {
				return err
			}
			defer mem.Close()
			if err := f.Prepare(ctx, mem); err != nil {
				return err
			}
			rt, err := a.openEngine(ctx, mem)
			if err != nil {
				return err
			}
			defer rt.Close()

			results := replay.Replay(ctx, rt.engine, f.ToTurns())
			summary := replay.Summarize(results)
			out := cmd.OutOrStdout()
			if jsonOut {
				if err := printJSON(out, struct {
					Results []replay.Result `json:"results"`
					Summary replay.Summary  `json:"summary"`
				}{results, summary}); err != nil {
					return err
				}
			} else {
				printReplay(out, results, summary)
			}
			if strict && summary.Drifts > 0 {
				return fmt.Errorf("%d of %d turns drifted", summary.Drifts, summary.TotalTurns)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "replay a JSON fixture instead of the database log")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "replay one user's turns (database mode)")
	cmd.Flags().IntVar(&last, "last", 20, "number of most recent logged turns (database mode)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any turn drifts")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// loadReplaySource returns the fixture at path, or builds one from the
// configured database.
func loadReplaySource(ctx context.Context, a *app, path, userID string, last int) (*replay.Fixture, error) {
	if path != "" {
		return replay.LoadFixture(path)
	}
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	if err := logging.Migrate(st.DB()); err != nil {
		return nil, err
	}
	seed, err := st.ExportSeed(ctx, "")
	if err != nil {
		return nil, err
	}
	entries, err := logging.RecentResponses(ctx, st.DB(), userID, last)
	if err != nil {
		return nil, err
	}
	return &replay.Fixture{
		Description: "database " + a.cfg.DBPath,
		Seed:        seed,
		Turns:       replay.FromTurns(replay.FromLog(entries)),
	}, nil
}

// #endregion replay-cmd

// #region replay-output

func printReplay(out io.Writer, results []replay.Result, s replay.Summary) {
	fmt.Fprintf(out, "%-10s  %-9s  %-22s  %-10s  %6s  %s\n", "Turn", "Action", "Strategy", "Grade", "Score", "Reason")
	for _, r := range results {
		fmt.Fprintf(out, "%-10s  %-9s  %-22s  %-10s  %6.3f  %s\n",
			shortID(r.TurnID), r.Action, r.Response.Strategy, r.Response.Grade, r.Response.QualityScore, r.Reason)
	}
	fmt.Fprintf(out, "\n%d turns: %d match, %d drift, %d unchecked, %d fallback | mean quality %.4f\n",
		s.TotalTurns, s.Matches, s.Drifts, s.Unchecked, s.Fallbacks, s.MeanQuality)
}

// #endregion replay-output
