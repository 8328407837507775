package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/replay"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region export-cmd

func newExportCmd(a *app) *cobra.Command {
	var (
		userID  string
		outPath string
		fixture bool
		last    int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write learned relations and n-grams as a seed file, or a replay fixture with --fixture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fixture && outPath == "" {
				return errors.New("--fixture requires --out")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()

			seed, err := st.ExportSeed(ctx, userID)
			if err != nil {
				return err
			}

			if !fixture {
				var out io.Writer = cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("create %s: %w", outPath, err)
					}
					defer f.Close()
					out = f
				}
				return store.WriteSeed(out, seed)
			}

			if err := logging.Migrate(st.DB()); err != nil {
				return err
			}
			entries, err := logging.RecentResponses(ctx, st.DB(), userID, last)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no logged responses to export (user=%q)", userID)
			}
			f := &replay.Fixture{
				Description: fmt.Sprintf("exported from %s: last %d responses, user=%q", a.cfg.DBPath, len(entries), userID),
				Seed:        seed,
				Turns:       replay.FromTurns(replay.FromLog(entries)),
			}
			if err := replay.WriteFixture(outPath, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d turns to %s\n", len(f.Turns), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "export one user's relations (default all)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default stdout for seeds)")
	cmd.Flags().BoolVar(&fixture, "fixture", false, "write a JSON replay fixture instead of a YAML seed")
	cmd.Flags().IntVar(&last, "last", 20, "number of most recent responses in a fixture")
	return cmd
}

// #endregion export-cmd
