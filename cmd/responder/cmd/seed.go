package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

func newSeedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load relations and n-gram counts from a YAML seed file ('-' for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open seed: %w", err)
				}
				defer f.Close()
				in = f
			}
			seed, err := store.LoadSeed(in)
			if err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := st.ApplySeed(cmd.Context(), seed)
			if err != nil {
				return err
			}
			a.log.Info("seed applied", "relations", res.Relations, "ngrams", res.Ngrams, "db", a.cfg.DBPath)
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d relations and %d n-grams.\n", res.Relations, res.Ngrams)
			return nil
		},
	}
}
