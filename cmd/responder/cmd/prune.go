package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd(a *app) *cobra.Command {
	var (
		halfLife time.Duration
		floor    float64
		userID   string
		sever    []string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Decay relation strengths by age and drop weak edges, or sever terms from a user's graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(sever) > 0 && userID == "" {
				return errors.New("--sever requires --user")
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			for _, term := range sever {
				n, err := st.SeverTerm(ctx, userID, term)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Severed %s: %d edges removed.\n", term, n)
			}
			if len(sever) > 0 {
				return nil
			}

			res, err := st.DecayRelations(ctx, halfLife, floor, time.Now())
			if err != nil {
				return err
			}
			a.log.Info("relations decayed", "half_life", halfLife, "decayed", res.Decayed, "pruned", res.Pruned)
			fmt.Fprintf(out, "Decayed %d edges, pruned %d below %.3f.\n", res.Decayed, res.Pruned, floor)
			return nil
		},
	}
	cmd.Flags().DurationVar(&halfLife, "half-life", 30*24*time.Hour, "strength half-life")
	cmd.Flags().Float64Var(&floor, "floor", 0.01, "delete edges whose decayed strength falls below this")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user whose graph --sever edits")
	cmd.Flags().StringSliceVar(&sever, "sever", nil, "terms to cut out of the user's graph (skips decay)")
	return cmd
}
