package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		userID  string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "ask [utterance...]",
		Short: "Answer one utterance and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			rt, err := a.openEngine(cmd.Context(), st)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp := rt.engine.Respond(cmd.Context(), userID, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, resp)
			}
			_, err = out.Write([]byte(resp.Response + "\n"))
			return err
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "default", "user id")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full response envelope as JSON")
	return cmd
}
