package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region inspect-cmd

func newInspectCmd(a *app) *cobra.Command {
	var (
		userID  string
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show bandit arms, quality distribution, a user's relations and recent responses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			if err := logging.Migrate(st.DB()); err != nil {
				return err
			}
			rep, err := buildReport(cmd.Context(), st, userID, last)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			printReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "limit relations and responses to one user")
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent responses")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of tables")
	return cmd
}

// #endregion inspect-cmd

// #region report

type strategyRow struct {
	Strategy      string  `json:"strategy"`
	Selections    int     `json:"selections"`
	AverageReward float64 `json:"averageReward"`
	LastUsed      string  `json:"lastUsed,omitempty"`
}

type relationRow struct {
	Keyword  string  `json:"keyword"`
	Term     string  `json:"term"`
	Count    int     `json:"count"`
	Strength float64 `json:"strength"`
}

type responseRow struct {
	RequestID string  `json:"requestId"`
	UserID    string  `json:"userId"`
	Input     string  `json:"input"`
	Response  string  `json:"response"`
	Strategy  string  `json:"strategy"`
	Grade     string  `json:"grade"`
	Quality   float64 `json:"quality"`
	Success   bool    `json:"success"`
	CreatedAt string  `json:"createdAt"`
}

type report struct {
	Strategies    []strategyRow `json:"strategies"`
	QualitySample int           `json:"qualitySamples"`
	QualityMean   float64       `json:"qualityMean"`
	QualityStdDev float64       `json:"qualityStdDev"`
	NgramPatterns int           `json:"ngramPatterns"`
	Relations     []relationRow `json:"relations,omitempty"`
	Responses     []responseRow `json:"responses"`
}

func buildReport(ctx context.Context, st *store.Store, userID string, last int) (report, error) {
	var rep report

	arms, err := st.LoadStrategyStats(ctx)
	if err != nil {
		return report{}, err
	}
	for _, r := range arms {
		row := strategyRow{Strategy: r.Strategy, Selections: r.Selections, AverageReward: r.AverageReward}
		if !r.LastUsed.IsZero() {
			row.LastUsed = r.LastUsed.Format(time.RFC3339)
		}
		rep.Strategies = append(rep.Strategies, row)
	}
	sort.Slice(rep.Strategies, func(i, j int) bool { return rep.Strategies[i].Strategy < rep.Strategies[j].Strategy })

	qs, err := st.GetQualityStats(ctx)
	if err != nil {
		return report{}, err
	}
	rep.QualitySample, rep.QualityMean, rep.QualityStdDev = qs.Samples, qs.Average, qs.StdDev

	ns, err := st.GetNgramStats(ctx)
	if err != nil {
		return report{}, err
	}
	rep.NgramPatterns = ns.TotalPatterns

	if userID != "" {
		rels, err := st.GetUserRelations(ctx, userID)
		if err != nil {
			return report{}, err
		}
		keywords := make([]string, 0, len(rels))
		for k := range rels {
			keywords = append(keywords, k)
		}
		sort.Strings(keywords)
		for _, k := range keywords {
			for _, r := range rels[k] {
				rep.Relations = append(rep.Relations, relationRow{Keyword: k, Term: r.Term, Count: r.Count, Strength: r.Strength})
			}
		}
	}

	entries, err := logging.RecentResponses(ctx, st.DB(), userID, last)
	if err != nil {
		return report{}, err
	}
	// newest first from the log; print chronologically
	rep.Responses = make([]responseRow, len(entries))
	for i, e := range entries {
		rep.Responses[len(entries)-1-i] = responseRow{
			RequestID: e.RequestID,
			UserID:    e.UserID,
			Input:     e.Input,
			Response:  e.Response,
			Strategy:  e.Strategy,
			Grade:     e.Grade,
			Quality:   e.Quality,
			Success:   e.Success,
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	return rep, nil
}

// #endregion report

// #region output

func printReport(out io.Writer, rep report) {
	fmt.Fprintf(out, "%-24s  %10s  %10s  %s\n", "Strategy", "Selections", "Avg Reward", "Last Used")
	fmt.Fprintf(out, "%-24s+-%10s+-%10s+-%s\n", strings.Repeat("-", 24), "----------", "----------", "--------------------")
	for _, r := range rep.Strategies {
		lastUsed := "—"
		if r.LastUsed != "" {
			lastUsed = r.LastUsed
		}
		fmt.Fprintf(out, "%-24s  %10d  %10.4f  %s\n", r.Strategy, r.Selections, r.AverageReward, lastUsed)
	}

	fmt.Fprintf(out, "\nQuality: n=%d mean=%.4f std=%.4f | n-gram patterns: %d\n",
		rep.QualitySample, rep.QualityMean, rep.QualityStdDev, rep.NgramPatterns)

	if len(rep.Relations) > 0 {
		fmt.Fprintf(out, "\n%-16s  %-16s  %6s  %8s\n", "Keyword", "Term", "Count", "Strength")
		for _, r := range rep.Relations {
			fmt.Fprintf(out, "%-16s  %-16s  %6d  %8.4f\n", r.Keyword, r.Term, r.Count, r.Strength)
		}
	}

	if len(rep.Responses) == 0 {
		fmt.Fprintln(out, "\nno responses logged")
		return
	}
	fmt.Fprintf(out, "\n%-8s  %-10s  %-22s  %-10s  %6s  %s\n", "Request", "User", "Strategy", "Grade", "Score", "Time")
	for _, r := range rep.Responses {
		fmt.Fprintf(out, "%-8s  %-10s  %-22s  %-10s  %6.3f  %s\n",
			shortID(r.RequestID), r.UserID, r.Strategy, r.Grade, r.Quality, r.CreatedAt)
		fmt.Fprintf(out, "          %s → %s\n", r.Input, r.Response)
	}
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
