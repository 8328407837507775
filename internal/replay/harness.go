package replay

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/orchestrator"
)

// #region types
// Turn is a single recorded input to run again, with what was observed the
// first time. Empty expectation fields are not checked.
type Turn struct {
	TurnID       string
	UserID       string
	Input        string
	WantStrategy string
	WantGrade    string
	WantSuccess  *bool
	WantContains string
}

// Responder is the part of the orchestrator a replay drives.
type Responder interface {
	Respond(ctx context.Context, userID, input string) orchestrator.Response
}

// Action values.
const (
	ActionMatch     = "match"
	ActionDrift     = "drift"
	ActionUnchecked = "unchecked"
)

// Result captures the outcome of replaying one turn.
type Result struct {
	TurnID   string                `json:"turnId"`
	Action   string                `json:"action"`
	Reason   string                `json:"reason,omitempty"` // mismatches, "; "-joined
	Response orchestrator.Response `json:"response"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalTurns  int     `json:"totalTurns"`
	Matches     int     `json:"matches"`
	Drifts      int     `json:"drifts"`
	Unchecked   int     `json:"unchecked"`
	Fallbacks   int     `json:"fallbacks"`
	MeanQuality float64 `json:"meanQuality"`
}

// #endregion types

// #region replay
// Replay feeds turns through r in order. Learning side effects of earlier
// turns are visible to later ones, as in the live session.
func Replay(ctx context.Context, r Responder, turns []Turn) []Result {
	results := make([]Result, 0, len(turns))
	for i, t := range turns {
		id := t.TurnID
		if id == "" {
			id = fmt.Sprintf("turn-%d", i+1)
		}
		resp := r.Respond(ctx, t.UserID, t.Input)
		res := Result{TurnID: id, Response: resp}

		mismatches, checked := compare(t, resp)
		switch {
		case len(mismatches) > 0:
			res.Action = ActionDrift
			res.Reason = strings.Join(mismatches, "; ")
		case checked:
			res.Action = ActionMatch
		default:
			res.Action = ActionUnchecked
		}
		results = append(results, res)
	}
	return results
}

func compare(t Turn, resp orchestrator.Response) (mismatches []string, checked bool) {
	if t.WantStrategy != "" {
		checked = true
		if resp.Strategy != t.WantStrategy {
			mismatches = append(mismatches, fmt.Sprintf("strategy %s != %s", resp.Strategy, t.WantStrategy))
		}
	}
	if t.WantGrade != "" {
		checked = true
		if string(resp.Grade) != t.WantGrade {
			mismatches = append(mismatches, fmt.Sprintf("grade %s != %s", resp.Grade, t.WantGrade))
		}
	}
	if t.WantSuccess != nil {
		checked = true
		if resp.Success != *t.WantSuccess {
			mismatches = append(mismatches, fmt.Sprintf("success %t != %t", resp.Success, *t.WantSuccess))
		}
	}
	if t.WantContains != "" {
		checked = true
		if !strings.Contains(resp.Response, t.WantContains) {
			mismatches = append(mismatches, fmt.Sprintf("response lacks %q", t.WantContains))
		}
	}
	return mismatches, checked
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []Result) Summary {
	s := Summary{TotalTurns: len(results)}
	total := 0.0
	for _, r := range results {
		switch r.Action {
		case ActionMatch:
			s.Matches++
		case ActionDrift:
			s.Drifts++
		case ActionUnchecked:
			s.Unchecked++
		}
		if !r.Response.Success || r.Response.Strategy == orchestrator.StrategyFallback {
			s.Fallbacks++
		}
		total += r.Response.QualityScore
	}
	if len(results) > 0 {
		s.MeanQuality = total / float64(len(results))
	}
	return s
}

// #endregion replay

// #region from-log
// FromLog turns audit rows (newest first, as RecentResponses returns them)
// into chronological turns that expect the logged strategy, grade and
// success flag.
func FromLog(entries []logging.ResponseEntry) []Turn {
	turns := make([]Turn, len(entries))
	for i, e := range entries {
		success := e.Success
		turns[len(entries)-1-i] = Turn{
			TurnID:       e.RequestID,
			UserID:       e.UserID,
			Input:        e.Input,
			WantStrategy: e.Strategy,
			WantGrade:    e.Grade,
			WantSuccess:  &success,
		}
	}
	return turns
}

// #endregion from-log
