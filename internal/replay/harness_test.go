package replay

import (
	"context"
	"testing"
	"time"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/orchestrator"
	"github.com/danielpatrickdp/adaptive-state/responder/internal/quality"
)

// scripted answers each input with a canned response.
type scripted struct {
	byInput map[string]orchestrator.Response
	calls   []string
}

func (s *scripted) Respond(_ context.Context, userID, input string) orchestrator.Response {
	s.calls = append(s.calls, userID+":"+input)
	return s.byInput[input]
}

func boolPtr(b bool) *bool { return &b }

func TestReplay_Actions(t *testing.T) {
	r := &scripted{byInput: map[string]orchestrator.Response{
		"a": {Success: true, Strategy: "ngram_continuation", Grade: quality.GradeGood, Response: "Pythonです", QualityScore: 0.8},
		"b": {Success: false, Strategy: orchestrator.StrategyFallback, Grade: quality.GradeFallback, QualityScore: 0},
		"c": {Success: true, Strategy: "semantic_association", Grade: quality.GradeAcceptable, QualityScore: 0.4},
	}}
	turns := []Turn{
		{TurnID: "t1", UserID: "u", Input: "a", WantStrategy: "ngram_continuation", WantContains: "Python"},
		{TurnID: "t2", UserID: "u", Input: "b", WantSuccess: boolPtr(true), WantGrade: "good"},
		{UserID: "u", Input: "c"},
	}

	results := Replay(context.Background(), r, turns)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Action != ActionMatch {
		t.Errorf("t1: expected match, got %s (%s)", results[0].Action, results[0].Reason)
	}
	if results[1].Action != ActionDrift {
		t.Errorf("t2: expected drift, got %s", results[1].Action)
	}
	if want := "grade fallback != good; success false != true"; results[1].Reason != want {
		t.Errorf("t2: reason %q, want %q", results[1].Reason, want)
	}
	if results[2].Action != ActionUnchecked {
		t.Errorf("turn 3: expected unchecked, got %s", results[2].Action)
	}
	if results[2].TurnID != "turn-3" {
		t.Errorf("expected generated turn id turn-3, got %s", results[2].TurnID)
	}
	if len(r.calls) != 3 || r.calls[0] != "u:a" {
		t.Errorf("unexpected call order %v", r.calls)
	}
}

func TestReplay_Summarize(t *testing.T) {
	results := []Result{
		{Action: ActionMatch, Response: orchestrator.Response{Success: true, Strategy: "x", QualityScore: 0.9}},
		{Action: ActionDrift, Response: orchestrator.Response{Success: false, Strategy: orchestrator.StrategyFallback}},
		{Action: ActionUnchecked, Response: orchestrator.Response{Success: true, Strategy: "y", QualityScore: 0.3}},
	}
	s := Summarize(results)
	if s.TotalTurns != 3 || s.Matches != 1 || s.Drifts != 1 || s.Unchecked != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Fallbacks != 1 {
		t.Errorf("expected 1 fallback, got %d", s.Fallbacks)
	}
	if s.MeanQuality < 0.399 || s.MeanQuality > 0.401 {
		t.Errorf("expected mean quality 0.4, got %f", s.MeanQuality)
	}

	if empty := Summarize(nil); empty.TotalTurns != 0 || empty.MeanQuality != 0 {
		t.Errorf("expected zero summary, got %+v", empty)
	}
}

func TestFromLog_Chronological(t *testing.T) {
	now := time.Now()
	entries := []logging.ResponseEntry{
		{RequestID: "r2", UserID: "u", Input: "second", Strategy: "fallback", Grade: "fallback", Success: false, CreatedAt: now},
		{RequestID: "r1", UserID: "u", Input: "first", Strategy: "ngram_continuation", Grade: "good", Success: true, CreatedAt: now.Add(-time.Minute)},
	}
	turns := FromLog(entries)
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].TurnID != "r1" || turns[1].TurnID != "r2" {
		t.Errorf("expected chronological order, got %s, %s", turns[0].TurnID, turns[1].TurnID)
	}
	if turns[0].WantSuccess == nil || !*turns[0].WantSuccess {
		t.Error("expected r1 to expect success")
	}
	if *turns[1].WantSuccess {
		t.Error("expected r2 to expect failure")
	}
	if turns[0].WantGrade != "good" || turns[0].WantStrategy != "ngram_continuation" {
		t.Errorf("unexpected expectations %+v", turns[0])
	}
}
