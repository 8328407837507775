package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-state/responder/internal/store"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: the learned
// state to start from and the turns to run against it.
type Fixture struct {
	Description string        `json:"description"`
	Seed        store.Seed    `json:"seed"`
	Turns       []FixtureTurn `json:"turns"`
}

// FixtureTurn mirrors Turn with JSON tags.
type FixtureTurn struct {
	TurnID       string `json:"turnId"`
	UserID       string `json:"userId"`
	Input        string `json:"input"`
	WantStrategy string `json:"wantStrategy,omitempty"`
	WantGrade    string `json:"wantGrade,omitempty"`
	WantSuccess  *bool  `json:"wantSuccess,omitempty"`
	WantContains string `json:"wantContains,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// WriteFixture writes f as indented JSON.
func WriteFixture(path string, f *Fixture) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// Prepare writes the fixture seed into st.
func (f *Fixture) Prepare(ctx context.Context, st *store.Store) error {
	if _, err := st.ApplySeed(ctx, f.Seed); err != nil {
		return fmt.Errorf("prepare fixture: %w", err)
	}
	return nil
}

// ToTurns converts the fixture turns to domain turns.
func (f *Fixture) ToTurns() []Turn {
	turns := make([]Turn, len(f.Turns))
	for i, ft := range f.Turns {
		turns[i] = Turn(ft)
	}
	return turns
}

// FromTurns builds fixture turns from domain turns.
func FromTurns(turns []Turn) []FixtureTurn {
	out := make([]FixtureTurn, len(turns))
	for i, t := range turns {
		out[i] = FixtureTurn(t)
	}
	return out
}

// #endregion fixture-loader
