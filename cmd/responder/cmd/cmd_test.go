package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
relations:
  alice:
    Python:
      - {term: ライブラリ, count: 6, strength: 0.8}
      - {term: データ分析, count: 2, strength: 0.5}
ngrams:
  - {context: Python, word: ライブラリ, count: 3}
`

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_SeedAskInspect(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, seedYAML, "--db", db, "seed", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 relations and 1 n-grams.")

	out, err = run(t, "", "--db", db, "ask", "--user", "alice", "--json", "Pythonについて")
	require.NoError(t, err)
	var resp struct {
		Success   bool   `json:"success"`
		Response  string `json:"response"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Response, "ライブラリ")
	assert.NotEmpty(t, resp.RequestID)

	out, err = run(t, "", "--db", db, "inspect", "--user", "alice", "--json")
	require.NoError(t, err)
	var rep report
	require.NoError(t, json.Unmarshal([]byte(out), &rep), out)
	require.Len(t, rep.Responses, 1)
	assert.Equal(t, resp.RequestID, rep.Responses[0].RequestID)
	assert.NotEmpty(t, rep.Relations)
	assert.Equal(t, 1, rep.QualitySample)

	out, err = run(t, "", "--db", db, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Strategy")
	assert.Contains(t, out, "Pythonについて")
}

func TestCLI_ExportAndReplay(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cli.db")
	_, err := run(t, seedYAML, "--db", db, "seed", "-")
	require.NoError(t, err)
	_, err = run(t, "", "--db", db, "ask", "-u", "alice", "Pythonについて")
	require.NoError(t, err)

	out, err := run(t, "", "--db", db, "export", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "ライブラリ")
	assert.Contains(t, out, "ngrams:")

	_, err = run(t, "", "--db", db, "export", "--fixture")
	assert.Error(t, err, "--fixture without --out")

	fixture := filepath.Join(dir, "session.json")
	out, err = run(t, "", "--db", db, "export", "--fixture", "--out", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 1 turns")
	_, err = os.Stat(fixture)
	require.NoError(t, err)

	out, err = run(t, "", "--db", db, "replay", "--fixture", fixture, "--json")
	require.NoError(t, err)
	var got struct {
		Summary struct {
			TotalTurns int `json:"totalTurns"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, 1, got.Summary.TotalTurns)

	out, err = run(t, "", "--db", db, "replay")
	require.NoError(t, err)
	assert.Contains(t, out, "1 turns:")
}

func TestCLI_Chat(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	_, err := run(t, seedYAML, "--db", db, "seed", "-")
	require.NoError(t, err)

	out, err := run(t, "Pythonについて\n/user bob\n\n/history\nquit\nnever read\n", "--db", db, "chat", "-u", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Responder ready.")
	assert.Contains(t, out, "strategy=")
	assert.Contains(t, out, "[user=bob]")
	assert.Contains(t, out, "alice")
	assert.NotContains(t, out, "never read")
}

func TestCLI_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := run(t, "", "--db", db, "ask")
	assert.Error(t, err, "ask needs an utterance")

	_, err = run(t, "", "--db", db, "seed", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = run(t, "", "--db", db, "replay")
	assert.Error(t, err, "empty log has nothing to replay")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("history_size: [\n"), 0o644))
	_, err = run(t, "", "--config", bad, "--db", db, "inspect")
	assert.Error(t, err)
}

func TestCLI_Prune(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")
	_, err := run(t, seedYAML, "--db", db, "seed", "-")
	require.NoError(t, err)

	_, err = run(t, "", "--db", db, "prune", "--sever", "ライブラリ")
	assert.Error(t, err, "--sever needs --user")

	out, err := run(t, "", "--db", db, "prune", "-u", "alice", "--sever", "ライブラリ")
	require.NoError(t, err)
	assert.Contains(t, out, "Severed ライブラリ: 1 edges removed.")

	out, err = run(t, "", "--db", db, "prune", "--half-life", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Decayed")
}
