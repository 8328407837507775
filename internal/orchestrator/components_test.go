package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region history

func TestHistory_RingOverwritesOldest(t *testing.T) {
	h := NewHistory(10) // clamped up to 50
	require.Equal(t, 50, h.Cap())
	for i := 0; i < 60; i++ {
		h.Add(HistoryEntry{ID: fmt.Sprint(i)})
	}
	assert.Equal(t, 50, h.Len())
	recent := h.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"59", "58", "57"}, []string{recent[0].ID, recent[1].ID, recent[2].ID})
	all := h.Recent(0)
	assert.Equal(t, "10", all[len(all)-1].ID)

	assert.Equal(t, 100, NewHistory(500).Cap())
}

func TestHistory_PartialAndConcurrent(t *testing.T) {
	h := NewHistory(100)
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Add(HistoryEntry{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 40, h.Len())
	assert.Len(t, h.Recent(100), 40)
}

// #endregion

// #region improve

func TestImprove(t *testing.T) {
	withSupport := Improve("Pythonのことでしょうか。", "Python", []string{"は", "ライブラリ"})
	assert.Equal(t, "Pythonのことでしょうか。Pythonとライブラリの関係について、具体的な場面を教えていただけると、より詳しくお答えできます。", withSupport)

	bare := Improve("Pythonのことでしょうか。", "Python", nil)
	assert.Equal(t, "Pythonのことでしょうか。Pythonのどの点について知りたいか、もう少し教えてください。", bare)

	assert.Empty(t, Improve("何か", "", nil), "no anchor term")
	assert.Empty(t, Improve(bare, "Python", nil), "clause already present")
}

func TestImprovementNotes(t *testing.T) {
	assert.Equal(t, []string{"more_context", "low-confidence candidate replaced by template"},
		improvementNotes([]string{"more_context", " "}, true, false))
	assert.Empty(t, improvementNotes(nil, false, false))
}

// #endregion

// #region memory

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b []string
		want float64
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, 1},
		{[]string{"a", "b"}, []string{"b", "c"}, 1.0 / 3},
		{[]string{"a", "a"}, []string{"a"}, 1},
		{[]string{"a"}, []string{"b"}, 0},
		{nil, nil, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Jaccard(tt.a, tt.b), 1e-12, "%v/%v", tt.a, tt.b)
	}
}

func TestPairMemory_RanksByOverlapThenStrength(t *testing.T) {
	st := openStore(t, "")
	mem, err := NewPairMemory(st.DB())
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	pairs := []Pair{
		{UserID: "u", Keywords: []string{"Go", "並行"}, Primary: "Go", Support: []string{"goroutine"}, Strength: 0.6},
		{UserID: "u", Keywords: []string{"Go"}, Primary: "Go", Support: []string{"channel"}, Strength: 0.7},
		{UserID: "u", Keywords: []string{"Go"}, Primary: "Go", Support: []string{"old"}, Strength: 0.9, CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{UserID: "v", Keywords: []string{"Go"}, Primary: "Go", Strength: 1},
		{UserID: "u", Keywords: nil, Primary: "ignored"},
	}
	for _, p := range pairs {
		require.NoError(t, mem.Remember(ctx, p))
	}

	best, ok, err := mem.Best(ctx, "u", []string{"Go"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"channel"}, best.Support, "full overlap, fresh strength beats decayed strength")

	best, ok, err = mem.Best(ctx, "u", []string{"Go", "並行"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"goroutine"}, best.Support)

	_, ok, err = mem.Best(ctx, "u", []string{"Rust"})
	require.NoError(t, err)
	assert.False(t, ok)
}

// #endregion

// #region learners

type fakeLearningStore struct {
	mu        sync.Mutex
	relations []string
	ngrams    []string
	fail      bool
}

func (f *fakeLearningStore) RecordRelation(_ context.Context, userID, keyword, term string, strength float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.relations = append(f.relations, fmt.Sprintf("%s:%s→%s@%.1f", userID, keyword, term, strength))
	return nil
}

func (f *fakeLearningStore) RecordNgram(_ context.Context, contextWord, word string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("disk full")
	}
	f.ngrams = append(f.ngrams, contextWord+"→"+word)
	return nil
}

func TestStoreLearner_Learn(t *testing.T) {
	fs := &fakeLearningStore{}
	l := NewStoreLearner(fs)
	err := l.Learn(context.Background(), Feedback{
		UserID:   "alice",
		Keywords: []string{"Python"},
		Response: "ライブラリはデータ分析と深く関係する重要な観点です。",
		Terms:    []string{"ライブラリ", "データ分析"},
		Quality:  0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice:Python→ライブラリ@0.8", "alice:Python→データ分析@0.8"}, fs.relations,
		"only content terms are learned, never the phrasing around them")
	assert.Equal(t, []string{"ライブラリ→データ分析"}, fs.ngrams)
}

func TestStoreLearner_JoinsErrors(t *testing.T) {
	l := NewStoreLearner(&fakeLearningStore{fail: true})
	err := l.Learn(context.Background(), Feedback{UserID: "u", Keywords: []string{"Go"}, Terms: []string{"Rust", "Cargo"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

type countingLearner struct {
	n    atomic.Int32
	fail bool
}

func (c *countingLearner) Learn(context.Context, Feedback) error {
	c.n.Add(1)
	if c.fail {
		return errors.New("remote unavailable")
	}
	return nil
}

type panickingLearner struct{}

func (panickingLearner) Learn(context.Context, Feedback) error { panic("boom") }

func TestDispatcher_RateLimitsAndIsolatesFailures(t *testing.T) {
	ok := &countingLearner{}
	bad := &countingLearner{fail: true}
	d := newDispatcher([]Learner{ok, bad, panickingLearner{}}, 0.001, 2, time.Second, slog.Default())

	accepted := 0
	for i := 0; i < 5; i++ {
		if d.dispatch(Feedback{RequestID: fmt.Sprint(i)}) {
			accepted++
		}
	}
	d.wait()
	assert.Equal(t, 2, accepted, "burst of 2 then dropped")
	assert.Equal(t, int32(2), ok.n.Load())
	assert.Equal(t, int32(2), bad.n.Load())
}

func TestDispatcher_NoLearners(t *testing.T) {
	d := newDispatcher(nil, 1, 1, time.Second, slog.Default())
	assert.False(t, d.dispatch(Feedback{}))
	d.wait()
}

// #endregion
