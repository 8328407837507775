package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// #endregion

// #region store-learner

// LearningStore is the write surface the local learner grows the graph with.
type LearningStore interface {
	RecordRelation(ctx context.Context, userID, keyword, term string, strength float64) error
	RecordNgram(ctx context.Context, contextWord, word string) error
}

// StoreLearner applies feedback to the local store: relation edges from
// each input keyword to each content term (strength = quality) and bigram
// counts over the content terms. Writes for one user are serialized.
type StoreLearner struct {
	store LearningStore
	locks userLocks
}

// NewStoreLearner creates a learner over s.
func NewStoreLearner(s LearningStore) *StoreLearner {
	return &StoreLearner{store: s}
}

// Learn records fb. It keeps going after individual write failures and
// returns them joined.
func (l *StoreLearner) Learn(ctx context.Context, fb Feedback) error {
	unlock := l.locks.lock(fb.UserID)
	defer unlock()

	terms := fb.Terms
	var errs []error
	for _, kw := range fb.Keywords {
		for _, term := range terms {
			if err := l.store.RecordRelation(ctx, fb.UserID, kw, term, fb.Quality); err != nil {
				errs = append(errs, fmt.Errorf("relation %s→%s: %w", kw, term, err))
			}
		}
	}
	for i := 0; i+1 < len(terms); i++ {
		if err := l.store.RecordNgram(ctx, terms[i], terms[i+1]); err != nil {
			errs = append(errs, fmt.Errorf("ngram %s→%s: %w", terms[i], terms[i+1], err))
		}
	}
	if ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// #endregion

// #region user-locks

// userLocks hands out one mutex per user.
type userLocks struct {
	m sync.Map // userID → *sync.Mutex
}

func (u *userLocks) lock(userID string) func() {
	v, _ := u.m.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// #endregion

// #region dispatcher

// dispatcher fans feedback out to learners in the background. Feedback over
// the rate budget is dropped rather than queued.
type dispatcher struct {
	learners []Learner
	limiter  *rate.Limiter
	timeout  time.Duration
	wg       sync.WaitGroup
	log      *slog.Logger
}

func newDispatcher(learners []Learner, perSecond float64, burst int, timeout time.Duration, log *slog.Logger) *dispatcher {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dispatcher{
		learners: learners,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), burst),
		timeout:  timeout,
		log:      log,
	}
}

// dispatch returns immediately. It reports whether fb was accepted.
func (d *dispatcher) dispatch(fb Feedback) bool {
	if len(d.learners) == 0 {
		return false
	}
	if !d.limiter.Allow() {
		d.log.Warn("learner feedback dropped: rate limited", "request_id", fb.RequestID, "user_id", fb.UserID)
		return false
	}
	for _, l := range d.learners {
		d.wg.Add(1)
		go d.run(l, fb)
	}
	return true
}

func (d *dispatcher) run(l Learner, fb Feedback) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("learner panicked", "request_id", fb.RequestID, "learner", fmt.Sprintf("%T", l), "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := l.Learn(ctx, fb); err != nil {
		d.log.Warn("learner failed", "request_id", fb.RequestID, "user_id", fb.UserID,
			"learner", fmt.Sprintf("%T", l), "err", err)
	}
}

// wait blocks until in-flight learners finish.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

// #endregion
