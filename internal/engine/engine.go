// Package engine runs scorer/trace pairs concurrently and isolates
// failures per pair: a bad judge call or a scorer bug costs one verdict,
// never the run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/scorers"
)

// Pair is one unit of evaluation work: a constructed scorer applied to
// one trace of its sample.
type Pair struct {
	Definition models.ScorerDefinition
	Scorer     scorers.Scorer
	Trace      *models.Trace
}

// EventType identifies a progress event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventPairComplete EventType = "pair_complete"
	EventRunComplete  EventType = "run_complete"
)

// ProgressEvent is a progress update emitted while a run evaluates.
type ProgressEvent struct {
	EventType  EventType
	ScorerName string
	TraceID    string
	Status     models.VerdictStatus
	PairNum    int
	TotalPairs int
	DurationMs int64
}

// ProgressListener receives progress updates.
type ProgressListener func(event ProgressEvent)

// Options tunes one engine instance.
type Options struct {
	// Workers bounds concurrent pair evaluations. Defaults to 4.
	Workers int
	// PairTimeout bounds a single evaluation, trace exploration
	// included. Defaults to 30s.
	PairTimeout time.Duration
	// JudgeQPS rate-limits judge calls across all workers. Zero means
	// unlimited.
	JudgeQPS float64
	Logger   *slog.Logger
}

// Engine evaluates pairs with a bounded worker pool.
type Engine struct {
	workers     int
	pairTimeout time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	progressMu sync.Mutex
	listeners  []ProgressListener
}

func New(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PairTimeout <= 0 {
		opts.PairTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var limiter *rate.Limiter
	if opts.JudgeQPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.JudgeQPS), 1)
	}

	return &Engine{
		workers:     opts.Workers,
		pairTimeout: opts.PairTimeout,
		limiter:     limiter,
		logger:      opts.Logger,
	}
}

// OnProgress registers a progress listener.
func (e *Engine) OnProgress(listener ProgressListener) {
	e.progressMu.Lock()
	defer e.progressMu.Unlock()
	e.listeners = append(e.listeners, listener)
}

func (e *Engine) notifyProgress(event ProgressEvent) {
	e.progressMu.Lock()
	listeners := make([]ProgressListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Run evaluates every pair and returns one verdict per dispatched pair,
// in input order. Every failure mode lands in the
// verdict for its own pair. When ctx is cancelled the engine stops
// dispatching, lets in-flight evaluations finish, and returns the
// verdicts collected so far.
func (e *Engine) Run(ctx context.Context, runID string, pairs []Pair) []*models.Verdict {
	e.notifyProgress(ProgressEvent{EventType: EventRunStart, TotalPairs: len(pairs)})
	startTime := time.Now()

	type result struct {
		index   int
		verdict *models.Verdict
	}

	resultChan := make(chan result, len(pairs))
	semaphore := make(chan struct{}, e.workers)

	var wg sync.WaitGroup
	var completed int
	var completedMu sync.Mutex

	for i, pair := range pairs {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(idx int, p Pair) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			pairStart := time.Now()
			v := e.evaluatePair(ctx, runID, p)
			resultChan <- result{index: idx, verdict: v}

			completedMu.Lock()
			completed++
			num := completed
			completedMu.Unlock()

			e.notifyProgress(ProgressEvent{
				EventType:  EventPairComplete,
				ScorerName: p.Scorer.Name(),
				TraceID:    p.Trace.ID,
				Status:     v.Status,
				PairNum:    num,
				TotalPairs: len(pairs),
				DurationMs: time.Since(pairStart).Milliseconds(),
			})
		}(i, pair)
	}

	wg.Wait()
	close(resultChan)

	results := make([]result, 0, len(pairs))
	for res := range resultChan {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	verdicts := make([]*models.Verdict, 0, len(results))
	for _, res := range results {
		verdicts = append(verdicts, res.verdict)
	}

	e.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		TotalPairs: len(pairs),
		DurationMs: time.Since(startTime).Milliseconds(),
	})
	return verdicts
}

// evaluatePair runs one scorer against one trace under the pair timeout.
// Judge faults get one retry when transient; whatever still goes wrong
// becomes a failed or timed-out verdict.
func (e *Engine) evaluatePair(ctx context.Context, runID string, p Pair) *models.Verdict {
	pairCtx, cancel := context.WithTimeout(ctx, e.pairTimeout)
	defer cancel()

	ec := scorers.BuildContext(p.Trace, runID, p.Definition.TemplateVars())

	v, err := e.evaluateOnce(pairCtx, p, ec)
	if err != nil && judge.IsRetryable(err) && pairCtx.Err() == nil {
		e.logger.Debug("retrying transient judge fault",
			"scorer", p.Scorer.Name(), "trace", p.Trace.ID, "error", err)
		v, err = e.evaluateOnce(pairCtx, p, ec)
	}
	if err == nil {
		return v
	}

	failed := &models.Verdict{
		ScorerName:  p.Scorer.Name(),
		TraceID:     p.Trace.ID,
		RunID:       ec.RunID,
		Status:      models.VerdictFailed,
		Rationale:   fmt.Sprintf("evaluation failed: %v", err),
		EvaluatedAt: time.Now(),
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		failed.Status = models.VerdictTimedOut
		failed.Rationale = fmt.Sprintf("evaluation timed out after %s", e.pairTimeout)
	}

	e.logger.Warn("pair evaluation failed",
		"scorer", p.Scorer.Name(), "trace", p.Trace.ID, "status", failed.Status, "error", err)
	return failed
}

func (e *Engine) evaluateOnce(ctx context.Context, p Pair, ec *scorers.Context) (*models.Verdict, error) {
	// Only judge-backed scorers consume rate limiter tokens.
	if e.limiter != nil && p.Definition.Kind != models.ScorerKindCode {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return p.Scorer.Evaluate(ctx, ec)
}
