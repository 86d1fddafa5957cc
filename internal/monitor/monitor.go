// Package monitor wires the pipeline together: read a trace window,
// sample scorer assignments, evaluate, attach feedback, and append the
// window to the durable sink.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracewatch/tracewatch/internal/engine"
	"github.com/tracewatch/tracewatch/internal/feedback"
	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/sampling"
	"github.com/tracewatch/tracewatch/internal/scorers"
	"github.com/tracewatch/tracewatch/internal/sink"
)

// TraceSource yields the live traces produced in a time window.
type TraceSource interface {
	Window(ctx context.Context, since, until time.Time) ([]models.Trace, error)
}

// ScorerRoster yields the active scorer definitions for a run.
type ScorerRoster interface {
	Snapshot() []models.ScorerDefinition
}

// persistTimeout bounds the sink and feedback writes. Persistence runs
// detached from the run context: a run cut off mid-evaluation still
// writes its batch and attaches the verdicts it produced.
const persistTimeout = 30 * time.Second

// Monitor runs the evaluation pipeline for one experiment.
type Monitor struct {
	cfg      *Config
	registry ScorerRoster
	source   TraceSource
	store    *sink.Store
	engine   *engine.Engine
	attacher *feedback.Attacher
	judge    judge.Capability
	logger   *slog.Logger

	// lastWindowEnd is the exclusive lower bound of the next window. A
	// structurally failed run does not advance it, so the next run
	// retries the same traces.
	lastWindowEnd time.Time
}

// New assembles a monitor from its collaborators.
func New(cfg *Config, roster ScorerRoster, source TraceSource, store *sink.Store, capability judge.Capability, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		cfg:      cfg,
		registry: roster,
		source:   source,
		store:    store,
		judge:    capability,
		logger:   logger,
		engine: engine.New(engine.Options{
			Workers:     cfg.Workers,
			PairTimeout: cfg.PairTimeout,
			JudgeQPS:    cfg.JudgeQPS,
			Logger:      logger,
		}),
		attacher: feedback.NewAttacher(store, logger, cfg.Workers),
	}
}

// Engine exposes the evaluation engine so callers can subscribe to
// progress events.
func (m *Monitor) Engine() *engine.Engine { return m.engine }

// RunOnce executes one monitoring run over the traces that arrived since
// the previous run. Per-pair evaluation failures degrade the run to
// partially failed; only structural faults (window unreadable, scorer
// construction, sink unreachable) fail it, and those are returned as an
// error alongside the failed run record.
func (m *Monitor) RunOnce(ctx context.Context) (*models.MonitoringRun, error) {
	started := time.Now().UTC()

	run := &models.MonitoringRun{
		RunID:        uuid.NewString(),
		ExperimentID: m.cfg.ExperimentID,
		WindowStart:  m.lastWindowEnd,
		WindowEnd:    started,
		StartedAt:    started,
	}
	logger := m.logger.With("run", run.RunID)

	traces, err := m.source.Window(ctx, run.WindowStart, run.WindowEnd)
	if err != nil {
		return m.failRun(run, "reading trace window", err)
	}
	run.WindowSize = len(traces)

	snapshot := m.registry.Snapshot()
	logger.Info("monitoring run started",
		"window_size", len(traces), "active_scorers", len(snapshot))

	traceIDs := make([]string, 0, len(traces))
	byID := make(map[string]*models.Trace, len(traces))
	for i := range traces {
		traceIDs = append(traceIDs, traces[i].ID)
		byID[traces[i].ID] = &traces[i]
	}

	assignment := sampling.Assign(m.cfg.ExperimentID, snapshot, traceIDs)
	run.Assignments = assignment.Sizes()

	var pairs []engine.Pair
	var broken []*models.Verdict
	for _, def := range snapshot {
		s, err := scorers.New(def, m.judge, m.cfg.JudgeModel)
		if err != nil {
			// Registration validates definitions, so this only happens
			// when a roster written by another build names an
			// implementation this one lacks. It costs the scorer's own
			// pairs, never the run.
			logger.Warn("scorer construction failed", "scorer", def.Name, "error", err)
			now := time.Now().UTC()
			for _, traceID := range assignment[def.Name] {
				broken = append(broken, &models.Verdict{
					ScorerName:  def.Name,
					TraceID:     traceID,
					RunID:       run.RunID,
					Status:      models.VerdictFailed,
					Rationale:   fmt.Sprintf("scorer construction failed: %v", err),
					EvaluatedAt: now,
				})
			}
			continue
		}
		for _, traceID := range assignment[def.Name] {
			pairs = append(pairs, engine.Pair{Definition: def, Scorer: s, Trace: byID[traceID]})
		}
	}

	verdicts := m.engine.Run(ctx, run.RunID, pairs)
	verdicts = append(verdicts, broken...)

	// Persistence is detached from the run deadline: a run cut off
	// mid-evaluation is a valid partial run, so its batch and its
	// collected verdicts must still land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	// The full window lands in the sink whether or not any pair failed.
	if err := m.store.AppendBatch(persistCtx, run.RunID, traces); err != nil {
		return m.failRun(run, "appending trace batch", err)
	}

	attached, err := m.attacher.Attach(persistCtx, started, verdicts)
	if err != nil {
		return m.failRun(run, "attaching feedback", err)
	}

	run.Verdicts = make([]models.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		run.Verdicts = append(run.Verdicts, *v)
	}
	run.FinishedAt = time.Now().UTC()
	run.Status = models.RunCompleted
	if run.FailedPairs() > 0 || ctx.Err() != nil {
		run.Status = models.RunPartiallyFailed
	}

	m.lastWindowEnd = run.WindowEnd

	logger.Info("monitoring run finished",
		"status", run.Status,
		"pairs", len(verdicts),
		"failed_pairs", run.FailedPairs(),
		"feedback_attached", attached,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds())
	return run, nil
}

// RunEvery runs continuously at the configured interval until ctx is
// cancelled. Structural run failures are logged and retried on the next
// tick.
func (m *Monitor) RunEvery(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		// Each run gets the interval as a soft deadline: a run that
		// overruns is cut off, its partial output stands, and the next
		// tick starts fresh.
		runCtx, cancel := context.WithTimeout(ctx, m.cfg.Interval)
		_, err := m.RunOnce(runCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			m.logger.Error("monitoring run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) failRun(run *models.MonitoringRun, op string, err error) (*models.MonitoringRun, error) {
	serr := &models.StructuralError{Op: op, Err: err}
	run.Status = models.RunFailed
	run.ErrorMsg = serr.Error()
	run.FinishedAt = time.Now().UTC()
	m.logger.Error("monitoring run failed", "run", run.RunID, "op", op, "error", err)
	return run, serr
}
