// Package feedback turns run verdicts into feedback entries attached to
// the traces they scored.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tracewatch/tracewatch/internal/models"
)

// Store appends one feedback entry, reporting false when an entry with
// the same (scorer, trace, run) key already exists.
type Store interface {
	AppendFeedback(ctx context.Context, entry models.FeedbackEntry) (bool, error)
}

// Attacher writes verdicts back to their traces as feedback. Entries are
// keyed by (scorer, trace, run), so re-attaching the output of the same
// run is a no-op and a trace evaluated by several runs accumulates one
// entry per run, distinguishable by run start time.
type Attacher struct {
	store       Store
	logger      *slog.Logger
	concurrency int
}

// NewAttacher builds an attacher over the given store. Concurrency
// bounds the number of in-flight appends; values below 1 mean serial.
func NewAttacher(store Store, logger *slog.Logger, concurrency int) *Attacher {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Attacher{store: store, logger: logger, concurrency: concurrency}
}

// Attach appends one feedback entry per verdict and returns how many
// entries were newly created. Duplicates are counted as skipped, not
// errors. The first store error aborts the remaining appends; entries
// already written stay written, which is safe because a rerun skips
// them.
func (a *Attacher) Attach(ctx context.Context, runStarted time.Time, verdicts []*models.Verdict) (int, error) {
	var created atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, v := range verdicts {
		g.Go(func() error {
			entry := models.FeedbackEntry{
				ScorerName: v.ScorerName,
				TraceID:    v.TraceID,
				RunID:      v.RunID,
				RunStarted: runStarted,
				Verdict:    *v,
			}

			fresh, err := a.store.AppendFeedback(ctx, entry)
			if err != nil {
				return fmt.Errorf("attaching verdict of %q to trace %s: %w", v.ScorerName, v.TraceID, err)
			}
			if fresh {
				created.Add(1)
			} else {
				a.logger.Debug("feedback already attached, skipping",
					"scorer", v.ScorerName, "trace", v.TraceID, "run", v.RunID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(created.Load()), err
	}
	return int(created.Load()), nil
}
