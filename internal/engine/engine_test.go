package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/scorers"
)

func guidelinePair(t *testing.T, name, traceID string, capability judge.Capability) Pair {
	t.Helper()

	def := models.ScorerDefinition{
		Name:       name,
		Kind:       models.ScorerKindGuideline,
		Guidelines: []string{"no fabrication"},
		ValueType:  models.ValueTypeBoolean,
	}
	s, err := scorers.New(def, capability, "judge-model")
	require.NoError(t, err)

	return Pair{
		Definition: def,
		Scorer:     s,
		Trace: &models.Trace{
			ID:      traceID,
			Inputs:  map[string]any{"q": "?"},
			Outputs: map[string]any{"a": "!"},
		},
	}
}

func TestRunEvaluatesEveryPair(t *testing.T) {
	stub := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true), Rationale: "fine"},
	}

	pairs := []Pair{
		guidelinePair(t, "accuracy", "tr-1", stub),
		guidelinePair(t, "accuracy", "tr-2", stub),
		guidelinePair(t, "safety", "tr-1", stub),
	}

	e := New(Options{Workers: 2})
	verdicts := e.Run(context.Background(), "run-1", pairs)
	require.Len(t, verdicts, 3)

	for i, v := range verdicts {
		require.Equal(t, models.VerdictSucceeded, v.Status)
		require.Equal(t, "run-1", v.RunID)
		require.Equal(t, pairs[i].Scorer.Name(), v.ScorerName)
		require.Equal(t, pairs[i].Trace.ID, v.TraceID)
	}
}

// errCapability fails every call with a fixed fault.
type errCapability struct {
	fault *judge.Fault
}

func (c *errCapability) Judge(context.Context, *judge.Request) (*judge.Judgment, error) {
	return nil, c.fault
}

func TestRunIsolatesPairFailures(t *testing.T) {
	good := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true)},
	}
	bad := &errCapability{fault: &judge.Fault{Err: errors.New("judge rejected the request")}}

	pairs := []Pair{
		guidelinePair(t, "accuracy", "tr-1", good),
		guidelinePair(t, "accuracy", "tr-2", bad),
		guidelinePair(t, "accuracy", "tr-3", good),
	}

	e := New(Options{Workers: 1})
	verdicts := e.Run(context.Background(), "run-1", pairs)
	require.Len(t, verdicts, 3)

	require.Equal(t, models.VerdictSucceeded, verdicts[0].Status)
	require.Equal(t, models.VerdictFailed, verdicts[1].Status)
	require.Contains(t, verdicts[1].Rationale, "judge rejected")
	require.Equal(t, models.VerdictSucceeded, verdicts[2].Status)
}

// flakyCapability fails the first n calls with a retryable fault.
type flakyCapability struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *flakyCapability) Judge(context.Context, *judge.Request) (*judge.Judgment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return nil, &judge.Fault{Retryable: true, Err: errors.New("overloaded")}
	}
	return &judge.Judgment{Value: models.BoolValue(true), Rationale: "ok"}, nil
}

func TestRunRetriesTransientFaultsOnce(t *testing.T) {
	flaky := &flakyCapability{failures: 1}
	pairs := []Pair{guidelinePair(t, "accuracy", "tr-1", flaky)}

	e := New(Options{})
	verdicts := e.Run(context.Background(), "run-1", pairs)
	require.Len(t, verdicts, 1)
	require.Equal(t, models.VerdictSucceeded, verdicts[0].Status)
	require.Equal(t, 2, flaky.calls)
}

func TestRunDoesNotRetryTwice(t *testing.T) {
	flaky := &flakyCapability{failures: 2}
	pairs := []Pair{guidelinePair(t, "accuracy", "tr-1", flaky)}

	e := New(Options{})
	verdicts := e.Run(context.Background(), "run-1", pairs)
	require.Len(t, verdicts, 1)
	require.Equal(t, models.VerdictFailed, verdicts[0].Status)
	require.Equal(t, 2, flaky.calls)
}

// stuckCapability blocks until the call context expires.
type stuckCapability struct{}

func (stuckCapability) Judge(ctx context.Context, _ *judge.Request) (*judge.Judgment, error) {
	<-ctx.Done()
	return nil, &judge.Fault{Err: ctx.Err()}
}

func TestRunTimesOutStuckPairs(t *testing.T) {
	good := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true)},
	}

	pairs := []Pair{
		guidelinePair(t, "accuracy", "tr-1", stuckCapability{}),
		guidelinePair(t, "accuracy", "tr-2", good),
	}

	e := New(Options{Workers: 2, PairTimeout: 50 * time.Millisecond})
	verdicts := e.Run(context.Background(), "run-1", pairs)
	require.Len(t, verdicts, 2)

	require.Equal(t, models.VerdictTimedOut, verdicts[0].Status)
	require.Contains(t, verdicts[0].Rationale, "timed out")
	require.Equal(t, models.VerdictSucceeded, verdicts[1].Status)
}

func TestRunStopsDispatchingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true)},
	}
	pairs := []Pair{
		guidelinePair(t, "accuracy", "tr-1", stub),
		guidelinePair(t, "accuracy", "tr-2", stub),
	}

	e := New(Options{})
	verdicts := e.Run(ctx, "run-1", pairs)
	require.Empty(t, verdicts)
	require.Equal(t, 0, stub.CallCount())
}

func TestRunEmitsProgressEvents(t *testing.T) {
	stub := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true)},
	}
	pairs := []Pair{
		guidelinePair(t, "accuracy", "tr-1", stub),
		guidelinePair(t, "accuracy", "tr-2", stub),
	}

	var mu sync.Mutex
	var events []ProgressEvent
	e := New(Options{Workers: 1})
	e.OnProgress(func(event ProgressEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})

	e.Run(context.Background(), "run-1", pairs)

	require.Len(t, events, 4)
	require.Equal(t, EventRunStart, events[0].EventType)
	require.Equal(t, 2, events[0].TotalPairs)
	require.Equal(t, EventPairComplete, events[1].EventType)
	require.Equal(t, EventPairComplete, events[2].EventType)
	require.Equal(t, EventRunComplete, events[3].EventType)
}
