package scorers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

func sampleContext() *Context {
	return &Context{
		TraceID: "tr-1",
		RunID:   "run-1",
		Inputs:  map[string]any{"question": "what is the refund policy?"},
		Outputs: map[string]any{"answer": "30 days, no questions asked"},
	}
}

func TestBuiltinScorer(t *testing.T) {
	stub := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(true), Rationale: "no unsafe content"},
	}

	def := models.ScorerDefinition{
		Name:      "safety",
		Kind:      models.ScorerKindBuiltin,
		BuiltinID: BuiltinSafety,
		ValueType: models.ValueTypeBoolean,
	}

	s, err := New(def, stub, "judge-model")
	require.NoError(t, err)

	v, err := s.Evaluate(context.Background(), sampleContext())
	require.NoError(t, err)
	require.Equal(t, models.VerdictSucceeded, v.Status)
	require.True(t, *v.Value.Bool)
	require.Equal(t, "no unsafe content", v.Rationale)

	// The stock prompt is fixed and the request carries only
	// inputs/outputs.
	require.Equal(t, 1, stub.CallCount())
	req := stub.Calls[0]
	require.Equal(t, "judge-model", req.Model)
	require.Contains(t, req.Instructions, "unsafe content")
	require.Contains(t, req.Context, models.VarInputs)
	require.Contains(t, req.Context, models.VarOutputs)
	require.NotContains(t, req.Context, models.VarTrace)
}

func TestNewBuiltinUnknownID(t *testing.T) {
	def := models.ScorerDefinition{
		Name:      "x",
		Kind:      models.ScorerKindBuiltin,
		BuiltinID: "sentiment",
		ValueType: models.ValueTypeBoolean,
	}
	_, err := New(def, &judge.StubCapability{}, "m")
	require.ErrorContains(t, err, "not a stock judge")
}

func TestGuidelineScorerPromptListsGuidelines(t *testing.T) {
	stub := &judge.StubCapability{
		Default: &judge.Judgment{Value: models.BoolValue(false), Rationale: "fabricated the date"},
	}

	def := models.ScorerDefinition{
		Name:       "accuracy",
		Kind:       models.ScorerKindGuideline,
		Guidelines: []string{"No fabrication", "Dates must come from the provided data"},
		ValueType:  models.ValueTypeBoolean,
	}

	s, err := New(def, stub, "judge-model")
	require.NoError(t, err)

	v, err := s.Evaluate(context.Background(), sampleContext())
	require.NoError(t, err)
	require.False(t, *v.Value.Bool)
	require.Equal(t, "fabricated the date", v.Rationale)

	req := stub.Calls[0]
	require.Contains(t, req.Instructions, "1. No fabrication")
	require.Contains(t, req.Instructions, "2. Dates must come from the provided data")
}

func TestCustomLLMScorer(t *testing.T) {
	def := models.ScorerDefinition{
		Name:         "steps_and_reasoning",
		Kind:         models.ScorerKindCustomLLM,
		Instructions: "Analyze {{ outputs }} for leaked reasoning steps.",
		ValueType:    models.ValueTypeBoolean,
	}

	t.Run("placeholders rendered, only declared vars sent", func(t *testing.T) {
		stub := &judge.StubCapability{}
		s, err := New(def, stub, "judge-model")
		require.NoError(t, err)

		_, err = s.Evaluate(context.Background(), sampleContext())
		require.NoError(t, err)

		req := stub.Calls[0]
		require.NotContains(t, req.Instructions, "{{")
		require.Contains(t, req.Instructions, "the outputs provided below")
		require.Contains(t, req.Context, models.VarOutputs)
		require.NotContains(t, req.Context, models.VarInputs)
	})

	t.Run("wrong verdict type becomes a failed verdict", func(t *testing.T) {
		stub := &judge.StubCapability{
			Default: &judge.Judgment{Value: models.NumberValue(0.7)},
		}
		s, err := New(def, stub, "judge-model")
		require.NoError(t, err)

		v, err := s.Evaluate(context.Background(), sampleContext())
		require.NoError(t, err)
		require.Equal(t, models.VerdictFailed, v.Status)
		require.Contains(t, v.Rationale, "rejected")
	})

	t.Run("capability fault propagates for retry policy", func(t *testing.T) {
		stub := &judge.StubCapability{
			Err: &judge.Fault{Retryable: true, Err: context.DeadlineExceeded},
		}
		s, err := New(def, stub, "judge-model")
		require.NoError(t, err)

		_, err = s.Evaluate(context.Background(), sampleContext())
		require.Error(t, err)
		require.True(t, judge.IsRetryable(err))
	})

	t.Run("categorical verdict carries the label", func(t *testing.T) {
		catDef := def
		catDef.Name = "tone"
		catDef.ValueType = models.ValueTypeCategorical
		catDef.Labels = []string{"formal", "casual"}

		stub := &judge.StubCapability{
			Default: &judge.Judgment{Value: models.LabelValue("casual"), Rationale: "contractions throughout"},
		}
		s, err := New(catDef, stub, "judge-model")
		require.NoError(t, err)

		v, err := s.Evaluate(context.Background(), sampleContext())
		require.NoError(t, err)
		require.Equal(t, "casual", *v.Value.Label)
		require.Equal(t, []string{"formal", "casual"}, stub.Calls[0].Labels)
	})
}

func TestTraceExploringScorer(t *testing.T) {
	now := time.Now()
	ec := sampleContext()
	ec.Steps = []models.Step{
		{Index: 0, Name: "lookup_policy", Kind: models.StepKindTool, StartedAt: now, EndedAt: now.Add(120 * time.Millisecond)},
		{Index: 1, Name: "compose_answer", Kind: models.StepKindLLM, StartedAt: now, EndedAt: now.Add(800 * time.Millisecond)},
	}

	def := models.ScorerDefinition{
		Name:         "tool_call_correctness",
		Kind:         models.ScorerKindTraceExploring,
		Instructions: "Analyze the {{ trace }} for appropriate tool use.",
		ValueType:    models.ValueTypeBoolean,
		JudgeModel:   "trace-judge",
	}

	stub := &judge.StubCapability{
		Responses: []judge.StubResponse{{
			ExploreSteps: true,
			Judgment:     &judge.Judgment{Value: models.BoolValue(true), Rationale: "called lookup before answering"},
		}},
	}

	s, err := New(def, stub, "default-model")
	require.NoError(t, err)

	v, err := s.Evaluate(context.Background(), ec)
	require.NoError(t, err)
	require.Equal(t, models.VerdictSucceeded, v.Status)

	// The per-scorer judge model wins over the monitor default, and the
	// request exposes the step handle.
	req := stub.Calls[0]
	require.Equal(t, "trace-judge", req.Model)
	require.NotNil(t, req.Trace)

	steps, err := req.Trace.Steps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 2)

	step, err := req.Trace.Step(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "compose_answer", step.Name)

	_, err = req.Trace.Step(context.Background(), 5)
	require.ErrorContains(t, err, "out of range")
}

func TestBuildContextProjectsDeclaredVars(t *testing.T) {
	trace := &models.Trace{
		ID:           "tr-9",
		Inputs:       map[string]any{"q": "hi"},
		Outputs:      map[string]any{"a": "hello"},
		Expectations: map[string]any{"a": "hello"},
		Steps:        []models.Step{{Index: 0, Name: "llm"}},
	}

	ec := BuildContext(trace, "run-1", []models.TemplateVar{models.VarOutputs})
	require.Equal(t, "tr-9", ec.TraceID)
	require.NotNil(t, ec.Outputs)
	require.Nil(t, ec.Inputs)
	require.Nil(t, ec.Expectations)
	require.Nil(t, ec.Steps)
}
