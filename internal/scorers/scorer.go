// Package scorers holds the evaluation units a monitoring run applies to
// sampled traces: stock LLM judges, guideline judges, fully custom
// judges, deterministic code scorers, and trace-exploring judges.
package scorers

import (
	"context"
	"fmt"
	"time"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

// Scorer is the interface every evaluation unit implements.
type Scorer interface {
	// Name returns the registered scorer name.
	Name() string

	// Kind returns the scorer kind.
	Kind() models.ScorerKind

	// Evaluate applies the scorer to one trace context and returns a
	// verdict. A returned error is an evaluation fault: the engine
	// records it as a failed verdict, it never aborts the run.
	Evaluate(ctx context.Context, ec *Context) (*models.Verdict, error)
}

// Context is the typed evaluation context for one (scorer, trace) pair.
// It carries only the template variables the scorer declared; undeclared
// fields stay nil so a judge can never see data it did not ask for.
type Context struct {
	TraceID string
	RunID   string

	Inputs       map[string]any
	Outputs      map[string]any
	Expectations map[string]any
	Steps        []models.Step
}

// BuildContext projects a trace onto the scorer's declared variables.
func BuildContext(trace *models.Trace, runID string, vars []models.TemplateVar) *Context {
	ec := &Context{TraceID: trace.ID, RunID: runID}
	for _, v := range vars {
		switch v {
		case models.VarInputs:
			ec.Inputs = trace.Inputs
		case models.VarOutputs:
			ec.Outputs = trace.Outputs
		case models.VarExpectations:
			ec.Expectations = trace.Expectations
		case models.VarTrace:
			ec.Steps = trace.Steps
		}
	}
	return ec
}

// payload returns the judge-request context for the declared variables.
func (ec *Context) payload(vars []models.TemplateVar) map[models.TemplateVar]any {
	out := make(map[models.TemplateVar]any, len(vars))
	for _, v := range vars {
		switch v {
		case models.VarInputs:
			out[v] = ec.Inputs
		case models.VarOutputs:
			out[v] = ec.Outputs
		case models.VarExpectations:
			out[v] = ec.Expectations
		case models.VarTrace:
			out[v] = ec.Steps
		}
	}
	return out
}

// New builds the Scorer for a registered definition. defaultModel is the
// monitor's judge model, used when the definition does not override it.
// Definitions are validated at registration, so New only fails on
// implementation-level problems (unknown code scorer id, bad params).
func New(def models.ScorerDefinition, capability judge.Capability, defaultModel string) (Scorer, error) {
	switch def.Kind {
	case models.ScorerKindBuiltin:
		return newBuiltinScorer(def, capability, defaultModel)
	case models.ScorerKindGuideline:
		return newGuidelineScorer(def, capability, defaultModel), nil
	case models.ScorerKindCustomLLM:
		return newCustomLLMScorer(def, capability, defaultModel)
	case models.ScorerKindCode:
		return newCodeScorer(def)
	case models.ScorerKindTraceExploring:
		return newTraceExploringScorer(def, capability)
	default:
		return nil, fmt.Errorf("%q is not a valid scorer kind", def.Kind)
	}
}

// ValidateDefinition runs the full registration-time check: the
// structural rules on the definition plus the implementation-level
// checks New would otherwise fail at run time (stock judge ids, code
// scorer ids, code scorer params such as an inline schema). A
// definition that passes never aborts a monitoring run over its own
// construction.
func ValidateDefinition(def models.ScorerDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	switch def.Kind {
	case models.ScorerKindBuiltin:
		if _, ok := builtinInstructions[def.BuiltinID]; !ok {
			return &models.ValidationError{
				Field: "builtin",
				Msg: fmt.Sprintf("%q is not a stock judge: known judges are %s, %s, %s",
					def.BuiltinID, BuiltinSafety, BuiltinRelevanceToQuery, BuiltinRetrievalGroundedness),
			}
		}
	case models.ScorerKindCode:
		if _, err := newCodeScorer(def); err != nil {
			return &models.ValidationError{Field: "code_scorer", Msg: err.Error()}
		}
	}
	return nil
}

// finishVerdict stamps the bookkeeping fields shared by every scorer.
func finishVerdict(v *models.Verdict, ec *Context, name string, start time.Time) *models.Verdict {
	v.ScorerName = name
	v.TraceID = ec.TraceID
	v.RunID = ec.RunID
	v.EvaluatedAt = start
	v.DurationMs = time.Since(start).Milliseconds()
	return v
}

// modelFor picks the judge model for a definition.
func modelFor(def models.ScorerDefinition, defaultModel string) string {
	if def.JudgeModel != "" {
		return def.JudgeModel
	}
	return defaultModel
}
