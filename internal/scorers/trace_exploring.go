package scorers

import (
	"context"
	"fmt"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

// traceExploringScorer hands the judgment capability a query handle over
// the trace's ordered step sequence. The judge may issue any number of
// exploration queries before recording its verdict; the engine's
// per-pair timeout bounds the whole exploration.
type traceExploringScorer struct {
	def  models.ScorerDefinition
	cap  judge.Capability
	vars []models.TemplateVar
}

func newTraceExploringScorer(def models.ScorerDefinition, capability judge.Capability) (*traceExploringScorer, error) {
	if def.JudgeModel == "" {
		return nil, fmt.Errorf("trace-exploring scorer %q has no judge model", def.Name)
	}

	return &traceExploringScorer{
		def:  def,
		cap:  capability,
		vars: def.TemplateVars(),
	}, nil
}

func (s *traceExploringScorer) Name() string            { return s.def.Name }
func (s *traceExploringScorer) Kind() models.ScorerKind { return models.ScorerKindTraceExploring }

// Evaluate implements [Scorer].
func (s *traceExploringScorer) Evaluate(ctx context.Context, ec *Context) (*models.Verdict, error) {
	return askJudge(ctx, s.cap, s.def, ec, &judge.Request{
		Model:        s.def.JudgeModel,
		Instructions: renderInstructions(s.def.Instructions),
		Context:      ec.payload(s.vars),
		ValueType:    s.def.ValueType,
		Labels:       s.def.Labels,
		Trace:        &stepQuerier{steps: ec.Steps},
	})
}

// stepQuerier is the read-only step handle given to exploring judges.
type stepQuerier struct {
	steps []models.Step
}

// Steps implements [judge.TraceQuerier].
func (q *stepQuerier) Steps(ctx context.Context) ([]models.Step, error) {
	return q.steps, nil
}

// Step implements [judge.TraceQuerier].
func (q *stepQuerier) Step(ctx context.Context, index int) (*models.Step, error) {
	if index < 0 || index >= len(q.steps) {
		return nil, fmt.Errorf("step index %d out of range [0,%d)", index, len(q.steps))
	}
	step := q.steps[index]
	return &step, nil
}
