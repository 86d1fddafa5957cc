package scorers

import (
	"context"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

// customLLMScorer runs user-written judge instructions with a declared
// verdict type. Instructions may reference only the closed template
// vocabulary; the referenced variables decide what the judge sees.
type customLLMScorer struct {
	def        models.ScorerDefinition
	capability judge.Capability
	model      string
	vars       []models.TemplateVar
}

func newCustomLLMScorer(def models.ScorerDefinition, capability judge.Capability, defaultModel string) (*customLLMScorer, error) {
	vars, err := models.ExtractTemplateVars(def.Instructions)
	if err != nil {
		return nil, err
	}

	return &customLLMScorer{
		def:        def,
		capability: capability,
		model:      modelFor(def, defaultModel),
		vars:       vars,
	}, nil
}

func (s *customLLMScorer) Name() string            { return s.def.Name }
func (s *customLLMScorer) Kind() models.ScorerKind { return models.ScorerKindCustomLLM }

// Evaluate implements [Scorer].
func (s *customLLMScorer) Evaluate(ctx context.Context, ec *Context) (*models.Verdict, error) {
	return askJudge(ctx, s.capability, s.def, ec, &judge.Request{
		Model:        s.model,
		Instructions: renderInstructions(s.def.Instructions),
		Context:      ec.payload(s.vars),
		ValueType:    s.def.ValueType,
		Labels:       s.def.Labels,
	})
}
