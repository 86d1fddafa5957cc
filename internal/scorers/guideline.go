package scorers

import (
	"context"
	"fmt"
	"strings"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

// guidelineScorer judges inputs/outputs against pass/fail
// natural-language rules. The verdict is boolean: true only when the
// response complies with every guideline.
type guidelineScorer struct {
	def        models.ScorerDefinition
	capability judge.Capability
	model      string
}

func newGuidelineScorer(def models.ScorerDefinition, capability judge.Capability, defaultModel string) *guidelineScorer {
	return &guidelineScorer{
		def:        def,
		capability: capability,
		model:      modelFor(def, defaultModel),
	}
}

func (s *guidelineScorer) Name() string            { return s.def.Name }
func (s *guidelineScorer) Kind() models.ScorerKind { return models.ScorerKindGuideline }

// Evaluate implements [Scorer].
func (s *guidelineScorer) Evaluate(ctx context.Context, ec *Context) (*models.Verdict, error) {
	var sb strings.Builder
	sb.WriteString("Evaluate whether the response below complies with every guideline.\n\n## Guidelines\n")
	for i, g := range s.def.Guidelines {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(g))
	}
	sb.WriteString("\nThe request is in the inputs provided below and the response in the outputs provided below.\n")
	sb.WriteString("Rate as true only when every guideline passes; rate as false otherwise, and say which guideline failed.\n")
	sb.WriteString("Your response must be a boolean: true or false.")

	vars := s.def.TemplateVars()
	return askJudge(ctx, s.capability, s.def, ec, &judge.Request{
		Model:        s.model,
		Instructions: sb.String(),
		Context:      ec.payload(vars),
		ValueType:    models.ValueTypeBoolean,
	})
}
