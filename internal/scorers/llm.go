package scorers

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// renderInstructions rewrites {{ var }} placeholders into references to
// the context payloads the judge receives alongside the prompt. The
// variables were validated against the closed vocabulary at
// registration, so this is pure presentation.
func renderInstructions(instructions string) string {
	return placeholderPattern.ReplaceAllString(instructions, "the $1 provided below")
}

// askJudge runs one natural-language judgment and converts the answer
// into a verdict. Capability faults propagate as errors so the engine
// can apply its retry policy; a judgment of the wrong type is recorded
// as a failed verdict right here.
func askJudge(ctx context.Context, capability judge.Capability, def models.ScorerDefinition, ec *Context, req *judge.Request) (*models.Verdict, error) {
	start := time.Now()

	judgment, err := capability.Judge(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := checkValueType(judgment.Value, def.ValueType); err != nil {
		return finishVerdict(&models.Verdict{
			Status:    models.VerdictFailed,
			Rationale: fmt.Sprintf("judgment response rejected: %v", err),
		}, ec, def.Name, start), nil
	}

	return finishVerdict(&models.Verdict{
		Status:    models.VerdictSucceeded,
		Value:     judgment.Value,
		Rationale: judgment.Rationale,
	}, ec, def.Name, start), nil
}

// checkValueType re-validates that a judgment carries the declared
// verdict type. The capability adapter coerces already; this guards
// against a misbehaving backend handing back the wrong shape.
func checkValueType(v models.VerdictValue, want models.ValueType) error {
	switch want {
	case models.ValueTypeBoolean:
		if v.Bool == nil {
			return fmt.Errorf("expected a boolean verdict, got %s", v)
		}
	case models.ValueTypeNumeric:
		if v.Number == nil {
			return fmt.Errorf("expected a numeric verdict, got %s", v)
		}
	case models.ValueTypeCategorical:
		if v.Label == nil {
			return fmt.Errorf("expected a categorical verdict, got %s", v)
		}
	}
	return nil
}
