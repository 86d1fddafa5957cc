// Package judge models the external natural-language judgment capability
// as an injected interface. Scorers render instructions and context, the
// capability returns a typed verdict value with a rationale. Engines
// under test substitute a deterministic stub.
package judge

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracewatch/tracewatch/internal/models"
)

// Request is one judgment invocation.
type Request struct {
	// Model is the judgment model reference (per-scorer override or the
	// monitor's default).
	Model string

	// Instructions is the fully rendered judge prompt.
	Instructions string

	// Context carries only the template variables the scorer declared,
	// keyed by variable name with JSON-ready payloads.
	Context map[models.TemplateVar]any

	// ValueType is the verdict type the response must coerce to.
	ValueType models.ValueType

	// Labels is the allowed label set for categorical verdicts.
	Labels []string

	// Trace grants read access to the ordered execution-step sequence.
	// Non-nil only for trace-exploring scorers; the capability may issue
	// multiple exploration queries through it before answering.
	Trace TraceQuerier
}

// Judgment is the capability's typed answer.
type Judgment struct {
	Value     models.VerdictValue
	Rationale string
}

// TraceQuerier exposes a trace's execution steps to an exploring judge.
// Read-only by construction.
type TraceQuerier interface {
	// Steps returns the full ordered step sequence.
	Steps(ctx context.Context) ([]models.Step, error)

	// Step returns one step by index.
	Step(ctx context.Context, index int) (*models.Step, error)
}

// Capability is the judgment backend boundary.
type Capability interface {
	Judge(ctx context.Context, req *Request) (*Judgment, error)
}

// Fault wraps a capability error with its retry classification. Rate
// limits and transient server errors are retryable; malformed requests
// and auth failures are not.
type Fault struct {
	Retryable bool
	Err       error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("judgment capability fault (retryable=%t): %v", f.Retryable, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsRetryable reports whether err is a capability fault worth one retry.
func IsRetryable(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.Retryable
}
