package judge

import (
	"context"
	"strings"
	"sync"

	"github.com/tracewatch/tracewatch/internal/models"
)

// StubCapability is a deterministic in-process judgment backend. Tests
// inject it to script verdicts per scorer; `tracewatch run --offline`
// uses it so a pipeline can be exercised without a judge endpoint.
type StubCapability struct {
	mu sync.Mutex

	// Responses maps instruction substrings to scripted judgments. The
	// first matching entry wins.
	Responses []StubResponse

	// Default is returned when nothing matches. A zero Default answers
	// boolean true / numeric 1.0 / the first declared label.
	Default *Judgment

	// Err, when set, is returned for every request.
	Err error

	// Calls records every request, in order.
	Calls []*Request
}

// StubResponse scripts one judgment.
type StubResponse struct {
	// MatchInstructions selects requests whose instructions contain this
	// substring. Empty matches everything.
	MatchInstructions string
	Judgment          *Judgment
	Err               error

	// ExploreSteps makes the stub walk the trace querier before
	// answering, mimicking an exploring judge.
	ExploreSteps bool
}

// Judge implements [Capability].
func (s *StubCapability) Judge(ctx context.Context, req *Request) (*Judgment, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, req)
	err := s.Err
	responses := s.Responses
	def := s.Default
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	for _, r := range responses {
		if r.MatchInstructions != "" && !strings.Contains(req.Instructions, r.MatchInstructions) {
			continue
		}
		if r.ExploreSteps && req.Trace != nil {
			steps, err := req.Trace.Steps(ctx)
			if err != nil {
				return nil, &Fault{Retryable: false, Err: err}
			}
			for i := range steps {
				if _, err := req.Trace.Step(ctx, i); err != nil {
					return nil, &Fault{Retryable: false, Err: err}
				}
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Judgment, nil
	}

	if def != nil {
		return def, nil
	}
	return defaultJudgment(req), nil
}

// CallCount returns how many judgments were requested.
func (s *StubCapability) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

func defaultJudgment(req *Request) *Judgment {
	switch req.ValueType {
	case models.ValueTypeNumeric:
		return &Judgment{Value: models.NumberValue(1.0), Rationale: "stub verdict"}
	case models.ValueTypeCategorical:
		label := ""
		if len(req.Labels) > 0 {
			label = req.Labels[0]
		}
		return &Judgment{Value: models.LabelValue(label), Rationale: "stub verdict"}
	default:
		return &Judgment{Value: models.BoolValue(true), Rationale: "stub verdict"}
	}
}
