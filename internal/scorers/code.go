package scorers

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tracewatch/tracewatch/internal/models"
)

// Registered code scorer implementations.
const (
	CodeExactMatch = "exact_match"
	CodeJSONSchema = "json_schema"
)

// codeFunc is one deterministic scoring function. It runs synchronously;
// panics are recovered by the wrapper and recorded as failed verdicts.
type codeFunc func(ec *Context) (models.VerdictValue, string, error)

// codeScorer wraps a registered code implementation with the
// fault-isolation contract: any raised fault becomes a failed verdict
// with the fault message as rationale, never a run-level error.
type codeScorer struct {
	def  models.ScorerDefinition
	impl codeFunc
}

func newCodeScorer(def models.ScorerDefinition) (*codeScorer, error) {
	var impl codeFunc
	var err error

	switch def.CodeScorerID {
	case CodeExactMatch:
		impl = exactMatch
	case CodeJSONSchema:
		impl, err = newJSONSchemaFunc(def)
	default:
		err = fmt.Errorf("%q is not a registered code scorer: known scorers are %s, %s",
			def.CodeScorerID, CodeExactMatch, CodeJSONSchema)
	}
	if err != nil {
		return nil, err
	}

	return &codeScorer{def: def, impl: impl}, nil
}

func (s *codeScorer) Name() string            { return s.def.Name }
func (s *codeScorer) Kind() models.ScorerKind { return models.ScorerKindCode }

// Evaluate implements [Scorer].
func (s *codeScorer) Evaluate(ctx context.Context, ec *Context) (v *models.Verdict, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			v = finishVerdict(&models.Verdict{
				Status:    models.VerdictFailed,
				Rationale: fmt.Sprintf("code scorer panicked: %v", r),
			}, ec, s.def.Name, start)
			err = nil
		}
	}()

	value, rationale, implErr := s.impl(ec)
	if implErr != nil {
		return finishVerdict(&models.Verdict{
			Status:    models.VerdictFailed,
			Rationale: implErr.Error(),
		}, ec, s.def.Name, start), nil
	}

	return finishVerdict(&models.Verdict{
		Status:    models.VerdictSucceeded,
		Value:     value,
		Rationale: rationale,
	}, ec, s.def.Name, start), nil
}

// exactMatch compares outputs against expectations key by key. Passes
// only when every expected key is present with a deeply equal value.
func exactMatch(ec *Context) (models.VerdictValue, string, error) {
	if len(ec.Expectations) == 0 {
		return models.VerdictValue{}, "", fmt.Errorf("trace %s has no expectations to match against", ec.TraceID)
	}

	var mismatched []string
	for key, want := range ec.Expectations {
		got, ok := ec.Outputs[key]
		if !ok || !reflect.DeepEqual(normalize(got), normalize(want)) {
			mismatched = append(mismatched, key)
		}
	}
	sort.Strings(mismatched)

	if len(mismatched) > 0 {
		return models.BoolValue(false), fmt.Sprintf("outputs differ from expectations on: %v", mismatched), nil
	}
	return models.BoolValue(true), "outputs match expectations exactly", nil
}

// normalize erases int/float distinctions so values that round-trip
// through JSON compare equal to their in-memory originals.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// decodeParams decodes scorer params into a typed args struct.
func decodeParams(params map[string]any, out any) error {
	if err := mapstructure.Decode(params, out); err != nil {
		return fmt.Errorf("decoding scorer params: %w", err)
	}
	return nil
}
