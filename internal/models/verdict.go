package models

import (
	"fmt"
	"time"
)

// VerdictStatus is the outcome of one (scorer, trace) evaluation.
type VerdictStatus string

const (
	VerdictSucceeded VerdictStatus = "succeeded"
	VerdictFailed    VerdictStatus = "failed"
	VerdictTimedOut  VerdictStatus = "timed_out"
)

// VerdictValue holds a typed verdict value. Exactly one field is set,
// matching the scorer's declared ValueType.
type VerdictValue struct {
	Bool   *bool    `json:"bool,omitempty"`
	Number *float64 `json:"number,omitempty"`
	Label  *string  `json:"label,omitempty"`
}

func BoolValue(v bool) VerdictValue      { return VerdictValue{Bool: &v} }
func NumberValue(v float64) VerdictValue { return VerdictValue{Number: &v} }
func LabelValue(v string) VerdictValue   { return VerdictValue{Label: &v} }

// IsZero reports whether no value is set (failed or timed-out verdicts).
func (v VerdictValue) IsZero() bool {
	return v.Bool == nil && v.Number == nil && v.Label == nil
}

func (v VerdictValue) String() string {
	switch {
	case v.Bool != nil:
		return fmt.Sprintf("%t", *v.Bool)
	case v.Number != nil:
		return fmt.Sprintf("%g", *v.Number)
	case v.Label != nil:
		return *v.Label
	default:
		return "<none>"
	}
}

// Verdict is the immutable output of applying one scorer to one trace
// within one monitoring run. Verdicts are never overwritten: re-scoring
// the same (scorer, trace) in a later run produces a new Verdict.
type Verdict struct {
	ScorerName  string        `json:"scorer_name"`
	TraceID     string        `json:"trace_id"`
	RunID       string        `json:"run_id"`
	Status      VerdictStatus `json:"status"`
	Value       VerdictValue  `json:"value,omitempty"`
	Rationale   string        `json:"rationale,omitempty"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
	DurationMs  int64         `json:"duration_ms"`
}
