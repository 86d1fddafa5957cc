package models

import "fmt"

// ValidationError reports a bad scorer definition. Raised synchronously
// at registration; a definition that fails validation never reaches a
// monitoring run.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid scorer definition: " + e.Msg
	}
	return fmt.Sprintf("invalid scorer definition: %s: %s", e.Field, e.Msg)
}

// StructuralError reports a fault that makes a run's output meaningless:
// the trace window cannot be enumerated or the sink is unreachable. It
// aborts the run; per-pair failures never use this type.
type StructuralError struct {
	Op  string
	Err error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("structural failure during %s: %v", e.Op, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }
