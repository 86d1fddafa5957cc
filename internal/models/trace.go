package models

import "time"

// StepKind identifies what a trace step recorded.
type StepKind string

const (
	StepKindTool      StepKind = "tool"
	StepKindReasoning StepKind = "reasoning"
	StepKindRetrieval StepKind = "retrieval"
	StepKindLLM       StepKind = "llm"
)

// Step is one entry in a trace's ordered execution sequence: a tool
// invocation, a retrieval, or an intermediate reasoning/LLM span.
type Step struct {
	Index     int            `json:"index"`
	Name      string         `json:"name"`
	Kind      StepKind       `json:"kind"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	ErrorMsg  string         `json:"error_msg,omitempty"`
}

// DurationMs returns the wall-clock duration of the step.
func (s Step) DurationMs() int64 {
	return s.EndedAt.Sub(s.StartedAt).Milliseconds()
}

// Trace is one recorded request/response interaction of the served
// application. The monitoring pipeline only reads traces and appends
// feedback; it never mutates the recorded interaction itself.
type Trace struct {
	ID           string         `json:"trace_id"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	Expectations map[string]any `json:"expectations,omitempty"`
	Steps        []Step         `json:"steps,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// FeedbackEntry is one verdict attached to a trace, keyed by
// (scorer, run). Entries are append-only: re-scoring in a later run adds
// a new dated entry instead of overwriting the old one.
type FeedbackEntry struct {
	ScorerName string    `json:"scorer_name"`
	TraceID    string    `json:"trace_id"`
	RunID      string    `json:"run_id"`
	RunStarted time.Time `json:"run_started"`
	Verdict    Verdict   `json:"verdict"`
}
