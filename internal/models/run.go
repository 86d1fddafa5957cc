package models

import "time"

// RunStatus is the terminal status of a monitoring run.
type RunStatus string

const (
	// RunCompleted means every evaluated pair produced a succeeded verdict.
	RunCompleted RunStatus = "completed"

	// RunPartiallyFailed means the run finished but one or more pairs
	// failed or timed out.
	RunPartiallyFailed RunStatus = "partially_failed"

	// RunFailed means a structural fault prevented the run from producing
	// meaningful output (window unreadable, sink unreachable).
	RunFailed RunStatus = "failed"
)

// MonitoringRun records one execution of the pipeline: the trace window
// considered, the per-scorer assignment sizes, the verdicts produced,
// and the terminal status.
type MonitoringRun struct {
	RunID        string    `json:"run_id"`
	ExperimentID string    `json:"experiment_id"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	WindowSize   int       `json:"window_size"`

	// Assignments maps scorer name to the number of traces it was
	// assigned. The full assignment is ephemeral; only its shape is
	// recorded on the run.
	Assignments map[string]int `json:"assignments"`

	Verdicts []Verdict `json:"verdicts"`

	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
}

// FailedPairs counts verdicts that did not succeed.
func (r *MonitoringRun) FailedPairs() int {
	n := 0
	for _, v := range r.Verdicts {
		if v.Status != VerdictSucceeded {
			n++
		}
	}
	return n
}
