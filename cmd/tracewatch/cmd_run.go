package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/tracewatch/tracewatch/internal/engine"
	"github.com/tracewatch/tracewatch/internal/judge"
	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/monitor"
	"github.com/tracewatch/tracewatch/internal/registry"
	"github.com/tracewatch/tracewatch/internal/sink"
)

var (
	runOnce    bool
	verbose    bool
	offline    bool
	intervalIn time.Duration
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <monitor.yaml>",
		Short: "Run the monitoring pipeline",
		Long: `Run the monitoring pipeline for the experiment described by the spec file.

By default the monitor runs continuously at the configured interval. With
--once it evaluates a single window and exits, reporting pair failures in
the exit code.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().BoolVar(&runOnce, "once", false, "Evaluate one window and exit")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output with per-pair progress")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use a stub judge instead of calling the model API")
	cmd.Flags().DurationVar(&intervalIn, "interval", 0, "Run interval (overrides spec config)")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := monitor.LoadConfig(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load monitor spec: %w", err)
	}
	if intervalIn > 0 {
		cfg.Interval = intervalIn
	}

	reg, err := registry.Open(cfg.RosterPath, cfg.ExperimentID)
	if err != nil {
		return err
	}
	store, err := sink.Open(cfg.DatabasePath, cfg.ExperimentID)
	if err != nil {
		return err
	}
	source, err := sink.OpenSource(cfg.DatabasePath, cfg.SourceTable)
	if err != nil {
		return err
	}

	var capability judge.Capability
	if offline {
		capability = &judge.StubCapability{}
	} else {
		client := anthropic.NewClient()
		capability = judge.NewAnthropicCapability(client)
	}

	m := monitor.New(cfg, reg, source, store, capability, nil)
	if verbose {
		m.Engine().OnProgress(printProgress)
	}

	if !runOnce {
		fmt.Fprintf(os.Stderr, "monitoring %s every %s\n", cfg.ExperimentID, cfg.Interval)
		return m.RunEvery(ctx)
	}

	run, err := m.RunOnce(ctx)
	if err != nil {
		return err
	}
	printRunSummary(run)

	if run.Status == models.RunPartiallyFailed {
		return &PairFailureError{
			Message: fmt.Sprintf("%d of %d pairs failed", run.FailedPairs(), len(run.Verdicts)),
		}
	}
	return nil
}

func printProgress(event engine.ProgressEvent) {
	switch event.EventType {
	case engine.EventRunStart:
		fmt.Fprintf(os.Stderr, "evaluating %d pairs\n", event.TotalPairs)
	case engine.EventPairComplete:
		fmt.Fprintf(os.Stderr, "  [%d/%d] %s on %s: %s (%dms)\n",
			event.PairNum, event.TotalPairs, event.ScorerName, event.TraceID, event.Status, event.DurationMs)
	case engine.EventRunComplete:
		fmt.Fprintf(os.Stderr, "done in %dms\n", event.DurationMs)
	}
}

func printRunSummary(run *models.MonitoringRun) {
	fmt.Printf("run %s: %s\n", run.RunID, run.Status)
	fmt.Printf("  window: %d traces\n", run.WindowSize)
	names := make([]string, 0, len(run.Assignments))
	for name := range run.Assignments {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %d traces sampled\n", name, run.Assignments[name])
	}
	fmt.Printf("  verdicts: %d (%d failed)\n", len(run.Verdicts), run.FailedPairs())
}
