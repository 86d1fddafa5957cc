package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tracewatch/tracewatch/internal/models"
	"github.com/tracewatch/tracewatch/internal/monitor"
	"github.com/tracewatch/tracewatch/internal/registry"
)

var startRate float64

func newScorersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scorers",
		Short: "Manage the scorer roster",
	}

	cmd.AddCommand(newScorersListCommand())
	cmd.AddCommand(newScorersRegisterCommand())
	cmd.AddCommand(newScorersStartCommand())
	cmd.AddCommand(newScorersStopCommand())
	cmd.AddCommand(newScorersDeleteCommand())

	return cmd
}

func openRoster(cmd *cobra.Command, specPath string) (*registry.Registry, error) {
	cfg, err := monitor.LoadConfig(cmd.Context(), specPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitor spec: %w", err)
	}
	return registry.Open(cfg.RosterPath, cfg.ExperimentID)
}

func newScorersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <monitor.yaml>",
		Short: "List registered scorers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRoster(cmd, args[0])
			if err != nil {
				return err
			}

			handles := reg.List()
			if len(handles) == 0 {
				fmt.Println("no scorers registered")
				return nil
			}
			for _, h := range handles {
				state := "stopped"
				if h.Active {
					state = fmt.Sprintf("active @ %.0f%%", h.SamplingRate*100)
				}
				fmt.Printf("%-30s %-16s %-12s %s\n", h.Name, h.Kind, h.ValueType, state)
			}
			return nil
		},
	}
}

func newScorersRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "register <monitor.yaml> <scorer.yaml>",
		Short: "Register or update a scorer definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRoster(cmd, args[0])
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read scorer definition: %w", err)
			}
			var def models.ScorerDefinition
			if err := yaml.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("failed to parse scorer definition: %w", err)
			}

			h, err := reg.Register(def)
			if err != nil {
				return err
			}
			fmt.Printf("registered %s (%s, %s)\n", h.Name, h.Kind, h.ValueType)
			if !h.Active {
				fmt.Printf("start it with: tracewatch scorers start %s %s --rate 0.1\n", args[0], h.Name)
			}
			return nil
		},
	}
}

func newScorersStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <monitor.yaml> <name>",
		Short: "Activate a scorer with a sampling rate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRoster(cmd, args[0])
			if err != nil {
				return err
			}
			if err := reg.Start(args[1], startRate); err != nil {
				return err
			}
			fmt.Printf("started %s @ %.0f%%\n", args[1], startRate*100)
			return nil
		},
	}
	cmd.Flags().Float64Var(&startRate, "rate", 0.1, "Fraction of window traces to evaluate, in [0,1]")
	return cmd
}

func newScorersStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <monitor.yaml> <name>",
		Short: "Deactivate a scorer, keeping its definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRoster(cmd, args[0])
			if err != nil {
				return err
			}
			if err := reg.Stop(args[1]); err != nil {
				return err
			}
			fmt.Printf("stopped %s\n", args[1])
			return nil
		},
	}
}

func newScorersDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <monitor.yaml> <name>",
		Short: "Remove a scorer from the roster",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRoster(cmd, args[0])
			if err != nil {
				return err
			}
			if err := reg.Delete(args[1]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[1])
			return nil
		},
	}
}
