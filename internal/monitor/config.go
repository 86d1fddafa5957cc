package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tracewatch/tracewatch/internal/models"
)

// Config describes one monitored experiment. Loaded from a YAML spec
// file, then overlaid with TRACEWATCH_* environment variables so
// deployments can override the file without editing it.
type Config struct {
	// ExperimentID scopes the roster, the trace sink tables, and the
	// sampling hash.
	ExperimentID string `yaml:"experiment_id" env:"TRACEWATCH_EXPERIMENT_ID"`

	// RosterPath is the scorer roster YAML file.
	RosterPath string `yaml:"roster_path" env:"TRACEWATCH_ROSTER"`

	// DatabasePath is the SQLite sink database.
	DatabasePath string `yaml:"database_path" env:"TRACEWATCH_DB"`

	// SourceTable names the table the serving app writes live traces
	// to, read from the same database.
	SourceTable string `yaml:"source_table" env:"TRACEWATCH_SOURCE_TABLE"`

	// JudgeModel is the default judge model; scorers may override it
	// per definition.
	JudgeModel string `yaml:"judge_model" env:"TRACEWATCH_JUDGE_MODEL"`

	Workers     int           `yaml:"workers" env:"TRACEWATCH_WORKERS"`
	PairTimeout time.Duration `yaml:"pair_timeout" env:"TRACEWATCH_PAIR_TIMEOUT"`
	JudgeQPS    float64       `yaml:"judge_qps" env:"TRACEWATCH_JUDGE_QPS"`

	// Interval is the cadence of continuous runs.
	Interval time.Duration `yaml:"interval" env:"TRACEWATCH_INTERVAL"`
}

// LoadConfig reads the spec file, applies environment overrides, fills
// defaults, and validates.
func LoadConfig(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading monitor spec: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing monitor spec %s: %w", path, err)
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("processing environment overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RosterPath == "" {
		c.RosterPath = "scorers.yaml"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "tracewatch.db"
	}
	if c.SourceTable == "" {
		c.SourceTable = "traces"
	}
	if c.JudgeModel == "" {
		c.JudgeModel = "claude-sonnet-4-5"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PairTimeout <= 0 {
		c.PairTimeout = 30 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.ExperimentID == "" {
		return &models.ValidationError{Field: "experiment_id", Msg: "experiment_id is required"}
	}
	if c.JudgeQPS < 0 {
		return &models.ValidationError{Field: "judge_qps", Msg: "judge_qps cannot be negative"}
	}
	return nil
}
