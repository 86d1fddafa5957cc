// Package sink persists monitoring output durably: every trace of a run
// window (sampled or not), the run batch markers, and the feedback
// entries attached to traces. Backed by gorm over SQLite so the tables
// stay queryable with plain SQL afterwards.
package sink

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tracewatch/tracewatch/internal/models"
)

// TraceRow is one persisted trace within a run batch. The composite key
// (run_id, trace_id) makes batch retries idempotent: re-appending an
// already-written pair is a no-op.
type TraceRow struct {
	RunID        string         `gorm:"primaryKey;column:run_id"`
	TraceID      string         `gorm:"primaryKey;column:trace_id"`
	Inputs       map[string]any `gorm:"serializer:json;column:inputs"`
	Outputs      map[string]any `gorm:"serializer:json;column:outputs"`
	Expectations map[string]any `gorm:"serializer:json;column:expectations"`
	Steps        []models.Step  `gorm:"serializer:json;column:steps"`
	CreatedAt    time.Time      `gorm:"column:trace_created_at"`
	AppendedAt   time.Time      `gorm:"column:appended_at"`
}

// BatchRow marks one completed run-batch append. A batch row exists only
// when every trace of the window committed with it, so readers can treat
// its presence as the all-or-nothing visibility signal. Empty windows
// still get a marker.
type BatchRow struct {
	RunID        string    `gorm:"primaryKey;column:run_id"`
	ExperimentID string    `gorm:"column:experiment_id"`
	WindowSize   int       `gorm:"column:window_size"`
	AppendedAt   time.Time `gorm:"column:appended_at"`
}

func (BatchRow) TableName() string { return "run_batches" }

// FeedbackRow is one attached verdict, keyed by (scorer, trace, run).
type FeedbackRow struct {
	ScorerName string         `gorm:"primaryKey;column:scorer_name"`
	TraceID    string         `gorm:"primaryKey;column:trace_id"`
	RunID      string         `gorm:"primaryKey;column:run_id"`
	RunStarted time.Time      `gorm:"column:run_started"`
	Verdict    models.Verdict `gorm:"serializer:json;column:verdict"`
	AttachedAt time.Time      `gorm:"column:attached_at"`
}

func (FeedbackRow) TableName() string { return "feedback_entries" }

// Store is the durable sink for one experiment.
type Store struct {
	db           *gorm.DB
	experimentID string
	traceTable   string
}

var tableSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TraceTableName returns the per-experiment trace table key, mirroring
// the serving platform's trace_logs_<experiment> convention.
func TraceTableName(experimentID string) string {
	return "trace_logs_" + tableSanitizer.ReplaceAllString(experimentID, "_")
}

// Open opens (and migrates) the sink database at path. Use ":memory:"
// for an ephemeral store in tests.
func Open(path, experimentID string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sink database %s: %w", path, err)
	}

	s := &Store{
		db:           db,
		experimentID: experimentID,
		traceTable:   TraceTableName(experimentID),
	}

	if err := db.Table(s.traceTable).AutoMigrate(&TraceRow{}); err != nil {
		return nil, fmt.Errorf("migrating trace table %s: %w", s.traceTable, err)
	}
	if err := db.AutoMigrate(&BatchRow{}, &FeedbackRow{}); err != nil {
		return nil, fmt.Errorf("migrating sink tables: %w", err)
	}

	return s, nil
}

// AppendBatch writes every trace of the run window plus the batch marker
// in one transaction: either the whole batch becomes visible or none of
// it does. Per-pair evaluation failures are orthogonal and never reach
// this path. Appending an already-written (run, trace) pair is a no-op
// so retried runs cannot duplicate rows.
func (s *Store) AppendBatch(ctx context.Context, runID string, traces []models.Trace) error {
	now := time.Now().UTC()

	rows := make([]TraceRow, 0, len(traces))
	for _, tr := range traces {
		rows = append(rows, TraceRow{
			RunID:        runID,
			TraceID:      tr.ID,
			Inputs:       tr.Inputs,
			Outputs:      tr.Outputs,
			Expectations: tr.Expectations,
			Steps:        tr.Steps,
			CreatedAt:    tr.CreatedAt,
			AppendedAt:   now,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Table(s.traceTable).
				Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(rows, 200).Error; err != nil {
				return fmt.Errorf("appending %d traces to %s: %w", len(rows), s.traceTable, err)
			}
		}

		marker := BatchRow{
			RunID:        runID,
			ExperimentID: s.experimentID,
			WindowSize:   len(traces),
			AppendedAt:   now,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&marker).Error; err != nil {
			return fmt.Errorf("writing batch marker for run %s: %w", runID, err)
		}
		return nil
	})
}

// AppendFeedback inserts one feedback entry. Returns false when an
// identical (scorer, trace, run) entry already exists, which is the
// idempotent no-op the attacher relies on for safe retries.
func (s *Store) AppendFeedback(ctx context.Context, entry models.FeedbackEntry) (bool, error) {
	row := FeedbackRow{
		ScorerName: entry.ScorerName,
		TraceID:    entry.TraceID,
		RunID:      entry.RunID,
		RunStarted: entry.RunStarted,
		Verdict:    entry.Verdict,
		AttachedAt: time.Now().UTC(),
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("attaching feedback (%s, %s, %s): %w", entry.ScorerName, entry.TraceID, entry.RunID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// TracesForRun returns the traces written for one run batch.
func (s *Store) TracesForRun(ctx context.Context, runID string) ([]models.Trace, error) {
	var rows []TraceRow
	if err := s.db.WithContext(ctx).Table(s.traceTable).
		Where("run_id = ?", runID).
		Order("trace_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying traces for run %s: %w", runID, err)
	}

	traces := make([]models.Trace, 0, len(rows))
	for _, row := range rows {
		traces = append(traces, models.Trace{
			ID:           row.TraceID,
			Inputs:       row.Inputs,
			Outputs:      row.Outputs,
			Expectations: row.Expectations,
			Steps:        row.Steps,
			CreatedAt:    row.CreatedAt,
		})
	}
	return traces, nil
}

// Batch returns the batch marker for a run, or nil when the batch never
// committed.
func (s *Store) Batch(ctx context.Context, runID string) (*BatchRow, error) {
	var row BatchRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying batch marker for run %s: %w", runID, err)
	}
	return &row, nil
}

// FeedbackForTrace returns every feedback entry attached to a trace,
// ordered by run start time so the last entry is the latest verdict.
func (s *Store) FeedbackForTrace(ctx context.Context, traceID string) ([]models.FeedbackEntry, error) {
	var rows []FeedbackRow
	if err := s.db.WithContext(ctx).
		Where("trace_id = ?", traceID).
		Order("run_started, scorer_name").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying feedback for trace %s: %w", traceID, err)
	}

	entries := make([]models.FeedbackEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.FeedbackEntry{
			ScorerName: row.ScorerName,
			TraceID:    row.TraceID,
			RunID:      row.RunID,
			RunStarted: row.RunStarted,
			Verdict:    row.Verdict,
		})
	}
	return entries, nil
}
