package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tracewatch/tracewatch/internal/models"
)

// SourceRow is one live trace as the serving app records it.
type SourceRow struct {
	TraceID      string         `gorm:"primaryKey;column:trace_id"`
	Inputs       map[string]any `gorm:"serializer:json;column:inputs"`
	Outputs      map[string]any `gorm:"serializer:json;column:outputs"`
	Expectations map[string]any `gorm:"serializer:json;column:expectations"`
	Steps        []models.Step  `gorm:"serializer:json;column:steps"`
	CreatedAt    time.Time      `gorm:"column:created_at;index"`
}

// Source reads live traces from the table the serving app writes to.
// It is the SQLite-embedded trace source; other deployments can satisfy
// the monitor's source interface against their own trace store.
type Source struct {
	db    *gorm.DB
	table string
}

// OpenSource opens the live trace table at path.
func OpenSource(path, table string) (*Source, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening trace source %s: %w", path, err)
	}
	if err := db.Table(table).AutoMigrate(&SourceRow{}); err != nil {
		return nil, fmt.Errorf("migrating trace source table %s: %w", table, err)
	}
	return &Source{db: db, table: table}, nil
}

// Record writes one live trace. The serving side of the pipeline; also
// handy for seeding demos.
func (s *Source) Record(ctx context.Context, trace models.Trace) error {
	row := SourceRow{
		TraceID:      trace.ID,
		Inputs:       trace.Inputs,
		Outputs:      trace.Outputs,
		Expectations: trace.Expectations,
		Steps:        trace.Steps,
		CreatedAt:    trace.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Table(s.table).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error; err != nil {
		return fmt.Errorf("recording trace %s: %w", trace.ID, err)
	}
	return nil
}

// Window returns the traces created in (since, until], ordered by
// creation time then id.
func (s *Source) Window(ctx context.Context, since, until time.Time) ([]models.Trace, error) {
	var rows []SourceRow
	if err := s.db.WithContext(ctx).Table(s.table).
		Where("created_at > ? AND created_at <= ?", since, until).
		Order("created_at, trace_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying trace window: %w", err)
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
