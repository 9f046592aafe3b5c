package repository

import (
	"context"

	"PriceServer/internal/domain/models"
)

// SeriesStore is the persisted time-series store for ticks and OHLC bars.
// Reads return rows ordered by (timestamp, id) ascending.
type SeriesStore interface {
	Init(ctx context.Context) error // ensure tables, seed id sequences
	InsertTicks(ctx context.Context, ticks []models.Tick) (int, error)
	InsertOHLC(ctx context.Context, bars []models.OHLC) (int, error)

	CountTicks(ctx context.Context, f models.TickFilter) (int64, error)
	QueryTicks(ctx context.Context, f models.TickFilter, page models.Page) ([]models.Tick, error)
	// ScanTicks returns up to limit rows strictly after the cursor (nil = from the start).
	ScanTicks(ctx context.Context, f models.TickFilter, after *models.Cursor, limit int) ([]models.Tick, error)

	CountOHLC(ctx context.Context, f models.OHLCFilter) (int64, error)
	QueryOHLC(ctx context.Context, f models.OHLCFilter, page models.Page) ([]models.OHLC, error)
	ScanOHLC(ctx context.Context, f models.OHLCFilter, after *models.Cursor, limit int) ([]models.OHLC, error)

	Health(ctx context.Context) error
	Close() error
}

// InstrumentRepository persists instruments.
type InstrumentRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, inst *models.Instrument) error
	Get(ctx context.Context, id int64) (*models.Instrument, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
	List(ctx context.Context, offset, limit int) ([]models.Instrument, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, inst *models.Instrument) error
	Delete(ctx context.Context, id int64) error
	Health(ctx context.Context) error
	Close() error
}

// JobRegistry is the authoritative record of export job state.
// Every operation is atomic with respect to other operations on the same job.
type JobRegistry interface {
	// Create inserts job in the pending state; ErrJobExists if the id is taken.
	Create(ctx context.Context, job *models.ExportJob) error
	// Transition moves a job forward and stores the payload.
	// ErrNotFound for unknown ids, ErrInvalidTransition for non-monotonic moves.
	Transition(ctx context.Context, id string, state models.JobState, payload models.JobPayload) (*models.ExportJob, error)
	// Get returns a snapshot of the job or ErrNotFound.
	Get(ctx context.Context, id string) (*models.ExportJob, error)
}

// JobEvents publishes job state changes to interested parties.
type JobEvents interface {
	Publish(ctx context.Context, ev models.JobEvent) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordJobSubmitted(kind string)
	RecordJobFinished(kind, state string, rows int64, seconds float64)
	RecordJobStarted(kind string)
	RecordRowsIngested(series, source string, n int)
	RecordQuery(series string, seconds float64)
	RecordError(kind string)
}
