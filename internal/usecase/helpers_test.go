package usecase

import (
	"context"
	"testing"
	"time"

	"PriceServer/internal/domain/models"
	"PriceServer/internal/repository"
	"PriceServer/internal/service/jobs"
	"PriceServer/pkg/logger"
	"PriceServer/pkg/metrics"
	"PriceServer/pkg/queue"

	"github.com/shopspring/decimal"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tick(inst int64, at, bid, ask string) models.Tick {
	return models.Tick{InstrumentID: inst, Timestamp: ts(at), Bid: dec(bid), Ask: dec(ask)}
}

func bar(inst int64, at string, tf models.TimeFrame, o, h, l, c string) models.OHLC {
	return models.OHLC{
		InstrumentID: inst,
		Timestamp:    ts(at),
		Open:         dec(o),
		High:         dec(h),
		Low:          dec(l),
		Close:        dec(c),
		TimeFrame:    tf,
		PriceType:    models.PriceOHLC,
	}
}

// manualScheduler queues tasks until the test runs them.
type manualScheduler struct {
	tasks []queue.Task
	err   error
}

func (m *manualScheduler) Submit(t queue.Task) error {
	if m.err != nil {
		return m.err
	}
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *manualScheduler) runAll(t *testing.T) {
	t.Helper()
	for _, task := range m.tasks {
		_ = task.Run(context.Background())
	}
	m.tasks = nil
}

type exportFixture struct {
	store     *repository.MemorySeriesStore
	registry  *jobs.MemoryRegistry
	engine    *QueryEngine
	worker    *ExportWorker
	service   *ExportService
	scheduler *manualScheduler
	dir       string
}

func newExportFixture(t *testing.T, maxRows int64, chunk int) *exportFixture {
	t.Helper()
	f := &exportFixture{
		store:     repository.NewMemorySeriesStore(),
		registry:  jobs.NewMemoryRegistry(),
		scheduler: &manualScheduler{},
		dir:       t.TempDir(),
	}
	lg := logger.NewNop()
	f.engine = NewQueryEngine(f.store, metrics.Nop{}, 50000)
	f.worker = NewExportWorker(f.engine, f.registry, repository.NopJobEvents{}, metrics.Nop{}, lg,
		ExportWorkerConfig{Dir: f.dir, MaxRows: maxRows, ChunkSize: chunk})
	f.service = NewExportService(f.registry, f.worker, f.scheduler, repository.NopJobEvents{}, metrics.Nop{}, lg)
	return f
}
