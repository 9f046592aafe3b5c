package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"

	"golang.org/x/sync/errgroup"
)

// QueryEngine plans filtered, ordered reads over the series store. Interactive callers
// get a (limit, offset) page plus the total; exports stream by keyset.
type QueryEngine struct {
	store    domrepo.SeriesStore
	metrics  domrepo.Metrics
	maxLimit int
}

func NewQueryEngine(store domrepo.SeriesStore, metrics domrepo.Metrics, maxLimit int) *QueryEngine {
	return &QueryEngine{store: store, metrics: metrics, maxLimit: maxLimit}
}

type TickPage struct {
	Items []models.Tick
	Total int64
	Page  int
	Size  int
}

type OHLCPage struct {
	Items []models.OHLC
	Total int64
	Page  int
	Size  int
}

// window validates and clamps a page request.
func (q *QueryEngine) window(p models.Page) (models.Page, error) {
	if p.Limit < 0 {
		return p, fmt.Errorf("%w: limit must be >= 0", domrepo.ErrInvalidInput)
	}
	if p.Offset < 0 {
		return p, fmt.Errorf("%w: offset must be >= 0", domrepo.ErrInvalidInput)
	}
	if q.maxLimit > 0 && p.Limit > q.maxLimit {
		p.Limit = q.maxLimit
	}
	return p, nil
}

// QueryTicks returns one page of ticks and the total number of matching rows.
// The count and the page are read concurrently.
func (q *QueryEngine) QueryTicks(ctx context.Context, f models.TickFilter, page models.Page) (*TickPage, error) {
	page, err := q.window(page)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { q.metrics.RecordQuery("tick", time.Since(start).Seconds()) }()

	res := &TickPage{Items: []models.Tick{}, Page: page.Number(), Size: page.Limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := q.store.CountTicks(gctx, f)
		if err != nil {
			return fmt.Errorf("count ticks: %w", err)
		}
		res.Total = n
		return nil
	})
	if page.Limit > 0 {
		g.Go(func() error {
			items, err := q.store.QueryTicks(gctx, f, page)
			if err != nil {
				return fmt.Errorf("query ticks: %w", err)
			}
			res.Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		q.metrics.RecordError("query_ticks")
		return nil, err
	}
	return res, nil
}

// QueryOHLC returns one page of bars and the total number of matching rows.
func (q *QueryEngine) QueryOHLC(ctx context.Context, f models.OHLCFilter, page models.Page) (*OHLCPage, error) {
	page, err := q.window(page)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { q.metrics.RecordQuery("ohlc", time.Since(start).Seconds()) }()

	res := &OHLCPage{Items: []models.OHLC{}, Page: page.Number(), Size: page.Limit}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := q.store.CountOHLC(gctx, f)
		if err != nil {
			return fmt.Errorf("count ohlc: %w", err)
		}
		res.Total = n
		return nil
	})
	if page.Limit > 0 {
		g.Go(func() error {
			items, err := q.store.QueryOHLC(gctx, f, page)
			if err != nil {
				return fmt.Errorf("query ohlc: %w", err)
			}
			res.Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		q.metrics.RecordError("query_ohlc")
		return nil, err
	}
	return res, nil
}

func (q *QueryEngine) CountTicks(ctx context.Context, f models.TickFilter) (int64, error) {
	return q.store.CountTicks(ctx, f)
}

func (q *QueryEngine) CountOHLC(ctx context.Context, f models.OHLCFilter) (int64, error) {
	return q.store.CountOHLC(ctx, f)
}

// StreamTicks hands every matching tick to fn in chunks of at most chunkSize rows,
// in (timestamp, id) order. Each chunk resumes strictly after the last row of the
// previous one, so memory stays bounded by chunkSize.
func (q *QueryEngine) StreamTicks(ctx context.Context, f models.TickFilter, chunkSize int, fn func([]models.Tick) error) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", domrepo.ErrInvalidInput)
	}
	var cursor *models.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := q.store.ScanTicks(ctx, f, cursor, chunkSize)
		if err != nil {
			return fmt.Errorf("scan ticks: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(rows); err != nil {
			return err
		}
		if len(rows) < chunkSize {
			return nil
		}
		last := rows[len(rows)-1]
		cursor = &models.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
}

// StreamOHLC is StreamTicks for bars.
func (q *QueryEngine) StreamOHLC(ctx context.Context, f models.OHLCFilter, chunkSize int, fn func([]models.OHLC) error) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", domrepo.ErrInvalidInput)
	}
	var cursor *models.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := q.store.ScanOHLC(ctx, f, cursor, chunkSize)
		if err != nil {
			return fmt.Errorf("scan ohlc: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(rows); err != nil {
			return err
		}
		if len(rows) < chunkSize {
			return nil
		}
		last := rows[len(rows)-1]
		cursor = &models.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
}
