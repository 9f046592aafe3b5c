package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	pkgch "PriceServer/pkg/clickhouse"
	applogger "PriceServer/pkg/logger"

	"github.com/shopspring/decimal"
)

// CHSeriesStore implements SeriesStore backed by ClickHouse. Row ids come from an
// in-process counter seeded with max(id) at Init, so one writer per table is assumed.
type CHSeriesStore struct {
	db        *sql.DB
	l         *applogger.Logger
	ticks     string
	ohlc      string
	batchSize int
	tickSeq   atomic.Uint64
	ohlcSeq   atomic.Uint64
}

func NewCHSeriesStore(ch *pkgch.Client, l *applogger.Logger, batchSize int) *CHSeriesStore {
	if batchSize <= 0 {
		batchSize = 5000
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHSeriesStore{
		db:        ch.DB(),
		l:         l,
		ticks:     ch.Database() + ".ticks",
		ohlc:      ch.Database() + ".ohlc",
		batchSize: batchSize,
	}
}

var _ domrepo.SeriesStore = (*CHSeriesStore)(nil)

func (s *CHSeriesStore) schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            UInt64,
			instrument_id Int64,
			ts            DateTime64(9, 'UTC'),
			bid           Decimal(20, 8),
			ask           Decimal(20, 8),
			volume        Nullable(Decimal(20, 8))
		) ENGINE = MergeTree
		ORDER BY (instrument_id, ts, id)`, s.ticks),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            UInt64,
			instrument_id Int64,
			ts            DateTime64(9, 'UTC'),
			open          Decimal(20, 8),
			high          Decimal(20, 8),
			low           Decimal(20, 8),
			close         Decimal(20, 8),
			volume        Nullable(Decimal(20, 8)),
			timeframe     LowCardinality(String),
			price_type    LowCardinality(String)
		) ENGINE = MergeTree
		ORDER BY (instrument_id, ts, timeframe, id)`, s.ohlc),
	}
}

// Init creates the tables and seeds the id sequences.
func (s *CHSeriesStore) Init(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init series schema: %w", err)
		}
	}
	for table, seq := range map[string]*atomic.Uint64{s.ticks: &s.tickSeq, s.ohlc: &s.ohlcSeq} {
		var maxID uint64
		if err := s.db.QueryRowContext(ctx, "SELECT max(id) FROM "+table).Scan(&maxID); err != nil {
			return fmt.Errorf("seed id for %s: %w", table, err)
		}
		seq.Store(maxID)
	}
	return nil
}

func (s *CHSeriesStore) InsertTicks(ctx context.Context, ticks []models.Tick) (int, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf("INSERT INTO %s (id, instrument_id, ts, bid, ask, volume)", s.ticks)
	inserted := 0
	for start := 0; start < len(ticks); start += s.batchSize {
		end := min(start+s.batchSize, len(ticks))
		err := s.insertBatch(ctx, q, end-start, func(stmt *sql.Stmt, i int) error {
			t := ticks[start+i]
			_, err := stmt.ExecContext(ctx,
				s.tickSeq.Add(1),
				t.InstrumentID,
				t.Timestamp.UTC(),
				t.Bid,
				t.Ask,
				nullable(t.Volume),
			)
			return err
		})
		if err != nil {
			s.l.Error("clickhouse insert_ticks error",
				applogger.String("table", s.ticks),
				applogger.Int("inserted", inserted),
				applogger.Error(err),
			)
			return inserted, fmt.Errorf("insert ticks: %w", err)
		}
		inserted += end - start
	}
	return inserted, nil
}

func (s *CHSeriesStore) InsertOHLC(ctx context.Context, bars []models.OHLC) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	q := fmt.Sprintf("INSERT INTO %s (id, instrument_id, ts, open, high, low, close, volume, timeframe, price_type)", s.ohlc)
	inserted := 0
	for start := 0; start < len(bars); start += s.batchSize {
		end := min(start+s.batchSize, len(bars))
		err := s.insertBatch(ctx, q, end-start, func(stmt *sql.Stmt, i int) error {
			b := bars[start+i]
			_, err := stmt.ExecContext(ctx,
				s.ohlcSeq.Add(1),
				b.InstrumentID,
				b.Timestamp.UTC(),
				b.Open,
				b.High,
				b.Low,
				b.Close,
				nullable(b.Volume),
				string(b.TimeFrame),
				string(b.PriceType),
			)
			return err
		})
		if err != nil {
			s.l.Error("clickhouse insert_ohlc error",
				applogger.String("table", s.ohlc),
				applogger.Int("inserted", inserted),
				applogger.Error(err),
			)
			return inserted, fmt.Errorf("insert ohlc: %w", err)
		}
		inserted += end - start
	}
	return inserted, nil
}

// insertBatch sends n rows as one native block: the driver buffers every Exec on the
// prepared INSERT and flushes on Commit.
func (s *CHSeriesStore) insertBatch(ctx context.Context, q string, n int, row func(*sql.Stmt, int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := row(stmt, i); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *CHSeriesStore) CountTicks(ctx context.Context, f models.TickFilter) (int64, error) {
	q, args := tickQuery(s.ticks, f).count()
	return s.count(ctx, q, args)
}

func (s *CHSeriesStore) QueryTicks(ctx context.Context, f models.TickFilter, page models.Page) ([]models.Tick, error) {
	q, args := tickQuery(s.ticks, f).page(tickColumns, page.Limit, page.Offset)
	return s.selectTicks(ctx, "query_ticks", q, args)
}

func (s *CHSeriesStore) ScanTicks(ctx context.Context, f models.TickFilter, after *models.Cursor, limit int) ([]models.Tick, error) {
	sq := tickQuery(s.ticks, f)
	sq.after(after)
	q, args := sq.scan(tickColumns, limit)
	return s.selectTicks(ctx, "scan_ticks", q, args)
}

func (s *CHSeriesStore) CountOHLC(ctx context.Context, f models.OHLCFilter) (int64, error) {
	q, args := ohlcQuery(s.ohlc, f).count()
	return s.count(ctx, q, args)
}

func (s *CHSeriesStore) QueryOHLC(ctx context.Context, f models.OHLCFilter, page models.Page) ([]models.OHLC, error) {
	q, args := ohlcQuery(s.ohlc, f).page(ohlcColumns, page.Limit, page.Offset)
	return s.selectOHLC(ctx, "query_ohlc", q, args)
}

func (s *CHSeriesStore) ScanOHLC(ctx context.Context, f models.OHLCFilter, after *models.Cursor, limit int) ([]models.OHLC, error) {
	sq := ohlcQuery(s.ohlc, f)
	sq.after(after)
	q, args := sq.scan(ohlcColumns, limit)
	return s.selectOHLC(ctx, "scan_ohlc", q, args)
}

func (s *CHSeriesStore) count(ctx context.Context, q string, args []interface{}) (int64, error) {
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		s.l.Error("clickhouse count error", applogger.String("sql", q), applogger.Error(err))
		return 0, fmt.Errorf("count: %w", err)
	}
	return int64(n), nil
}

func (s *CHSeriesStore) selectTicks(ctx context.Context, op, q string, args []interface{}) ([]models.Tick, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 256)
	for rows.Next() {
		var (
			t             models.Tick
			bid, ask, vol string
		)
		if err := rows.Scan(&t.ID, &t.InstrumentID, &t.Timestamp, &bid, &ask, &vol); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		if t.Bid, err = decimal.NewFromString(bid); err != nil {
			return nil, fmt.Errorf("scan tick bid: %w", err)
		}
		if t.Ask, err = decimal.NewFromString(ask); err != nil {
			return nil, fmt.Errorf("scan tick ask: %w", err)
		}
		if t.Volume, err = nullDecimal(vol); err != nil {
			return nil, fmt.Errorf("scan tick volume: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse "+op+" ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSeriesStore) selectOHLC(ctx context.Context, op, q string, args []interface{}) ([]models.OHLC, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.OHLC, 0, 256)
	for rows.Next() {
		var (
			b                    models.OHLC
			open, high, low, cls string
			vol, tf, pt          string
		)
		if err := rows.Scan(&b.ID, &b.InstrumentID, &b.Timestamp, &open, &high, &low, &cls, &vol, &tf, &pt); err != nil {
			return nil, fmt.Errorf("scan ohlc: %w", err)
		}
		prices := []struct {
			dst *decimal.Decimal
			src string
		}{{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, cls}}
		for _, p := range prices {
			if *p.dst, err = decimal.NewFromString(p.src); err != nil {
				return nil, fmt.Errorf("scan ohlc price: %w", err)
			}
		}
		if b.Volume, err = nullDecimal(vol); err != nil {
			return nil, fmt.Errorf("scan ohlc volume: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		b.TimeFrame = models.TimeFrame(tf)
		b.PriceType = models.PriceType(pt)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse "+op+" ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHSeriesStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSeriesStore) Close() error {
	return nil // pool owned by pkg/clickhouse.Client
}

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal
}

// nullDecimal parses the '' that ifNull(toString(volume), '') yields for NULL.
func nullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
