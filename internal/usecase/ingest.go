package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/pkg/logger"
	"PriceServer/pkg/util"

	"github.com/shopspring/decimal"
)

// IngestService writes ticks and bars into the series store in batches. CSV uploads and
// the Kafka tick consumer both go through it.
type IngestService struct {
	store     domrepo.SeriesStore
	metrics   domrepo.Metrics
	logger    *logger.Logger
	batchSize int
}

func NewIngestService(store domrepo.SeriesStore, metrics domrepo.Metrics, lgr *logger.Logger, batchSize int) *IngestService {
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &IngestService{store: store, metrics: metrics, logger: lgr, batchSize: batchSize}
}

// UploadTicks parses a tick CSV (timestamp,bid,ask[,volume]) and stores every row.
// Nothing is written when any row is malformed.
func (s *IngestService) UploadTicks(ctx context.Context, instrumentID int64, r io.Reader) (int, error) {
	ticks, err := ParseTickCSV(r, instrumentID)
	if err != nil {
		return 0, err
	}
	return s.StoreTicks(ctx, ticks, "upload")
}

// UploadOHLC parses an OHLC CSV (timestamp,open,high,low,close[,volume]) and stores
// every row with the given timeframe and price type.
func (s *IngestService) UploadOHLC(ctx context.Context, instrumentID int64, tf models.TimeFrame, pt models.PriceType, r io.Reader) (int, error) {
	if pt == "" {
		pt = models.PriceOHLC
	}
	bars, err := ParseOHLCCSV(r, instrumentID, tf, pt)
	if err != nil {
		return 0, err
	}
	return s.StoreOHLC(ctx, bars, "upload")
}

func (s *IngestService) StoreTicks(ctx context.Context, ticks []models.Tick, source string) (int, error) {
	inserted := 0
	for start := 0; start < len(ticks); start += s.batchSize {
		end := min(start+s.batchSize, len(ticks))
		n, err := s.store.InsertTicks(ctx, ticks[start:end])
		inserted += n
		if err != nil {
			s.metrics.RecordError("ingest_ticks")
			return inserted, fmt.Errorf("insert ticks: %w", err)
		}
	}
	s.metrics.RecordRowsIngested("tick", source, inserted)
	s.logger.Debug("ticks stored", logger.Int("rows", inserted), logger.String("source", source))
	return inserted, nil
}

func (s *IngestService) StoreOHLC(ctx context.Context, bars []models.OHLC, source string) (int, error) {
	inserted := 0
	for start := 0; start < len(bars); start += s.batchSize {
		end := min(start+s.batchSize, len(bars))
		n, err := s.store.InsertOHLC(ctx, bars[start:end])
		inserted += n
		if err != nil {
			s.metrics.RecordError("ingest_ohlc")
			return inserted, fmt.Errorf("insert ohlc: %w", err)
		}
	}
	s.metrics.RecordRowsIngested("ohlc", source, inserted)
	s.logger.Debug("bars stored", logger.Int("rows", inserted), logger.String("source", source))
	return inserted, nil
}

// csvTable maps header names to column positions.
type csvTable struct {
	r    *csv.Reader
	cols map[string]int
	line int // file line of the current record
}

func openCSV(r io.Reader, required ...string) (*csvTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty CSV file", domrepo.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", domrepo.ErrInvalidInput, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: CSV is missing column %q", domrepo.ErrInvalidInput, name)
		}
	}
	return &csvTable{r: cr, cols: cols, line: 1}, nil
}

// next returns the next record or io.EOF. Blank lines are skipped by the reader.
func (t *csvTable) next() ([]string, error) {
	rec, err := t.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", domrepo.ErrInvalidInput, err)
	}
	t.line, _ = t.r.FieldPos(0)
	return rec, nil
}

func (t *csvTable) field(rec []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (t *csvTable) rowErr(format string, a ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", domrepo.ErrInvalidInput, t.line, fmt.Sprintf(format, a...))
}

func (t *csvTable) timestamp(rec []string) (time.Time, error) {
	raw := t.field(rec, "timestamp")
	ts, ok := util.ParseTime(raw)
	if !ok {
		return time.Time{}, t.rowErr("invalid timestamp %q", raw)
	}
	return ts, nil
}

func (t *csvTable) price(rec []string, name string) (decimal.Decimal, error) {
	raw := t.field(rec, name)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, t.rowErr("invalid %s %q", name, raw)
	}
	return d.Round(models.PriceScale), nil
}

func (t *csvTable) volume(rec []string) (decimal.NullDecimal, error) {
	raw := t.field(rec, "volume")
	if raw == "" || strings.EqualFold(raw, "nan") {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, t.rowErr("invalid volume %q", raw)
	}
	return decimal.NewNullDecimal(d.Round(models.PriceScale)), nil
}

// ParseTickCSV reads ticks from a CSV with a header row. Columns are located by name.
func ParseTickCSV(r io.Reader, instrumentID int64) ([]models.Tick, error) {
	t, err := openCSV(r, "timestamp", "bid", "ask")
	if err != nil {
		return nil, err
	}
	var out []models.Tick
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		ts, err := t.timestamp(rec)
		if err != nil {
			return nil, err
		}
		tick := models.Tick{InstrumentID: instrumentID, Timestamp: ts}
		if tick.Bid, err = t.price(rec, "bid"); err != nil {
			return nil, err
		}
		if tick.Ask, err = t.price(rec, "ask"); err != nil {
			return nil, err
		}
		if tick.Volume, err = t.volume(rec); err != nil {
			return nil, err
		}
		out = append(out, tick)
	}
}

// ParseOHLCCSV reads bars from a CSV with a header row.
func ParseOHLCCSV(r io.Reader, instrumentID int64, tf models.TimeFrame, pt models.PriceType) ([]models.OHLC, error) {
	t, err := openCSV(r, "timestamp", "open", "high", "low", "close")
	if err != nil {
		return nil, err
	}
	var out []models.OHLC
	for {
		rec, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		ts, err := t.timestamp(rec)
		if err != nil {
			return nil, err
		}
		bar := models.OHLC{
			InstrumentID: instrumentID,
			Timestamp:    ts,
			TimeFrame:    tf,
			PriceType:    pt,
		}
		if bar.Open, err = t.price(rec, "open"); err != nil {
			return nil, err
		}
		if bar.High, err = t.price(rec, "high"); err != nil {
			return nil, err
		}
		if bar.Low, err = t.price(rec, "low"); err != nil {
			return nil, err
		}
		if bar.Close, err = t.price(rec, "close"); err != nil {
			return nil, err
		}
		if bar.Volume, err = t.volume(rec); err != nil {
			return nil, err
		}
		out = append(out, bar)
	}
}
