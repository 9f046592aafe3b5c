package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
)

// MemorySeriesStore implements SeriesStore in process memory. Rows are kept sorted by
// (instrument, timestamp, id) so reads are a filtered scan.
type MemorySeriesStore struct {
	mu     sync.RWMutex
	ticks  []models.Tick
	bars   []models.OHLC
	nextID uint64
	broken error
}

// NewMemorySeriesStore creates an empty in-memory store.
func NewMemorySeriesStore() *MemorySeriesStore {
	return &MemorySeriesStore{}
}

var _ domrepo.SeriesStore = (*MemorySeriesStore)(nil)

// SetUnavailable makes every subsequent call fail with err (nil restores the store).
func (s *MemorySeriesStore) SetUnavailable(err error) {
	s.mu.Lock()
	s.broken = err
	s.mu.Unlock()
}

func (s *MemorySeriesStore) Init(context.Context) error { return nil }

func (s *MemorySeriesStore) InsertTicks(_ context.Context, ticks []models.Tick) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return 0, s.broken
	}
	for _, t := range ticks {
		s.nextID++
		t.ID = s.nextID
		t.Timestamp = t.Timestamp.UTC()
		s.ticks = append(s.ticks, t)
	}
	sort.SliceStable(s.ticks, func(i, j int) bool {
		return lessKey(s.ticks[i].InstrumentID, s.ticks[i].Timestamp, s.ticks[i].ID,
			s.ticks[j].InstrumentID, s.ticks[j].Timestamp, s.ticks[j].ID)
	})
	return len(ticks), nil
}

func (s *MemorySeriesStore) InsertOHLC(_ context.Context, bars []models.OHLC) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken != nil {
		return 0, s.broken
	}
	for _, b := range bars {
		s.nextID++
		b.ID = s.nextID
		b.Timestamp = b.Timestamp.UTC()
		s.bars = append(s.bars, b)
	}
	sort.SliceStable(s.bars, func(i, j int) bool {
		return lessKey(s.bars[i].InstrumentID, s.bars[i].Timestamp, s.bars[i].ID,
			s.bars[j].InstrumentID, s.bars[j].Timestamp, s.bars[j].ID)
	})
	return len(bars), nil
}

func (s *MemorySeriesStore) CountTicks(_ context.Context, f models.TickFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return 0, s.broken
	}
	var n int64
	for i := range s.ticks {
		if matchTick(&s.ticks[i], f) {
			n++
		}
	}
	return n, nil
}

func (s *MemorySeriesStore) QueryTicks(_ context.Context, f models.TickFilter, page models.Page) ([]models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return nil, s.broken
	}
	out := make([]models.Tick, 0)
	skipped := 0
	for i := range s.ticks {
		if len(out) >= page.Limit {
			break
		}
		if !matchTick(&s.ticks[i], f) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, s.ticks[i])
	}
	return out, nil
}

func (s *MemorySeriesStore) ScanTicks(_ context.Context, f models.TickFilter, after *models.Cursor, limit int) ([]models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return nil, s.broken
	}
	out := make([]models.Tick, 0)
	for i := range s.ticks {
		if len(out) >= limit {
			break
		}
		t := &s.ticks[i]
		if !matchTick(t, f) || !afterCursor(t.Timestamp, t.ID, after) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *MemorySeriesStore) CountOHLC(_ context.Context, f models.OHLCFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return 0, s.broken
	}
	var n int64
	for i := range s.bars {
		if matchOHLC(&s.bars[i], f) {
			n++
		}
	}
	return n, nil
}

func (s *MemorySeriesStore) QueryOHLC(_ context.Context, f models.OHLCFilter, page models.Page) ([]models.OHLC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return nil, s.broken
	}
	out := make([]models.OHLC, 0)
	skipped := 0
	for i := range s.bars {
		if len(out) >= page.Limit {
			break
		}
		if !matchOHLC(&s.bars[i], f) {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, s.bars[i])
	}
	return out, nil
}

func (s *MemorySeriesStore) ScanOHLC(_ context.Context, f models.OHLCFilter, after *models.Cursor, limit int) ([]models.OHLC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.broken != nil {
		return nil, s.broken
	}
	out := make([]models.OHLC, 0)
	for i := range s.bars {
		if len(out) >= limit {
			break
		}
		b := &s.bars[i]
		if !matchOHLC(b, f) || !afterCursor(b.Timestamp, b.ID, after) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *MemorySeriesStore) Health(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.broken
}

func (s *MemorySeriesStore) Close() error { return nil }

func lessKey(ai int64, at time.Time, aid uint64, bi int64, bt time.Time, bid uint64) bool {
	if ai != bi {
		return ai < bi
	}
	if !at.Equal(bt) {
		return at.Before(bt)
	}
	return aid < bid
}

func inRange(ts time.Time, from, to *time.Time) bool {
	if from != nil && ts.Before(*from) {
		return false
	}
	if to != nil && ts.After(*to) {
		return false
	}
	return true
}

func afterCursor(ts time.Time, id uint64, c *models.Cursor) bool {
	if c == nil {
		return true
	}
	if ts.Equal(c.Timestamp) {
		return id > c.ID
	}
	return ts.After(c.Timestamp)
}

func matchTick(t *models.Tick, f models.TickFilter) bool {
	return t.InstrumentID == f.InstrumentID && inRange(t.Timestamp, f.From, f.To)
}

func matchOHLC(b *models.OHLC, f models.OHLCFilter) bool {
	if b.InstrumentID != f.InstrumentID || !inRange(b.Timestamp, f.From, f.To) {
		return false
	}
	if f.TimeFrame != "" && b.TimeFrame != f.TimeFrame {
		return false
	}
	if f.PriceType != "" && b.PriceType != f.PriceType {
		return false
	}
	return true
}
