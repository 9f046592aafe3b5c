package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"

	"github.com/shopspring/decimal"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seedTicks(t *testing.T, s *MemorySeriesStore, instrument int64, stamps ...string) {
	t.Helper()
	ticks := make([]models.Tick, 0, len(stamps))
	for _, ts := range stamps {
		ticks = append(ticks, models.Tick{
			InstrumentID: instrument,
			Timestamp:    at(ts),
			Bid:          decimal.RequireFromString("1.1"),
			Ask:          decimal.RequireFromString("1.2"),
		})
	}
	if _, err := s.InsertTicks(context.Background(), ticks); err != nil {
		t.Fatal(err)
	}
}

func TestMemorySeriesOrderingAndRange(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeriesStore()
	seedTicks(t, s, 1, "2024-01-01T00:00:03Z", "2024-01-01T00:00:01Z", "2024-01-01T00:00:02Z")
	seedTicks(t, s, 2, "2024-01-01T00:00:01Z")

	from, to := at("2024-01-01T00:00:02Z"), at("2024-01-01T00:00:03Z")
	got, err := s.QueryTicks(ctx, models.TickFilter{InstrumentID: 1, From: &from, To: &to}, models.Page{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[0].Timestamp.Equal(from) || !got[1].Timestamp.Equal(to) {
		t.Fatalf("inclusive range not honored: %+v", got)
	}

	n, err := s.CountTicks(ctx, models.TickFilter{InstrumentID: 1})
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestMemorySeriesScanKeyset(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeriesStore()
	// two rows share a timestamp so the id tie-break matters
	seedTicks(t, s, 1, "2024-01-01T00:00:01Z", "2024-01-01T00:00:01Z", "2024-01-01T00:00:02Z")

	var seen []uint64
	var cursor *models.Cursor
	for {
		chunk, err := s.ScanTicks(ctx, models.TickFilter{InstrumentID: 1}, cursor, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(chunk) == 0 {
			break
		}
		last := chunk[len(chunk)-1]
		seen = append(seen, last.ID)
		cursor = &models.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
	if len(seen) != 3 {
		t.Fatalf("scanned %v, want 3 rows", seen)
	}
}

func TestMemorySeriesOHLCDiscriminators(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySeriesStore()
	bar := func(tf models.TimeFrame, pt models.PriceType) models.OHLC {
		return models.OHLC{InstrumentID: 1, Timestamp: at("2024-01-01T00:00:00Z"), TimeFrame: tf, PriceType: pt}
	}
	if _, err := s.InsertOHLC(ctx, []models.OHLC{
		bar(models.TFH1, models.PriceOHLC),
		bar(models.TFD1, models.PriceOHLC),
		bar(models.TFH1, models.PriceTick),
	}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		f    models.OHLCFilter
		want int64
	}{
		{models.OHLCFilter{InstrumentID: 1}, 3},
		{models.OHLCFilter{InstrumentID: 1, TimeFrame: models.TFH1}, 2},
		{models.OHLCFilter{InstrumentID: 1, TimeFrame: models.TFH1, PriceType: models.PriceOHLC}, 1},
		{models.OHLCFilter{InstrumentID: 2}, 0},
	}
	for _, c := range cases {
		n, err := s.CountOHLC(ctx, c.f)
		if err != nil || n != c.want {
			t.Fatalf("%+v: count %d (%v), want %d", c.f, n, err, c.want)
		}
	}
}

func TestMemorySeriesUnavailable(t *testing.T) {
	s := NewMemorySeriesStore()
	boom := errors.New("down")
	s.SetUnavailable(boom)
	if _, err := s.CountTicks(context.Background(), models.TickFilter{InstrumentID: 1}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
}

func TestMemoryInstrumentsCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryInstrumentRepo()

	eur := &models.Instrument{Symbol: "EURUSD", Name: "Euro / Dollar", AssetType: models.AssetCurrency}
	if err := r.Create(ctx, eur); err != nil {
		t.Fatal(err)
	}
	if eur.ID == 0 || eur.CreatedAt.IsZero() {
		t.Fatalf("id/created_at not assigned: %+v", eur)
	}
	dup := &models.Instrument{Symbol: "EURUSD", Name: "dup", AssetType: models.AssetCurrency}
	if err := r.Create(ctx, dup); !errors.Is(err, domrepo.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	btc := &models.Instrument{Symbol: "BTCUSD", Name: "Bitcoin", AssetType: models.AssetCrypto}
	if err := r.Create(ctx, btc); err != nil {
		t.Fatal(err)
	}
	btc.Symbol = "EURUSD"
	if err := r.Update(ctx, btc); !errors.Is(err, domrepo.ErrConflict) {
		t.Fatalf("expected conflict on rename, got %v", err)
	}

	list, err := r.List(ctx, 1, 10)
	if err != nil || len(list) != 1 || list[0].Symbol != "BTCUSD" {
		t.Fatalf("list offset 1 = %+v, %v", list, err)
	}

	if err := r.Delete(ctx, eur.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(ctx, eur.ID); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
