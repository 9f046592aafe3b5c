package usecase

import (
	"strconv"
	"time"

	"PriceServer/internal/domain/models"

	"github.com/shopspring/decimal"
)

var (
	tickCSVHeader = []string{"id", "instrument_id", "timestamp", "bid", "ask", "volume"}
	ohlcCSVHeader = []string{"id", "instrument_id", "timestamp", "open", "high", "low", "close", "volume", "timeframe", "price_type"}
)

func tickCSVRecord(t *models.Tick) []string {
	return []string{
		strconv.FormatUint(t.ID, 10),
		strconv.FormatInt(t.InstrumentID, 10),
		csvTime(t.Timestamp),
		csvDecimal(t.Bid),
		csvDecimal(t.Ask),
		csvNullDecimal(t.Volume),
	}
}

func ohlcCSVRecord(b *models.OHLC) []string {
	return []string{
		strconv.FormatUint(b.ID, 10),
		strconv.FormatInt(b.InstrumentID, 10),
		csvTime(b.Timestamp),
		csvDecimal(b.Open),
		csvDecimal(b.High),
		csvDecimal(b.Low),
		csvDecimal(b.Close),
		csvNullDecimal(b.Volume),
		string(b.TimeFrame),
		string(b.PriceType),
	}
}

func csvTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func csvDecimal(d decimal.Decimal) string {
	return d.StringFixed(models.PriceScale)
}

// csvNullDecimal renders a missing value as an empty field.
func csvNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return csvDecimal(d.Decimal)
}
