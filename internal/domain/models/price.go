package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of fractional digits kept for every price and volume.
const PriceScale int32 = 8

// TimeFrame is the aggregation bucket of an OHLC bar.
type TimeFrame string

const (
	TFM1     TimeFrame = "M1"
	TFM5     TimeFrame = "M5"
	TFM15    TimeFrame = "M15"
	TFM30    TimeFrame = "M30"
	TFH1     TimeFrame = "H1"
	TFH4     TimeFrame = "H4"
	TFD1     TimeFrame = "D1"
	TFW1     TimeFrame = "W1"
	TFMN1    TimeFrame = "MN1"
	TFCustom TimeFrame = "CUSTOM"
)

// PriceType tells how an OHLC bar was produced.
type PriceType string

const (
	PriceTick           PriceType = "TICK"
	PriceOHLC           PriceType = "OHLC"
	PriceOHLCNonRegular PriceType = "OHLC_NON_REGULAR"
)

// Tick is a single bid/ask observation.
type Tick struct {
	ID           uint64              `json:"id"`
	InstrumentID int64               `json:"instrument_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Bid          decimal.Decimal     `json:"bid"`
	Ask          decimal.Decimal     `json:"ask"`
	Volume       decimal.NullDecimal `json:"volume"`
}

// OHLC is an aggregated bar over a timeframe.
type OHLC struct {
	ID           uint64              `json:"id"`
	InstrumentID int64               `json:"instrument_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Open         decimal.Decimal     `json:"open"`
	High         decimal.Decimal     `json:"high"`
	Low          decimal.Decimal     `json:"low"`
	Close        decimal.Decimal     `json:"close"`
	Volume       decimal.NullDecimal `json:"volume"`
	TimeFrame    TimeFrame           `json:"timeframe"`
	PriceType    PriceType           `json:"price_type"`
}

// TickFilter selects ticks of one instrument. Bounds are inclusive; nil means unbounded.
type TickFilter struct {
	InstrumentID int64
	From         *time.Time
	To           *time.Time
}

// OHLCFilter selects OHLC bars; empty TimeFrame/PriceType match everything.
type OHLCFilter struct {
	InstrumentID int64
	From         *time.Time
	To           *time.Time
	TimeFrame    TimeFrame
	PriceType    PriceType
}

// Cursor positions keyset pagination strictly after (Timestamp, ID).
type Cursor struct {
	Timestamp time.Time
	ID        uint64
}

// Page is the (limit, offset) window of an interactive query.
type Page struct {
	Limit  int
	Offset int
}

// Number returns the 1-based page number for the window.
func (p Page) Number() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}
