package models

// Requests for the price and export HTTP endpoints. Timestamps, limit and offset stay
// strings here and are parsed by the handler so that malformed values are reported
// instead of silently defaulted.

type TickQueryRequest struct {
	InstrumentID int64  `param:"instrument_id" validate:"-"`
	FromDate     string `query:"from_date"`
	ToDate       string `query:"to_date"`
	Limit        string `query:"limit" default:"1000" validate:"number"`
	Offset       string `query:"offset" default:"0" validate:"number"`
}

type OHLCQueryRequest struct {
	InstrumentID int64  `param:"instrument_id" validate:"-"`
	FromDate     string `query:"from_date"`
	ToDate       string `query:"to_date"`
	TimeFrame    string `query:"timeframe" validate:"omitempty,oneof=M1 M5 M15 M30 H1 H4 D1 W1 MN1 CUSTOM"`
	PriceType    string `query:"price_type" validate:"omitempty,oneof=TICK OHLC OHLC_NON_REGULAR"`
	Limit        string `query:"limit" default:"1000" validate:"number"`
	Offset       string `query:"offset" default:"0" validate:"number"`
}

type TickExportRequest struct {
	InstrumentID int64  `param:"instrument_id" validate:"-"`
	FromDate     string `query:"from_date"`
	ToDate       string `query:"to_date"`
}

type OHLCExportRequest struct {
	InstrumentID int64  `param:"instrument_id" validate:"-"`
	FromDate     string `query:"from_date"`
	ToDate       string `query:"to_date"`
	TimeFrame    string `query:"timeframe" validate:"omitempty,oneof=M1 M5 M15 M30 H1 H4 D1 W1 MN1 CUSTOM"`
	PriceType    string `query:"price_type" validate:"omitempty,oneof=TICK OHLC OHLC_NON_REGULAR"`
}

type OHLCUploadForm struct {
	InstrumentID int64  `form:"instrument_id" validate:"required"`
	TimeFrame    string `form:"timeframe" validate:"required,oneof=M1 M5 M15 M30 H1 H4 D1 W1 MN1 CUSTOM"`
	PriceType    string `form:"price_type" default:"OHLC" validate:"oneof=TICK OHLC OHLC_NON_REGULAR"`
}

type TickUploadForm struct {
	InstrumentID int64 `form:"instrument_id" validate:"required"`
}

// ExportJobResponse is returned by submission, status and not-ready download calls.
type ExportJobResponse struct {
	JobID       string  `json:"job_id"`
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	DownloadURL *string `json:"download_url"`
}

type TickPageResponse struct {
	Items []Tick `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

type OHLCPageResponse struct {
	Items []OHLC `json:"items"`
	Total int64  `json:"total"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
}

type UploadResponse struct {
	Inserted     int   `json:"inserted"`
	InstrumentID int64 `json:"instrument_id"`
}
