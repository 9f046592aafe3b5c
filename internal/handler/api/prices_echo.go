package api

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/internal/usecase"
	xhttp "PriceServer/pkg/http"
	xlogger "PriceServer/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PricesEchoHandler serves interactive series queries and CSV uploads.
type PricesEchoHandler struct {
	logger         *xlogger.Logger
	engine         *usecase.QueryEngine
	ingest         *usecase.IngestService
	maxUploadBytes int64
	queryTimeout   time.Duration
}

func NewPricesEchoHandler(logger *xlogger.Logger, engine *usecase.QueryEngine, ingest *usecase.IngestService, maxUploadMB int) *PricesEchoHandler {
	return &PricesEchoHandler{
		logger:         logger,
		engine:         engine,
		ingest:         ingest,
		maxUploadBytes: int64(maxUploadMB) << 20,
	}
}

// WithQueryTimeout bounds every interactive query. Zero means no extra deadline.
func (h *PricesEchoHandler) WithQueryTimeout(d time.Duration) *PricesEchoHandler {
	h.queryTimeout = d
	return h
}

func (h *PricesEchoHandler) queryContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.queryTimeout <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.queryTimeout)
}

func (h *PricesEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/prices")
	g.POST("/tick/upload", h.UploadTicks)
	g.POST("/ohlc/upload", h.UploadOHLC)
	g.GET("/tick/:instrument_id", h.Ticks)
	g.GET("/ohlc/:instrument_id", h.OHLC)
}

func (h *PricesEchoHandler) Ticks(c echo.Context) error {
	req := &models.TickQueryRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseRange(req.FromDate, req.ToDate)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	limit, offset, aerr := parseWindow(req.Limit, req.Offset)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()
	res, err := h.engine.QueryTicks(ctx,
		models.TickFilter{InstrumentID: req.InstrumentID, From: from, To: to},
		models.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Error("tick query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.TickPageResponse{
		Items: res.Items,
		Total: res.Total,
		Page:  res.Page,
		Size:  res.Size,
	})
}

func (h *PricesEchoHandler) OHLC(c echo.Context) error {
	req := &models.OHLCQueryRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseRange(req.FromDate, req.ToDate)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	limit, offset, aerr := parseWindow(req.Limit, req.Offset)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	tf, err := domrepo.ParseTimeframe(req.TimeFrame)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	pt, err := domrepo.ParsePriceType(req.PriceType)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	ctx, cancel := h.queryContext(c)
	defer cancel()
	res, err := h.engine.QueryOHLC(ctx,
		models.OHLCFilter{InstrumentID: req.InstrumentID, From: from, To: to, TimeFrame: tf, PriceType: pt},
		models.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Error("ohlc query error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.OHLCPageResponse{
		Items: res.Items,
		Total: res.Total,
		Page:  res.Page,
		Size:  res.Size,
	})
}

func (h *PricesEchoHandler) UploadTicks(c echo.Context) error {
	req := &models.TickUploadForm{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	file, aerr := h.openUpload(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	defer file.Close()

	n, err := h.ingest.UploadTicks(c.Request().Context(), req.InstrumentID, file)
	if err != nil {
		h.logger.Warn("tick upload rejected", xlogger.Int64("instrument_id", req.InstrumentID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.UploadResponse{Inserted: n, InstrumentID: req.InstrumentID})
}

func (h *PricesEchoHandler) UploadOHLC(c echo.Context) error {
	req := &models.OHLCUploadForm{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	file, aerr := h.openUpload(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	defer file.Close()

	n, err := h.ingest.UploadOHLC(c.Request().Context(), req.InstrumentID,
		models.TimeFrame(req.TimeFrame), models.PriceType(req.PriceType), file)
	if err != nil {
		h.logger.Warn("ohlc upload rejected", xlogger.Int64("instrument_id", req.InstrumentID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.UploadResponse{Inserted: n, InstrumentID: req.InstrumentID})
}

func (h *PricesEchoHandler) openUpload(c echo.Context) (multipart.File, *xhttp.AppError) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, xhttp.FieldError("file", "file is required")
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return nil, xhttp.FieldError("file", fmt.Sprintf("file exceeds the %d MB upload limit", h.maxUploadBytes>>20))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, xhttp.BadRequestError("failed to read uploaded file").WithError(err)
	}
	return f, nil
}
