package api

import (
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/internal/usecase"
	xhttp "PriceServer/pkg/http"
	xlogger "PriceServer/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ExportsEchoHandler serves export submission, status, download and watch.
type ExportsEchoHandler struct {
	logger       *xlogger.Logger
	exports      *usecase.ExportService
	submitLimit  echo.MiddlewareFunc
	pollInterval time.Duration
}

// NewExportsEchoHandler builds the handler. submitLimit guards the submission routes
// and may be nil.
func NewExportsEchoHandler(logger *xlogger.Logger, exports *usecase.ExportService, submitLimit echo.MiddlewareFunc) *ExportsEchoHandler {
	return &ExportsEchoHandler{
		logger:       logger,
		exports:      exports,
		submitLimit:  submitLimit,
		pollInterval: 500 * time.Millisecond,
	}
}

func (h *ExportsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/prices")
	var mw []echo.MiddlewareFunc
	if h.submitLimit != nil {
		mw = append(mw, h.submitLimit)
	}
	g.POST("/tick/:instrument_id/export", h.SubmitTick, mw...)
	g.POST("/ohlc/:instrument_id/export", h.SubmitOHLC, mw...)
	g.GET("/export/:job_id/status", h.Status)
	g.GET("/export/:job_id/download", h.Download)
	g.GET("/export/:job_id/watch", h.Watch)
}

func (h *ExportsEchoHandler) SubmitTick(c echo.Context) error {
	req := &models.TickExportRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseRange(req.FromDate, req.ToDate)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	job, err := h.exports.SubmitTickExport(c.Request().Context(), req.InstrumentID, from, to)
	if err != nil {
		h.logger.Error("submit tick export", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.AcceptedResponse(c, submitted(job))
}

func (h *ExportsEchoHandler) SubmitOHLC(c echo.Context) error {
	req := &models.OHLCExportRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, aerr := parseRange(req.FromDate, req.ToDate)
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

	job, err := h.exports.SubmitOHLCExport(c.Request().Context(), req.InstrumentID, from, to, tf, pt)
	if err != nil {
		h.logger.Error("submit ohlc export", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.AcceptedResponse(c, submitted(job))
}

func (h *ExportsEchoHandler) Status(c echo.Context) error {
	st, err := h.exports.Status(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, statusResponse(st))
}

// Download streams the CSV of a completed job. Jobs still pending or processing get
// 202 with their state instead of a file.
func (h *ExportsEchoHandler) Download(c echo.Context) error {
	dl, err := h.exports.Download(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if !dl.Ready {
		return xhttp.AcceptedResponse(c, models.ExportJobResponse{
			JobID:   c.Param("job_id"),
			Status:  string(dl.State),
			Message: "Export not ready",
		})
	}
	c.Response().Header().Set(echo.HeaderContentType, dl.ContentType)
	return c.Attachment(dl.FilePath, dl.FileName)
}

func submitted(job *models.ExportJob) models.ExportJobResponse {
	return models.ExportJobResponse{
		JobID:   job.ID,
		Status:  string(job.State),
		Message: "Export started",
	}
}

func statusResponse(st *usecase.ExportStatus) models.ExportJobResponse {
	return models.ExportJobResponse{
		JobID:       st.JobID,
		Status:      string(st.State),
		Message:     st.Message,
		DownloadURL: st.DownloadURL,
	}
}

