package api

import (
	"PriceServer/internal/domain/models"
	"PriceServer/internal/usecase"
	xhttp "PriceServer/pkg/http"
	xlogger "PriceServer/pkg/logger"
	"PriceServer/pkg/util"

	"github.com/labstack/echo/v4"
)

// InstrumentsEchoHandler serves instrument CRUD under /assets.
type InstrumentsEchoHandler struct {
	logger      *xlogger.Logger
	instruments *usecase.InstrumentService
}

func NewInstrumentsEchoHandler(logger *xlogger.Logger, instruments *usecase.InstrumentService) *InstrumentsEchoHandler {
	return &InstrumentsEchoHandler{logger: logger, instruments: instruments}
}

func (h *InstrumentsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/assets")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *InstrumentsEchoHandler) List(c echo.Context) error {
	req := &models.InstrumentListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	page, err := h.instruments.List(c.Request().Context(), req.Page, req.Size)
	if err != nil {
		h.logger.Error("list instruments", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, models.InstrumentListResponse{
		Items: page.Items,
		Total: page.Total,
		Page:  page.Page,
		Size:  page.Size,
	})
}

func (h *InstrumentsEchoHandler) Create(c echo.Context) error {
	req := &models.InstrumentCreateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	inst, err := h.instruments.Create(c.Request().Context(), *req)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Get(c echo.Context) error {
	id, aerr := pathID(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	inst, err := h.instruments.Get(c.Request().Context(), id)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Update(c echo.Context) error {
	req := &models.InstrumentUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	patch := models.InstrumentPatch{
		Symbol:      req.Symbol,
		Name:        req.Name,
		Description: req.Description,
	}
	if req.AssetType != nil {
		at := models.AssetType(*req.AssetType)
		patch.AssetType = &at
	}
	inst, err := h.instruments.Update(c.Request().Context(), req.ID, patch)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, inst)
}

func (h *InstrumentsEchoHandler) Delete(c echo.Context) error {
	id, aerr := pathID(c)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	if err := h.instruments.Delete(c.Request().Context(), id); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

func pathID(c echo.Context) (int64, *xhttp.AppError) {
	id, err := util.ParseInt64(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, xhttp.FieldError("id", "id must be a positive integer")
	}
	return id, nil
}
