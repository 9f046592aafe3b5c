package api

import (
	"context"
	"net/http"
	"time"

	xhttp "PriceServer/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthEchoHandler reports the app version and the state of every dependency.
type HealthEchoHandler struct {
	name    string
	version string
	checks  []HealthCheck
	timeout time.Duration
}

func NewHealthEchoHandler(name, version string, checks ...HealthCheck) *HealthEchoHandler {
	return &HealthEchoHandler{name: name, version: version, checks: checks, timeout: 3 * time.Second}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

func (h *HealthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res := healthResponse{Status: "ok", Name: h.name, Version: h.version}
	if len(h.checks) > 0 {
		res.Checks = make(map[string]string, len(h.checks))
	}
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			res.Status = "degraded"
			res.Checks[chk.Name] = err.Error()
			continue
		}
		res.Checks[chk.Name] = "ok"
	}

	code := http.StatusOK
	if res.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, code, res)
}
