package ratelimit

import (
	httpPkg "PriceServer/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests with 429 once the client IP runs out of tokens.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return httpPkg.AppErrorResponse(c, httpPkg.TooManyRequestsError("too many export requests, slow down"))
			}
			return next(c)
		}
	}
}
