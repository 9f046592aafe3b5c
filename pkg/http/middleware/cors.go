package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int // seconds a preflight may be cached
}

// exposed lets browser clients read the attachment filename of CSV downloads.
var exposed = []string{echo.HeaderContentDisposition, echo.HeaderContentLength}

// CORS returns CORS middleware built on echo's implementation.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  cfg.AllowHeaders,
		ExposeHeaders: exposed,
		MaxAge:        cfg.MaxAge,
	})
}
