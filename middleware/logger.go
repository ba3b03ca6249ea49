package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// LoggerMiddleware logs one line per request through the same stdlib
// logger the services use, so API traffic interleaves with monitor and
// dispatcher output in a single stream.
func LoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			path := req.URL.Path
			if req.URL.RawQuery != "" {
				path += "?" + req.URL.RawQuery
			}
			latency := time.Since(start).Milliseconds()

			// POST /api/alerts/abc123/dismiss -> 200 OK (12ms) from 10.0.0.5
			log.Printf("%s %s -> %d %s (%dms) from %s",
				req.Method, path, res.Status, http.StatusText(res.Status), latency, c.RealIP())

			return nil
		}
	}
}
