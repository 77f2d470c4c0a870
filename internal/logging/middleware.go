package logging

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const contextKey = "logger"

// Middleware logs one entry per request and exposes a request scoped
// logger through FromContext.
func Middleware(log logrus.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			if reqID == "" {
				reqID = req.Header.Get(echo.HeaderXRequestID)
			}

			entry := log.WithFields(logrus.Fields{
				"http.req.path":   req.URL.Path,
				"http.req.method": req.Method,
				"http.req.id":     reqID,
			})
			c.Set(contextKey, entry)

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			fields := logrus.Fields{
				"http.resp.took_ms": int64(time.Since(start) / time.Millisecond),
				"http.resp.status":  c.Response().Status,
				"http.resp.bytes":   c.Response().Size,
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			entry.WithFields(fields).Info("request complete")
			return nil
		}
	}
}

// FromContext returns the request logger, or fallback when the middleware
// did not run.
func FromContext(c echo.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if l, ok := c.Get(contextKey).(logrus.FieldLogger); ok {
		return l
	}
	return fallback
}
