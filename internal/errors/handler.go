package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// HTTPErrorHandler renders every error returned by handlers or middleware
// inside the {"detail": {...}} envelope.
func HTTPErrorHandler(log logrus.FieldLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		httpErr := toHTTPError(err)
		if httpErr.StatusCode >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request().URL.Path).Error("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(httpErr.StatusCode)
		} else {
			writeErr = c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		if writeErr != nil {
			log.WithError(writeErr).Warn("write error response")
		}
	}
}

func toHTTPError(err error) *HTTPError {
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		// Errors raised inside echo (routing, binding) carry their own status.
		if inner, ok := echoErr.Message.(error); ok {
			if mapped := MapErrorToHTTP(inner); mapped.StatusCode != http.StatusInternalServerError {
				return mapped
			}
		}
		status := echoErr.Code
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return NewHTTPError(status, fmt.Sprint(echoErr.Message))
	}
	return MapErrorToHTTP(err)
}
