package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// HTTPErrorHandler renders every error returned by a handler or middleware as
// {"error": kind, "message": text}. Unexpected errors are logged and reported
// as internal_error without their details.
func HTTPErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		body, status := render(err)
		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func render(err error) (*Error, int) {
	var ae *Error
	if errors.As(err, &ae) {
		if ae.Kind == KindInternal {
			return &Error{Kind: KindInternal, Message: "internal server error"}, http.StatusInternalServerError
		}
		return ae, Status(ae.Kind)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		if he.Code >= http.StatusInternalServerError && he.Code != http.StatusServiceUnavailable && he.Code != http.StatusGatewayTimeout {
			msg = "internal server error"
		}
		return &Error{Kind: kindForStatus(he.Code), Message: msg}, he.Code
	}

	return &Error{Kind: KindInternal, Message: "internal server error"}, http.StatusInternalServerError
}

func kindForStatus(code int) Kind {
	switch code {
	case http.StatusBadRequest:
		return KindInvalidRequest
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusInternalServerError:
		return KindInternal
	}
	return Kind(strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_"))
}
