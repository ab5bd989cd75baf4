package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/AlarisGit/FamilyHealth/internal/platform/apierror"
)

// Recovery turns a handler panic into an internal_error returned to the
// error handler, logging the panicking goroutine's stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize:           4 << 10,
		DisableStackAll:     true,
		DisableErrorHandler: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error().
				Err(err).
				Interface("request_id", c.Get("request_id")).
				Bytes("stack", stack).
				Msg("panic recovered")
			return apierror.New(apierror.KindInternal, "panic: %v", err)
		},
	})
}
