package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandlerMiddleware turns panics and unhandled handler errors into the
// JSON error envelope. Details go to the log, never to the client.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Interface("panic", err).
					Str("path", c.Request.URL.Path).
					Msg("handler panicked")
				abort(c, http.StatusInternalServerError, "An unexpected error occurred")
			}
		}()

		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			zerolog.Ctx(c.Request.Context()).Error().Err(c.Errors.Last()).Msg("request failed")
			abort(c, http.StatusInternalServerError, "An unexpected error occurred")
		}
	}
}
