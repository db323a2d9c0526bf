package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"flowzen/internal/apierror"
	"flowzen/internal/apperr"
)

// ErrorHandler maps the service error taxonomy onto HTTP statuses. Handlers
// push errors with c.Error and abort; this middleware owns the response so
// the mapping lives in exactly one place.
//
//	ValidationError        → 422
//	ConflictError          → 409
//	InvalidStateError      → 409
//	TransientExternalError → 502
//	ExternalError          → 502
//	anything else          → 500, message withheld from the client
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		switch {
		case apperr.IsValidation(err):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
		case apperr.IsConflict(err), apperr.IsInvalidState(err):
			c.AbortWithStatusJSON(http.StatusConflict, apierror.New(err.Error()))
		case apperr.IsTransientExternal(err), apperr.IsExternal(err):
			// The raw gateway message often carries remediation instructions
			// from the fiscal authority, so it is passed through verbatim.
			c.AbortWithStatusJSON(http.StatusBadGateway, apierror.New(err.Error()))
		default:
			log.Error().
				Str("request_id", c.GetString(RequestIDKey)).
				Str("path", c.FullPath()).
				Str("method", c.Request.Method).
				Err(err).
				Msg("unhandled error")
			c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("internal server error"))
		}
	}
}

// Recovery handles panics and converts them into 500 responses.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString(RequestIDKey)).
					Interface("panic", r).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("internal server error"))
			}
		}()
		c.Next()
	}
}

// Logger logs each request with method, path, status, latency, and request_id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
