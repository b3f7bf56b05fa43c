package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func statusOf(err error) int {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		switch ce.Code {
		case core.ErrCodeBadRequest:
			return http.StatusBadRequest
		case core.ErrCodeRateLimited:
			return http.StatusTooManyRequests
		}
	}

	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, core.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its status and wire code.
func respondError(c *gin.Context, logger *zerolog.Logger, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	ce := core.ToCoreError(err)
	c.JSON(status, ErrorResponse{Error: ce.Message, Code: ce.Code})
}
