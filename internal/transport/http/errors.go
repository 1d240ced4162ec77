package http

import (
	"errors"
	"net/http"

	"edugame-service/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// statusFor maps a domain error onto an HTTP status, a stable code and a client-safe message.
func statusFor(err error) (int, apiError) {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, apiError{"invalid_credentials", domain.ErrInvalidCredentials.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, apiError{"unauthorized", domain.ErrUnauthorized.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, apiError{"forbidden", domain.ErrForbidden.Error()}
	case errors.Is(err, domain.ErrDuplicateEntry):
		return http.StatusConflict, apiError{"already_completed", domain.ErrDuplicateEntry.Error()}
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict, apiError{"account_exists", domain.ErrAccountExists.Error()}
	case errors.Is(err, domain.ErrUnknownModality):
		return http.StatusNotFound, apiError{"unknown_modality", domain.ErrUnknownModality.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, apiError{"not_found", domain.ErrNotFound.Error()}
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, apiError{"invalid_input", err.Error()}
	default:
		return http.StatusInternalServerError, apiError{"internal", "internal server error"}
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: body})
}
