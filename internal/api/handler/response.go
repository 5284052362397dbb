package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/martijn/sitecalm/internal/api/dto"
	"github.com/martijn/sitecalm/internal/core/service"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var svcErr *service.ServiceError
	switch {
	case errors.As(err, &svcErr):
		return svcErr.Code
	case errors.Is(err, service.ErrArchiveNotFound),
		errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, service.ErrCampaignNotFound),
		errors.Is(err, service.ErrNoVideos):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRestoreInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidEvent):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(code int, message string) dto.ErrorResponse {
	return dto.ErrorResponse{
		Success: false,
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	}
}

func respondError(c *gin.Context, code int, message string) {
	c.JSON(code, errorResponse(code, message))
}
