package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jhjames1/peerchat/pkg/appstate"
	"github.com/jhjames1/peerchat/pkg/services"
)

// Error kinds reported in error bodies.
const (
	kindValidation    = "validation"
	kindAuthorization = "authorization"
	kindNotFound      = "not_found"
	kindConflict      = "conflict"
	kindInternal      = "internal"
)

// mapServiceError maps service-layer errors to an HTTP status and body.
func mapServiceError(err error) (int, *ErrorResponse) {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return http.StatusBadRequest, &ErrorResponse{Error: validErr.Error(), Kind: kindValidation, Field: validErr.Field}
	}
	if errors.Is(err, appstate.ErrInvalidState) {
		return http.StatusBadRequest, &ErrorResponse{Error: err.Error(), Kind: kindValidation}
	}
	if services.IsAuthorizationError(err) {
		return http.StatusForbidden, &ErrorResponse{Error: err.Error(), Kind: kindAuthorization}
	}
	if errors.Is(err, services.ErrNotFound) {
		return http.StatusNotFound, &ErrorResponse{Error: "resource not found", Kind: kindNotFound}
	}
	var conflict *services.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, &ErrorResponse{
			Error:   conflict.Error(),
			Kind:    kindConflict,
			Current: conflict.Current,
			Session: conflict.Session,
		}
	}
	if services.IsConflict(err) || errors.Is(err, services.ErrAlreadyExists) {
		return http.StatusConflict, &ErrorResponse{Error: err.Error(), Kind: kindConflict}
	}
	if errors.Is(err, appstate.ErrVersionConflict) {
		return http.StatusConflict, &ErrorResponse{Error: err.Error(), Kind: kindConflict}
	}

	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, &ErrorResponse{Error: "internal server error", Kind: kindInternal}
}

// respondError aborts the request with the mapped error response.
func respondError(c *gin.Context, err error) {
	status, body := mapServiceError(err)
	c.AbortWithStatusJSON(status, body)
}

// badRequest aborts with a 400 validation response.
func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, &ErrorResponse{Error: message, Kind: kindValidation})
}
