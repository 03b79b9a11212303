package handler

import (
	"errors"
	"net/http"

	"github.com/Anylayerorg/landing-sub001/pkg/logger"
	"github.com/Anylayerorg/landing-sub001/service"
	"github.com/gin-gonic/gin"
)

// errorResponse maps service errors onto HTTP statuses. Backend failures
// carry the backend's status code and body; partial completions are
// flagged so the console can offer resolve and acknowledge.
func errorResponse(err error) (int, gin.H) {
	body := gin.H{"error": err.Error()}

	var backendErr *service.BackendError
	var partialErr *service.PartialError

	switch {
	case errors.As(err, &partialErr):
		body["partial_completion"] = true
		body["action"] = partialErr.Action
		return http.StatusInternalServerError, body
	case errors.As(err, &backendErr):
		body["code"] = backendErr.Code
		body["body"] = backendErr.Body
		return http.StatusBadGateway, body
	case errors.Is(err, service.ErrPartialCompletion):
		body["partial_completion"] = true
		return http.StatusConflict, body
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, service.ErrAlreadyTerminal),
		errors.Is(err, service.ErrInFlight),
		errors.Is(err, service.ErrNothingToResolve),
		errors.Is(err, service.ErrUnpublished):
		return http.StatusConflict, body
	case errors.Is(err, service.ErrCancelled),
		errors.Is(err, service.ErrInvalidSubmission),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, body
	default:
		return http.StatusInternalServerError, gin.H{"error": "Internal server error"}
	}
}

func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "error", err)
	}
	c.JSON(status, body)
}
