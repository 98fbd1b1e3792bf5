package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"powershare-ledger/internal/api/models"
	"powershare-ledger/internal/ledger"
)

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidQuantity), errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyExists),
		errors.Is(err, ledger.ErrInsufficientSupply),
		errors.Is(err, ledger.ErrSelfTrade):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnavailable):
		return http.StatusLocked
	case errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the shared error body.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "An unexpected error occurred"
	}
	if ledger.Retryable(err) {
		c.Header("Retry-After", "1")
	}
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    ledger.Kind(err),
			Message: message,
		},
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: message,
		},
	})
}
