package apperrors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainerrors "courier-dispatch/internal/errors"
)

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// 423 Locked for capacity, 409 for lost races — the contract the mobile
// clients key their retry behavior on.
var codeToStatus = map[string]int{
	domainerrors.ErrNotFound:         http.StatusNotFound,
	domainerrors.ErrConflict:         http.StatusConflict,
	domainerrors.ErrCapacityExceeded: http.StatusLocked,
	domainerrors.ErrAcceptanceLocked: http.StatusLocked,
	domainerrors.ErrUnauthorized:     http.StatusUnauthorized,
	domainerrors.ErrForbidden:        http.StatusForbidden,
	domainerrors.ErrValidation:       http.StatusBadRequest,
	domainerrors.ErrUnavailable:      http.StatusServiceUnavailable,
	domainerrors.ErrInternal:         http.StatusInternalServerError,
}

func ToHTTPError(c *gin.Context, err error) {
	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		status, ok := codeToStatus[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorBody{
				Code:    domainErr.Code,
				Message: domainErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorBody{
			Code:    domainerrors.ErrInternal,
			Message: "an unexpected error occurred",
		},
	})
}
