package response

import (
	"errors"
	"net/http"

	"tixgate/internal/shared/apperrors"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errs interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errs,
	})
}

// RespondError maps domain errors to HTTP status codes so controllers stay
// free of status-code switches.
func RespondError(c *gin.Context, err error) {
	if su, ok := apperrors.IsSeatUnavailable(err); ok {
		RespondJSON(c, "error", http.StatusConflict, su.Error(), nil, gin.H{"unavailable_seats": su.SeatMappingIDs})
		return
	}

	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrAlreadyAdmitted):
		code = http.StatusConflict
	case errors.Is(err, apperrors.ErrNotAdmitted):
		code = http.StatusForbidden
	case errors.Is(err, apperrors.ErrReservationLimitExceeded):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrLockExpired):
		code = http.StatusGone
	case errors.Is(err, apperrors.ErrOrderNotFound):
		code = http.StatusNotFound
	case errors.Is(err, apperrors.ErrWebhookSignatureInvalid):
		code = http.StatusUnauthorized
	case errors.Is(err, apperrors.ErrUpstreamUnavailable):
		code = http.StatusBadGateway
	case errors.Is(err, apperrors.ErrWindowClosed):
		code = http.StatusForbidden
	}

	RespondJSON(c, "error", code, err.Error(), nil, nil)
}
