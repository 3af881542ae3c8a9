package apperrors

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the appropriate HTTP status code.
// Specific kinds are checked before ErrRemoteCall because classified errors
// also wrap the transport error that caused them.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidArtifact):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrJobIDNotFound), errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAmbiguousSession):
		return http.StatusConflict
	case errors.Is(err, ErrMaxRetriesExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrSavepointFailed), errors.Is(err, ErrJobStartFailed),
		errors.Is(err, ErrJobFailed), errors.Is(err, ErrRemoteCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
