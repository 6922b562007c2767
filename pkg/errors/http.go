package errors

import (
	"errors"
	"net/http"
)

// HTTP status code mappings
var errorStatusCodes = map[error]int{
	ErrNotFound:           http.StatusNotFound,
	ErrInvalidInput:       http.StatusBadRequest,
	ErrInternalError:      http.StatusInternalServerError,
	ErrTimeout:            http.StatusGatewayTimeout,
	ErrUnavailable:        http.StatusServiceUnavailable,
	ErrAlreadyExists:      http.StatusConflict,
	ErrPermissionDenied:   http.StatusForbidden,
	ErrUnauthenticated:    http.StatusUnauthorized,
	ErrFailedPrecondition: http.StatusPreconditionFailed,
	ErrCanceled:           http.StatusRequestTimeout,

	// Domain-specific error mappings
	ErrMediaDenied:         http.StatusUnprocessableEntity,
	ErrSessionNotFound:     http.StatusNotFound,
	ErrSessionAlreadyExist: http.StatusConflict,
	ErrDetectorUnavailable: http.StatusServiceUnavailable,
	ErrInvalidLandmarks:    http.StatusBadRequest,
	ErrVoiceLinkFailed:     http.StatusBadGateway,
	ErrTranscriptionFailed: http.StatusInternalServerError,
	ErrAnalysisStopped:     http.StatusConflict,
	ErrReportUnavailable:   http.StatusBadGateway,
	ErrProviderNotFound:    http.StatusNotFound,
}

// HTTPStatusFromError determines the appropriate HTTP status code for an error
func HTTPStatusFromError(err error) int {
	for err != nil {
		if code, ok := errorStatusCodes[err]; ok {
			return code
		}

		var serr *Error
		if errors.As(err, &serr) {
			err = serr.original
			continue
		}

		unwrapped := errors.Unwrap(err)
		if unwrapped == nil || unwrapped == err {
			break
		}
		err = unwrapped
	}

	return http.StatusInternalServerError
}
