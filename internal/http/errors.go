package httpx

import (
	"errors"
	"net/http"

	"github.com/compudrive/drivebench/internal/data"
	apperrors "github.com/compudrive/drivebench/internal/errors"
)

// statusForCode maps the application error taxonomy to HTTP statuses.
func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeProtectedDevice:
		return http.StatusForbidden
	case apperrors.ErrCodeDeviceBusy, apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnknownTestType,
		apperrors.ErrCodeInvalidParameters,
		apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeCapacity:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errCodeOf extracts the taxonomy code from an error, falling back to
// "internal" for errors outside the taxonomy.
func errCodeOf(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return string(appErr.Code)
	}
	return string(apperrors.ErrCodeInternal)
}

// WriteAppError renders an error from the service layer as a JSON response.
// AppError codes map to specific statuses; repository sentinels map to 404;
// anything else is a 500 with a generic error code.
func WriteAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		WriteError(w, ErrorParams{
			Code:    statusForCode(appErr.Code),
			ErrCode: string(appErr.Code),
			Err:     appErr,
		})
		return
	}

	switch {
	case errors.Is(err, data.ErrDriveNotFound),
		errors.Is(err, data.ErrSessionNotFound),
		errors.Is(err, data.ErrSettingNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: err})
	}
}
