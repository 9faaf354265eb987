package common

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"thirdcoast.systems/reelfeed/internal/pipeline/faults"
)

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusNotFound, msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusInternalServerError, msg)
}

// FromFault maps a classified pipeline error onto an HTTP status. Validation
// problems are the caller's fault; everything else is ours.
func FromFault(err error) *echo.HTTPError {
	if faults.KindOf(err) == faults.KindValidation {
		return ErrBadRequest(err.Error())
	}
	return ErrInternal("internal error")
}
