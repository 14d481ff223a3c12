package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/lllypuk/eventcore/internal/domain/errs"
)

// Response represents a standard API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents an error in the API response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 OK response with data.
func RespondOK(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// RespondError sends an error JSON response based on the error type.
func RespondError(c echo.Context, err error) error {
	statusCode, apiError := mapError(err)
	return c.JSON(statusCode, Response{Success: false, Error: apiError})
}

func mapError(err error) (int, *Error) {
	switch {
	case errors.Is(err, errs.ErrStreamNotFound):
		return http.StatusNotFound, &Error{Code: "STREAM_NOT_FOUND", Message: err.Error()}

	case errors.Is(err, errs.ErrStreamDeleted):
		return http.StatusGone, &Error{Code: "STREAM_DELETED", Message: err.Error()}

	case errors.Is(err, errs.ErrSnapshotNotFound):
		return http.StatusNotFound, &Error{Code: "SNAPSHOT_NOT_FOUND", Message: err.Error()}

	case errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest, &Error{Code: "INVALID_ARGUMENT", Message: err.Error()}

	case errors.Is(err, errs.ErrVersionConflict):
		return http.StatusConflict, &Error{Code: "VERSION_CONFLICT", Message: err.Error()}

	default:
		return http.StatusInternalServerError, &Error{
			Code:    "INTERNAL_ERROR",
			Message: "An internal error occurred",
		}
	}
}
