package sagas

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/docflow/pkg/handlers"
)

var (
	ErrNotFound       = errors.New("saga not found")
	ErrStepSettled    = errors.New("saga step already settled")
	ErrInvalidPayload = errors.New("saga payload must contain a document object")
	ErrInvalidEvent   = errors.New("invalid saga event")
)

// MapHTTPStatus converts domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, handlers.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrStepSettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
