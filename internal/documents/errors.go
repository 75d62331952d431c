package documents

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/JaimeStill/docflow/pkg/handlers"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrValidation       = errors.New("document validation failed")
	ErrDuplicate        = errors.New("document already exists")
	ErrRevisionConflict = errors.New("document revision already exists")
)

// ValidationError names the required fields that are missing and the fields
// whose values could not be coerced.
type ValidationError struct {
	Missing   []string
	Malformed map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Malformed) > 0 {
		fields := slices.Sorted(maps.Keys(e.Malformed))
		bad := make([]string, len(fields))
		for i, f := range fields {
			bad[i] = fmt.Sprintf("%s (%s)", f, e.Malformed[f])
		}
		parts = append(parts, "malformed fields: "+strings.Join(bad, ", "))
	}
	if len(parts) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func (e *ValidationError) malformed(field, reason string) {
	if e.Malformed == nil {
		e.Malformed = make(map[string]string)
	}
	e.Malformed[field] = reason
}

func (e *ValidationError) empty() bool {
	return len(e.Missing) == 0 && len(e.Malformed) == 0
}

// MapHTTPStatus converts domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation), errors.Is(err, handlers.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrRevisionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
