// Package apperr holds the error taxonomy shared by the storage, auth,
// real-time and HTTP layers. Callers wrap these with fmt.Errorf("...: %w")
// and match them with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrTransportFailure = errors.New("transport failure")
)

// HTTPStatus maps an error to the status code the REST layer answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrMalformedFrame):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
