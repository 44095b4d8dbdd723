package server

import (
	"errors"
	"net/http"

	"github.com/alfredjeanlab/docq/internal/auth"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/query"
	"github.com/alfredjeanlab/docq/internal/store"
	"google.golang.org/grpc/codes"
)

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// errRateLimited is returned when a principal exceeds its request rate.
var errRateLimited = errors.New("rate limit exceeded")

func isInputError(err error) bool {
	var ie inputError
	var ve *model.ValidationError
	return errors.As(err, &ie) ||
		errors.As(err, &ve) ||
		query.IsInvalid(err)
}

// httpStatus maps an operation error to a response status.
func httpStatus(err error) int {
	switch {
	case isInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// grpcCode is the gRPC counterpart of httpStatus.
func grpcCode(err error) codes.Code {
	switch httpStatus(err) {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// errorMessage hides internal failures from clients.
func errorMessage(err error) string {
	if httpStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
