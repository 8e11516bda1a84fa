package httpx

import (
	"errors"
	"net/http"

	"github.com/storedesk/storedesk/internal/apiclient"
)

// ErrValidation marks a request rejected before it reached the store API.
var ErrValidation = errors.New("validation failed")

type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

func (e validationError) Unwrap() error { return ErrValidation }

// Invalid returns an ErrValidation whose text is shown to the caller as is.
func Invalid(msg string) error {
	return validationError{msg: msg}
}

// RespondError maps store API and request errors to RFC7807 responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, apiclient.ErrAuthRejected):
		Problem(w, http.StatusUnauthorized, "Unauthorized", apiclient.Message(err))
	case errors.Is(err, apiclient.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", apiclient.Message(err))
	case errors.Is(err, apiclient.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", apiclient.Message(err))
	case errors.Is(err, apiclient.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Rejected", apiclient.Message(err))
	case errors.Is(err, apiclient.ErrUnavailable):
		Problem(w, http.StatusBadGateway, "Store API Unavailable", apiclient.Message(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
