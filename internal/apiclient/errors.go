package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Sentinel errors matched through *APIError.
var (
	// ErrAuthRejected means the API refused the credential (HTTP 401).
	ErrAuthRejected = errors.New("apiclient: authentication rejected")
	// ErrForbidden means the credential lacks the privilege for the call.
	ErrForbidden = errors.New("apiclient: forbidden")
	// ErrNotFound means the resource does not exist.
	ErrNotFound = errors.New("apiclient: not found")
	// ErrInvalidInput means the API rejected the payload.
	ErrInvalidInput = errors.New("apiclient: invalid input")
	// ErrUnavailable means the API failed or could not be reached.
	ErrUnavailable = errors.New("apiclient: unavailable")
)

// APIError describes a non-2xx response from the store API.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("apiclient: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("apiclient: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
}

// Unwrap maps the status code onto a sentinel error.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrAuthRejected
	case e.Status == http.StatusForbidden:
		return ErrForbidden
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusConflict || e.Status == http.StatusUnprocessableEntity:
		return ErrInvalidInput
	default:
		return ErrUnavailable
	}
}

// Message returns text that is safe to show to the user.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" && apiErr.Status < http.StatusInternalServerError {
			return apiErr.Detail
		}
	}
	switch {
	case errors.Is(err, ErrAuthRejected):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidInput):
		return "The request was rejected. Please check the values and try again."
	default:
		return "The store service is unavailable. Please try again later."
	}
}

// parseDetail extracts the "detail" member the API puts on error bodies. It
// is either a string or a list of validation problems.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return strings.TrimSpace(truncate(string(body), 200))
	}
	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}
	var problems []struct {
		Loc []any  `json:"loc"`
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &problems); err == nil && len(problems) > 0 {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			if len(p.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", p.Loc[len(p.Loc)-1], p.Msg))
				continue
			}
			msgs = append(msgs, p.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return truncate(string(envelope.Detail), 200)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
