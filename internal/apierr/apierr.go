// Package apierr defines the single error shape every API call surfaces,
// whether the failure came from the backend or from the transport.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// DefaultMessage is used when neither the backend nor the transport say anything useful.
const DefaultMessage = "An unexpected error occurred"

// Error is the normalized failure of an API call.
type Error struct {
	Message     string              `json:"error"`
	Details     any                 `json:"details,omitempty"`
	Code        string              `json:"code,omitempty"`
	FieldErrors map[string][]string `json:"field_errors,omitempty"`

	// Status is the HTTP status of the failed response, 0 for transport failures.
	Status int `json:"-"`

	cause error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Transport reports whether the call never produced an HTTP response.
func (e *Error) Transport() bool { return e.Status == 0 }

// FieldMessages renders one "field: message" line per field error, fields
// in lexical order.
func (e *Error) FieldMessages() []string {
	if len(e.FieldErrors) == 0 {
		return nil
	}
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		for _, msg := range e.FieldErrors[f] {
			out = append(out, f+": "+msg)
		}
	}
	return out
}

// envelope is the backend's error body.
type envelope struct {
	Error       string              `json:"error"`
	Details     any                 `json:"details"`
	Code        string              `json:"code"`
	FieldErrors map[string][]string `json:"field_errors"`
}

// FromResponse normalizes a non-2xx response. Bodies that are not the
// backend's JSON error envelope fall back to a status-derived message.
func FromResponse(status int, body []byte) *Error {
	e := &Error{Status: status}

	var env envelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		e.Message = strings.TrimSpace(env.Error)
		e.Details = env.Details
		e.Code = env.Code
		e.FieldErrors = env.FieldErrors
	}

	if e.Message == "" {
		e.Message = statusMessage(status)
	}
	return e
}

func statusMessage(status int) string {
	if http.StatusText(status) == "" {
		return DefaultMessage
	}
	return fmt.Sprintf("Request failed with status code %d", status)
}

// FromTransport normalizes a failure that produced no HTTP response.
func FromTransport(err error) *Error {
	e := &Error{cause: err}
	if err != nil {
		e.Message = strings.TrimSpace(err.Error())
	}
	if e.Message == "" {
		e.Message = DefaultMessage
	}
	return e
}

// As extracts the normalized error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.Status
	}
	return 0
}
