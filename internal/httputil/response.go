// Package httputil holds the JSON request and response helpers shared by the
// storefront's HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/logging"
)

// maxBodyBytes bounds every decoded request body.
const maxBodyBytes = 1 << 20

// ErrorBody is the error document rendered for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// WriteJSON writes data with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError renders err. Errors that are not a ServiceError are reported as
// internal failures without leaking their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("Something went wrong", err)
	}
	body := ErrorBody{Error: ErrorDetail{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
	}}
	body.Error.TraceID = w.Header().Get("X-Trace-ID")
	if body.Error.TraceID == "" && r != nil {
		body.Error.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, se.HTTPStatus, body)
}

// DecodeJSON reads a JSON request body into dst. Unknown fields and trailing
// data are rejected as validation errors.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.Validation("Request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.Validation("Request body is required")
		}
		return errors.Validation(fmt.Sprintf("Invalid request body: %v", err))
	}
	if dec.More() {
		return errors.Validation("Request body must contain a single JSON document")
	}
	return nil
}

// BadRequest writes a validation error.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, errors.Validation(message))
}

// Unauthenticated writes a missing-session error.
func Unauthenticated(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, errors.Unauthenticated(""))
}
