// Package httpx holds small helpers shared by handlers and middleware:
// JSON responses, content negotiation and error-to-status mapping.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/diewo77/go-policies/internal/apperr"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	var body []byte
	var err error
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			// best-effort error response; avoid writing partial JSON
			http.Error(w, `{"error":"encode_error"}`, http.StatusInternalServerError)
			return
		}
	} else {
		body = []byte("null")
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func JSONError(w http.ResponseWriter, status int, msg string, details any) {
	JSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// WantsJSON reports whether the client prefers JSON over HTML.
func WantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// StatusFor maps an error's apperr code to an HTTP status.
func StatusFor(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeAuthenticationFailed, apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError answers with a JSON error body derived from err. Internal errors
// never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	code := apperr.CodeOf(err)
	if status == http.StatusInternalServerError {
		JSONError(w, status, string(apperr.CodeInternal), nil)
		return
	}
	var details any
	if fields := apperr.FieldsOf(err); len(fields) > 0 {
		details = fields
	}
	JSONError(w, status, string(code), details)
}
