// Package handlers holds the HTTP handlers. Every page answers HTML by
// default and JSON when the client sends Accept: application/json.
package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/view"
)

// page renders an HTML template, logging template failures.
func page(w http.ResponseWriter, r *http.Request, log *zap.Logger, status int, name string, data map[string]any) {
	if err := view.RenderStatus(w, r, status, name, data); err != nil {
		log.Error("render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// ErrorResponder answers err in the client's format: a JSON error body or the
// HTML error page. Unauthenticated browsers are sent to /login.
func ErrorResponder(log *zap.Logger) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, log, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	if httpx.WantsJSON(r) {
		httpx.WriteError(w, err)
		return
	}
	if apperr.HasCode(err, apperr.CodeUnauthenticated) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	page(w, r, log, status, "error.html", map[string]any{
		"Status":  status,
		"Message": errorMessage(err),
	})
}

func errorMessage(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeForbidden:
		return "error_forbidden"
	case apperr.CodeNotFound:
		return "error_not_found"
	case apperr.CodeUnauthenticated, apperr.CodeAuthenticationFailed:
		return "error_unauthenticated"
	default:
		return "error_internal"
	}
}

// pathID parses the {id} wildcard. Anything that is not a positive integer
// is reported as not found.
func pathID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.CodeNotFound, "policy not found")
	}
	return uint(id), nil
}
