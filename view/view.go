// Package view renders the embedded HTML templates. Each page is parsed once
// together with layout.html; per-request helpers (t, lang, can) are bound on
// a clone at render time.
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/i18n"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	tplCache = struct {
		sync.RWMutex
		m map[string]*template.Template
	}{m: map[string]*template.Template{}}

	resolverMu  sync.RWMutex
	canResolver func(*http.Request, string) bool
)

// SetCanResolver sets the callback templates use through {{ can "policy:create" }}.
func SetCanResolver(f func(*http.Request, string) bool) {
	resolverMu.Lock()
	canResolver = f
	resolverMu.Unlock()
}

// Funcs returns the func map bound to r.
func Funcs(r *http.Request) template.FuncMap {
	lang := i18n.LangFrom(r.Context())
	resolverMu.RLock()
	can := canResolver
	resolverMu.RUnlock()
	return template.FuncMap{
		"t":    func(code string) string { return i18n.T(lang, code) },
		"lang": func() string { return lang },
		"can": func(perm string) bool {
			if can == nil {
				return false
			}
			return can(r, perm)
		},
		"year": func() int { return time.Now().Year() },
		"date": formatDate,
		// dict creates a map from key-value pairs for passing to sub-templates.
		// Usage: {{ template "partial" (dict "Key1" val1 "Key2" val2) }}
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			m := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					continue
				}
				m[key] = values[i+1]
			}
			return m
		},
	}
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	default:
		return ""
	}
}

func load(name string) (*template.Template, error) {
	tplCache.RLock()
	t, ok := tplCache.m[name]
	tplCache.RUnlock()
	if ok {
		return t, nil
	}
	// Parse with unbound helpers; Render rebinds them per request.
	t, err := template.New("layout.html").
		Funcs(Funcs(&http.Request{})).
		ParseFS(templateFS, "templates/layout.html", "templates/"+name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	tplCache.Lock()
	tplCache.m[name] = t
	tplCache.Unlock()
	return t, nil
}

// Render writes the page with status 200.
func Render(w http.ResponseWriter, r *http.Request, name string, data map[string]any) error {
	return RenderStatus(w, r, http.StatusOK, name, data)
}

// RenderStatus executes template name (e.g. "dashboard.html") inside the
// layout. Output is buffered so a template error never leaves a half-written
// page. The pending flash message, if any, is consumed and translated.
func RenderStatus(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) error {
	base, err := load(name)
	if err != nil {
		return err
	}
	t, err := base.Clone()
	if err != nil {
		return err
	}
	t.Funcs(Funcs(r))

	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data["IsLoggedIn"]; !exists {
		_, loggedIn := auth.UserIDFromContext(r.Context())
		data["IsLoggedIn"] = loggedIn
	}
	if _, exists := data["Flash"]; !exists {
		if code := auth.PopFlash(w, r); code != "" {
			data["Flash"] = i18n.T(i18n.LangFrom(r.Context()), code)
		}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	return err
}
