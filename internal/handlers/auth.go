package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/store"
	"github.com/diewo77/go-policies/validation"
)

type AuthHandler struct {
	users   *store.UserStore
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewAuthHandler(users *store.UserStore, m *metrics.Metrics, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, metrics: m, log: log}
}

// LoginForm shows the login page, or skips it when the session is still valid.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if uid, ok := auth.ParseSession(r); ok {
		exists, err := h.users.Exists(r.Context(), uid)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		if exists {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		auth.ClearSession(w)
	}
	page(w, r, h.log, http.StatusOK, "login.html", map[string]any{"Email": ""})
}

type loginForm struct {
	Email    string `form:"email" validate:"required"`
	Password string `form:"password" validate:"required,notblank"`
}

// Login checks the credentials and opens a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if v := validation.Struct(loginForm{Email: email, Password: password}); !v.Empty() {
		h.fail(w, r, http.StatusBadRequest, email, apperr.Validation(v))
		return
	}

	user, err := h.users.Verify(r.Context(), email, password)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeAuthenticationFailed) {
			h.metrics.LoginFailures.Inc()
			h.log.Info("login failed", zap.String("email", email))
			h.fail(w, r, http.StatusUnauthorized, email, err)
			return
		}
		writeError(w, r, h.log, err)
		return
	}

	h.metrics.LoginSuccesses.Inc()
	h.log.Info("login", zap.Uint("user_id", user.ID))
	auth.CreateSession(w, user.ID)
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, user)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, status int, email string, err error) {
	if httpx.WantsJSON(r) {
		httpx.WriteError(w, err)
		return
	}
	data := map[string]any{"Email": email, "Fields": apperr.FieldsOf(err)}
	if status == http.StatusUnauthorized {
		data["Error"] = "invalid_credentials"
	}
	page(w, r, h.log, status, "login.html", data)
}

// Logout clears the session and returns to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSession(w)
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	auth.SetFlash(w, "logged_out")
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
