// Package server wires stores, ledger, access control and handlers into the
// application's http.Handler.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/gate"
	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/access"
	"github.com/diewo77/go-policies/internal/db"
	"github.com/diewo77/go-policies/internal/handlers"
	"github.com/diewo77/go-policies/internal/ledger"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/middleware"
	"github.com/diewo77/go-policies/internal/store"
	"github.com/diewo77/go-policies/view"
)

// Deps are the collaborators New needs. Log and Metrics default to a no-op
// logger and a fresh registry.
type Deps struct {
	DB           *gorm.DB
	Log          *zap.Logger
	Metrics      *metrics.Metrics
	RoleCacheTTL time.Duration
}

// New constructs the root http.Handler with all routes and middlewares applied.
func New(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.RoleCacheTTL <= 0 {
		d.RoleCacheTTL = 5 * time.Minute
	}

	users := store.NewUserStore(d.DB)
	policies := store.NewPolicyStore(d.DB)
	acks := ledger.New(d.DB, ledger.WithLogger(d.Log), ledger.WithMetrics(d.Metrics))
	ac := access.NewController(
		access.NewDBRoleResolver(d.DB),
		d.RoleCacheTTL,
		access.WithLogger(d.Log),
		access.WithMetrics(d.Metrics),
		access.WithDeniedHandler(handlers.ErrorResponder(d.Log)),
	)

	// RequireAuth and the login page drop sessions of deleted accounts.
	auth.SetUserVerifier(func(ctx context.Context, uid uint) (bool, error) {
		ok, err := users.Exists(ctx, uid)
		if err != nil {
			d.Log.Error("verify session user", zap.Uint("user_id", uid), zap.Error(err))
		}
		return ok, err
	})
	view.SetCanResolver(ac.CanRequest)

	ah := handlers.NewAuthHandler(users, d.Metrics, d.Log)
	ph := handlers.NewPolicyHandler(policies, users, acks, ac, d.Metrics, d.Log)
	kh := handlers.NewAcknowledgmentHandler(acks, d.Log)

	protect := func(action gate.Permission, h http.HandlerFunc) http.Handler {
		return auth.RequireAuth(ac.Require(action)(h))
	}

	mux := http.NewServeMux()

	// --- Health endpoints ---
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context(), d.DB); err != nil {
			httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// --- Public routes ---
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserIDFromContext(r.Context()); ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
	mux.HandleFunc("GET /login", ah.LoginForm)
	mux.HandleFunc("POST /login", ah.Login)
	mux.HandleFunc("GET /logout", ah.Logout)
	mux.HandleFunc("POST /logout", ah.Logout)

	// --- Authenticated routes ---
	mux.Handle("GET /dashboard", protect(access.ViewDashboard, ph.Dashboard))
	mux.Handle("GET /policies", protect(access.ListPolicies, ph.List))
	mux.Handle("GET /policy/{id}", protect(access.ViewPolicy, ph.View))
	mux.Handle("POST /policy/{id}/acknowledge", protect(access.AcknowledgePolicy, ph.Acknowledge))
	mux.Handle("POST /mark_as_read/{id}", protect(access.AcknowledgePolicy, ph.Acknowledge))

	// --- Administrator routes ---
	mux.Handle("GET /policy/create", protect(access.CreatePolicy, ph.New))
	mux.Handle("POST /policy/create", protect(access.CreatePolicy, ph.Create))
	mux.Handle("GET /acknowledgments", protect(access.ViewAcknowledgments, kh.Matrix))

	var h http.Handler = mux
	h = auth.Middleware(h)
	h = middleware.Prefs(h)
	h = middleware.Recover(d.Log)(h)
	h = middleware.Logging(d.Log, d.Metrics)(h)
	h = middleware.RequestID(h)
	return h
}
