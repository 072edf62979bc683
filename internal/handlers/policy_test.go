package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/internal/access"
	"github.com/diewo77/go-policies/internal/dbtest"
	"github.com/diewo77/go-policies/internal/ledger"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/store"
)

func newPolicyHandler(t *testing.T) *PolicyHandler {
	t.Helper()
	conn := dbtest.Open(t)
	m := metrics.New()
	return NewPolicyHandler(
		store.NewPolicyStore(conn),
		store.NewUserStore(conn),
		ledger.New(conn),
		access.NewController(access.NewDBRoleResolver(conn), time.Minute),
		m,
		zap.NewNop(),
	)
}

func TestDashboardForRemovedUserLogsOut(t *testing.T) {
	h := newPolicyHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), 42))
	rec := httptest.NewRecorder()
	h.Dashboard(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "application/json")
	req = req.WithContext(auth.WithUserID(req.Context(), 42))
	rec = httptest.NewRecorder()
	h.Dashboard(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
}

func TestCurrentUserWithoutSession(t *testing.T) {
	h := newPolicyHandler(t)

	_, err := h.currentUser(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.Equal(t, "unauthenticated", err.Error())
}
