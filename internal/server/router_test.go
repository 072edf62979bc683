package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/internal/dbtest"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/internal/server"
	"github.com/diewo77/go-policies/internal/store"
)

type env struct {
	t       *testing.T
	db      *gorm.DB
	handler http.Handler
	metrics *metrics.Metrics
	users   map[string]*models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	conn := dbtest.Open(t)
	m := metrics.New()
	e := &env{
		t:       t,
		db:      conn,
		handler: server.New(server.Deps{DB: conn, Metrics: m}),
		metrics: m,
		users:   map[string]*models.User{},
	}
	us := store.NewUserStore(conn)
	for _, u := range []store.NewUser{
		{Name: "Alice", Email: "alice@example.com", Password: "alice-pw", Role: models.RoleStaff},
		{Name: "Admin", Email: "admin@example.com", Password: "admin-pw", Role: models.RoleAdmin},
	} {
		created, err := us.Create(context.Background(), u)
		require.NoError(t, err)
		e.users[u.Name] = created
	}
	return e
}

func (e *env) policy(title string) models.Policy {
	e.t.Helper()
	p, err := store.NewPolicyStore(e.db).Create(context.Background(), title, "Text of "+title)
	require.NoError(e.t, err)
	return *p
}

// session is a cookie-carrying client that does not follow redirects.
type session struct {
	e       *env
	cookies map[string]*http.Cookie
	accept  string
}

func (e *env) anonymous() *session {
	return &session{e: e, cookies: map[string]*http.Cookie{}}
}

func (e *env) login(email, password string) *session {
	e.t.Helper()
	s := e.anonymous()
	rec := s.postForm("/login", url.Values{"email": {email}, "password": {password}})
	require.Equal(e.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	require.Equal(e.t, "/dashboard", rec.Header().Get("Location"))
	return s
}

func (s *session) json() *session {
	return &session{e: s.e, cookies: s.cookies, accept: "application/json"}
}

func (s *session) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	if s.accept != "" {
		req.Header.Set("Accept", s.accept)
	}
	rec := httptest.NewRecorder()
	s.e.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(s.cookies, c.Name)
			continue
		}
		s.cookies[c.Name] = c
	}
	return rec
}

func (s *session) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *session) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestScenarioAliceAcknowledgesOnePolicy(t *testing.T) {
	e := newEnv(t)
	a := e.policy("A")
	e.policy("B")
	e.policy("C")

	alice := e.login("alice@example.com", "alice-pw")

	rec := alice.postForm("/policy/"+itoa(a.ID)+"/acknowledge", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	// The flash is shown once on the next page.
	rec = alice.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Policy acknowledged successfully")
	rec = alice.get("/dashboard")
	assert.NotContains(t, rec.Body.String(), "Policy acknowledged successfully")

	type dashboard struct {
		Scope   string          `json:"scope"`
		Pending []models.Policy `json:"pending"`
		Acked   []struct {
			Policy models.Policy `json:"policy"`
		} `json:"acknowledged"`
	}
	d := decode[dashboard](t, alice.json().get("/dashboard"))
	assert.Equal(t, "personal", d.Scope)
	require.Len(t, d.Pending, 2)
	assert.Equal(t, "B", d.Pending[0].Title)
	assert.Equal(t, "C", d.Pending[1].Title)
	require.Len(t, d.Acked, 1)
	assert.Equal(t, "A", d.Acked[0].Policy.Title)

	admin := e.login("admin@example.com", "admin-pw")
	type row struct {
		User   models.User   `json:"user"`
		Policy models.Policy `json:"policy"`
		State  string        `json:"state"`
	}
	rows := decode[[]row](t, admin.json().get("/acknowledgments"))
	require.Len(t, rows, 6)
	states := map[string]string{}
	for _, r := range rows {
		states[r.User.Name+"/"+r.Policy.Title] = r.State
	}
	assert.Equal(t, "acknowledged", states["Alice/A"])
	assert.Equal(t, "pending", states["Alice/B"])
	assert.Equal(t, "pending", states["Alice/C"])
	assert.Equal(t, "pending", states["Admin/A"])

	rec = admin.get("/acknowledgments")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alice")
}

func TestDoubleAcknowledgeKeepsOneRow(t *testing.T) {
	e := newEnv(t)
	a := e.policy("A")
	alice := e.login("alice@example.com", "alice-pw").json()

	type ack struct {
		PolicyID uint `json:"policy_id"`
		Created  bool `json:"created"`
	}
	rec := alice.postForm("/policy/"+itoa(a.ID)+"/acknowledge", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, decode[ack](t, rec).Created)

	rec = alice.postForm("/mark_as_read/"+itoa(a.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ack](t, rec)
	assert.False(t, got.Created)
	assert.Equal(t, a.ID, got.PolicyID)

	var count int64
	e.db.Model(&models.Acknowledgment{}).Count(&count)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.AcknowledgmentsDuplicate))
}

func TestUnauthenticatedRedirectsWithoutData(t *testing.T) {
	e := newEnv(t)
	e.policy("Secret Policy")
	anon := e.anonymous()

	for _, path := range []string{"/dashboard", "/policies", "/policy/1", "/acknowledgments", "/policy/create"} {
		rec := anon.get(path)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
		assert.NotContains(t, rec.Body.String(), "Secret Policy", path)
	}

	rec := anon.json().get("/dashboard")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())

	rec = anon.postForm("/policy/1/acknowledge", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	var count int64
	e.db.Model(&models.Acknowledgment{}).Count(&count)
	assert.Zero(t, count)
}

func TestMissingPolicyIsNotFound(t *testing.T) {
	e := newEnv(t)
	alice := e.login("alice@example.com", "alice-pw")

	assert.Equal(t, http.StatusNotFound, alice.get("/policy/999").Code)
	assert.Equal(t, http.StatusNotFound, alice.get("/policy/abc").Code)
	assert.Equal(t, http.StatusNotFound, alice.json().postForm("/policy/999/acknowledge", nil).Code)
}

func TestStaffIsDeniedAdminActions(t *testing.T) {
	e := newEnv(t)
	alice := e.login("alice@example.com", "alice-pw")

	rec := alice.get("/policy/create")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "You are not allowed to do this.")

	rec = alice.postForm("/policy/create", url.Values{"title": {"X"}, "content": {"Y"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = alice.json().get("/acknowledgments")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	var count int64
	e.db.Model(&models.Policy{}).Count(&count)
	assert.Zero(t, count)
	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.AuthorizationDenied.WithLabelValues("policy:create")))
}

func TestAdminCreatesPolicy(t *testing.T) {
	e := newEnv(t)
	admin := e.login("admin@example.com", "admin-pw")

	rec := admin.get("/policy/create")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = admin.postForm("/policy/create", url.Values{"title": {""}, "content": {"body"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Required")

	rec = admin.postForm("/policy/create", url.Values{"title": {"Travel"}, "content": {"Book economy."}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = admin.get("/dashboard")
	assert.Contains(t, rec.Body.String(), "Policy created successfully")
	assert.Contains(t, rec.Body.String(), "Travel")

	rec = admin.json().postForm("/policy/create", url.Values{"title": {"Security"}, "content": {"Lock screens."}})
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[models.Policy](t, rec)
	assert.Equal(t, "Security", p.Title)

	rec = admin.json().postForm("/policy/create", url.Values{"title": {"Only title"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"validation_failed","details":{"content":"required"}}`, rec.Body.String())
}

func TestAdminDashboardShowsCounts(t *testing.T) {
	e := newEnv(t)
	a := e.policy("A")
	e.policy("B")
	alice := e.login("alice@example.com", "alice-pw")
	alice.postForm("/policy/"+itoa(a.ID)+"/acknowledge", nil)

	admin := e.login("admin@example.com", "admin-pw")
	type dashboard struct {
		Scope    string `json:"scope"`
		Policies []struct {
			Title string `json:"title"`
			Count int64  `json:"acknowledged_count"`
		} `json:"policies"`
	}
	d := decode[dashboard](t, admin.json().get("/dashboard"))
	assert.Equal(t, "organization", d.Scope)
	require.Len(t, d.Policies, 2)
	assert.Equal(t, int64(1), d.Policies[0].Count)
	assert.Equal(t, int64(0), d.Policies[1].Count)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	anon := e.anonymous()

	rec := anon.get("/login")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = anon.postForm("/login", url.Values{"email": {"alice@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")
	assert.Empty(t, anon.cookies["session"])

	rec = anon.postForm("/login", url.Values{"email": {""}, "password": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.LoginFailures))

	alice := e.login("alice@example.com", "alice-pw")
	rec = alice.get("/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	rec = alice.get("/")
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	rec = anon.get("/")
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestLogoutEndsSession(t *testing.T) {
	e := newEnv(t)
	alice := e.login("alice@example.com", "alice-pw")

	rec := alice.postForm("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = alice.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestDeletedUserSessionIsDropped(t *testing.T) {
	e := newEnv(t)
	alice := e.login("alice@example.com", "alice-pw")
	require.NoError(t, e.db.Delete(&models.User{}, e.users["Alice"].ID).Error)

	rec := alice.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestPolicyListAndDetail(t *testing.T) {
	e := newEnv(t)
	a := e.policy("A")
	e.policy("B")
	alice := e.login("alice@example.com", "alice-pw")

	rec := alice.get("/policy/" + itoa(a.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Text of A")
	assert.Contains(t, rec.Body.String(), "/acknowledge")

	alice.postForm("/policy/"+itoa(a.ID)+"/acknowledge", nil)
	rec = alice.get("/policy/" + itoa(a.ID))
	assert.NotContains(t, rec.Body.String(), `action="/policy/`+itoa(a.ID)+`/acknowledge"`)

	type item struct {
		Policy       models.Policy `json:"policy"`
		Acknowledged bool          `json:"acknowledged"`
	}
	items := decode[[]item](t, alice.json().get("/policies"))
	require.Len(t, items, 2)
	assert.True(t, items[0].Acknowledged)
	assert.False(t, items[1].Acknowledged)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	anon := e.anonymous()

	rec := anon.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = anon.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "policies_http_request_duration_seconds")
}
