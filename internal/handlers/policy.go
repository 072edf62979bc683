package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/access"
	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/ledger"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/internal/store"
)

type PolicyHandler struct {
	policies store.PolicyStore
	users    *store.UserStore
	ledger   *ledger.Ledger
	access   *access.Controller
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewPolicyHandler(
	policies store.PolicyStore,
	users *store.UserStore,
	l *ledger.Ledger,
	ac *access.Controller,
	m *metrics.Metrics,
	log *zap.Logger,
) *PolicyHandler {
	return &PolicyHandler{policies: policies, users: users, ledger: l, access: ac, metrics: m, log: log}
}

// currentUser loads the session user. Routes reach it only behind
// access.Require, so a missing user means the account was removed.
func (h *PolicyHandler) currentUser(ctx context.Context) (*models.User, error) {
	uid, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthenticated, "unauthenticated")
	}
	u, err := h.users.GetByID(ctx, uid)
	if apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, apperr.Recode(err, apperr.CodeUnauthenticated, "unauthenticated")
	}
	return u, err
}

type dashboardJSON struct {
	User         *models.User                `json:"user"`
	Scope        access.Scope                `json:"scope"`
	Pending      []models.Policy             `json:"pending"`
	Acknowledged []ledger.AcknowledgedPolicy `json:"acknowledged"`
	Policies     []policyCount               `json:"policies,omitempty"`
}

type policyCount struct {
	models.Policy
	AcknowledgedCount int64 `json:"acknowledged_count"`
}

// Dashboard shows the user's pending and acknowledged policies. Organization
// scope adds every policy with its acknowledgment count.
func (h *PolicyHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.currentUser(ctx)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	scope := h.access.Scope(user.Role)

	part, err := h.ledger.Partition(ctx, user.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	data := map[string]any{
		"User":         user,
		"Scope":        string(scope),
		"Pending":      part.Pending,
		"Acknowledged": part.Acknowledged,
	}
	out := dashboardJSON{User: user, Scope: scope, Pending: part.Pending, Acknowledged: part.Acknowledged}

	if scope == access.ScopeOrganization {
		policies, err := h.policies.List(ctx)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		counts, err := h.ledger.Counts(ctx)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		users, err := h.users.List(ctx)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		data["Policies"] = policies
		data["Counts"] = counts
		data["UserCount"] = len(users)
		for _, p := range policies {
			out.Policies = append(out.Policies, policyCount{Policy: p, AcknowledgedCount: counts[p.ID]})
		}
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, out)
		return
	}
	page(w, r, h.log, http.StatusOK, "dashboard.html", data)
}

type policyItem struct {
	Policy         models.Policy `json:"policy"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
}

// List shows every policy with the current user's state.
func (h *PolicyHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.currentUser(ctx)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	policies, err := h.policies.List(ctx)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	acked, err := h.ledger.AcknowledgedPoliciesFor(ctx, user.ID)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	at := make(map[uint]time.Time, len(acked))
	for _, a := range acked {
		at[a.Policy.ID] = a.AcknowledgedAt
	}
	items := make([]policyItem, 0, len(policies))
	for _, p := range policies {
		item := policyItem{Policy: p}
		if ts, ok := at[p.ID]; ok {
			item.Acknowledged = true
			item.AcknowledgedAt = &ts
		}
		items = append(items, item)
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, items)
		return
	}
	page(w, r, h.log, http.StatusOK, "policies.html", map[string]any{"Items": items})
}

// View shows one policy with the acknowledge control while it is pending.
func (h *PolicyHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	user, err := h.currentUser(ctx)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	p, err := h.policies.GetByID(ctx, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	item := policyItem{Policy: *p}
	entry, err := h.ledger.Get(ctx, user.ID, p.ID)
	switch {
	case err == nil:
		item.Acknowledged = true
		item.AcknowledgedAt = &entry.AcknowledgedAt
	case !apperr.HasCode(err, apperr.CodeNotFound):
		writeError(w, r, h.log, err)
		return
	}

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, item)
		return
	}
	page(w, r, h.log, http.StatusOK, "policy.html", map[string]any{
		"Policy":         item.Policy,
		"Acknowledged":   item.Acknowledged,
		"AcknowledgedAt": item.AcknowledgedAt,
	})
}

// New shows the create form.
func (h *PolicyHandler) New(w http.ResponseWriter, r *http.Request) {
	page(w, r, h.log, http.StatusOK, "policy_new.html", map[string]any{"Title": "", "Content": ""})
}

// Create stores a new policy from the form and redirects to the dashboard.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	title := r.FormValue("title")
	content := r.FormValue("content")

	p, err := h.policies.Create(r.Context(), title, content)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeValidation) && !httpx.WantsJSON(r) {
			page(w, r, h.log, http.StatusBadRequest, "policy_new.html", map[string]any{
				"Title":   title,
				"Content": content,
				"Fields":  apperr.FieldsOf(err),
			})
			return
		}
		writeError(w, r, h.log, err)
		return
	}

	h.metrics.PoliciesCreated.Inc()
	uid, _ := auth.UserIDFromContext(r.Context())
	h.log.Info("policy created", zap.Uint("policy_id", p.ID), zap.Uint("user_id", uid))

	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, p)
		return
	}
	auth.SetFlash(w, "policy_created")
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

type acknowledgeJSON struct {
	PolicyID       uint      `json:"policy_id"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
	Created        bool      `json:"created"`
}

// Acknowledge records the session user's acknowledgment of {id}. Repeating
// it is harmless and keeps the original timestamp.
func (h *PolicyHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.log, apperr.New(apperr.CodeUnauthenticated, "unauthenticated"))
		return
	}

	entry, created, err := h.ledger.Acknowledge(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	if httpx.WantsJSON(r) {
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, acknowledgeJSON{PolicyID: entry.PolicyID, AcknowledgedAt: entry.AcknowledgedAt, Created: created})
		return
	}
	if created {
		auth.SetFlash(w, "policy_acknowledged")
	} else {
		auth.SetFlash(w, "already_acknowledged")
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
