// Package access is the capability table of the application: which role may
// perform which action. Roles are resolved from the user table through a TTL
// cache and checked against gate profiles.
package access

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/gate"
	"github.com/diewo77/go-policies/httpx"
	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/models"
)

// Actions checked by the application.
var (
	ViewDashboard       = gate.NewPermission("dashboard", gate.ActionView)
	ListPolicies        = gate.NewPermission("policy", gate.ActionList)
	ViewPolicy          = gate.NewPermission("policy", gate.ActionView)
	CreatePolicy        = gate.NewPermission("policy", gate.ActionCreate)
	AcknowledgePolicy   = gate.NewPermission("policy", gate.ActionAcknowledge)
	ViewAcknowledgments = gate.NewPermission("acknowledgment", gate.ActionList)
)

// Scope is the slice of data a role's dashboard covers.
type Scope string

const (
	ScopeNone         Scope = ""
	ScopePersonal     Scope = "personal"
	ScopeOrganization Scope = "organization"
)

// DeniedFunc answers a request the controller refused. err carries an apperr
// code (unauthenticated, forbidden or internal).
type DeniedFunc func(w http.ResponseWriter, r *http.Request, err error)

// Controller authorizes role/action pairs.
type Controller struct {
	gate    *gate.Gate[models.Role]
	roles   *gate.CachedResolver[uint, models.Role]
	log     *zap.Logger
	metrics *metrics.Metrics
	denied  DeniedFunc
}

type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithDeniedHandler replaces the default JSON/plain-text refusal.
func WithDeniedHandler(fn DeniedFunc) Option {
	return func(c *Controller) { c.denied = fn }
}

// NewGate builds the role table: Admin holds every permission, Staff may read
// policies and acknowledge them.
func NewGate() *gate.Gate[models.Role] {
	return gate.NewGate[models.Role]().
		Grant(models.RoleAdmin, gate.PermissionSuperAdmin).
		Grant(models.RoleStaff,
			ViewDashboard,
			ListPolicies,
			ViewPolicy,
			AcknowledgePolicy,
		)
}

// NewController resolves roles with resolver, caching them for cacheTTL.
func NewController(resolver gate.Resolver[uint, models.Role], cacheTTL time.Duration, opts ...Option) *Controller {
	c := &Controller{
		gate:   NewGate(),
		roles:  gate.NewCachedResolver[uint, models.Role](resolver, cacheTTL),
		log:    zap.NewNop(),
		denied: defaultDenied,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize returns nil when role may perform action. Every refusal,
// including an empty or unknown role, is a forbidden error.
func (c *Controller) Authorize(role models.Role, action gate.Permission) error {
	if err := c.gate.Authorize(role, action); err != nil {
		return apperr.Wrap(err, apperr.CodeForbidden, "unauthorized")
	}
	return nil
}

// Can is Authorize as a bool.
func (c *Controller) Can(role models.Role, action gate.Permission) bool {
	return c.Authorize(role, action) == nil
}

// CanRequest checks action for the role stored in r's context by Require.
// Templates use it to show or hide controls.
func (c *Controller) CanRequest(r *http.Request, action string) bool {
	role, ok := RoleFromContext(r.Context())
	return ok && c.Can(role, gate.Permission(action))
}

// Scope reports what a role's dashboard shows.
func (c *Controller) Scope(role models.Role) Scope {
	switch {
	case c.Can(role, ViewAcknowledgments):
		return ScopeOrganization
	case c.Can(role, ViewDashboard):
		return ScopePersonal
	default:
		return ScopeNone
	}
}

// RoleFor resolves the current role of userID.
func (c *Controller) RoleFor(ctx context.Context, userID uint) (models.Role, error) {
	return c.roles.Resolve(ctx, userID)
}

// Invalidate drops the cached role of userID. Call it after changing a role.
func (c *Controller) Invalidate(userID uint) {
	c.roles.Invalidate(userID)
}

// Require returns middleware that lets the request through only when the
// session user's role holds action. The resolved role is stored in the
// request context.
func (c *Controller) Require(action gate.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, ok := auth.UserIDFromContext(r.Context())
			if !ok {
				c.denied(w, r, apperr.New(apperr.CodeUnauthenticated, "unauthenticated"))
				return
			}
			role, err := c.RoleFor(r.Context(), uid)
			if err != nil {
				if apperr.HasCode(err, apperr.CodeNotFound) {
					auth.ClearSession(w)
					c.denied(w, r, apperr.Recode(err, apperr.CodeUnauthenticated, "unauthenticated"))
					return
				}
				c.log.Error("resolve role", zap.Uint("user_id", uid), zap.Error(err))
				c.denied(w, r, apperr.Wrap(err, apperr.CodeInternal, "resolve role"))
				return
			}
			if err := c.Authorize(role, action); err != nil {
				if c.metrics != nil {
					c.metrics.IncrementAuthorizationDenied(string(action))
				}
				c.log.Info("authorization denied",
					zap.Uint("user_id", uid),
					zap.String("role", string(role)),
					zap.String("action", string(action)),
				)
				c.denied(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

func defaultDenied(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.HasCode(err, apperr.CodeUnauthenticated) && !httpx.WantsJSON(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	httpx.WriteError(w, err)
}

type roleKey struct{}

// WithRole stores the resolved role in ctx.
func WithRole(ctx context.Context, role models.Role) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext returns the role stored by Require.
func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(roleKey{}).(models.Role)
	return role, ok && role != ""
}

// DBRoleResolver reads roles from the users table.
type DBRoleResolver struct {
	DB *gorm.DB
}

func NewDBRoleResolver(db *gorm.DB) *DBRoleResolver {
	return &DBRoleResolver{DB: db}
}

// Resolve returns the stored role of userID, or a not_found error.
func (r *DBRoleResolver) Resolve(ctx context.Context, userID uint) (models.Role, error) {
	var user models.User
	err := r.DB.WithContext(ctx).Select("id", "role").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.New(apperr.CodeNotFound, "user not found")
	}
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "resolve role")
	}
	return user.Role, nil
}
