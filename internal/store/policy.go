// Package store holds the gorm-backed repositories for policies and users.
package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/validation"
)

// PolicyStore persists policies. Policies are never updated or deleted.
type PolicyStore interface {
	Create(ctx context.Context, title, content string) (*models.Policy, error)
	List(ctx context.Context) ([]models.Policy, error)
	GetByID(ctx context.Context, id uint) (*models.Policy, error)
}

// GormPolicyStore implements PolicyStore on top of gorm.
type GormPolicyStore struct {
	db *gorm.DB
}

func NewPolicyStore(db *gorm.DB) *GormPolicyStore {
	return &GormPolicyStore{db: db}
}

// PolicyForm is the create form. The title bound matches models.TitleMaxLength.
type PolicyForm struct {
	Title   string `form:"title" validate:"required,notblank,max=255"`
	Content string `form:"content" validate:"required,notblank"`
}

// ValidatePolicy checks the create form and returns field violations keyed by
// form field name.
func ValidatePolicy(title, content string) validation.Violations {
	return validation.Struct(PolicyForm{Title: title, Content: content})
}

// Create validates and inserts a policy. Title and content are trimmed first.
func (s *GormPolicyStore) Create(ctx context.Context, title, content string) (*models.Policy, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if v := ValidatePolicy(title, content); !v.Empty() {
		return nil, apperr.Validation(v)
	}
	p := &models.Policy{Title: title, Content: content}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "create policy")
	}
	return p, nil
}

// List returns every policy ordered by id.
func (s *GormPolicyStore) List(ctx context.Context) ([]models.Policy, error) {
	var out []models.Policy
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list policies")
	}
	return out, nil
}

// GetByID returns the policy or a not_found error.
func (s *GormPolicyStore) GetByID(ctx context.Context, id uint) (*models.Policy, error) {
	var p models.Policy
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "policy not found")
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "get policy")
	}
	return &p, nil
}
