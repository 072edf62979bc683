package store

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/validation"
)

// invalidCredentials is shared by the unknown-email and wrong-password paths
// so callers cannot tell which accounts exist.
const invalidCredentials = "invalid email or password"

// UserStore is the credential store.
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func init() {
	if err := validation.Rule("role", "invalid_role", func(s string) bool {
		return models.Role(s).Valid()
	}); err != nil {
		panic(err)
	}
}

// NewUser is the input of Create.
type NewUser struct {
	Name     string      `form:"name"`
	Email    string      `form:"email" validate:"required,email"`
	Password string      `form:"password" validate:"required"`
	Role     models.Role `form:"role" validate:"role"`
}

// Verify returns the user matching email whose bcrypt hash matches password.
func (s *UserStore) Verify(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.New(apperr.CodeAuthenticationFailed, invalidCredentials)
	}
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeAuthenticationFailed, invalidCredentials)
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "lookup user")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, apperr.New(apperr.CodeAuthenticationFailed, invalidCredentials)
	}
	return &u, nil
}

// GetByID returns the user or a not_found error.
func (s *UserStore) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "user not found")
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "get user")
	}
	return &u, nil
}

// Exists reports whether a user with id is present. A lookup failure is
// returned as an internal error, never as "absent".
func (s *UserStore) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Limit(1).Count(&count).Error; err != nil {
		return false, apperr.Wrap(err, apperr.CodeInternal, "lookup user")
	}
	return count > 0, nil
}

// List returns every user ordered by id.
func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	var out []models.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list users")
	}
	return out, nil
}

// Create hashes the password and inserts the account. The email is stored
// lowercased; an address already registered is an "email_taken" violation.
func (s *UserStore) Create(ctx context.Context, in NewUser) (*models.User, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	if v := validation.Struct(in); !v.Empty() {
		return nil, apperr.Validation(v)
	}
	taken, err := s.emailTaken(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, emailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "hash password")
	}
	u := &models.User{Name: in.Name, Email: in.Email, Password: string(hash), Role: in.Role}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		// Lost a race with a concurrent Create for the same address.
		if taken, _ := s.emailTaken(ctx, in.Email); taken {
			return nil, emailTakenError()
		}
		return nil, apperr.Wrap(err, apperr.CodeInternal, "create user")
	}
	return u, nil
}

func (s *UserStore) emailTaken(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Limit(1).Count(&count).Error; err != nil {
		return false, apperr.Wrap(err, apperr.CodeInternal, "lookup email")
	}
	return count > 0, nil
}

func emailTakenError() error {
	return apperr.Validation(map[string]string{"email": "email_taken"})
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
