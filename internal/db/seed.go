package db

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/internal/apperr"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/internal/store"
)

// SeedOptions controls what Seed inserts. Seeding is idempotent: existing
// accounts (by email) and policies (by title) are left alone.
type SeedOptions struct {
	AdminName     string
	AdminEmail    string
	AdminPassword string
	Demo          bool
}

var demoUsers = []store.NewUser{
	{Name: "Alice", Email: "alice@example.com", Password: "alice123", Role: models.RoleStaff},
	{Name: "Bob", Email: "bob@example.com", Password: "bob123", Role: models.RoleStaff},
}

var demoPolicies = []models.Policy{
	{Title: "Acceptable Use Policy", Content: "Company equipment is for business use. Do not install unapproved software."},
	{Title: "Password Policy", Content: "Use a unique password of at least 12 characters and enable MFA where offered."},
	{Title: "Remote Work Policy", Content: "Connect through the VPN and lock your screen when stepping away."},
}

// Seed creates the bootstrap admin account and, when requested, demo data.
func Seed(ctx context.Context, conn *gorm.DB, opts SeedOptions, log *zap.Logger) error {
	users := store.NewUserStore(conn)

	if opts.AdminEmail != "" && opts.AdminPassword != "" {
		created, err := ensureUser(ctx, conn, users, store.NewUser{
			Name:     opts.AdminName,
			Email:    opts.AdminEmail,
			Password: opts.AdminPassword,
			Role:     models.RoleAdmin,
		})
		if err != nil {
			return err
		}
		if created {
			log.Info("seeded admin account", zap.String("email", opts.AdminEmail))
		}
	}

	if !opts.Demo {
		return nil
	}
	for _, u := range demoUsers {
		if _, err := ensureUser(ctx, conn, users, u); err != nil {
			return err
		}
	}
	for _, p := range demoPolicies {
		var existing models.Policy
		err := conn.WithContext(ctx).Where("title = ?", p.Title).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := conn.WithContext(ctx).Create(&p).Error; err != nil {
			return err
		}
	}
	log.Info("seeded demo data", zap.Int("users", len(demoUsers)), zap.Int("policies", len(demoPolicies)))
	return nil
}

func ensureUser(ctx context.Context, conn *gorm.DB, users *store.UserStore, in store.NewUser) (bool, error) {
	var count int64
	email := store.NormalizeEmail(in.Email)
	if err := conn.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := users.Create(ctx, in); err != nil {
		return false, apperr.Wrap(err, apperr.CodeInternal, "seed user "+in.Email)
	}
	return true, nil
}
