package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/diewo77/go-policies/auth"
	"github.com/diewo77/go-policies/internal/config"
	"github.com/diewo77/go-policies/internal/db"
	"github.com/diewo77/go-policies/internal/logger"
	"github.com/diewo77/go-policies/internal/metrics"
	"github.com/diewo77/go-policies/internal/models"
	"github.com/diewo77/go-policies/internal/server"
	"github.com/diewo77/go-policies/internal/store"
)

var (
	migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")
	seedOnlyFlag    = flag.Bool("seed-only", false, "Run migrations and seeding, then exit")
	createUserFlag  = flag.Bool("create-user", false, "Create an account from -email/-name/-role/-password and exit")
	emailFlag       = flag.String("email", "", "Email of the account created by -create-user")
	nameFlag        = flag.String("name", "", "Display name of the account created by -create-user")
	roleFlag        = flag.String("role", string(models.RoleStaff), "Role of the account created by -create-user (Admin or Staff)")
	passwordFlag    = flag.String("password", "", "Password of the account created by -create-user")
)

func main() {
	os.Exit(execute())
}

// execute returns the process exit code so deferred cleanup, including the
// logger flush, runs before os.Exit.
func execute() int {
	flag.Parse()
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log, err := logger.New(cfg.App.IsProduction(), cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if err := migrate(conn, cfg, log); err != nil {
		return err
	}
	if *migrateOnlyFlag {
		log.Info("migrations completed; exiting as requested")
		return nil
	}

	if *createUserFlag {
		return createUser(ctx, conn, log)
	}

	seed := db.SeedOptions{
		AdminName:     cfg.Auth.AdminName,
		AdminEmail:    cfg.Auth.AdminEmail,
		AdminPassword: cfg.Auth.AdminPassword,
		Demo:          cfg.App.SeedDemo,
	}
	if err := db.Seed(ctx, conn, seed, log); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if *seedOnlyFlag {
		log.Info("seeding completed; exiting as requested")
		return nil
	}

	auth.Configure(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	handler := server.New(server.Deps{
		DB:           conn,
		Log:          log,
		Metrics:      metrics.New(),
		RoleCacheTTL: cfg.Auth.RoleCacheTTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server gracefully stopped")
	return nil
}

// migrate applies the versioned SQL files when MIGRATIONS is set (Postgres
// only) and falls back to gorm AutoMigrate otherwise.
func migrate(conn *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	if cfg.App.Migrations && cfg.Database.Driver == "postgres" {
		log.Info("running sql migrations", zap.String("dir", cfg.App.MigrationsDir))
		return db.RunSQLMigrations(cfg.App.MigrationsDir, cfg.Database.URL())
	}
	return db.AutoMigrate(conn)
}

func createUser(ctx context.Context, conn *gorm.DB, log *zap.Logger) error {
	role, ok := models.ParseRole(*roleFlag)
	if !ok {
		return fmt.Errorf("unknown role %q (want Admin or Staff)", *roleFlag)
	}
	u, err := store.NewUserStore(conn).Create(ctx, store.NewUser{
		Name:     *nameFlag,
		Email:    *emailFlag,
		Password: *passwordFlag,
		Role:     role,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	log.Info("user created", zap.Uint("user_id", u.ID), zap.String("email", u.Email), zap.String("role", string(u.Role)))
	return nil
}
