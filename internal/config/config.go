// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Auth     AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds connection settings. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver     string `env:"DB_DRIVER" envDefault:"postgres"`
	Host       string `env:"DB_HOST" envDefault:"localhost"`
	Port       int    `env:"DB_PORT" envDefault:"5432"`
	User       string `env:"DB_USER" envDefault:"policies"`
	Password   string `env:"DB_PASSWORD" envDefault:"policies123"`
	DBName     string `env:"DB_NAME" envDefault:"policies"`
	SSLMode    string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"DB_SQLITE_PATH" envDefault:"app.db"`
	Debug      bool   `env:"DB_DEBUG" envDefault:"false"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Env           string `env:"APP_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	Migrations    bool   `env:"MIGRATIONS" envDefault:"false"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`
	SeedDemo      bool   `env:"SEED_DEMO" envDefault:"false"`
}

// AuthConfig holds session and bootstrap account settings.
type AuthConfig struct {
	SessionSecret string        `env:"SESSION_SECRET" envDefault:"devsessionsecret"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"336h"`
	RoleCacheTTL  time.Duration `env:"ROLE_CACHE_TTL" envDefault:"5m"`
	AdminEmail    string        `env:"ADMIN_EMAIL"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	AdminName     string        `env:"ADMIN_NAME" envDefault:"Administrator"`
}

// IsProduction reports whether APP_ENV is "production".
func (a AppConfig) IsProduction() bool { return a.Env == "production" }

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want postgres or sqlite)", c.Database.Driver)
	}
	if c.App.IsProduction() && c.Auth.SessionSecret == "devsessionsecret" {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}
	return nil
}
