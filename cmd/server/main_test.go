package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sqliteEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("MIGRATIONS", "false")
}

func setFlag[T any](t *testing.T, p *T, v T) {
	t.Helper()
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestExecuteMigrateOnly(t *testing.T) {
	sqliteEnv(t)
	setFlag(t, migrateOnlyFlag, true)

	assert.Equal(t, 0, execute())
}

func TestExecuteReportsRunFailure(t *testing.T) {
	sqliteEnv(t)
	setFlag(t, createUserFlag, true)
	setFlag(t, emailFlag, "ops@example.com")
	setFlag(t, passwordFlag, "pw")
	setFlag(t, roleFlag, "Owner")

	assert.Equal(t, 1, execute())
}

func TestExecuteCreatesUser(t *testing.T) {
	sqliteEnv(t)
	setFlag(t, createUserFlag, true)
	setFlag(t, emailFlag, "Ops@Example.com")
	setFlag(t, passwordFlag, "pw")
	setFlag(t, roleFlag, "admin")

	assert.Equal(t, 0, execute())
}
