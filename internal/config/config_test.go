package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "prefer", cfg.Database.SSLMode)
	assert.Equal(t, 5*time.Minute, cfg.Database.MetadataTTL)
	assert.Equal(t, []string{"public"}, cfg.Generator.Schemas)
	assert.False(t, cfg.Debug)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RELATA_DATABASE_HOST", "db.internal")
	t.Setenv("RELATA_DATABASE_PORT", "6432")
	t.Setenv("RELATA_DATABASE_DATABASE", "blogdb")
	t.Setenv("RELATA_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "blogdb", cfg.Database.Database)
	assert.True(t, cfg.Debug)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "relata.yaml"), `
database:
  host: pg.example.org
  database: blogdb
generator:
  schemas: [actor, blog]
`)
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pg.example.org", cfg.Database.Host)
	assert.Equal(t, "blogdb", cfg.Database.Database)
	assert.Equal(t, []string{"actor", "blog"}, cfg.Generator.Schemas)
}

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:           "localhost",
		Port:           5432,
		User:           "halftest",
		Password:       "secret",
		Database:       "blogdb",
		SSLMode:        "disable",
		ConnectTimeout: 10 * time.Second,
	}
	assert.Equal(t,
		"host=localhost port=5432 user=halftest password=secret dbname=blogdb sslmode=disable connect_timeout=10",
		cfg.ConnectionString())
}

func TestValidate(t *testing.T) {
	cfg := &Config{Database: DatabaseConfig{Host: "localhost", Port: 5432, Database: "blogdb"}}
	assert.NoError(t, cfg.Validate())

	cfg.Database.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Database.Port = 5432
	cfg.Database.Database = ""
	assert.Error(t, cfg.Validate())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
