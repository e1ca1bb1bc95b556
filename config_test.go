package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "login-queue", cfg.QueueName)
	assert.Equal(t, 100, cfg.FetchCount)
	assert.Equal(t, "user_logins", cfg.Table)
	assert.True(t, cfg.SkipEmpty)
	assert.False(t, cfg.DeleteAfterCommit)
	assert.Equal(t, driverPQ, cfg.DBDriver)
	assert.Equal(t, "localhost", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, passwordSourcePrompt, cfg.PasswordSource)
	assert.Equal(t, "http://localhost:4566", cfg.EndpointURL)
	assert.Equal(t, "-", cfg.DeviceIDDelimiter)
	assert.Equal(t, "message_id", cfg.MessageIDColumn)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "login-etl.yaml")
	content := []byte("queue-name: file-queue\nfetch-count: 5\ndb-host: db.internal\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("LOGIN_ETL_FETCH_COUNT", "7")
	t.Setenv("LOGIN_ETL_DB_DRIVER", "pgx")

	cfg, err := loadConfig(path, map[string]any{"db-host": "flag-host"})
	require.NoError(t, err)

	assert.Equal(t, "file-queue", cfg.QueueName, "file beats default")
	assert.Equal(t, 7, cfg.FetchCount, "env beats file")
	assert.Equal(t, driverPGX, cfg.DBDriver)
	assert.Equal(t, "flag-host", cfg.DBHost, "flag beats file")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base, err := loadConfig("", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty queue", mutate: func(c *Config) { c.QueueName = " " }},
		{name: "zero fetch count", mutate: func(c *Config) { c.FetchCount = 0 }},
		{name: "empty table", mutate: func(c *Config) { c.Table = "" }},
		{name: "long poll too long", mutate: func(c *Config) { c.WaitSeconds = 21 }},
		{name: "bad port", mutate: func(c *Config) { c.DBPort = 70000 }},
		{name: "unknown driver", mutate: func(c *Config) { c.DBDriver = "mysql" }},
		{name: "unknown password source", mutate: func(c *Config) { c.PasswordSource = "file" }},
		{name: "secretsmanager without id", mutate: func(c *Config) { c.PasswordSource = passwordSourceSecretsManager }},
		{name: "env password without mask key", mutate: func(c *Config) { c.PasswordSource = passwordSourceEnv }},
		{name: "secretsmanager without mask key", mutate: func(c *Config) {
			c.PasswordSource = passwordSourceSecretsManager
			c.PasswordSecretID = "login-etl/db"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigProjections(t *testing.T) {
	cfg, err := loadConfig("", map[string]any{"fetch-count": 3, "delete-after-commit": true})
	require.NoError(t, err)

	assert.Equal(t, DriverConfig{QueueName: "login-queue", FetchCount: 3, SkipEmpty: true, DeleteAfterCommit: true, MessageIDColumn: "message_id"}, cfg.DriverConfig())
	assert.Equal(t, DBSettings{Driver: driverPQ, Host: "localhost", Port: 5432, Name: "postgres", User: "postgres", SSLMode: "disable"}, cfg.DBSettings())
}

func TestFlagOverrides(t *testing.T) {
	var got map[string]any
	app := newApp()
	app.Action = func(c *cli.Context) error {
		got = flagOverrides(c)
		return nil
	}

	err := app.Run([]string{"login-etl", "--fetch-count", "5", "--db-driver", "pgx", "--delete-after-commit", "--config", "x.yaml"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"fetch-count":         5,
		"db-driver":           "pgx",
		"delete-after-commit": true,
	}, got)
}

func TestConfigValidateMaskKey(t *testing.T) {
	base, err := loadConfig("", nil)
	require.NoError(t, err)

	interactive := base
	assert.NoError(t, interactive.Validate(), "prompt runs may go unkeyed")

	unattended := base
	unattended.PasswordSource = passwordSourceEnv
	unattended.MaskKey = "k"
	assert.NoError(t, unattended.Validate())

	unattended.MaskKey = ""
	assert.ErrorContains(t, unattended.Validate(), "mask-key")
}
