package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix = "LOGIN_ETL"

	defaultQueueName       = "login-queue"
	defaultFetchCount      = 100
	defaultTable           = "user_logins"
	defaultDBHost          = "localhost"
	defaultDBPort          = 5432
	defaultDBName          = "postgres"
	defaultDBUser          = "postgres"
	defaultDBSSLMode       = "disable"
	defaultAWSRegion       = "us-east-1"
	defaultEndpointURL     = "http://localhost:4566" // localstack
	defaultMessageIDColumn = "message_id"
)

// Config is the full runtime configuration, built once at startup and passed
// down explicitly.
type Config struct {
	QueueName         string `mapstructure:"queue-name"`
	FetchCount        int    `mapstructure:"fetch-count"`
	Table             string `mapstructure:"table"`
	WaitSeconds       int    `mapstructure:"wait-seconds"`
	SkipEmpty         bool   `mapstructure:"skip-empty"`
	DeleteAfterCommit bool   `mapstructure:"delete-after-commit"`
	MessageIDColumn   string `mapstructure:"message-id-column"`

	DBDriver  string `mapstructure:"db-driver"`
	DBHost    string `mapstructure:"db-host"`
	DBPort    int    `mapstructure:"db-port"`
	DBName    string `mapstructure:"db-name"`
	DBUser    string `mapstructure:"db-user"`
	DBSSLMode string `mapstructure:"db-sslmode"`

	PasswordSource   string `mapstructure:"password-source"`
	PasswordEnv      string `mapstructure:"password-env"`
	PasswordSecretID string `mapstructure:"password-secret-id"`

	AWSRegion   string `mapstructure:"aws-region"`
	EndpointURL string `mapstructure:"endpoint-url"`

	MaskKey           string `mapstructure:"mask-key"`
	DeviceIDDelimiter string `mapstructure:"device-id-delimiter"`

	LogLevel  string `mapstructure:"log-level"`
	LogPretty bool   `mapstructure:"log-pretty"`
}

// loadConfig layers defaults, an optional config file, LOGIN_ETL_* environment
// variables and finally overrides (explicitly set command line flags).
func loadConfig(path string, overrides map[string]any) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("queue-name", defaultQueueName)
	v.SetDefault("fetch-count", defaultFetchCount)
	v.SetDefault("table", defaultTable)
	v.SetDefault("wait-seconds", 0)
	v.SetDefault("skip-empty", true)
	v.SetDefault("delete-after-commit", false)
	v.SetDefault("message-id-column", defaultMessageIDColumn)
	v.SetDefault("db-driver", driverPQ)
	v.SetDefault("db-host", defaultDBHost)
	v.SetDefault("db-port", defaultDBPort)
	v.SetDefault("db-name", defaultDBName)
	v.SetDefault("db-user", defaultDBUser)
	v.SetDefault("db-sslmode", defaultDBSSLMode)
	v.SetDefault("password-source", passwordSourcePrompt)
	v.SetDefault("password-env", defaultPasswordEnv)
	v.SetDefault("password-secret-id", "")
	v.SetDefault("aws-region", defaultAWSRegion)
	v.SetDefault("endpoint-url", defaultEndpointURL)
	v.SetDefault("mask-key", "")
	v.SetDefault("device-id-delimiter", defaultDeviceIDDelimiter)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-pretty", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for k, val := range overrides {
		v.Set(k, val)
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.QueueName) == "" {
		return fmt.Errorf("invalid queue-name: must not be empty")
	}
	if c.FetchCount < 1 {
		return fmt.Errorf("invalid fetch-count: %d", c.FetchCount)
	}
	if strings.TrimSpace(c.Table) == "" {
		return fmt.Errorf("invalid table: must not be empty")
	}
	if c.WaitSeconds < 0 || c.WaitSeconds > 20 {
		return fmt.Errorf("invalid wait-seconds: %d (0-20)", c.WaitSeconds)
	}
	if c.DBPort <= 0 || c.DBPort > 65535 {
		return fmt.Errorf("invalid db-port: %d", c.DBPort)
	}
	switch c.DBDriver {
	case driverPQ, driverPGX:
	default:
		return fmt.Errorf("invalid db-driver: %q (postgres, pgx)", c.DBDriver)
	}
	switch c.PasswordSource {
	case passwordSourcePrompt, passwordSourceEnv:
	case passwordSourceSecretsManager:
		if c.PasswordSecretID == "" {
			return fmt.Errorf("password-secret-id is required when password-source is %s", passwordSourceSecretsManager)
		}
	default:
		return fmt.Errorf("invalid password-source: %q (prompt, env, secretsmanager)", c.PasswordSource)
	}
	// unkeyed masks can be reversed by hashing every ip or device id, only an
	// operator at the prompt may opt into that
	if c.MaskKey == "" && c.PasswordSource != passwordSourcePrompt {
		return fmt.Errorf("mask-key is required when password-source is %s", c.PasswordSource)
	}
	return nil
}

func (c Config) DriverConfig() DriverConfig {
	return DriverConfig{
		QueueName:         c.QueueName,
		FetchCount:        c.FetchCount,
		SkipEmpty:         c.SkipEmpty,
		DeleteAfterCommit: c.DeleteAfterCommit,
		MessageIDColumn:   c.MessageIDColumn,
	}
}

func (c Config) DBSettings() DBSettings {
	return DBSettings{
		Driver:  c.DBDriver,
		Host:    c.DBHost,
		Port:    c.DBPort,
		Name:    c.DBName,
		User:    c.DBUser,
		SSLMode: c.DBSSLMode,
	}
}
