package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

// every flag is optional, unset flags fall back to the config file,
// LOGIN_ETL_* environment variables and then built-in defaults
func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "Optional config file (yaml, toml or json)"},
		&cli.StringFlag{Name: "queue-name", Usage: "SQS queue to drain"},
		&cli.IntFlag{Name: "fetch-count", Usage: "Number of fetches per run"},
		&cli.StringFlag{Name: "table", Usage: "Target table, optionally schema qualified"},
		&cli.IntFlag{Name: "wait-seconds", Usage: "SQS long polling wait per fetch (0-20)"},
		&cli.BoolFlag{Name: "skip-empty", Usage: "Treat an empty fetch as a no-op instead of an error"},
		&cli.BoolFlag{Name: "delete-after-commit", Usage: "Delete consumed messages after the commit"},
		&cli.StringFlag{Name: "message-id-column", Usage: "Column storing the queue message id, the unique key that skips redeliveries (empty to omit)"},
		&cli.StringFlag{Name: "db-driver", Usage: "Database driver (postgres, pgx)"},
		&cli.StringFlag{Name: "db-host", Usage: "Database host"},
		&cli.IntFlag{Name: "db-port", Usage: "Database port"},
		&cli.StringFlag{Name: "db-name", Usage: "Database name"},
		&cli.StringFlag{Name: "db-user", Usage: "Database user"},
		&cli.StringFlag{Name: "db-sslmode", Usage: "Database sslmode"},
		&cli.StringFlag{Name: "password-source", Usage: "Where the database password comes from (prompt, env, secretsmanager)"},
		&cli.StringFlag{Name: "password-env", Usage: "Environment variable holding the password when password-source is env"},
		&cli.StringFlag{Name: "password-secret-id", Usage: "Secrets Manager secret id when password-source is secretsmanager"},
		&cli.StringFlag{Name: "aws-region", Usage: "AWS region"},
		&cli.StringFlag{Name: "endpoint-url", Usage: "AWS endpoint override, empty for the real AWS endpoints"},
		&cli.StringFlag{Name: "mask-key", Usage: "Secret HMAC key for masking ip and device_id; without it stored masks can be reversed by brute force, so it is required unless password-source is prompt"},
		&cli.StringFlag{Name: "device-id-delimiter", Usage: "Delimiter between device_id components"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)", EnvVars: []string{"LOG_LEVEL"}},
		&cli.BoolFlag{Name: "log-pretty", Usage: "Human readable logs instead of JSON"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "login-etl",
		Usage: "Drain login events from SQS, mask identifiers and store them in Postgres",
		Description: "Every flag is optional. Set --mask-key (or LOGIN_ETL_MASK_KEY) in any real deployment:\n" +
			"without a key the masks of ip and device_id are an unkeyed hash that can be reversed by\n" +
			"trying every address or id. Runs that do not prompt for the password refuse to start without it.",
		Flags:  appFlags(),
		Action: runPipeline,
	}
}

// flagOverrides collects the flags that were set explicitly, keyed by config key
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	for _, f := range appFlags() {
		name := f.Names()[0]
		if name == "config" || !c.IsSet(name) {
			continue
		}
		overrides[name] = c.Value(name)
	}
	return overrides
}

func runPipeline(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"), flagOverrides(c))
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel, cfg.LogPretty)

	// ctrl-c or sigterm abort the run before commit
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCFG, err := newAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	creds, err := newCredentialProvider(cfg, awsCFG)
	if err != nil {
		return err
	}
	password, err := creds.Password(ctx)
	if err != nil {
		return err
	}

	db, err := OpenDatabase(ctx, cfg.DBSettings(), password)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	masker := NewMasker(cfg.MaskKey, cfg.DeviceIDDelimiter)
	if !masker.Keyed() {
		log.Warn().Msg("No mask key configured, masked values are unkeyed hashes and can be brute forced")
	}

	driver := NewDriver(
		cfg.DriverConfig(),
		NewSQSQueue(sqs.NewFromConfig(awsCFG), int32(cfg.WaitSeconds)),
		db,
		NewRowWriter(cfg.Table),
		masker,
	)

	log.Info().
		Str("queue", cfg.QueueName).
		Str("table", cfg.Table).
		Str("db_driver", cfg.DBDriver).
		Str("db_host", cfg.DBHost).
		Msg("Starting login queue drain")

	_, err = driver.Run(ctx)
	return err
}

func newAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.AWSRegion),
	}
	if cfg.EndpointURL != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.EndpointURL))
		// localstack accepts any key, fall back to its conventional one
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			))
		}
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

func newCredentialProvider(cfg Config, awsCFG aws.Config) (CredentialProvider, error) {
	switch cfg.PasswordSource {
	case passwordSourcePrompt:
		return NewPromptCredentials("Postgres DB Password: "), nil
	case passwordSourceEnv:
		return EnvCredentials{Var: cfg.PasswordEnv}, nil
	case passwordSourceSecretsManager:
		return NewSecretsManagerCredentials(secretsmanager.NewFromConfig(awsCFG), cfg.PasswordSecretID), nil
	default:
		return nil, fmt.Errorf("invalid password-source: %q", cfg.PasswordSource)
	}
}
