package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	json "github.com/goccy/go-json"
	"golang.org/x/term"
)

const (
	passwordSourcePrompt         = "prompt"
	passwordSourceEnv            = "env"
	passwordSourceSecretsManager = "secretsmanager"

	defaultPasswordEnv = "PGPASSWORD"
)

// supplies the database password, implementations must never log it
type CredentialProvider interface {
	Password(ctx context.Context) (string, error)
}

// PromptCredentials asks on the controlling terminal without echoing input.
type PromptCredentials struct {
	Prompt string
	Out    io.Writer

	// overridable in tests
	openTTY      func() (*os.File, error)
	readPassword func(fd int) ([]byte, error)
}

func NewPromptCredentials(prompt string) *PromptCredentials {
	return &PromptCredentials{
		Prompt: prompt,
		Out:    os.Stderr,
		openTTY: func() (*os.File, error) {
			return os.OpenFile("/dev/tty", os.O_RDWR, 0)
		},
		readPassword: term.ReadPassword,
	}
}

func (p *PromptCredentials) Password(ctx context.Context) (string, error) {
	in := os.Stdin
	if tty, err := p.openTTY(); err == nil {
		defer tty.Close()
		in = tty
	}

	fmt.Fprint(p.Out, p.Prompt)
	secret, err := p.readPassword(int(in.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// EnvCredentials reads the password from an environment variable.
type EnvCredentials struct {
	Var string
}

func (e EnvCredentials) Password(ctx context.Context) (string, error) {
	name := e.Var
	if name == "" {
		name = defaultPasswordEnv
	}
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("password variable %s is not set", name)
	}
	return v, nil
}

type SecretsManagerClientInterface interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerCredentials reads the password from AWS Secrets Manager. The
// secret is either the bare password or a JSON object with a "password" key,
// the layout RDS managed secrets use.
type SecretsManagerCredentials struct {
	client   SecretsManagerClientInterface
	secretID string
}

func NewSecretsManagerCredentials(client SecretsManagerClientInterface, secretID string) *SecretsManagerCredentials {
	return &SecretsManagerCredentials{client: client, secretID: secretID}
}

func (s *SecretsManagerCredentials) Password(ctx context.Context) (string, error) {
	if s.secretID == "" {
		return "", errors.New("no secret id configured")
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch secret %s: %w", s.secretID, err)
	}

	value := strings.TrimSpace(aws.ToString(out.SecretString))
	if value == "" {
		return "", fmt.Errorf("secret %s has no string value", s.secretID)
	}
	if !strings.HasPrefix(value, "{") {
		return value, nil
	}

	var doc struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal([]byte(value), &doc); err != nil {
		return "", fmt.Errorf("secret %s is not valid JSON: %w", s.secretID, err)
	}
	if doc.Password == "" {
		return "", fmt.Errorf("secret %s has no password key", s.secretID)
	}
	return doc.Password, nil
}
