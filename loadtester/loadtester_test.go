package main

import (
	"context"
	"errors"
	"math/rand"
	"net/netip"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqs.SendMessageOutput), args.Error(1)
}

func testConfig() Config {
	return Config{
		Messages:    20,
		Concurrency: 4,
		NullRatio:   0.5,
		SendTimeout: time.Second,
	}
}

func TestGenerateLogin(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		ev := generateLogin(rng, 0.5)

		assert.NotEmpty(t, ev.UserID)
		require.NotNil(t, ev.AppVersion)
		require.NotNil(t, ev.IP)
		require.NotNil(t, ev.DeviceID)
		assert.Regexp(t, `^\d+\.\d+\.\d+$`, *ev.AppVersion)
		assert.Regexp(t, `^\d{3}-\d{2}-\d{4}$`, *ev.DeviceID)
		_, err := netip.ParseAddr(*ev.IP)
		assert.NoError(t, err, *ev.IP)
	}
}

func TestGenerateLoginNullRatio(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	never := generateLogin(rng, 0)
	assert.NotNil(t, never.Locale)
	assert.NotNil(t, never.DeviceType)

	always := generateLogin(rng, 1)
	assert.Nil(t, always.Locale)
	assert.Nil(t, always.DeviceType)

	body, err := json.Marshal(always)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"locale":null`)
}

func TestGenerateBody(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	t.Run("login by default", func(t *testing.T) {
		body, kind, err := generateBody(rng, testConfig(), "")
		require.NoError(t, err)
		assert.Equal(t, KindLogin, kind)

		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &doc))
		assert.Contains(t, doc, "app_version")
	})

	t.Run("duplicate resends previous", func(t *testing.T) {
		cfg := testConfig()
		cfg.DuplicateRatio = 1

		body, kind, err := generateBody(rng, cfg, `{"user_id": "u-1"}`)
		require.NoError(t, err)
		assert.Equal(t, KindDuplicate, kind)
		assert.Equal(t, `{"user_id": "u-1"}`, body)
	})

	t.Run("no duplicate without a previous body", func(t *testing.T) {
		cfg := testConfig()
		cfg.DuplicateRatio = 1

		_, kind, err := generateBody(rng, cfg, "")
		require.NoError(t, err)
		assert.Equal(t, KindLogin, kind)
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := testConfig()
		cfg.InvalidRatio = 1

		body, kind, err := generateBody(rng, cfg, "")
		require.NoError(t, err)
		assert.Equal(t, KindInvalid, kind)
		assert.Contains(t, invalidBodies, body)
	})
}

func TestRunWorkers(t *testing.T) {
	cfg := testConfig()
	sender := new(MockSender)
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "http://localhost:4566/000000000000/login-queue"
	})).Return(&sqs.SendMessageOutput{}, nil)

	results := make(chan Result, cfg.Messages)
	runWorkers(context.Background(), sender, cfg, "http://localhost:4566/000000000000/login-queue", results)

	seen := make(map[int]bool)
	for r := range results {
		assert.True(t, r.Success)
		seen[r.Index] = true
	}
	assert.Len(t, seen, cfg.Messages)
	sender.AssertNumberOfCalls(t, "SendMessage", cfg.Messages)
}

func TestRunWorkersReportsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Messages = 3
	sender := new(MockSender)
	sender.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("queue does not exist"))

	results := make(chan Result, cfg.Messages)
	runWorkers(context.Background(), sender, cfg, "q", results)

	failed := 0
	for r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, "queue does not exist", r.Error)
		failed++
	}
	assert.Equal(t, 3, failed)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("LOAD_TEST_MESSAGES", "5")
	t.Setenv("LOAD_TEST_NULL_RATIO", "0.25")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Messages)
	assert.Equal(t, 0.25, cfg.NullRatio)
	assert.Equal(t, "login-queue", cfg.QueueName)

	t.Setenv("LOAD_TEST_INVALID_RATIO", "1.5")
	_, err = loadConfig()
	assert.Error(t, err)

	t.Setenv("LOAD_TEST_INVALID_RATIO", "0.6")
	t.Setenv("LOAD_TEST_DUPLICATE_RATIO", "0.6")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestModelRecord(t *testing.T) {
	m := initialModel(testConfig(), "q")

	m = m.record(Result{Success: true, Duration: 20 * time.Millisecond, Index: 1, Kind: KindLogin})
	m = m.record(Result{Success: true, Duration: 5 * time.Millisecond, Index: 2, Kind: KindDuplicate})
	m = m.record(Result{Duration: 40 * time.Millisecond, Index: 3, Kind: KindInvalid, Error: "boom"})

	assert.Equal(t, 3, m.sent)
	assert.Equal(t, 2, m.successful)
	assert.Equal(t, 1, m.failed)
	assert.Equal(t, 1, m.sentByKind[KindLogin])
	assert.Equal(t, 5*time.Millisecond, m.minLatency)
	assert.Equal(t, 40*time.Millisecond, m.maxLatency)
	require.Len(t, m.errors, 1)
	assert.Contains(t, m.errors[0], "boom")
	assert.Len(t, m.recentLogs, 3)
}
