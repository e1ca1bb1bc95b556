package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	tea "github.com/charmbracelet/bubbletea"
)

type Config struct {
	QueueURL       string
	QueueName      string
	Region         string
	EndpointURL    string
	Messages       int
	Concurrency    int
	NullRatio      float64
	DuplicateRatio float64
	InvalidRatio   float64
	SendTimeout    time.Duration
}

func loadConfig() (Config, error) {
	cfg := Config{
		QueueURL:       getEnv("SQS_QUEUE_URL", ""),
		QueueName:      getEnv("LOGIN_QUEUE_NAME", "login-queue"),
		Region:         getEnv("AWS_REGION", "us-east-1"),
		EndpointURL:    getEnv("AWS_ENDPOINT_URL", "http://localhost:4566"),
		Messages:       getEnvInt("LOAD_TEST_MESSAGES", 1000),
		Concurrency:    getEnvInt("LOAD_TEST_CONCURRENCY", 10),
		NullRatio:      getEnvFloat("LOAD_TEST_NULL_RATIO", 0.1),
		DuplicateRatio: getEnvFloat("LOAD_TEST_DUPLICATE_RATIO", 0.05),
		InvalidRatio:   getEnvFloat("LOAD_TEST_INVALID_RATIO", 0),
		SendTimeout:    time.Duration(getEnvInt("LOAD_TEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.Messages < 1 {
		return cfg, fmt.Errorf("LOAD_TEST_MESSAGES must be positive, got %d", cfg.Messages)
	}
	if cfg.Concurrency < 1 {
		return cfg, fmt.Errorf("LOAD_TEST_CONCURRENCY must be positive, got %d", cfg.Concurrency)
	}
	for name, r := range map[string]float64{
		"LOAD_TEST_NULL_RATIO":      cfg.NullRatio,
		"LOAD_TEST_DUPLICATE_RATIO": cfg.DuplicateRatio,
		"LOAD_TEST_INVALID_RATIO":   cfg.InvalidRatio,
	} {
		if r < 0 || r > 1 {
			return cfg, fmt.Errorf("%s must be between 0 and 1, got %v", name, r)
		}
	}
	if cfg.DuplicateRatio+cfg.InvalidRatio > 1 {
		return cfg, fmt.Errorf("LOAD_TEST_DUPLICATE_RATIO + LOAD_TEST_INVALID_RATIO must not exceed 1")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

type Result struct {
	Success  bool
	Duration time.Duration
	Index    int
	Error    string
	Kind     MessageKind
}

type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func sendMessage(ctx context.Context, client SQSSender, cfg Config, queueURL, body string, kind MessageKind, index int) Result {
	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()

	startTime := time.Now()
	_, err := client.SendMessage(sendCtx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	duration := time.Since(startTime)

	if err != nil {
		return Result{Duration: duration, Index: index, Error: err.Error(), Kind: kind}
	}
	return Result{Success: true, Duration: duration, Index: index, Kind: kind}
}

// runWorkers sends cfg.Messages messages over cfg.Concurrency workers and
// closes results when every worker is done.
func runWorkers(ctx context.Context, client SQSSender, cfg Config, queueURL string, results chan<- Result) {
	jobs := make(chan int, cfg.Concurrency)

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			var previous string

			for {
				select {
				case index, ok := <-jobs:
					if !ok {
						return
					}

					body, kind, err := generateBody(rng, cfg, previous)
					if err != nil {
						results <- Result{Index: index, Error: err.Error(), Kind: kind}
						continue
					}
					if kind == KindLogin {
						previous = body
					}
					results <- sendMessage(ctx, client, cfg, queueURL, body, kind, index)
				case <-ctx.Done():
					return
				}
			}
		}(w)
	}

	// jobs
	go func() {
		defer close(jobs)
		for i := 1; i <= cfg.Messages; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)
}

func newSQSClient(ctx context.Context, cfg Config) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.EndpointURL != "" {
		opts = append(opts, config.WithBaseEndpoint(cfg.EndpointURL))
		if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("test", "test", ""),
			))
		}
	}
	awsCFG, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCFG), nil
}

func resolveQueueURL(ctx context.Context, client *sqs.Client, cfg Config) (string, error) {
	if cfg.QueueURL != "" {
		return cfg.QueueURL, nil
	}
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(cfg.QueueName)})
	if err != nil {
		return "", fmt.Errorf("unable to resolve queue %s: %w", cfg.QueueName, err)
	}
	return aws.ToString(out.QueueUrl), nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	// signal handling graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	client, err := newSQSClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to load SDK config: %v\n", err)
		os.Exit(1)
	}
	queueURL, err := resolveQueueURL(ctx, client, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(initialModel(cfg, queueURL), tea.WithAltScreen())

	results := make(chan Result, cfg.Concurrency)
	go runWorkers(ctx, client, cfg, queueURL, results)

	// forward results to UI
	go func() {
		for result := range results {
			p.Send(resultMsg(result))
		}
		p.Send(completeMsg{})
	}()

	go func() {
		<-sigChan
		cancel()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
