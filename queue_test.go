package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testQueueURL = "http://localhost:4566/000000000000/login-queue"

func TestResolveQueueAddress(t *testing.T) {
	tests := []struct {
		name      string
		output    *sqs.GetQueueUrlOutput
		clientErr error
		expected  string
		expectErr bool
	}{
		{
			name:     "found",
			output:   &sqs.GetQueueUrlOutput{QueueUrl: aws.String(testQueueURL)},
			expected: testQueueURL,
		},
		{
			name:      "queue does not exist",
			clientErr: &types.QueueDoesNotExist{Message: aws.String("no such queue")},
			expectErr: true,
		},
		{
			name:      "transport failure",
			clientErr: errors.New("dial tcp: connection refused"),
			expectErr: true,
		},
		{
			name:      "empty url",
			output:    &sqs.GetQueueUrlOutput{},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockSQSClient)
			client.On("GetQueueUrl", mock.Anything, mock.MatchedBy(func(in *sqs.GetQueueUrlInput) bool {
				return aws.ToString(in.QueueName) == "login-queue"
			})).Return(tt.output, tt.clientErr)

			url, err := NewSQSQueue(client, 0).ResolveQueueAddress(context.Background(), "login-queue")

			if tt.expectErr {
				assert.ErrorIs(t, err, ErrQueueNotFound)
				assert.Empty(t, url)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, url)
			}
			client.AssertExpectations(t)
		})
	}
}

func TestFetchOne(t *testing.T) {
	t.Run("single message", func(t *testing.T) {
		client := new(MockSQSClient)
		client.On("ReceiveMessage", mock.Anything, mock.MatchedBy(func(in *sqs.ReceiveMessageInput) bool {
			return aws.ToString(in.QueueUrl) == testQueueURL && in.MaxNumberOfMessages == 1 && in.WaitTimeSeconds == 5
		})).Return(&sqs.ReceiveMessageOutput{
			Messages: []types.Message{{
				MessageId:     aws.String("m-1"),
				ReceiptHandle: aws.String("r-1"),
				Body:          aws.String(`{"a": 1}`),
			}},
		}, nil)

		env, err := NewSQSQueue(client, 5).FetchOne(context.Background(), testQueueURL)

		require.NoError(t, err)
		require.Len(t, env.Messages, 1)
		assert.Equal(t, QueueMessage{ID: "m-1", ReceiptHandle: "r-1", Body: `{"a": 1}`}, env.Messages[0])
		// no raw response behind a mocked client
		assert.Empty(t, env.Date)
		client.AssertExpectations(t)
	})

	t.Run("empty queue", func(t *testing.T) {
		client := new(MockSQSClient)
		client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(&sqs.ReceiveMessageOutput{}, nil)

		env, err := NewSQSQueue(client, 0).FetchOne(context.Background(), testQueueURL)

		require.NoError(t, err)
		assert.Empty(t, env.Messages)
	})

	t.Run("receive error", func(t *testing.T) {
		client := new(MockSQSClient)
		client.On("ReceiveMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		env, err := NewSQSQueue(client, 0).FetchOne(context.Background(), testQueueURL)

		assert.Error(t, err)
		assert.Nil(t, env)
	})
}

func TestDeleteMessage(t *testing.T) {
	client := new(MockSQSClient)
	client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "r-1"
	})).Return(&sqs.DeleteMessageOutput{}, nil)
	client.On("DeleteMessage", mock.Anything, mock.MatchedBy(func(in *sqs.DeleteMessageInput) bool {
		return aws.ToString(in.ReceiptHandle) == "r-2"
	})).Return(nil, errors.New("receipt handle expired"))

	q := NewSQSQueue(client, 0)

	assert.NoError(t, q.DeleteMessage(context.Background(), testQueueURL, "r-1"))
	assert.Error(t, q.DeleteMessage(context.Background(), testQueueURL, "r-2"))
	client.AssertExpectations(t)
}

// fakeSQS answers the JSON protocol calls the consumer makes
func fakeSQS(t *testing.T, date string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/x-amz-json-1.0")
		w.Header().Set("Date", date)

		switch r.Header.Get("X-Amz-Target") {
		case "AmazonSQS.GetQueueUrl":
			_, _ = io.WriteString(w, `{"QueueUrl": "`+testQueueURL+`"}`)
		case "AmazonSQS.ReceiveMessage":
			_, _ = io.WriteString(w, `{"Messages": [{"MessageId": "m-1", "ReceiptHandle": "r-1", "Body": "{\"user_id\": \"u-1\"}"}]}`)
		default:
			w.Header().Set("X-Amzn-ErrorType", "QueueDoesNotExist")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"__type": "com.amazonaws.sqs#QueueDoesNotExist", "message": "unexpected call"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSQSClient(endpoint string) *sqs.Client {
	return sqs.New(sqs.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(endpoint),
		Credentials:      credentials.NewStaticCredentialsProvider("test", "test", ""),
		RetryMaxAttempts: 1,
	})
}

func TestFetchOneCapturesDateHeader(t *testing.T) {
	srv := fakeSQS(t, testDate)
	q := NewSQSQueue(newTestSQSClient(srv.URL), 0)
	ctx := context.Background()

	url, err := q.ResolveQueueAddress(ctx, "login-queue")
	require.NoError(t, err)
	assert.Equal(t, testQueueURL, url)

	env, err := q.FetchOne(ctx, url)
	require.NoError(t, err)

	assert.Equal(t, testDate, env.Date)
	require.Len(t, env.Messages, 1)
	assert.Equal(t, `{"user_id": "u-1"}`, env.Messages[0].Body)

	rec, date, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, "u-1", rec["user_id"])
	assert.Equal(t, testDate, date)
}

func TestResolveQueueAddressNotFoundOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-amz-json-1.0")
		w.Header().Set("X-Amzn-ErrorType", "QueueDoesNotExist")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"__type": "com.amazonaws.sqs#QueueDoesNotExist", "message": "The specified queue does not exist."}`)
	}))
	defer srv.Close()

	_, err := NewSQSQueue(newTestSQSClient(srv.URL), 0).ResolveQueueAddress(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrQueueNotFound)
}
