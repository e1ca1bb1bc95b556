package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog/log"
)

// the subset of the SQS API the consumer needs
type SQSClientInterface interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Queue is what the driver loop consumes from
type Queue interface {
	ResolveQueueAddress(ctx context.Context, name string) (string, error)
	FetchOne(ctx context.Context, queueURL string) (*Envelope, error)
	DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error
}

type SQSQueue struct {
	client      SQSClientInterface
	waitSeconds int32
}

func NewSQSQueue(client SQSClientInterface, waitSeconds int32) *SQSQueue {
	return &SQSQueue{client: client, waitSeconds: waitSeconds}
}

func (q *SQSQueue) ResolveQueueAddress(ctx context.Context, name string) (string, error) {
	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	if err != nil {
		var notFound *types.QueueDoesNotExist
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %s", ErrQueueNotFound, name)
		}
		return "", fmt.Errorf("%w: failed to resolve %s: %v", ErrQueueNotFound, name, err)
	}
	if out.QueueUrl == nil || *out.QueueUrl == "" {
		return "", fmt.Errorf("%w: %s returned no url", ErrQueueNotFound, name)
	}
	return *out.QueueUrl, nil
}

// FetchOne receives at most one message and captures the response Date header.
func (q *SQSQueue) FetchOne(ctx context.Context, queueURL string) (*Envelope, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     q.waitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message from %s: %w", queueURL, err)
	}

	env := &Envelope{Date: responseDate(out.ResultMetadata)}
	for _, m := range out.Messages {
		env.Messages = append(env.Messages, QueueMessage{
			ID:            aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          aws.ToString(m.Body),
		})
	}

	log.Debug().Int("count", len(env.Messages)).Msg("Received messages from SQS")
	return env, nil
}

func (q *SQSQueue) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("failed to delete message from %s: %w", queueURL, err)
	}
	return nil
}

// responseDate reads the Date header off the raw HTTP response kept in the
// operation metadata
func responseDate(md middleware.Metadata) string {
	resp, ok := awsmiddleware.GetRawResponse(md).(*smithyhttp.Response)
	if !ok || resp == nil || resp.Response == nil {
		return ""
	}
	return resp.Header.Get("Date")
}
