package outbound

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// QueueMessage is one received delivery job.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// DeliveryQueue is the transport between message creation and the delivery
// worker, implemented over AWS/LocalStack SQS.
type DeliveryQueue struct {
	client   *sqs.Client
	queueURL string
}

// NewDeliveryQueue creates a queue wrapper around the provided SQS client.
func NewDeliveryQueue(client *sqs.Client, queueURL string) *DeliveryQueue {
	if client == nil {
		panic("outbound: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("outbound: SQS queueURL cannot be empty")
	}
	return &DeliveryQueue{client: client, queueURL: queueURL}
}

func (q *DeliveryQueue) Send(ctx context.Context, body string) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("outbound: failed to send SQS message: %w", err)
	}
	return nil
}

func (q *DeliveryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("outbound: failed to receive SQS messages: %w", err)
	}

	messages := make([]QueueMessage, 0, len(output.Messages))
	for _, msg := range output.Messages {
		messages = append(messages, QueueMessage{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		})
	}
	return messages, nil
}

func (q *DeliveryQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("outbound: failed to delete SQS message: %w", err)
	}
	return nil
}
