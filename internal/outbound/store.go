package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shifohub/patient-comms/pkg/logging"
)

// ErrNotFound indicates the requested message id does not exist.
var ErrNotFound = errors.New("outbound: message not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store persists outbound messages to DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("outbound: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("outbound: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger}
}

// Create inserts a new message record. Status and timestamps are set here.
func (s *Store) Create(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("outbound: message cannot be nil")
	}
	if msg.ID == "" {
		return errors.New("outbound: message id required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if msg.ScheduledFor != "" {
		msg.Status = StatusQueued
	} else {
		msg.Status = StatusPending
	}

	item, err := attributevalue.MarshalMap(msg)
	if err != nil {
		return fmt.Errorf("outbound: marshal message: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("outbound: persist message: %w", err)
	}
	return nil
}

// Get fetches a message by id.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	if id == "" {
		return nil, errors.New("outbound: message id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("outbound: fetch message: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var msg Message
	if err := attributevalue.UnmarshalMap(out.Item, &msg); err != nil {
		return nil, fmt.Errorf("outbound: decode message: %w", err)
	}
	return &msg, nil
}

// ListQueued returns all messages in QUEUED state. The filter is status-only
// so the table needs no compound index; due-time filtering happens in memory
// at the drain consumer.
func (s *Store) ListQueued(ctx context.Context) ([]Message, error) {
	var (
		msgs  []Message
		start map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("#status = :queued"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":queued": &types.AttributeValueMemberS{Value: StatusQueued},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("outbound: scan queued messages: %w", err)
		}
		for _, item := range out.Items {
			var msg Message
			if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
				return nil, fmt.Errorf("outbound: decode message: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if out.LastEvaluatedKey == nil {
			return msgs, nil
		}
		start = out.LastEvaluatedKey
	}
}

// Claim atomically moves a message from QUEUED to SENDING. Returns false
// without error when another drain run already took it.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("outbound: message id required")
	}
	err := s.updateStatus(ctx, id, StatusSending, map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberS{Value: StatusQueued},
	}, aws.String("#status = :expected"))
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkDelivered finalizes a message as delivered, storing the platform
// message id of the last successful send and an optional note.
func (s *Store) MarkDelivered(ctx context.Context, id string, resultMessageID int64, note string) error {
	if id == "" {
		return errors.New("outbound: message id required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET #status = :status, resultMessageId = :result, #error = :note, updatedAt = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#error":  "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: StatusDelivered},
			":result":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", resultMessageID)},
			":note":    &types.AttributeValueMemberS{Value: note},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("outbound: mark delivered: %w", err)
	}
	return nil
}

// MarkFailed finalizes a message as failed with the delivery error attached.
func (s *Store) MarkFailed(ctx context.Context, id string, errMsg string) error {
	if id == "" {
		return errors.New("outbound: message id required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET #status = :status, #error = :error, updatedAt = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#error":  "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: StatusFailed},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("outbound: mark failed: %w", err)
	}
	return nil
}

func (s *Store) updateStatus(ctx context.Context, id, status string, extraValues map[string]types.AttributeValue, condition *string) error {
	values := map[string]types.AttributeValue{
		":status":  &types.AttributeValueMemberS{Value: status},
		":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
	}
	for k, v := range extraValues {
		values[k] = v
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression: aws.String("SET #status = :status, updatedAt = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
		ConditionExpression:       condition,
	})
	if err != nil {
		return fmt.Errorf("outbound: update status: %w", err)
	}
	return nil
}
