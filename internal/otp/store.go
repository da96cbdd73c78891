package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrChallengeNotFound indicates no live challenge exists for the key.
var ErrChallengeNotFound = errors.New("otp: challenge not found")

// Challenge is a single one-time code issued to a user. Writing a new
// challenge for the same key overwrites the previous one, so at most one
// code per user is ever live.
type Challenge struct {
	UserID    string `dynamodbav:"userId"`
	Code      string `dynamodbav:"code"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
	CreatedAt string `dynamodbav:"createdAt"`
}

// Expired reports whether the challenge deadline has passed.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Store persists OTP challenges in DynamoDB keyed by user id.
type Store struct {
	client    dynamoAPI
	tableName string
}

// NewStore creates a challenge store backed by the given table.
func NewStore(client dynamoAPI, tableName string) *Store {
	if client == nil {
		panic("otp: nil dynamodb client")
	}
	if tableName == "" {
		panic("otp: empty table name")
	}
	return &Store{client: client, tableName: tableName}
}

// Put writes the challenge, replacing any live challenge for the same user.
func (s *Store) Put(ctx context.Context, ch *Challenge) error {
	item, err := attributevalue.MarshalMap(ch)
	if err != nil {
		return fmt.Errorf("otp: marshal challenge: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("otp: put challenge: %w", err)
	}
	return nil
}

// Get loads the live challenge for the user, if any.
func (s *Store) Get(ctx context.Context, userID string) (*Challenge, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("otp: get challenge: %w", err)
	}
	if out.Item == nil {
		return nil, ErrChallengeNotFound
	}
	var ch Challenge
	if err := attributevalue.UnmarshalMap(out.Item, &ch); err != nil {
		return nil, fmt.Errorf("otp: unmarshal challenge: %w", err)
	}
	return &ch, nil
}

// Delete removes the challenge for the user. Missing items are not an error.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return fmt.Errorf("otp: delete challenge: %w", err)
	}
	return nil
}
