package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shifohub/patient-comms/pkg/logging"
)

// ErrNotFound indicates no profile matched the lookup.
var ErrNotFound = errors.New("profiles: record not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store reads clinician profiles from DynamoDB.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("profiles: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("profiles: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger}
}

// FindByRole returns the first profile with the given role in the account.
func (s *Store) FindByRole(ctx context.Context, accountID, role string) (*ProfileRecord, error) {
	if accountID == "" || role == "" {
		return nil, errors.New("profiles: account id and role required")
	}
	return s.scanOne(ctx,
		"#role = :role AND accountId = :account",
		map[string]types.AttributeValue{
			":role":    &types.AttributeValueMemberS{Value: role},
			":account": &types.AttributeValueMemberS{Value: accountID},
		})
}

// FindGlobalAdmin returns any admin profile regardless of account scope.
// Legacy patient records predate account scoping and land here.
func (s *Store) FindGlobalAdmin(ctx context.Context) (*ProfileRecord, error) {
	return s.scanOne(ctx,
		"#role = :role",
		map[string]types.AttributeValue{
			":role": &types.AttributeValueMemberS{Value: RoleAdmin},
		})
}

// FindByPhoneVariants returns the first profile whose phone equals any of
// the candidate spellings.
func (s *Store) FindByPhoneVariants(ctx context.Context, variants []string) (*ProfileRecord, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	values := map[string]types.AttributeValue{}
	placeholders := ""
	for i, v := range variants {
		name := fmt.Sprintf(":p%d", i)
		values[name] = &types.AttributeValueMemberS{Value: v}
		if i > 0 {
			placeholders += ", "
		}
		placeholders += name
	}
	var start map[string]types.AttributeValue
	filter := fmt.Sprintf("phone IN (%s)", placeholders)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("profiles: scan records: %w", err)
		}
		if len(out.Items) > 0 {
			return decode(out.Items[0])
		}
		if out.LastEvaluatedKey == nil {
			return nil, ErrNotFound
		}
		start = out.LastEvaluatedKey
	}
}

// Put writes a full profile record. Used by tests and seed tooling.
func (s *Store) Put(ctx context.Context, rec ProfileRecord) error {
	if rec.ID == "" {
		return errors.New("profiles: id required")
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("profiles: marshal record: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("profiles: persist record: %w", err)
	}
	return nil
}

func (s *Store) scanOne(ctx context.Context, filter string, values map[string]types.AttributeValue) (*ProfileRecord, error) {
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String(filter),
			ExpressionAttributeNames: map[string]string{
				"#role": "role",
			},
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("profiles: scan records: %w", err)
		}
		if len(out.Items) > 0 {
			return decode(out.Items[0])
		}
		if out.LastEvaluatedKey == nil {
			return nil, ErrNotFound
		}
		start = out.LastEvaluatedKey
	}
}

func decode(item map[string]types.AttributeValue) (*ProfileRecord, error) {
	var rec ProfileRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("profiles: decode record: %w", err)
	}
	return &rec, nil
}
