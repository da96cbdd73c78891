package patients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shifohub/patient-comms/pkg/logging"
)

const (
	skProfile   = "PROFILE"
	skPrefixMsg = "MSG#"
)

// ErrNotFound indicates no patient matched the lookup.
var ErrNotFound = errors.New("patients: record not found")

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store persists patient records and their chat transcript in one DynamoDB
// table: pk "PAT#<id>", sk "PROFILE" for the record and "MSG#<id>" per
// transcript entry.
type Store struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewStore builds a store backed by the provided DynamoDB client.
func NewStore(client dynamoAPI, tableName string, logger *logging.Logger) *Store {
	if client == nil {
		panic("patients: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("patients: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{client: client, tableName: tableName, logger: logger}
}

func patientPK(id string) string {
	return "PAT#" + id
}

// GetByID fetches one patient record.
func (s *Store) GetByID(ctx context.Context, id string) (*PatientRecord, error) {
	if id == "" {
		return nil, errors.New("patients: id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: patientPK(id)},
			"sk": &types.AttributeValueMemberS{Value: skProfile},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("patients: fetch record: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var rec PatientRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("patients: decode record: %w", err)
	}
	return &rec, nil
}

// GetByChatID finds the patient bound to a chat identity. Legacy write paths
// stored the identifier as either a string or a number, so both encodings
// are matched.
func (s *Store) GetByChatID(ctx context.Context, chatID int64) (*PatientRecord, error) {
	if chatID == 0 {
		return nil, errors.New("patients: chat id required")
	}
	id := strconv.FormatInt(chatID, 10)
	return s.scanOne(ctx,
		"sk = :profile AND (chatId = :sid OR chatId = :nid)",
		map[string]types.AttributeValue{
			":profile": &types.AttributeValueMemberS{Value: skProfile},
			":sid":     &types.AttributeValueMemberS{Value: id},
			":nid":     &types.AttributeValueMemberN{Value: id},
		})
}

// FindByPhoneVariants returns the first patient whose phone or alternate
// phone equals any of the candidate spellings.
func (s *Store) FindByPhoneVariants(ctx context.Context, variants []string) (*PatientRecord, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	values := map[string]types.AttributeValue{
		":profile": &types.AttributeValueMemberS{Value: skProfile},
	}
	placeholders := ""
	for i, v := range variants {
		name := fmt.Sprintf(":p%d", i)
		values[name] = &types.AttributeValueMemberS{Value: v}
		if i > 0 {
			placeholders += ", "
		}
		placeholders += name
	}
	filter := fmt.Sprintf("sk = :profile AND (phone IN (%s) OR altPhone IN (%s))", placeholders, placeholders)
	return s.scanOne(ctx, filter, values)
}

// BindChatIdentity links a chat identity and preferred language onto the
// patient record. Last writer wins; nothing else on the record is touched.
func (s *Store) BindChatIdentity(ctx context.Context, id string, chatID int64, language string) error {
	if id == "" {
		return errors.New("patients: id required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: patientPK(id)},
			"sk": &types.AttributeValueMemberS{Value: skProfile},
		},
		UpdateExpression: aws.String("SET chatId = :chat, #lang = :lang"),
		ExpressionAttributeNames: map[string]string{
			"#lang": "language",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":chat": &types.AttributeValueMemberS{Value: strconv.FormatInt(chatID, 10)},
			":lang": &types.AttributeValueMemberS{Value: language},
		},
	})
	if err != nil {
		return fmt.Errorf("patients: bind chat identity: %w", err)
	}
	return nil
}

// AppendChatLog stores one transcript entry and rolls the unread counter and
// last-message preview on the profile.
func (s *Store) AppendChatLog(ctx context.Context, entry ChatLogEntry) error {
	if entry.PatientID == "" || entry.ID == "" {
		return errors.New("patients: chat log entry needs patient id and id")
	}
	if entry.CreatedAt == "" {
		entry.CreatedAt = Now()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("patients: marshal chat log entry: %w", err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: patientPK(entry.PatientID)}
	item["sk"] = &types.AttributeValueMemberS{Value: skPrefixMsg + entry.ID}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("patients: persist chat log entry: %w", err)
	}

	if entry.Direction != "in" {
		return nil
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: patientPK(entry.PatientID)},
			"sk": &types.AttributeValueMemberS{Value: skProfile},
		},
		UpdateExpression: aws.String("SET unreadCount = if_not_exists(unreadCount, :zero) + :one, lastMessageText = :txt, lastMessageAt = :at"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":one":  &types.AttributeValueMemberN{Value: "1"},
			":txt":  &types.AttributeValueMemberS{Value: entry.Text},
			":at":   &types.AttributeValueMemberS{Value: entry.CreatedAt},
		},
	})
	if err != nil {
		return fmt.Errorf("patients: roll unread counter: %w", err)
	}
	return nil
}

// MarkChatLogDelivered records the platform message id once the outbound
// copy of a transcript entry was sent.
func (s *Store) MarkChatLogDelivered(ctx context.Context, patientID, entryID string, chatMessageID int64) error {
	if patientID == "" || entryID == "" {
		return errors.New("patients: patient id and entry id required")
	}
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: patientPK(patientID)},
			"sk": &types.AttributeValueMemberS{Value: skPrefixMsg + entryID},
		},
		UpdateExpression: aws.String("SET delivery = :delivered, chatMessageId = :mid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":delivered": &types.AttributeValueMemberS{Value: ChatLogDelivered},
			":mid":       &types.AttributeValueMemberN{Value: strconv.FormatInt(chatMessageID, 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("patients: mark chat log delivered: %w", err)
	}
	return nil
}

// ListChatLog returns the transcript for one patient in chronological order.
func (s *Store) ListChatLog(ctx context.Context, patientID string) ([]ChatLogEntry, error) {
	if patientID == "" {
		return nil, errors.New("patients: patient id required")
	}
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: patientPK(patientID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("patients: query chat log: %w", err)
	}
	entries := make([]ChatLogEntry, 0, len(out.Items))
	for _, item := range out.Items {
		var entry ChatLogEntry
		if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
			return nil, fmt.Errorf("patients: decode chat log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt < entries[j].CreatedAt })
	return entries, nil
}

// ListAll streams every patient record, paging through the table. Used by
// the daily reminder producer.
func (s *Store) ListAll(ctx context.Context) ([]PatientRecord, error) {
	var (
		records []PatientRecord
		start   map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("sk = :profile"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":profile": &types.AttributeValueMemberS{Value: skProfile},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("patients: scan records: %w", err)
		}
		for _, item := range out.Items {
			var rec PatientRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("patients: decode record: %w", err)
			}
			records = append(records, rec)
		}
		if out.LastEvaluatedKey == nil {
			return records, nil
		}
		start = out.LastEvaluatedKey
	}
}

// Put writes a full patient record. Only tests and seed tooling use it; the
// clinic application owns these documents in production.
func (s *Store) Put(ctx context.Context, rec PatientRecord) error {
	if rec.ID == "" {
		return errors.New("patients: id required")
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("patients: marshal record: %w", err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: patientPK(rec.ID)}
	item["sk"] = &types.AttributeValueMemberS{Value: skProfile}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("patients: persist record: %w", err)
	}
	return nil
}

func (s *Store) scanOne(ctx context.Context, filter string, values map[string]types.AttributeValue) (*PatientRecord, error) {
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("patients: scan records: %w", err)
		}
		if len(out.Items) > 0 {
			var rec PatientRecord
			if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
				return nil, fmt.Errorf("patients: decode record: %w", err)
			}
			return &rec, nil
		}
		if out.LastEvaluatedKey == nil {
			return nil, ErrNotFound
		}
		start = out.LastEvaluatedKey
	}
}
