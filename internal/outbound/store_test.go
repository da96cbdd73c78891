package outbound

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type mockDynamo struct {
	putInput     *dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error
	scanInput    *dynamodb.ScanInput
	scanOutput   *dynamodb.ScanOutput
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.scanInput = in
	if m.scanOutput == nil {
		return &dynamodb.ScanOutput{}, nil
	}
	return m.scanOutput, nil
}

func TestCreateRoutesScheduledToQueued(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "outbound-messages", logging.Default())

	msg := &Message{ID: "m1", ChatID: 42, ScheduledFor: "2026-09-01T09:00:00Z"}
	if err := store.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.Status != StatusQueued {
		t.Fatalf("expected QUEUED, got %s", msg.Status)
	}

	var stored Message
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("unmarshal stored message: %v", err)
	}
	if stored.Status != StatusQueued || stored.CreatedAt == "" {
		t.Fatalf("stored message incomplete: %+v", stored)
	}
	if expr := mock.putInput.ConditionExpression; expr == nil || *expr != "attribute_not_exists(id)" {
		t.Fatalf("expected overwrite guard, got %v", expr)
	}
}

func TestCreateImmediateIsPending(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "outbound-messages", logging.Default())

	msg := &Message{ID: "m1", ChatID: 42, Text: "hi"}
	if err := store.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", msg.Status)
	}
}

func TestClaimUsesConditionalTransition(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "outbound-messages", logging.Default())

	claimed, err := store.Claim(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected claim to succeed")
	}
	update := mock.updateInputs[0]
	if update.ConditionExpression == nil || *update.ConditionExpression != "#status = :expected" {
		t.Fatalf("expected conditional claim, got %v", update.ConditionExpression)
	}
	expected := update.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
	if expected != StatusQueued {
		t.Fatalf("claim must require QUEUED, got %s", expected)
	}
}

func TestClaimLostRaceReturnsFalse(t *testing.T) {
	mock := &mockDynamo{updateErr: fmt.Errorf("wrapped: %w", &types.ConditionalCheckFailedException{})}
	store := NewStore(mock, "outbound-messages", logging.Default())

	claimed, err := store.Claim(context.Background(), "m1")
	if err != nil {
		t.Fatalf("lost claim must not error: %v", err)
	}
	if claimed {
		t.Fatal("expected claim to report false on condition failure")
	}
}

func TestListQueuedAliasesStatus(t *testing.T) {
	item, err := attributevalue.MarshalMap(Message{ID: "m1", ChatID: 1, Status: StatusQueued})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock := &mockDynamo{scanOutput: &dynamodb.ScanOutput{Items: []map[string]types.AttributeValue{item}}}
	store := NewStore(mock, "outbound-messages", logging.Default())

	msgs, err := store.ListQueued(context.Background())
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("unexpected result %+v", msgs)
	}
	if mock.scanInput.ExpressionAttributeNames["#status"] != "status" {
		t.Fatalf("expected #status alias for reserved word, got %v", mock.scanInput.ExpressionAttributeNames)
	}
}
