package patients

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type mockDynamo struct {
	getInput     *dynamodb.GetItemInput
	getOutput    *dynamodb.GetItemOutput
	putInputs    []*dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	queryInput   *dynamodb.QueryInput
	queryOutput  *dynamodb.QueryOutput
	scanInputs   []*dynamodb.ScanInput
	scanOutputs  []*dynamodb.ScanOutput
	err          error
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.getInput = in
	if m.err != nil {
		return nil, m.err
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	return &dynamodb.PutItemOutput{}, m.err
}

func (m *mockDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, m.err
}

func (m *mockDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.queryInput = in
	if m.queryOutput == nil {
		return &dynamodb.QueryOutput{}, m.err
	}
	return m.queryOutput, m.err
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.scanInputs = append(m.scanInputs, in)
	if m.err != nil {
		return nil, m.err
	}
	idx := len(m.scanInputs) - 1
	if idx < len(m.scanOutputs) {
		return m.scanOutputs[idx], nil
	}
	return &dynamodb.ScanOutput{}, nil
}

func marshalRecord(t *testing.T, rec PatientRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	return item
}

func TestGetByChatIDMatchesBothEncodings(t *testing.T) {
	mock := &mockDynamo{
		scanOutputs: []*dynamodb.ScanOutput{{
			Items: []map[string]types.AttributeValue{marshalRecord(t, PatientRecord{ID: "p1", ChatID: "777"})},
		}},
	}
	store := NewStore(mock, "patients", logging.Default())

	rec, err := store.GetByChatID(context.Background(), 777)
	if err != nil {
		t.Fatalf("GetByChatID: %v", err)
	}
	if rec.ID != "p1" {
		t.Fatalf("expected patient p1, got %s", rec.ID)
	}

	values := mock.scanInputs[0].ExpressionAttributeValues
	if s, ok := values[":sid"].(*types.AttributeValueMemberS); !ok || s.Value != "777" {
		t.Fatalf("expected string chat id candidate, got %v", values[":sid"])
	}
	if n, ok := values[":nid"].(*types.AttributeValueMemberN); !ok || n.Value != "777" {
		t.Fatalf("expected numeric chat id candidate, got %v", values[":nid"])
	}
}

func TestFindByPhoneVariantsBuildsInExpression(t *testing.T) {
	mock := &mockDynamo{
		scanOutputs: []*dynamodb.ScanOutput{{
			Items: []map[string]types.AttributeValue{marshalRecord(t, PatientRecord{ID: "p2", Phone: "+998 93 748 91 41"})},
		}},
	}
	store := NewStore(mock, "patients", logging.Default())

	rec, err := store.FindByPhoneVariants(context.Background(), []string{"998937489141", "+998937489141", "+998 93 748 91 41"})
	if err != nil {
		t.Fatalf("FindByPhoneVariants: %v", err)
	}
	if rec.ID != "p2" {
		t.Fatalf("expected patient p2, got %s", rec.ID)
	}

	filter := *mock.scanInputs[0].FilterExpression
	if want := "phone IN (:p0, :p1, :p2)"; !contains(filter, want) {
		t.Fatalf("filter %q missing %q", filter, want)
	}
	if want := "altPhone IN (:p0, :p1, :p2)"; !contains(filter, want) {
		t.Fatalf("filter %q missing %q", filter, want)
	}
}

func TestFindByPhoneVariantsNotFound(t *testing.T) {
	store := NewStore(&mockDynamo{}, "patients", logging.Default())
	_, err := store.FindByPhoneVariants(context.Background(), []string{"123"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBindChatIdentityAliasesLanguage(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "patients", logging.Default())

	if err := store.BindChatIdentity(context.Background(), "p1", 777, "uz"); err != nil {
		t.Fatalf("BindChatIdentity: %v", err)
	}
	update := mock.updateInputs[0]
	if update.ExpressionAttributeNames["#lang"] != "language" {
		t.Fatalf("expected #lang alias for reserved word, got %v", update.ExpressionAttributeNames)
	}
	chat := update.ExpressionAttributeValues[":chat"].(*types.AttributeValueMemberS).Value
	if chat != "777" {
		t.Fatalf("expected chat id 777, got %s", chat)
	}
}

func TestAppendChatLogRollsUnreadCounterForInbound(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "patients", logging.Default())

	err := store.AppendChatLog(context.Background(), ChatLogEntry{
		ID:        "e1",
		PatientID: "p1",
		Direction: "in",
		Text:      "hello doctor",
	})
	if err != nil {
		t.Fatalf("AppendChatLog: %v", err)
	}
	if len(mock.putInputs) != 1 {
		t.Fatalf("expected 1 put, got %d", len(mock.putInputs))
	}
	if len(mock.updateInputs) != 1 {
		t.Fatalf("expected unread counter update, got %d updates", len(mock.updateInputs))
	}
	expr := *mock.updateInputs[0].UpdateExpression
	if !contains(expr, "if_not_exists(unreadCount, :zero) + :one") {
		t.Fatalf("unexpected update expression %q", expr)
	}
}

func TestAppendChatLogSkipsCounterForOutbound(t *testing.T) {
	mock := &mockDynamo{}
	store := NewStore(mock, "patients", logging.Default())

	err := store.AppendChatLog(context.Background(), ChatLogEntry{
		ID:        "e2",
		PatientID: "p1",
		Direction: "out",
		Text:      "come in tomorrow",
	})
	if err != nil {
		t.Fatalf("AppendChatLog: %v", err)
	}
	if len(mock.updateInputs) != 0 {
		t.Fatalf("outbound entries must not roll the unread counter")
	}
}

func TestListAllPaginates(t *testing.T) {
	mock := &mockDynamo{
		scanOutputs: []*dynamodb.ScanOutput{
			{
				Items:            []map[string]types.AttributeValue{marshalRecord(t, PatientRecord{ID: "p1"})},
				LastEvaluatedKey: map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: "PAT#p1"}},
			},
			{
				Items: []map[string]types.AttributeValue{marshalRecord(t, PatientRecord{ID: "p2"})},
			},
		},
	}
	store := NewStore(mock, "patients", logging.Default())

	records, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if len(mock.scanInputs) != 2 {
		t.Fatalf("expected 2 scan pages, got %d", len(mock.scanInputs))
	}
	if mock.scanInputs[1].ExclusiveStartKey == nil {
		t.Fatal("expected pagination key on second scan")
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
