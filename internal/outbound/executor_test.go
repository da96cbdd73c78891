package outbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type fakeChat struct {
	sentTexts  []string
	sentPhotos []string
	sentVoices []string
	edited     []telegram.EditMessageTextRequest
	deleted    []telegram.DeleteMessageRequest
	nextID     int64
	sendErr    error
	deleteErr  error
}

func (f *fakeChat) next() *telegram.Message {
	f.nextID++
	return &telegram.Message{MessageID: f.nextID}
}

func (f *fakeChat) SendMessage(_ context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentTexts = append(f.sentTexts, req.Text)
	return f.next(), nil
}

func (f *fakeChat) SendPhoto(_ context.Context, req telegram.SendPhotoRequest) (*telegram.Message, error) {
	f.sentPhotos = append(f.sentPhotos, req.Photo)
	return f.next(), nil
}

func (f *fakeChat) SendVoice(_ context.Context, req telegram.SendVoiceRequest) (*telegram.Message, error) {
	f.sentVoices = append(f.sentVoices, req.Voice)
	return f.next(), nil
}

func (f *fakeChat) EditMessageText(_ context.Context, req telegram.EditMessageTextRequest) (*telegram.Message, error) {
	f.edited = append(f.edited, req)
	return &telegram.Message{MessageID: req.MessageID}, nil
}

func (f *fakeChat) DeleteMessage(_ context.Context, req telegram.DeleteMessageRequest) error {
	f.deleted = append(f.deleted, req)
	return f.deleteErr
}

type fakeStatusStore struct {
	delivered []struct {
		id     string
		result int64
		note   string
	}
	failed []struct {
		id  string
		msg string
	}
}

func (f *fakeStatusStore) MarkDelivered(_ context.Context, id string, result int64, note string) error {
	f.delivered = append(f.delivered, struct {
		id     string
		result int64
		note   string
	}{id, result, note})
	return nil
}

func (f *fakeStatusStore) MarkFailed(_ context.Context, id string, msg string) error {
	f.failed = append(f.failed, struct {
		id  string
		msg string
	}{id, msg})
	return nil
}

type fakeMedia struct{ prefix string }

func (f *fakeMedia) ResolveURL(_ context.Context, key string) (string, error) {
	return f.prefix + key, nil
}

type fakeChatLog struct {
	synced []int64
	err    error
}

func (f *fakeChatLog) MarkChatLogDelivered(_ context.Context, _, _ string, chatMessageID int64) error {
	if f.err != nil {
		return f.err
	}
	f.synced = append(f.synced, chatMessageID)
	return nil
}

func newExecutor(chat *fakeChat, store *fakeStatusStore, chatLog *fakeChatLog) *Executor {
	return NewExecutor(ExecutorConfig{
		Chat:    chat,
		Store:   store,
		Media:   &fakeMedia{prefix: "https://media.local/"},
		ChatLog: chatLog,
		Logger:  logging.Default(),
	})
}

func TestExecuteSendDispatchesAllPayloads(t *testing.T) {
	chat := &fakeChat{}
	store := &fakeStatusStore{}
	exec := newExecutor(chat, store, nil)

	msg := &Message{ID: "m1", ChatID: 42, Action: ActionSend, Text: "hi", PhotoKey: "scans/1.jpg", VoiceKey: "notes/1.ogg"}
	if err := exec.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(chat.sentTexts) != 1 || len(chat.sentPhotos) != 1 || len(chat.sentVoices) != 1 {
		t.Fatalf("expected text+photo+voice sends, got %d/%d/%d", len(chat.sentTexts), len(chat.sentPhotos), len(chat.sentVoices))
	}
	if chat.sentPhotos[0] != "https://media.local/scans/1.jpg" {
		t.Fatalf("expected presigned photo URL, got %s", chat.sentPhotos[0])
	}
	if len(store.delivered) != 1 {
		t.Fatalf("expected delivered mark, got %+v", store)
	}
	// The voice note was the last successful send.
	if store.delivered[0].result != 3 {
		t.Fatalf("expected canonical id 3 (last send), got %d", store.delivered[0].result)
	}
}

func TestExecuteSendFailureMarksFailed(t *testing.T) {
	chat := &fakeChat{sendErr: errors.New("bot was blocked")}
	store := &fakeStatusStore{}
	exec := newExecutor(chat, store, nil)

	err := exec.Execute(context.Background(), &Message{ID: "m1", ChatID: 42, Action: ActionSend, Text: "hi"})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if len(store.failed) != 1 || !strings.Contains(store.failed[0].msg, "bot was blocked") {
		t.Fatalf("expected failure recorded with error string, got %+v", store.failed)
	}
}

func TestExecuteDeleteAlreadyGoneIsSuccess(t *testing.T) {
	chat := &fakeChat{deleteErr: telegram.ErrMessageGone}
	store := &fakeStatusStore{}
	exec := newExecutor(chat, store, nil)

	msg := &Message{ID: "m1", ChatID: 42, Action: ActionDelete, PlatformMessageID: 99}
	if err := exec.Execute(context.Background(), msg); err != nil {
		t.Fatalf("already-gone delete must succeed: %v", err)
	}
	if len(store.failed) != 0 {
		t.Fatalf("no failure expected, got %+v", store.failed)
	}
	if len(store.delivered) != 1 || store.delivered[0].note != "message already deleted" {
		t.Fatalf("expected delivered with note, got %+v", store.delivered)
	}
}

func TestExecuteDeleteWithoutReferenceFails(t *testing.T) {
	store := &fakeStatusStore{}
	exec := newExecutor(&fakeChat{}, store, nil)

	err := exec.Execute(context.Background(), &Message{ID: "m1", ChatID: 42, Action: ActionDelete})
	if err == nil {
		t.Fatal("expected error for DELETE without platform message id")
	}
	if len(store.failed) != 1 {
		t.Fatalf("expected failure recorded, got %+v", store.failed)
	}
}

func TestExecuteEditRequiresTextAndReference(t *testing.T) {
	exec := newExecutor(&fakeChat{}, &fakeStatusStore{}, nil)

	if err := exec.Execute(context.Background(), &Message{ID: "m1", ChatID: 42, Action: ActionEdit, Text: "new"}); err == nil {
		t.Fatal("expected error for EDIT without platform message id")
	}
	if err := exec.Execute(context.Background(), &Message{ID: "m2", ChatID: 42, Action: ActionEdit, PlatformMessageID: 5}); err == nil {
		t.Fatal("expected error for EDIT without text")
	}
}

func TestExecuteSendSyncsChatLog(t *testing.T) {
	chat := &fakeChat{}
	chatLog := &fakeChatLog{}
	exec := newExecutor(chat, &fakeStatusStore{}, chatLog)

	msg := &Message{
		ID: "m1", ChatID: 42, Action: ActionSend, Text: "reply",
		ChatLogRef: &ChatLogRef{PatientID: "p1", EntryID: "e1"},
	}
	if err := exec.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(chatLog.synced) != 1 || chatLog.synced[0] != 1 {
		t.Fatalf("expected chat log sync with platform id, got %+v", chatLog.synced)
	}
}

func TestExecuteSendChatLogFailureDoesNotFailDelivery(t *testing.T) {
	chat := &fakeChat{}
	chatLog := &fakeChatLog{err: errors.New("transcript write refused")}
	store := &fakeStatusStore{}
	exec := newExecutor(chat, store, chatLog)

	msg := &Message{
		ID: "m1", ChatID: 42, Action: ActionSend, Text: "reply",
		ChatLogRef: &ChatLogRef{PatientID: "p1", EntryID: "e1"},
	}
	if err := exec.Execute(context.Background(), msg); err != nil {
		t.Fatalf("delivery must not fail on chat log sync error: %v", err)
	}
	if len(store.delivered) != 1 {
		t.Fatalf("expected delivered, got %+v", store)
	}
}
