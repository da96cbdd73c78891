package outbound

import (
	"context"
	"errors"
	"fmt"

	observemetrics "github.com/shifohub/patient-comms/internal/observability/metrics"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type chatClient interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	SendPhoto(ctx context.Context, req telegram.SendPhotoRequest) (*telegram.Message, error)
	SendVoice(ctx context.Context, req telegram.SendVoiceRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, req telegram.DeleteMessageRequest) error
}

type statusStore interface {
	MarkDelivered(ctx context.Context, id string, resultMessageID int64, note string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

type chatLogSyncer interface {
	MarkChatLogDelivered(ctx context.Context, patientID, entryID string, chatMessageID int64) error
}

// Executor performs one outbound message against the chat channel and
// records the terminal status on the message record.
type Executor struct {
	chat    chatClient
	store   statusStore
	media   MediaResolver
	chatLog chatLogSyncer
	logger  *logging.Logger
	metrics *observemetrics.CommsMetrics
}

// ExecutorConfig wires the executor's collaborators. Media and ChatLog are
// optional.
type ExecutorConfig struct {
	Chat    chatClient
	Store   statusStore
	Media   MediaResolver
	ChatLog chatLogSyncer
	Logger  *logging.Logger
	Metrics *observemetrics.CommsMetrics
}

// NewExecutor builds a delivery executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Chat == nil {
		panic("outbound: chat client cannot be nil")
	}
	if cfg.Store == nil {
		panic("outbound: status store cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Executor{
		chat:    cfg.Chat,
		store:   cfg.Store,
		media:   cfg.Media,
		chatLog: cfg.ChatLog,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Execute dispatches the message by action and moves it to a terminal
// status. The returned error reports the delivery outcome; the record is
// already updated either way.
func (e *Executor) Execute(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("outbound: message cannot be nil")
	}
	var err error
	switch msg.Action {
	case ActionEdit:
		err = e.executeEdit(ctx, msg)
	case ActionDelete:
		err = e.executeDelete(ctx, msg)
	default:
		err = e.executeSend(ctx, msg)
	}
	if err != nil {
		e.metrics.ObserveDelivery(msg.Action, StatusFailed)
		if markErr := e.store.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			e.logger.Error("failed to record delivery failure", "error", markErr, "message_id", msg.ID)
		}
		return err
	}
	e.metrics.ObserveDelivery(msg.Action, StatusDelivered)
	return nil
}

func (e *Executor) executeEdit(ctx context.Context, msg *Message) error {
	if msg.PlatformMessageID == 0 {
		return errors.New("outbound: EDIT requires a platform message id")
	}
	if msg.Text == "" {
		return errors.New("outbound: EDIT requires new text")
	}
	edited, err := e.chat.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:    msg.ChatID,
		MessageID: msg.PlatformMessageID,
		Text:      msg.Text,
	})
	if err != nil {
		return fmt.Errorf("outbound: edit message: %w", err)
	}
	return e.store.MarkDelivered(ctx, msg.ID, edited.MessageID, "")
}

func (e *Executor) executeDelete(ctx context.Context, msg *Message) error {
	if msg.PlatformMessageID == 0 {
		return errors.New("outbound: DELETE requires a platform message id")
	}
	err := e.chat.DeleteMessage(ctx, telegram.DeleteMessageRequest{
		ChatID:    msg.ChatID,
		MessageID: msg.PlatformMessageID,
	})
	if errors.Is(err, telegram.ErrMessageGone) {
		// The message already disappeared on the platform; the intent of a
		// DELETE is satisfied.
		return e.store.MarkDelivered(ctx, msg.ID, msg.PlatformMessageID, "message already deleted")
	}
	if err != nil {
		return fmt.Errorf("outbound: delete message: %w", err)
	}
	return e.store.MarkDelivered(ctx, msg.ID, msg.PlatformMessageID, "")
}

// executeSend dispatches text, photo and voice payloads as separate sends.
// The platform id of the last successful send becomes the canonical id.
func (e *Executor) executeSend(ctx context.Context, msg *Message) error {
	if msg.Text == "" && msg.PhotoKey == "" && msg.VoiceKey == "" {
		return errors.New("outbound: SEND requires text or media")
	}
	var lastID int64

	if msg.Text != "" {
		sent, err := e.chat.SendMessage(ctx, telegram.SendMessageRequest{ChatID: msg.ChatID, Text: msg.Text})
		if err != nil {
			return fmt.Errorf("outbound: send text: %w", err)
		}
		lastID = sent.MessageID
	}
	if msg.PhotoKey != "" {
		url, err := e.resolveMedia(ctx, msg.PhotoKey)
		if err != nil {
			return err
		}
		sent, err := e.chat.SendPhoto(ctx, telegram.SendPhotoRequest{ChatID: msg.ChatID, Photo: url})
		if err != nil {
			return fmt.Errorf("outbound: send photo: %w", err)
		}
		lastID = sent.MessageID
	}
	if msg.VoiceKey != "" {
		url, err := e.resolveMedia(ctx, msg.VoiceKey)
		if err != nil {
			return err
		}
		sent, err := e.chat.SendVoice(ctx, telegram.SendVoiceRequest{ChatID: msg.ChatID, Voice: url})
		if err != nil {
			return fmt.Errorf("outbound: send voice: %w", err)
		}
		lastID = sent.MessageID
	}

	if err := e.store.MarkDelivered(ctx, msg.ID, lastID, ""); err != nil {
		return err
	}

	// Keep the clinic UI transcript in sync. Best effort: a failure here
	// must not fail the delivery that already happened.
	if msg.ChatLogRef != nil && e.chatLog != nil {
		if err := e.chatLog.MarkChatLogDelivered(ctx, msg.ChatLogRef.PatientID, msg.ChatLogRef.EntryID, lastID); err != nil {
			e.logger.Warn("chat log sync failed",
				"error", err,
				"message_id", msg.ID,
				"patient_id", msg.ChatLogRef.PatientID,
			)
		}
	}
	return nil
}

func (e *Executor) resolveMedia(ctx context.Context, key string) (string, error) {
	if e.media == nil {
		return "", errors.New("outbound: media resolver not configured")
	}
	return e.media.ResolveURL(ctx, key)
}
