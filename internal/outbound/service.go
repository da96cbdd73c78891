package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type deliveryPublisher interface {
	Send(ctx context.Context, body string) error
}

type creatorStore interface {
	Create(ctx context.Context, msg *Message) error
}

// Job is the SQS envelope pointing the delivery worker at a message record.
type Job struct {
	MessageID string `json:"messageId"`
}

// Service creates outbound messages and routes them for delivery. Messages
// with a scheduledFor value are always left in QUEUED for the drain
// consumer, even when the time already passed; the drain is the single
// authority over "is it time to send".
type Service struct {
	store  creatorStore
	queue  deliveryPublisher
	logger *logging.Logger
}

// NewService builds the outbound message service.
func NewService(store creatorStore, queue deliveryPublisher, logger *logging.Logger) *Service {
	if store == nil {
		panic("outbound: store cannot be nil")
	}
	if queue == nil {
		panic("outbound: delivery queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, queue: queue, logger: logger}
}

// Create persists the message and, for immediate messages, hands it to the
// delivery worker. The record is created first so a lost queue publish
// leaves a visible PENDING record instead of nothing.
func (s *Service) Create(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("outbound: message cannot be nil")
	}
	if msg.ChatID == 0 {
		return errors.New("outbound: chat id required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Action == "" {
		msg.Action = ActionSend
	}

	if err := s.store.Create(ctx, msg); err != nil {
		return err
	}

	if msg.ScheduledFor != "" {
		s.logger.Debug("outbound message queued for drain",
			"message_id", msg.ID,
			"scheduled_for", msg.ScheduledFor,
		)
		return nil
	}

	body, err := json.Marshal(Job{MessageID: msg.ID})
	if err != nil {
		return fmt.Errorf("outbound: marshal delivery job: %w", err)
	}
	if err := s.queue.Send(ctx, string(body)); err != nil {
		return err
	}
	return nil
}
