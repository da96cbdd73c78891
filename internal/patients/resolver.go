package patients

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shifohub/patient-comms/internal/phone"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type resolverStore interface {
	GetByChatID(ctx context.Context, chatID int64) (*PatientRecord, error)
	FindByPhoneVariants(ctx context.Context, variants []string) (*PatientRecord, error)
	BindChatIdentity(ctx context.Context, id string, chatID int64, language string) error
}

// Resolver maps chat identities and raw phone strings onto patient records.
type Resolver struct {
	store  resolverStore
	logger *logging.Logger
}

// NewResolver builds a resolver over the patient store.
func NewResolver(store resolverStore, logger *logging.Logger) *Resolver {
	if store == nil {
		panic("patients: resolver store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ByChat returns the patient bound to the chat identity, or ErrNotFound.
func (r *Resolver) ByChat(ctx context.Context, chatID int64) (*PatientRecord, error) {
	return r.store.GetByChatID(ctx, chatID)
}

// ByPhone normalizes the raw phone and looks for an exact match on any
// stored spelling.
func (r *Resolver) ByPhone(ctx context.Context, raw string) (*PatientRecord, error) {
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		return nil, fmt.Errorf("patients: unusable phone %q: %w", raw, ErrNotFound)
	}
	return r.store.FindByPhoneVariants(ctx, variants)
}

// LinkContact resolves a shared contact's phone and, on a match, binds the
// chat identity and language onto the record. The bind is an upsert of two
// fields; the rest of the document is left alone.
func (r *Resolver) LinkContact(ctx context.Context, chatID int64, language, rawPhone string) (*PatientRecord, error) {
	rec, err := r.ByPhone(ctx, rawPhone)
	if err != nil {
		return nil, err
	}
	if err := r.store.BindChatIdentity(ctx, rec.ID, chatID, language); err != nil {
		return nil, err
	}
	r.logger.Info("patient linked to chat identity",
		"patient_id", rec.ID,
		"chat_id", chatID,
		"language", language,
	)
	rec.ChatID = strconv.FormatInt(chatID, 10)
	rec.Language = language
	return rec, nil
}

// IsNotFound reports whether err is the expected lookup-miss outcome.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
