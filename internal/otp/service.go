package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shifohub/patient-comms/internal/phone"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type challengeStore interface {
	Put(ctx context.Context, ch *Challenge) error
	Get(ctx context.Context, userID string) (*Challenge, error)
	Delete(ctx context.Context, userID string) error
}

type codeSender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// Subject is the resolved owner of an OTP flow.
type Subject struct {
	UserID string
	ChatID int64
}

// Resolver maps a phone number to an auth subject, trying the clinician
// profile collection first and falling back to the patient collection.
type Resolver interface {
	Resolve(ctx context.Context, phoneNumber string) (Subject, error)
}

// Service implements the OTP request/verify flows.
type Service struct {
	resolver   Resolver
	challenges challengeStore
	chat       codeSender
	minter     TokenMinter
	codeTTL    time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// ServiceConfig wires the service dependencies.
type ServiceConfig struct {
	Resolver   Resolver
	Challenges challengeStore
	Chat       codeSender
	Minter     TokenMinter
	CodeTTL    time.Duration
	Logger     *logging.Logger
}

// NewService builds the OTP service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Resolver == nil || cfg.Challenges == nil || cfg.Chat == nil || cfg.Minter == nil {
		panic("otp: missing service dependency")
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		resolver:   cfg.Resolver,
		challenges: cfg.Challenges,
		chat:       cfg.Chat,
		minter:     cfg.Minter,
		codeTTL:    cfg.CodeTTL,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Request issues a new 6-digit code to the phone's bound chat identity.
// A repeat request replaces any live code for the same subject.
func (s *Service) Request(ctx context.Context, phoneNumber string) error {
	sub, err := s.resolve(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if sub.ChatID == 0 {
		return E(CodeFailedPrecondition, "no chat linked to this phone number")
	}

	code, err := generateCode()
	if err != nil {
		return E(CodeInternal, "could not generate code")
	}
	now := s.now()
	ch := &Challenge{
		UserID:    sub.UserID,
		Code:      code,
		ExpiresAt: now.Add(s.codeTTL).Unix(),
		CreatedAt: now.UTC().Format(time.RFC3339Nano),
	}
	if err := s.challenges.Put(ctx, ch); err != nil {
		s.logger.Error("otp challenge write failed", "error", err, "user_id", sub.UserID)
		return E(CodeInternal, "could not store code")
	}

	_, err = s.chat.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: sub.ChatID,
		Text:   fmt.Sprintf("Код подтверждения: %s", code),
	})
	if err != nil {
		s.logger.Error("otp code send failed", "error", err, "user_id", sub.UserID)
		return E(CodeInternal, "could not deliver code")
	}
	s.logger.Info("otp code issued", "user_id", sub.UserID)
	return nil
}

// Verify checks the submitted code and mints an auth token on success.
func (s *Service) Verify(ctx context.Context, phoneNumber, code string) (string, error) {
	sub, err := s.resolve(ctx, phoneNumber)
	if err != nil {
		return "", err
	}

	ch, err := s.challenges.Get(ctx, sub.UserID)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return "", E(CodeInvalidArgument, "no code was requested for this phone number")
		}
		s.logger.Error("otp challenge read failed", "error", err, "user_id", sub.UserID)
		return "", E(CodeInternal, "could not load code")
	}
	if ch.Expired(s.now()) {
		s.cleanup(ctx, sub, phoneNumber)
		return "", E(CodeDeadlineExceeded, "code has expired, request a new one")
	}
	if ch.Code != code {
		return "", E(CodeInvalidArgument, "incorrect code")
	}

	s.cleanup(ctx, sub, phoneNumber)

	token, err := s.minter.Mint(sub.UserID)
	if err != nil {
		s.logger.Error("otp token mint failed", "error", err, "user_id", sub.UserID)
		return "", E(CodeInternal, "could not mint token")
	}
	s.logger.Info("otp verified", "user_id", sub.UserID)
	return token, nil
}

func (s *Service) resolve(ctx context.Context, phoneNumber string) (Subject, error) {
	variants := phone.Variants(phoneNumber)
	if len(variants) == 0 {
		return Subject{}, E(CodeInvalidArgument, "phone number is required")
	}
	sub, err := s.resolver.Resolve(ctx, phoneNumber)
	if err != nil {
		var oerr *Error
		if errors.As(err, &oerr) {
			return Subject{}, oerr
		}
		s.logger.Error("otp subject lookup failed", "error", err)
		return Subject{}, E(CodeInternal, "lookup failed")
	}
	return sub, nil
}

// cleanup deletes the challenge under both key shapes we have ever written:
// the subject id and the canonical phone used by earlier deployments.
// Best effort, verification outcome does not depend on it.
func (s *Service) cleanup(ctx context.Context, sub Subject, phoneNumber string) {
	if err := s.challenges.Delete(ctx, sub.UserID); err != nil {
		s.logger.Warn("otp challenge cleanup failed", "error", err, "user_id", sub.UserID)
	}
	if canonical := phone.Canonical(phoneNumber); canonical != "" && canonical != sub.UserID {
		if err := s.challenges.Delete(ctx, canonical); err != nil {
			s.logger.Warn("otp legacy challenge cleanup failed", "error", err)
		}
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// parseChatID converts a stored chat id string to a platform id.
func parseChatID(raw string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
