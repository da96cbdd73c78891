package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shifohub/patient-comms/internal/observability/metrics"
	"github.com/shifohub/patient-comms/internal/patients"
	"github.com/shifohub/patient-comms/internal/profiles"
	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type botClient interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error
}

type patientResolver interface {
	ByChat(ctx context.Context, chatID int64) (*patients.PatientRecord, error)
	LinkContact(ctx context.Context, chatID int64, language, rawPhone string) (*patients.PatientRecord, error)
}

type chatLogWriter interface {
	AppendChatLog(ctx context.Context, entry patients.ChatLogEntry) error
}

type doctorRouter interface {
	Resolve(ctx context.Context, accountID string) profiles.Contact
}

// Handler drives the inbound update pipeline: access filtering, the
// onboarding flow, and the linked-user commands.
type Handler struct {
	chat     botClient
	filter   *AccessFilter
	sessions *SessionStore
	resolver patientResolver
	chatLog  chatLogWriter
	doctors  doctorRouter
	location *time.Location
	metrics  *metrics.CommsMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// HandlerConfig wires the handler dependencies.
type HandlerConfig struct {
	Chat     botClient
	Filter   *AccessFilter
	Sessions *SessionStore
	Resolver patientResolver
	ChatLog  chatLogWriter
	Doctors  doctorRouter
	Location *time.Location
	Metrics  *metrics.CommsMetrics
	Logger   *logging.Logger
}

// NewHandler builds the update handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Chat == nil || cfg.Filter == nil || cfg.Sessions == nil || cfg.Resolver == nil || cfg.ChatLog == nil || cfg.Doctors == nil {
		panic("bot: missing handler dependency")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Handler{
		chat:     cfg.Chat,
		filter:   cfg.Filter,
		sessions: cfg.Sessions,
		resolver: cfg.Resolver,
		chatLog:  cfg.ChatLog,
		doctors:  cfg.Doctors,
		location: cfg.Location,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Tests only.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// HandleUpdate processes one webhook update end to end. Errors are
// logged and reported to the caller; the webhook still acknowledges.
func (h *Handler) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	if !h.filter.Allow(ctx, update) {
		h.metrics.ObserveInbound("message", "blocked")
		return nil
	}

	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message != nil {
		return h.handleMessage(ctx, update.Message)
	}
	return nil
}

const langCallbackPrefix = "lang:"

// handleCallback processes inline-keyboard presses; the only ones we emit
// are the language buttons.
func (h *Handler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if !strings.HasPrefix(cb.Data, langCallbackPrefix) || cb.Message == nil {
		return nil
	}
	lang := NormalizeLanguage(strings.TrimPrefix(cb.Data, langCallbackPrefix))
	chatID := cb.Message.Chat.ID

	if err := h.sessions.Save(ctx, &ChatSession{
		ChatID:   chatID,
		Language: lang,
		Step:     StepAwaitingContact,
	}); err != nil {
		h.metrics.ObserveInbound("language_select", "error")
		return err
	}
	if err := h.chat.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{CallbackQueryID: cb.ID}); err != nil {
		h.logger.Warn("failed to answer callback query", "error", err)
	}

	b := messages(lang)
	_, err := h.chat.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   b.ShareContact,
		ReplyMarkup: telegram.ReplyKeyboardMarkup{
			Keyboard: [][]telegram.KeyboardButton{
				{{Text: b.ShareContactBtn, RequestContact: true}},
			},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		},
	})
	if err != nil {
		h.metrics.ObserveInbound("language_select", "error")
		return err
	}
	h.metrics.ObserveInbound("language_select", "ok")
	return nil
}

func (h *Handler) handleMessage(ctx context.Context, msg *telegram.Message) error {
	chatID := msg.Chat.ID

	session, err := h.sessions.Load(ctx, chatID)
	if err != nil {
		h.logger.Error("session load failed", "error", err, "chat_id", chatID)
		session = nil
	}

	if strings.HasPrefix(msg.Text, "/start") {
		return h.sendLanguagePrompt(ctx, chatID)
	}
	if msg.Contact != nil {
		return h.handleContact(ctx, msg, session)
	}

	patient, err := h.resolver.ByChat(ctx, chatID)
	if err != nil {
		if patients.IsNotFound(err) {
			return h.handleUnlinked(ctx, chatID, session)
		}
		h.metrics.ObserveInbound("message", "error")
		return fmt.Errorf("bot: patient lookup: %w", err)
	}
	return h.handleLinked(ctx, msg, session, patient)
}

func (h *Handler) sendLanguagePrompt(ctx context.Context, chatID int64) error {
	_, err := h.chat.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   messages(DefaultLanguage).ChooseLanguage,
		ReplyMarkup: telegram.InlineKeyboardMarkup{
			InlineKeyboard: [][]telegram.InlineKeyboardButton{{
				{Text: "O'zbekcha", CallbackData: langCallbackPrefix + LangUz},
				{Text: "Русский", CallbackData: langCallbackPrefix + LangRu},
				{Text: "English", CallbackData: langCallbackPrefix + LangEn},
			}},
		},
	})
	if err != nil {
		h.metrics.ObserveInbound("start", "error")
		return err
	}
	h.metrics.ObserveInbound("start", "ok")
	return nil
}

// handleContact runs the awaiting_contact -> linked transition.
func (h *Handler) handleContact(ctx context.Context, msg *telegram.Message, session *ChatSession) error {
	chatID := msg.Chat.ID

	// A contact share only counts once the chat has chosen a language and is
	// waiting for it; anything else gets the language prompt first.
	if session == nil || session.Step != StepAwaitingContact {
		h.metrics.ObserveInbound("contact", "no_session")
		return h.sendLanguagePrompt(ctx, chatID)
	}
	lang := NormalizeLanguage(session.Language)
	b := messages(lang)

	// People forward other people's contact cards; only the sender's own
	// number may link the chat. A card with no owning Telegram account
	// cannot be the sender's, so it is rejected the same way.
	if msg.From == nil || msg.Contact.UserID == 0 || msg.Contact.UserID != msg.From.ID {
		h.metrics.ObserveInbound("contact", "rejected")
		return h.reply(ctx, chatID, b.ContactNotOwn)
	}

	patient, err := h.resolver.LinkContact(ctx, chatID, lang, msg.Contact.PhoneNumber)
	if err != nil {
		if patients.IsNotFound(err) {
			h.metrics.ObserveInbound("contact", "not_found")
			return h.reply(ctx, chatID, b.PatientNotFound)
		}
		h.metrics.ObserveInbound("contact", "error")
		return fmt.Errorf("bot: link contact: %w", err)
	}

	if err := h.sessions.Save(ctx, &ChatSession{
		ChatID:   chatID,
		Language: lang,
		Step:     StepReady,
		Mode:     ModeMenu,
	}); err != nil {
		h.logger.Error("session save failed after link", "error", err, "chat_id", chatID)
	}

	h.metrics.ObserveInbound("contact", "linked")
	_, err = h.chat.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        fmt.Sprintf(b.Welcome, patient.FullName),
		ReplyMarkup: menuKeyboard(b),
	})
	return err
}

func (h *Handler) handleUnlinked(ctx context.Context, chatID int64, session *ChatSession) error {
	lang := DefaultLanguage
	if session != nil && session.Language != "" {
		lang = NormalizeLanguage(session.Language)
	}
	if session == nil {
		return h.sendLanguagePrompt(ctx, chatID)
	}
	h.metrics.ObserveInbound("message", "unlinked")
	return h.reply(ctx, chatID, messages(lang).NotLinked)
}

func (h *Handler) handleLinked(ctx context.Context, msg *telegram.Message, session *ChatSession, patient *patients.PatientRecord) error {
	chatID := msg.Chat.ID
	lang := NormalizeLanguage(patient.Language)
	if session != nil && session.Language != "" {
		lang = NormalizeLanguage(session.Language)
	}
	b := messages(lang)

	// Photos and files must go through the clinic upload path, not chat.
	if msg.HasMedia() {
		contact := h.doctors.Resolve(ctx, patient.AccountID)
		h.metrics.ObserveInbound("media", "rejected")
		return h.reply(ctx, chatID, fmt.Sprintf(b.MediaRejected, contact.Link))
	}

	switch msg.Text {
	case b.MenuSchedule:
		h.metrics.ObserveInbound("command", "schedule")
		return h.reply(ctx, chatID, h.renderSchedule(b, patient))
	case b.MenuWriteDoctor:
		h.saveMode(ctx, chatID, lang, ModeWriteToDoctor)
		h.metrics.ObserveInbound("command", "write_to_doctor")
		return h.reply(ctx, chatID, b.WriteDoctorHint)
	}

	if session != nil && session.Mode == ModeWriteToDoctor && msg.Text != "" {
		return h.forwardToDoctor(ctx, msg, patient, b)
	}

	// Anything else: show the menu again.
	h.metrics.ObserveInbound("message", "menu")
	_, err := h.chat.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        b.MenuPrompt,
		ReplyMarkup: menuKeyboard(b),
	})
	return err
}

// forwardToDoctor persists a free-text message as an inbound chat log
// entry, which bumps the patient's unread counter for the clinic UI.
func (h *Handler) forwardToDoctor(ctx context.Context, msg *telegram.Message, patient *patients.PatientRecord, b bundle) error {
	entry := patients.ChatLogEntry{
		ID:            uuid.NewString(),
		PatientID:     patient.ID,
		Direction:     "in",
		Text:          msg.Text,
		ChatMessageID: msg.MessageID,
		CreatedAt:     patients.Now(),
	}
	if err := h.chatLog.AppendChatLog(ctx, entry); err != nil {
		h.metrics.ObserveInbound("doctor_message", "error")
		return fmt.Errorf("bot: append chat log: %w", err)
	}
	h.metrics.ObserveInbound("doctor_message", "ok")
	return h.reply(ctx, msg.Chat.ID, b.MessageSaved)
}

// renderSchedule formats the patient's upcoming injections: still
// scheduled, dated tomorrow or later, ascending.
func (h *Handler) renderSchedule(b bundle, patient *patients.PatientRecord) string {
	tomorrow := h.now().In(h.location).AddDate(0, 0, 1).Format("2006-01-02")

	var upcoming []patients.Injection
	for _, inj := range patient.Injections {
		if inj.Status == patients.InjectionScheduled && inj.Date >= tomorrow {
			upcoming = append(upcoming, inj)
		}
	}
	if len(upcoming) == 0 {
		return b.ScheduleEmpty
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].Date < upcoming[j].Date })

	var sb strings.Builder
	sb.WriteString(b.ScheduleHeader)
	for _, inj := range upcoming {
		sb.WriteString("\n• ")
		sb.WriteString(inj.Date)
		if inj.Drug != "" {
			sb.WriteString(" — ")
			sb.WriteString(inj.Drug)
		}
		if inj.Notes != "" {
			sb.WriteString(" (")
			sb.WriteString(inj.Notes)
			sb.WriteString(")")
		}
	}
	return sb.String()
}

func (h *Handler) saveMode(ctx context.Context, chatID int64, lang, mode string) {
	if err := h.sessions.Save(ctx, &ChatSession{
		ChatID:   chatID,
		Language: lang,
		Step:     StepReady,
		Mode:     mode,
	}); err != nil {
		h.logger.Error("session save failed", "error", err, "chat_id", chatID)
	}
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) error {
	_, err := h.chat.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text})
	return err
}

func menuKeyboard(b bundle) telegram.ReplyKeyboardMarkup {
	return telegram.ReplyKeyboardMarkup{
		Keyboard: [][]telegram.KeyboardButton{
			{{Text: b.MenuSchedule}},
			{{Text: b.MenuWriteDoctor}},
		},
		ResizeKeyboard: true,
	}
}
