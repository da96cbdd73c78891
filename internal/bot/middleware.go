package bot

import (
	"context"
	"regexp"

	"github.com/shifohub/patient-comms/internal/telegram"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type moderationClient interface {
	DeleteMessage(ctx context.Context, req telegram.DeleteMessageRequest) error
	BanChatMember(ctx context.Context, req telegram.BanChatMemberRequest) error
}

// AccessFilter runs before any update handling: an identity allow-list
// check followed by a scam content filter. The allow-list is kept but not
// enforced, every chat passes through and the decision is logged.
type AccessFilter struct {
	allowedChats map[int64]bool
	scamRegex    *regexp.Regexp
	chat         moderationClient
	sessions     *SessionStore
	logger       *logging.Logger
}

// NewAccessFilter builds the filter chain.
func NewAccessFilter(allowedChats []int64, chat moderationClient, sessions *SessionStore, logger *logging.Logger) *AccessFilter {
	if chat == nil {
		panic("bot: nil chat client")
	}
	if logger == nil {
		logger = logging.Default()
	}
	allowed := make(map[int64]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}
	return &AccessFilter{
		allowedChats: allowed,
		scamRegex:    regexp.MustCompile(`(?i)(crypto|usdt|binance|airdrop|casino|заработок|инвестиц|быстрые деньги|тренинг|курс по трейдингу|click here|earn \$|free money|промокод)`),
		chat:         chat,
		sessions:     sessions,
		logger:       logger,
	}
}

// Allow reports whether the update may proceed to the handlers. A false
// return means the update was handled here (dropped, and in group chats
// the sender removed) and the pipeline must stop.
func (f *AccessFilter) Allow(ctx context.Context, update *telegram.Update) bool {
	msg := update.Message
	if msg == nil {
		return true
	}

	// Allow-list enforcement is disabled while the patient base migrates
	// onto the bot. Log the verdict so enabling it later is a config flip.
	if len(f.allowedChats) > 0 && !f.allowedChats[msg.Chat.ID] {
		f.logger.Info("chat not on allow-list, passing through",
			"chat_id", msg.Chat.ID)
	}

	if f.scamRegex.MatchString(msg.CombinedText()) {
		f.handleScam(ctx, msg)
		return false
	}
	return true
}

func (f *AccessFilter) handleScam(ctx context.Context, msg *telegram.Message) {
	f.logger.Warn("scam content detected",
		"chat_id", msg.Chat.ID,
		"message_id", msg.MessageID)

	if err := f.chat.DeleteMessage(ctx, telegram.DeleteMessageRequest{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}); err != nil {
		f.logger.Error("failed to delete scam message", "error", err, "chat_id", msg.Chat.ID)
	}

	if msg.Chat.IsGroup() && msg.From != nil {
		if err := f.chat.BanChatMember(ctx, telegram.BanChatMemberRequest{
			ChatID: msg.Chat.ID,
			UserID: msg.From.ID,
		}); err != nil {
			f.logger.Error("failed to ban sender", "error", err, "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
		}
		if f.sessions != nil {
			if err := f.sessions.Delete(ctx, msg.Chat.ID); err != nil {
				f.logger.Warn("failed to drop session for banned chat", "error", err)
			}
		}
	}
}
