package telegram

// Update is a single incoming event from the Bot API webhook.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message mirrors the Bot API message object, limited to the fields we consume.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Date      int64       `json:"date"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Contact   *Contact    `json:"contact,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Video     *FileRef    `json:"video,omitempty"`
	Voice     *FileRef    `json:"voice,omitempty"`
	Audio     *FileRef    `json:"audio,omitempty"`
	Document  *FileRef    `json:"document,omitempty"`
	Sticker   *FileRef    `json:"sticker,omitempty"`
}

// HasMedia reports whether the message carries a non-text payload.
func (m *Message) HasMedia() bool {
	if m == nil {
		return false
	}
	return len(m.Photo) > 0 || m.Video != nil || m.Voice != nil ||
		m.Audio != nil || m.Document != nil || m.Sticker != nil
}

// CombinedText joins text and caption for content filtering.
func (m *Message) CombinedText() string {
	if m == nil {
		return ""
	}
	if m.Text != "" && m.Caption != "" {
		return m.Text + " " + m.Caption
	}
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// IsGroup reports whether the chat is a multi-member context.
func (c Chat) IsGroup() bool {
	return c.Type == "group" || c.Type == "supergroup"
}

type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	UserID      int64  `json:"user_id,omitempty"`
}

type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type FileRef struct {
	FileID string `json:"file_id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ReplyKeyboardMarkup is a custom keyboard shown under the input field.
type ReplyKeyboardMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

type KeyboardButton struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// SendMessageRequest is the payload for the sendMessage method.
type SendMessageRequest struct {
	ChatID      int64  `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type SendPhotoRequest struct {
	ChatID  int64  `json:"chat_id"`
	Photo   string `json:"photo"` // file_id or URL
	Caption string `json:"caption,omitempty"`
}

type SendVoiceRequest struct {
	ChatID  int64  `json:"chat_id"`
	Voice   string `json:"voice"` // file_id or URL
	Caption string `json:"caption,omitempty"`
}

type EditMessageTextRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type DeleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

type BanChatMemberRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}
