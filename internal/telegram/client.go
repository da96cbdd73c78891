// Package telegram is a thin REST client for the Telegram Bot API, covering
// only the methods the patient-communication flows need.
package telegram

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// ErrMessageGone marks delete/edit failures where the target message no
// longer exists on the platform. Callers decide whether that is fatal.
var ErrMessageGone = errors.New("telegram: message no longer exists")

// APIError carries the Bot API error envelope for non-ok responses.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Config controls how the client behaves.
type Config struct {
	BaseURL       string
	BotToken      string
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client wraps the Bot API endpoints used by the messaging core.
type Client struct {
	botToken      string
	baseURL       string
	webhookSecret string
	httpClient    *http.Client
	logger        *slog.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		botToken:      cfg.BotToken,
		baseURL:       baseURL,
		webhookSecret: cfg.WebhookSecret,
		httpClient:    httpClient,
		logger:        logger,
	}, nil
}

// VerifyWebhookSecret checks the X-Telegram-Bot-Api-Secret-Token header set
// when the webhook was registered. A client without a secret accepts all.
func (c *Client) VerifyWebhookSecret(header string) error {
	if c.webhookSecret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(c.webhookSecret)) != 1 {
		return errors.New("telegram: webhook secret mismatch")
	}
	return nil
}

// SendMessage delivers a text message, optionally with a keyboard.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	if req.ChatID == 0 {
		return nil, errors.New("telegram: chat id required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("telegram: message text required")
	}
	return invoke[Message](ctx, c, "sendMessage", req)
}

// SendPhoto delivers a photo by file id or URL.
func (c *Client) SendPhoto(ctx context.Context, req SendPhotoRequest) (*Message, error) {
	if req.ChatID == 0 || req.Photo == "" {
		return nil, errors.New("telegram: chat id and photo required")
	}
	return invoke[Message](ctx, c, "sendPhoto", req)
}

// SendVoice delivers a voice note by file id or URL.
func (c *Client) SendVoice(ctx context.Context, req SendVoiceRequest) (*Message, error) {
	if req.ChatID == 0 || req.Voice == "" {
		return nil, errors.New("telegram: chat id and voice required")
	}
	return invoke[Message](ctx, c, "sendVoice", req)
}

// EditMessageText replaces the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) (*Message, error) {
	if req.ChatID == 0 || req.MessageID == 0 {
		return nil, errors.New("telegram: chat id and message id required")
	}
	return invoke[Message](ctx, c, "editMessageText", req)
}

// DeleteMessage removes a previously sent message. Returns ErrMessageGone
// when the platform reports the message already disappeared.
func (c *Client) DeleteMessage(ctx context.Context, req DeleteMessageRequest) error {
	if req.ChatID == 0 || req.MessageID == 0 {
		return errors.New("telegram: chat id and message id required")
	}
	_, err := invoke[bool](ctx, c, "deleteMessage", req)
	return err
}

// BanChatMember removes a sender from a group chat.
func (c *Client) BanChatMember(ctx context.Context, req BanChatMemberRequest) error {
	if req.ChatID == 0 || req.UserID == 0 {
		return errors.New("telegram: chat id and user id required")
	}
	_, err := invoke[bool](ctx, c, "banChatMember", req)
	return err
}

// AnswerCallbackQuery acknowledges an inline-button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	if req.CallbackQueryID == "" {
		return errors.New("telegram: callback query id required")
	}
	_, err := invoke[bool](ctx, c, "answerCallbackQuery", req)
	return err
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

func invoke[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram: marshal %s payload: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !envelope.OK {
		if isMessageGone(envelope.Description) {
			return nil, ErrMessageGone
		}
		return nil, &APIError{Method: method, Code: envelope.ErrorCode, Description: envelope.Description}
	}

	var result T
	if len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, &result); err != nil {
			return nil, fmt.Errorf("telegram: decode %s result: %w", method, err)
		}
	}
	return &result, nil
}

// isMessageGone matches Bot API descriptions for edits/deletes whose target
// message was already removed.
func isMessageGone(description string) bool {
	d := strings.ToLower(description)
	return strings.Contains(d, "message to delete not found") ||
		strings.Contains(d, "message to edit not found")
}
