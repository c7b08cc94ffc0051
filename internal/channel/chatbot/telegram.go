package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/humanlink/humanlink/internal/channel"
	"github.com/humanlink/humanlink/internal/common/config"
	"github.com/humanlink/humanlink/internal/common/logger"
)

// TelegramTransport talks to the Telegram Bot API: prompts are messages with
// inline keyboards whose callback_data carries the action tokens, and inbound
// events are fetched with long-poll getUpdates using the update offset as the
// engine's cursor.
type TelegramTransport struct {
	cfg    config.TelegramConfig
	client *http.Client
	log    *logger.Logger
}

// NewTelegramTransport validates the Telegram credentials and returns the
// transport. Missing credentials are a configuration error surfaced here,
// never deferred into a response.
func NewTelegramTransport(cfg config.TelegramConfig, log *logger.Logger) (*TelegramTransport, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: telegram.token is required", channel.ErrConfiguration)
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("%w: telegram.chatId is required", channel.ErrConfiguration)
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.telegram.org"
	}
	return &TelegramTransport{
		cfg: cfg,
		client: &http.Client{
			// Must outlast the long-poll window.
			Timeout: cfg.PollTimeoutDuration() + 15*time.Second,
		},
		log: log.WithChannel("telegram"),
	}, nil
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type tgMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

type tgUpdate struct {
	UpdateID int64      `json:"update_id"`
	Message  *tgMessage `json:"message"`
	Callback *struct {
		ID      string     `json:"id"`
		Data    string     `json:"data"`
		Message *tgMessage `json:"message"`
	} `json:"callback_query"`
}

type tgInlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type tgReplyMarkup struct {
	InlineKeyboard [][]tgInlineButton `json:"inline_keyboard"`
}

// SendMessage posts a prompt with its action keyboard and returns the
// Telegram message id.
func (t *TelegramTransport) SendMessage(ctx context.Context, text string, actions []Action) (string, error) {
	payload := map[string]any{
		"chat_id": t.cfg.ChatID,
		"text":    text,
	}
	if len(actions) > 0 {
		payload["reply_markup"] = keyboardFor(actions)
	}
	var msg tgMessage
	if err := t.call(ctx, "sendMessage", payload, &msg); err != nil {
		return "", err
	}
	return strconv.FormatInt(msg.MessageID, 10), nil
}

// EditMessage replaces a message's text and keyboard in place.
func (t *TelegramTransport) EditMessage(ctx context.Context, messageID, text string, actions []Action) error {
	id, err := strconv.ParseInt(messageID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram message id %q: %w", messageID, err)
	}
	payload := map[string]any{
		"chat_id":    t.cfg.ChatID,
		"message_id": id,
		"text":       text,
	}
	if len(actions) > 0 {
		payload["reply_markup"] = keyboardFor(actions)
	}
	return t.call(ctx, "editMessageText", payload, nil)
}

// FetchEvents long-polls getUpdates. The cursor is the Telegram update
// offset, so no update is delivered twice.
func (t *TelegramTransport) FetchEvents(ctx context.Context, cursor int64) ([]Event, int64, error) {
	payload := map[string]any{
		"offset":          cursor,
		"timeout":         t.cfg.PollTimeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []tgUpdate
	if err := t.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, cursor, err
	}

	events := make([]Event, 0, len(updates))
	next := cursor
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
		switch {
		case u.Callback != nil:
			events = append(events, Event{Kind: EventAction, Token: u.Callback.Data})
			t.ackCallback(u.Callback.ID)
		case u.Message != nil && u.Message.Chat.ID == t.cfg.ChatID && u.Message.Text != "":
			events = append(events, Event{Kind: EventText, Text: u.Message.Text})
		}
	}
	return events, next, nil
}

// Close releases the transport. The HTTP client needs no teardown.
func (t *TelegramTransport) Close() error {
	return nil
}

// ackCallback stops the client-side spinner on the pressed button.
// Fire-and-forget.
func (t *TelegramTransport) ackCallback(callbackID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.call(ctx, "answerCallbackQuery", map[string]any{"callback_query_id": callbackID}, nil); err != nil {
			t.log.Debug("failed to answer callback query", zap.Error(err))
		}
	}()
}

func (t *TelegramTransport) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.cfg.APIBaseURL, t.cfg.Token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded tgResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram %s error: %s", method, decoded.Description)
	}
	if result != nil {
		if err := json.Unmarshal(decoded.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// keyboardFor lays the actions out one per row, which keeps long labels
// readable on narrow clients.
func keyboardFor(actions []Action) tgReplyMarkup {
	rows := make([][]tgInlineButton, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, []tgInlineButton{{Text: a.Label, CallbackData: a.Token}})
	}
	return tgReplyMarkup{InlineKeyboard: rows}
}
