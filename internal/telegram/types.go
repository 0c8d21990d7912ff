package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

type ParseMode = string

type ChatAction string

const (
	ActionTyping ChatAction = "typing"
)

const (
	ModeMarkdownV2 = "MarkdownV2"
)

type (
	MessageOriginal = tgbotapi.Message
	Update          = tgbotapi.Update
	UserOriginal    = tgbotapi.User
	ChatOriginal    = tgbotapi.Chat
	Chattable       = tgbotapi.Chattable
	APIResponse     = tgbotapi.APIResponse
)

// MessageKey identifies a sent message. Message ids are only unique inside a
// chat.
type MessageKey struct {
	ChatID    int64
	MessageID int
}

func (k MessageKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.MessageID)
}

type Message struct {
	MessageID int
	Chat      Chat
	Text      string
	From      User
	ReplyTo   *Message
	Caption   string
}

func (m *Message) Key() MessageKey {
	return MessageKey{ChatID: m.Chat.ID, MessageID: m.MessageID}
}

type User struct {
	ID        int64
	FirstName string
	UserName  string
}

type Chat struct {
	ID   int64
	Type string
}

type MessageConfig interface {
	ToChattable() tgbotapi.Chattable
}

type TextMessage struct {
	ChatID              int64
	Text                string
	ReplyTo             int
	LinkPreviewDisabled bool
	ParseMode           ParseMode
}

func NewMessage(chatID int64, text string, replyTo int) TextMessage {
	return TextMessage{
		ChatID:  chatID,
		Text:    text,
		ReplyTo: replyTo,
	}
}

func (m TextMessage) ToChattable() tgbotapi.Chattable {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyParameters.MessageID = m.ReplyTo
	msg.ParseMode = m.ParseMode
	msg.LinkPreviewOptions.IsDisabled = m.LinkPreviewDisabled
	return msg
}

type UpdateConfig struct {
	Offset  int
	Limit   int
	Timeout int
}

type Client interface {
	Send(msg MessageConfig) (*Message, error)
	// SendWithRetry waits out 429 responses. ctx only bounds the waiting.
	SendWithRetry(ctx context.Context, msg MessageConfig, maxRetryCount int) (*Message, error)
	DeleteMessage(chatID int64, messageID int) (*APIResponse, error)
	SendChatAction(chatID int64, action ChatAction) error
	EscapeText(text string) string
	GetUpdatesChan(config UpdateConfig) <-chan Update
	StopReceivingUpdates()
	NewUpdate(offset, timeout, limit int) UpdateConfig
	// Deliveries yields one event per message the client sent or deleted.
	Deliveries() <-chan DeliveryEvent
	Self() User
}
