// Package telegramtest provides an in-memory telegram.Client for tests.
package telegramtest

import (
	"context"
	"sync"

	"github.com/muratoffalex/botcore/internal/telegram"
)

// ChatAction is one SendChatAction call.
type ChatAction struct {
	ChatID int64
	Action telegram.ChatAction
}

type SentMessage struct {
	Key     telegram.MessageKey
	Text    string
	ReplyTo int
}

// Client records sent and deleted messages and emits delivery events like
// the real client. SetAutoDeliver(false) leaves sends unconfirmed until
// Deliver or Fail is called.
type Client struct {
	mu          sync.Mutex
	nextID      int
	sent        []SentMessage
	deleted     []telegram.MessageKey
	actions     []ChatAction
	SendErr     error
	DeleteErr   error
	ActionErr   error
	autoDeliver bool
	self        telegram.User

	events  chan telegram.DeliveryEvent
	updates chan telegram.Update
	stop    sync.Once
}

func NewClient() *Client {
	return &Client{
		nextID:      1000,
		autoDeliver: true,
		self:        telegram.User{ID: 1, UserName: "botcore_bot", FirstName: "botcore"},
		events:      make(chan telegram.DeliveryEvent, 1024),
		updates:     make(chan telegram.Update, 64),
	}
}

func (c *Client) Send(msg telegram.MessageConfig) (*telegram.Message, error) {
	c.mu.Lock()
	if c.SendErr != nil {
		err := c.SendErr
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	sent := &telegram.Message{MessageID: c.nextID}
	record := SentMessage{}
	if text, ok := msg.(telegram.TextMessage); ok {
		sent.Chat.ID = text.ChatID
		sent.Text = text.Text
		record.Text = text.Text
		record.ReplyTo = text.ReplyTo
	}
	record.Key = sent.Key()
	c.sent = append(c.sent, record)
	auto := c.autoDeliver
	c.mu.Unlock()

	if auto {
		c.events <- telegram.DeliveryEvent{Key: sent.Key()}
	}
	return sent, nil
}

func (c *Client) SendWithRetry(_ context.Context, msg telegram.MessageConfig, _ int) (*telegram.Message, error) {
	return c.Send(msg)
}

func (c *Client) DeleteMessage(chatID int64, messageID int) (*telegram.APIResponse, error) {
	c.mu.Lock()
	if c.DeleteErr != nil {
		err := c.DeleteErr
		c.mu.Unlock()
		return nil, err
	}
	key := telegram.MessageKey{ChatID: chatID, MessageID: messageID}
	c.deleted = append(c.deleted, key)
	c.mu.Unlock()

	c.events <- telegram.DeliveryEvent{Key: key, Err: telegram.ErrMessageDeleted}
	return &telegram.APIResponse{Ok: true}, nil
}

func (c *Client) SendChatAction(chatID int64, action telegram.ChatAction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ActionErr != nil {
		return c.ActionErr
	}
	c.actions = append(c.actions, ChatAction{ChatID: chatID, Action: action})
	return nil
}

func (c *Client) Actions() []ChatAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatAction(nil), c.actions...)
}

func (c *Client) EscapeText(text string) string {
	return text
}

func (c *Client) GetUpdatesChan(telegram.UpdateConfig) <-chan telegram.Update {
	return c.updates
}

func (c *Client) StopReceivingUpdates() {
	c.stop.Do(func() { close(c.updates) })
}

func (c *Client) NewUpdate(offset, timeout, limit int) telegram.UpdateConfig {
	return telegram.UpdateConfig{Offset: offset, Timeout: timeout, Limit: limit}
}

func (c *Client) Deliveries() <-chan telegram.DeliveryEvent {
	return c.events
}

func (c *Client) Self() telegram.User {
	return c.self
}

// Push queues an update for the update loop.
func (c *Client) Push(update telegram.Update) {
	c.updates <- update
}

func (c *Client) Deliver(key telegram.MessageKey) {
	c.events <- telegram.DeliveryEvent{Key: key}
}

func (c *Client) Fail(key telegram.MessageKey, err error) {
	c.events <- telegram.DeliveryEvent{Key: key, Err: err}
}

func (c *Client) Sent() []SentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SentMessage(nil), c.sent...)
}

func (c *Client) Deleted() []telegram.MessageKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]telegram.MessageKey(nil), c.deleted...)
}

func (c *Client) SetAutoDeliver(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoDeliver = v
}

type Notifier interface {
	NotifyDelivered(key telegram.MessageKey)
	NotifyFailed(key telegram.MessageKey, reason error)
}

// Pump forwards delivery events to n until ctx is done.
func (c *Client) Pump(ctx context.Context, n Notifier) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			if ev.Err != nil {
				n.NotifyFailed(ev.Key, ev.Err)
			} else {
				n.NotifyDelivered(ev.Key)
			}
		}
	}
}

var _ telegram.Client = (*Client)(nil)
