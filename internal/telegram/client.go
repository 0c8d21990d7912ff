package telegram

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"github.com/muratoffalex/botcore/internal/logger"
)

var retryAfterRe = regexp.MustCompile(`retry after (\d+)`)

type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type BotClient struct {
	bot    botAPI
	self   tgbotapi.User
	logger logger.Logger
	events chan DeliveryEvent
	sleep  func(context.Context, time.Duration) error

	done     chan struct{}
	stopOnce sync.Once
	handoffs sync.WaitGroup
}

func NewBotClient(bot *tgbotapi.BotAPI, logger logger.Logger) *BotClient {
	return newBotClient(bot, bot.Self, logger)
}

func newBotClient(bot botAPI, self tgbotapi.User, logger logger.Logger) *BotClient {
	return &BotClient{
		bot:    bot,
		self:   self,
		logger: logger,
		events: make(chan DeliveryEvent, defaultDeliveryBuffer),
		sleep:  sleepContext,
		done:   make(chan struct{}),
	}
}

func (c *BotClient) Send(msg MessageConfig) (*Message, error) {
	sentMsg, err := c.bot.Send(msg.ToChattable())
	if err != nil {
		return nil, err
	}
	sent := adaptMessage(&sentMsg)
	c.emit(DeliveryEvent{Key: sent.Key()})
	return sent, nil
}

func (c *BotClient) SendWithRetry(ctx context.Context, msg MessageConfig, maxRetryCount int) (*Message, error) {
	maxRetries := 1
	if maxRetryCount > 0 {
		maxRetries = maxRetryCount
	}
	retryCount := 0

	for {
		sent, err := c.Send(msg)
		if err == nil {
			return sent, nil
		}

		if strings.Contains(err.Error(), "Too Many Requests: retry after") {
			retryAfter := extractRetryAfter(err.Error())
			waitTime := time.Duration(retryAfter+2) * time.Second

			c.logger.WithFields(logger.Fields{
				"retry_after": retryAfter,
				"wait_time":   waitTime,
				"attempt":     retryCount + 1,
			}).Warn("Rate limit hit, waiting before retry")

			retryCount++
			if retryCount > maxRetries {
				c.logger.Error("Max retries reached for rate limited message")
				return nil, err
			}
			if err := c.sleep(ctx, waitTime); err != nil {
				return nil, err
			}
			continue
		}

		return nil, err
	}
}

// DeleteMessage also fails the delivery of the deleted message for anyone
// still waiting on it.
func (c *BotClient) DeleteMessage(chatID int64, messageID int) (*APIResponse, error) {
	resp, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	if err != nil {
		return resp, err
	}
	c.emit(DeliveryEvent{
		Key: MessageKey{ChatID: chatID, MessageID: messageID},
		Err: ErrMessageDeleted,
	})
	return resp, nil
}

func (c *BotClient) SendChatAction(chatID int64, action ChatAction) error {
	_, err := c.bot.Request(tgbotapi.NewChatAction(chatID, string(action)))
	return err
}

func (c *BotClient) EscapeText(text string) string {
	return tgbotapi.EscapeText(ModeMarkdownV2, text)
}

func (c *BotClient) GetUpdatesChan(config UpdateConfig) <-chan Update {
	tgConfig := tgbotapi.UpdateConfig{
		Offset:  config.Offset,
		Limit:   config.Limit,
		Timeout: config.Timeout,
	}
	srcChan := c.bot.GetUpdatesChan(tgConfig)
	dstChan := make(chan Update)

	go func() {
		for update := range srcChan {
			dstChan <- update
		}
		close(dstChan)
	}()

	return dstChan
}

// StopReceivingUpdates also releases delivery events still waiting for
// buffer space. Events emitted afterwards are dropped once the buffer is
// full.
func (c *BotClient) StopReceivingUpdates() {
	c.bot.StopReceivingUpdates()
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *BotClient) NewUpdate(offset, timeout, limit int) UpdateConfig {
	return UpdateConfig{
		Offset:  offset,
		Limit:   limit,
		Timeout: timeout,
	}
}

func (c *BotClient) Self() User {
	return adaptUser(&c.self)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func extractRetryAfter(errMsg string) int {
	matches := retryAfterRe.FindStringSubmatch(errMsg)
	if len(matches) > 1 {
		retryAfter, _ := strconv.Atoi(matches[1])
		return retryAfter
	}
	return 0
}

func adaptMessage(msg *tgbotapi.Message) *Message {
	if msg == nil {
		return nil
	}

	return &Message{
		MessageID: msg.MessageID,
		Chat:      adaptChat(&msg.Chat),
		Text:      msg.Text,
		Caption:   msg.Caption,
		From:      adaptUser(msg.From),
		ReplyTo:   adaptMessage(msg.ReplyToMessage),
	}
}

func adaptUser(user *tgbotapi.User) User {
	if user == nil {
		return User{}
	}
	return User{
		ID:        int64(user.ID),
		FirstName: user.FirstName,
		UserName:  user.UserName,
	}
}

func adaptChat(chat *tgbotapi.Chat) Chat {
	if chat == nil {
		return Chat{}
	}
	return Chat{
		ID:   chat.ID,
		Type: chat.Type,
	}
}
