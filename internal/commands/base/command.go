package base

import (
	"context"
	"errors"
	"sync"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/queue"
	"github.com/muratoffalex/botcore/internal/ratelimit"
	"github.com/muratoffalex/botcore/internal/service"
	"github.com/muratoffalex/botcore/internal/telegram"
)

// Command carries what every command shares. Concrete commands embed it and
// pass themselves to NewCommand so Handle can reach their Execute.
type Command struct {
	command   commands.Command
	Tg        telegram.Client
	Logger    logger.Logger
	Cfg       *config.Config
	Queue     *queue.Queue[telegram.MessageKey]
	Localizer *service.Localizer

	limiterOnce sync.Once
	limiter     ratelimit.Limiter[int64]
}

func NewCommand(cmd commands.Command, di *di.Container) *Command {
	return &Command{
		command:   cmd,
		Tg:        di.BotClient,
		Logger:    di.Logger,
		Cfg:       di.Cfg,
		Queue:     di.Queue,
		Localizer: di.Localizer,
	}
}

func (c *Command) Name() string {
	return ""
}

func (c *Command) Aliases() []string {
	return []string{}
}

func (c *Command) Description() string {
	return ""
}

func (c *Command) Usage() string {
	return "/" + c.command.Name()
}

func (c *Command) RateLimit() commands.RateLimit {
	return commands.RateLimit{}
}

// Handle consumes a slot of the invoking user's quota, then executes the
// command. Argument errors leave with the command's usage attached.
func (c *Command) Handle(ctx context.Context, inv *commands.Invocation) error {
	if limiter := c.rateLimiter(); limiter != nil {
		userID := inv.UserID()
		if !limiter.TryConsume(userID) {
			rlErr := &commands.RateLimitError{
				Command:    c.command.Name(),
				RetryAfter: limiter.RetryAfter(userID),
			}
			c.Logger.WithFields(logger.Fields{
				"command":     rlErr.Command,
				"user_id":     userID,
				"retry_after": rlErr.RetryAfter,
			}).Info("Rate limit exceeded")
			return rlErr
		}
	}

	err := c.command.Execute(ctx, inv)

	var argErr *args.Error
	if errors.As(err, &argErr) && argErr.Usage == "" {
		argErr.Usage = c.command.Usage()
	}
	return err
}

func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	return nil
}

// rateLimiter builds the limiter on first use from the command's declared
// quota with config overrides applied. Nil means unlimited.
func (c *Command) rateLimiter() ratelimit.Limiter[int64] {
	c.limiterOnce.Do(func() {
		rl := c.command.RateLimit()
		if c.Cfg != nil {
			override := c.Cfg.GetCommandConfig(c.command.Name()).RateLimit
			if !override.Enabled {
				return
			}
			if override.MaxCount > 0 {
				rl.MaxCount = override.MaxCount
			}
			if override.Window > 0 {
				rl.Window = override.Window
			}
			if override.Strategy != "" {
				rl.Strategy = override.Strategy
			}
		}
		if !rl.Enabled() {
			return
		}
		c.limiter = ratelimit.NewStrategy[int64](rl.Strategy, rl.MaxCount, rl.Window)
		c.Logger.WithFields(logger.Fields{
			"command":   c.command.Name(),
			"max_count": rl.MaxCount,
			"window":    rl.Window,
			"strategy":  rl.Strategy,
		}).Debug("Rate limiter configured")
	})
	return c.limiter
}

// Reply answers the invoking message and registers the sent message with the
// delivery queue.
func (c *Command) Reply(ctx context.Context, inv *commands.Invocation, msg telegram.TextMessage) (*telegram.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.ChatID == 0 {
		msg.ChatID = inv.ChatID()
	}
	if msg.ReplyTo == 0 {
		msg.ReplyTo = inv.MessageID()
	}

	sent, err := c.Tg.SendWithRetry(ctx, msg, 0)
	if err != nil {
		c.Logger.WithError(err).WithField("command", c.command.Name()).Error("Failed to send message")
		return nil, err
	}
	c.Queue.RegisterSent(sent.Key())
	return sent, nil
}

// Typing shows the typing indicator in the invocation's chat. Failures are
// only logged.
func (c *Command) Typing(inv *commands.Invocation) {
	if err := c.Tg.SendChatAction(inv.ChatID(), telegram.ActionTyping); err != nil {
		c.Logger.WithError(err).Warn("Failed to send typing action")
	}
}

func (c *Command) Respond(ctx context.Context, inv *commands.Invocation, text string) (*telegram.Message, error) {
	return c.Reply(ctx, inv, telegram.NewMessage(inv.ChatID(), text, inv.MessageID()))
}

// WaitForMessage blocks until the platform confirms the message, ctx ends or
// the delivery timeout passes.
func (c *Command) WaitForMessage(ctx context.Context, key telegram.MessageKey) error {
	return c.Queue.WaitForMessage(ctx, key)
}

func (c *Command) L(messageID string, data map[string]any) string {
	return c.Localizer.Localize(messageID, data)
}
