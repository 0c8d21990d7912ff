package say

import (
	"context"
	"errors"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/queue"
	"github.com/muratoffalex/botcore/internal/ratelimit"
)

const CommandName = "say"

type Command struct {
	*base.Command
}

func New(di *di.Container) *Command {
	cmd := &Command{}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"echo"}
}

func (c *Command) Description() string {
	return "Repeat the text, or the replied-to message"
}

func (c *Command) Usage() string {
	return "/say <text> or reply to a message with /say"
}

func (c *Command) RateLimit() commands.RateLimit {
	return commands.RateLimit{
		MaxCount: 3,
		Window:   60 * time.Second,
		Strategy: ratelimit.StrategySlidingWindow,
	}
}

// Execute repeats the text and, once the platform confirms the reply and
// commands.say.delete_command is set, removes the invoking message.
func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	text, err := args.Convert1(inv, inv.Args, args.StringGreedyOrReply("text"))
	if err != nil {
		return err
	}

	sent, err := c.Respond(ctx, inv, text)
	if err != nil {
		return err
	}

	if !c.Cfg.GetSayCommandConfig().DeleteCommand {
		return nil
	}

	log := c.Logger.WithFields(logger.Fields{
		"command": CommandName,
		"message": sent.Key().String(),
	})
	if err := c.WaitForMessage(ctx, sent.Key()); err != nil {
		if errors.Is(err, queue.ErrWaitTimedOut) {
			log.WithError(err).Warn("Reply not confirmed, keeping command message")
			return nil
		}
		return err
	}

	if _, err := c.Tg.DeleteMessage(inv.ChatID(), inv.MessageID()); err != nil {
		log.WithError(err).Warn("Failed to delete command message")
	}
	return nil
}
