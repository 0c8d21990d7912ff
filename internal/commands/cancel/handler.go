package cancel

import (
	"context"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/logger"
	cancelsvc "github.com/muratoffalex/botcore/internal/service/cancel"
)

const CommandName = "cancel"

type Command struct {
	*base.Command
	manager *cancelsvc.Manager
}

func New(di *di.Container) *Command {
	cmd := &Command{manager: di.Cancel}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"stop"}
}

func (c *Command) Description() string {
	return "Cancel your running command"
}

func (c *Command) Usage() string {
	return "/cancel, or reply to a command message with /cancel"
}

// Execute cancels the invocation started by the replied-to message, or the
// caller's latest invocation in this chat. Only the caller's own invocations
// can be cancelled.
func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	info, ok := c.cancelTarget(inv)
	if !ok {
		_, err := c.Respond(ctx, inv, c.L("cancel_nothing", nil))
		return err
	}

	c.Logger.WithFields(logger.Fields{
		"user_id":       inv.UserID(),
		"cancelled":     info.Command,
		"invocation_id": info.ID,
	}).Info("Invocation cancelled by user")

	_, err := c.Respond(ctx, inv, c.L("cancel_done", map[string]any{"Command": info.Command}))
	return err
}

func (c *Command) cancelTarget(inv *commands.Invocation) (cancelsvc.ActiveRequestInfo, bool) {
	key, isReply := inv.ReplyKey()
	if !isReply {
		return c.manager.CancelLatest(inv.ChatID(), inv.UserID(), inv.Key())
	}

	info := c.manager.GetActiveRequest(key)
	if info == nil || info.UserID != inv.UserID() {
		return cancelsvc.ActiveRequestInfo{}, false
	}
	if !c.manager.Cancel(key) {
		return cancelsvc.ActiveRequestInfo{}, false
	}
	return *info, true
}
