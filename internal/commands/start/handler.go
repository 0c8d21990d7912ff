package start

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/database"
	"github.com/muratoffalex/botcore/internal/telegram"
)

const CommandName = "start"

type Command struct {
	*base.Command
	db database.Database
}

func New(di *di.Container) *Command {
	cmd := &Command{db: di.DB}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Description() string {
	return "Show your user and chat id"
}

func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	count, err := c.db.CountInvocations(inv.UserID(), 24*time.Hour)
	if err != nil {
		c.Logger.WithError(err).Warn("Failed to count invocations")
	}

	msg := telegram.NewMessage(
		inv.ChatID(),
		c.L("start_info", map[string]any{
			"UserID": inv.UserID(),
			"ChatID": inv.ChatID(),
			"Count":  count,
			"Since":  c.knownSince(inv.UserID()).Format(time.DateOnly),
		}),
		inv.MessageID(),
	)
	msg.ParseMode = telegram.ModeMarkdownV2

	_, err = c.Reply(ctx, inv, msg)
	return err
}

// knownSince is the day the user registry first saw the user, or today for
// users not stored yet.
func (c *Command) knownSince(userID int64) time.Time {
	user, err := c.db.GetUser(userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Now().UTC()
	case err != nil:
		c.Logger.WithError(err).Warn("Failed to load user")
		return time.Now().UTC()
	}
	return user.CreatedAt.UTC()
}
