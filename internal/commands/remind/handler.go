package remind

import (
	"context"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/ratelimit"
)

const (
	CommandName = "remind"
	MinMinutes  = 0.1
)

type Command struct {
	*base.Command
	maxDelay time.Duration
	wait     func(ctx context.Context, d time.Duration) error
}

func New(di *di.Container) *Command {
	cmd := &Command{
		maxDelay: di.Cfg.GetRemindCommandConfig().MaxDelay,
		wait:     sleep,
	}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"remindme"}
}

func (c *Command) Description() string {
	return "Mention someone after a delay"
}

func (c *Command) Usage() string {
	return "/remind @user <minutes> <text>, or reply to a message with /remind @user <minutes>"
}

func (c *Command) RateLimit() commands.RateLimit {
	return commands.RateLimit{
		MaxCount: 3,
		Window:   10 * time.Minute,
		Strategy: ratelimit.StrategyTokenBucket,
	}
}

// Execute acknowledges the reminder, then holds the invocation until it is
// due. /cancel and shutdown end the wait.
func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	user, minutes, text, err := args.Convert3(inv, inv.Args,
		args.Mention("user"),
		args.FloatRange("minutes", MinMinutes, c.maxDelay.Minutes()),
		args.StringGreedyOrReply("text"),
	)
	if err != nil {
		return err
	}
	delay := time.Duration(minutes * float64(time.Minute)).Round(time.Second)

	if _, err := c.Respond(ctx, inv, c.L("remind_scheduled", map[string]any{
		"User":  user,
		"Delay": delay.String(),
	})); err != nil {
		return err
	}

	log := c.Logger.WithFields(logger.Fields{
		"command":       CommandName,
		"invocation_id": inv.ID,
		"delay":         delay,
	})
	log.Debug("Reminder scheduled")

	if err := c.wait(ctx, delay); err != nil {
		return err
	}

	c.Typing(inv)
	_, err = c.Respond(ctx, inv, c.L("remind_due", map[string]any{
		"User": user,
		"Text": text,
	}))
	if err == nil {
		log.Debug("Reminder sent")
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
