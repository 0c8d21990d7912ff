package roll

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/args"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/base"
	"github.com/muratoffalex/botcore/internal/ratelimit"
)

const (
	CommandName  = "roll"
	DefaultSides = 6
	MinSides     = 2
	MaxSides     = 1000
)

type Command struct {
	*base.Command
	intN func(n int) int
}

func New(di *di.Container) *Command {
	cmd := &Command{intN: rand.IntN}
	cmd.Command = base.NewCommand(cmd, di)
	return cmd
}

func (c *Command) Name() string {
	return CommandName
}

func (c *Command) Aliases() []string {
	return []string{"dice"}
}

func (c *Command) Description() string {
	return "Roll a die"
}

func (c *Command) Usage() string {
	return "/roll [sides]"
}

func (c *Command) RateLimit() commands.RateLimit {
	return commands.RateLimit{
		MaxCount: 5,
		Window:   30 * time.Second,
		Strategy: ratelimit.StrategySlidingWindow,
	}
}

func (c *Command) Execute(ctx context.Context, inv *commands.Invocation) error {
	sides := DefaultSides
	if strings.TrimSpace(inv.Args) != "" {
		var err error
		sides, err = args.Convert1(inv, inv.Args, args.IntRange("sides", MinSides, MaxSides))
		if err != nil {
			return err
		}
	}

	_, err := c.Respond(ctx, inv, c.L("roll_result", map[string]any{
		"Result": c.intN(sides) + 1,
		"Sides":  sides,
	}))
	return err
}
