package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/commands"
	"github.com/muratoffalex/botcore/internal/commands/cancel"
	"github.com/muratoffalex/botcore/internal/commands/remind"
	"github.com/muratoffalex/botcore/internal/commands/roll"
	"github.com/muratoffalex/botcore/internal/commands/say"
	"github.com/muratoffalex/botcore/internal/commands/start"
	"github.com/muratoffalex/botcore/internal/commands/title"
	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/core"
	"github.com/muratoffalex/botcore/internal/logger"
)

type Application struct {
	Logger logger.Logger
	cfg    *config.Config
	bot    *core.Bot
	di     *di.Container
	ctx    context.Context
	cancel context.CancelFunc
}

// New loads the config, builds the container and registers the enabled
// commands. The application stops on SIGINT or SIGTERM.
func New() (*Application, error) {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	di, err := di.NewContainer(cfg)
	if err != nil {
		return nil, err
	}
	di.Logger.Info("DI Container created")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app, err := newApplication(ctx, cancel, di)
	if err != nil {
		cancel()
		di.Close()
		return nil, err
	}
	return app, nil
}

func newApplication(ctx context.Context, cancel context.CancelFunc, di *di.Container) (*Application, error) {
	botInstance, err := core.NewBot(
		di.BotClient,
		di.Queue,
		di.Logger,
		di.DB,
		di.Cfg,
		di.Localizer,
		di.Cancel,
	)
	if err != nil {
		return nil, err
	}
	di.Logger.Info("Bot instance created")

	app := &Application{
		cfg:    di.Cfg,
		bot:    botInstance,
		di:     di,
		Logger: di.Logger,
		ctx:    ctx,
		cancel: cancel,
	}

	app.registerCommands()

	return app, nil
}

// Start blocks until the application is asked to stop.
func (a *Application) Start() error {
	a.Logger.Info("Starting application")
	a.StartInvocationCleaner()
	return a.bot.Start(a.ctx)
}

func (a *Application) registerCommands() {
	builders := []struct {
		name  string
		build func(*di.Container) commands.Command
	}{
		{start.CommandName, func(c *di.Container) commands.Command { return start.New(c) }},
		{say.CommandName, func(c *di.Container) commands.Command { return say.New(c) }},
		{roll.CommandName, func(c *di.Container) commands.Command { return roll.New(c) }},
		{cancel.CommandName, func(c *di.Container) commands.Command { return cancel.New(c) }},
		{remind.CommandName, func(c *di.Container) commands.Command { return remind.New(c) }},
		{title.CommandName, func(c *di.Container) commands.Command { return title.New(c) }},
	}

	for _, b := range builders {
		if !a.cfg.GetCommandConfig(b.name).Enabled {
			a.Logger.WithField("command", b.name).Info("Command disabled")
			continue
		}
		a.bot.RegisterCommand(b.build(a.di))
	}
}

// Stop asks a running Start to return.
func (a *Application) Stop() {
	a.cancel()
}

func (a *Application) WaitForShutdown() {
	<-a.ctx.Done()
	a.cancel()
	if err := a.di.Close(); err != nil {
		a.Logger.WithError(err).Error("Failed to close database")
	}
	a.Logger.Info("Application stopped")
}

// StartInvocationCleaner purges old invocation log rows until the
// application stops.
func (a *Application) StartInvocationCleaner() {
	dbCfg := a.cfg.Database()
	go func() {
		ticker := time.NewTicker(dbCfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				a.purgeInvocations(dbCfg.InvocationRetention)
			}
		}
	}()
}

func (a *Application) purgeInvocations(retention time.Duration) {
	removed, err := a.di.DB.PurgeOldInvocations(retention)
	if err != nil {
		a.Logger.WithError(err).Error("Failed to purge old invocations")
		return
	}
	if removed > 0 {
		a.Logger.WithField("removed", removed).Info("Purged old invocations")
	}
}
