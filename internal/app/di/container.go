package di

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/database"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/network"
	"github.com/muratoffalex/botcore/internal/queue"
	"github.com/muratoffalex/botcore/internal/service"
	"github.com/muratoffalex/botcore/internal/service/cancel"
	"github.com/muratoffalex/botcore/internal/telegram"
)

type Container struct {
	BotClient  telegram.Client
	Logger     logger.Logger
	DB         database.Database
	Cfg        *config.Config
	Queue      *queue.Queue[telegram.MessageKey]
	Localizer  *service.Localizer
	Cancel     *cancel.Manager
	HttpClient *http.Client

	// FetchClient loads web pages for commands.
	FetchClient *http.Client
}

func NewContainer(cfg *config.Config) (*Container, error) {
	l := logger.NewLogrusLogger(cfg.Log())

	db, err := database.NewSQLiteDB(cfg, l)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	localizer, err := service.NewLocalizer(cfg.Global().InterfaceLanguage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localizer: %w", err)
	}

	delivery := cfg.Delivery()
	container := &Container{
		Logger: l,
		DB:     db,
		Cfg:    cfg,
		Queue: queue.NewQueue[telegram.MessageKey](queue.Config{
			DefaultTimeout:   delivery.Timeout,
			SettledRetention: delivery.SettledRetention,
		}, l.WithField("component", "delivery_queue")),
		Localizer: localizer,
		Cancel:    cancel.NewManager(),
	}

	tgCfg := cfg.Telegram()
	httpCfg := network.NewBotAPIHTTPClientConfig(cfg.HTTP(), time.Duration(tgCfg.UpdateTimeout)*time.Second)
	container.HttpClient, err = network.SetupHTTPClient(httpCfg, l)
	if err != nil {
		db.Close()
		return nil, err
	}

	fetchCfg := network.NewFetchHTTPClientConfig(cfg.HTTP(), cfg.GetTitleCommandConfig().Timeout)
	container.FetchClient, err = network.SetupHTTPClient(fetchCfg, l.WithField("client", "fetch"))
	if err != nil {
		db.Close()
		return nil, err
	}

	endpoint := tgCfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(tgCfg.Token, endpoint, container.HttpClient)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bot API client initialization: %w", err)
	}
	l.WithField("username", api.Self.UserName).Info("Bot API initialized")

	container.BotClient = telegram.NewBotClient(api, l)

	return container, nil
}

func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
