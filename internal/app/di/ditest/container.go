// Package ditest builds a Container wired to in-memory fakes for tests.
package ditest

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/muratoffalex/botcore/internal/app/di"
	"github.com/muratoffalex/botcore/internal/config"
	"github.com/muratoffalex/botcore/internal/database"
	"github.com/muratoffalex/botcore/internal/logger"
	"github.com/muratoffalex/botcore/internal/queue"
	"github.com/muratoffalex/botcore/internal/service"
	"github.com/muratoffalex/botcore/internal/service/cancel"
	"github.com/muratoffalex/botcore/internal/telegram"
	"github.com/muratoffalex/botcore/internal/telegram/telegramtest"
)

type Env struct {
	*di.Container
	Tg  *telegramtest.Client
	Log *logger.TestLogger
}

// New returns a container over a fake Bot API client and a temporary sqlite
// database. values override config keys. Delivery events are pumped into
// the queue until the test ends.
func New(t testing.TB, values map[string]any) *Env {
	t.Helper()
	env := NewUnpumped(t, values)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		env.Tg.Pump(ctx, env.Queue)
	}()
	t.Cleanup(func() {
		stop()
		<-done
	})

	return env
}

// NewUnpumped is New for tests that consume delivery events themselves.
func NewUnpumped(t testing.TB, values map[string]any) *Env {
	t.Helper()

	cfg, err := config.New(values)
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	log := logger.NewTestLogger()
	db, err := database.Open(filepath.Join(t.TempDir(), "botcore.db"), log)
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	localizer, err := service.NewLocalizer(cfg.Global().InterfaceLanguage)
	if err != nil {
		t.Fatalf("localizer: %v", err)
	}

	tg := telegramtest.NewClient()
	delivery := cfg.Delivery()
	env := &Env{
		Container: &di.Container{
			BotClient: tg,
			Logger:    log,
			DB:        db,
			Cfg:       cfg,
			Queue: queue.NewQueue[telegram.MessageKey](queue.Config{
				DefaultTimeout:   delivery.Timeout,
				SettledRetention: delivery.SettledRetention,
			}, log),
			Localizer:   localizer,
			Cancel:      cancel.NewManager(),
			FetchClient: &http.Client{Timeout: 5 * time.Second},
		},
		Tg:  tg,
		Log: log,
	}
	return env
}
